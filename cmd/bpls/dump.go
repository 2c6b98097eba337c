package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type dumpOptions struct {
	step  int
	start []uint
	count []uint
	block int
}

func newDumpCmd(opts *rootOptions) *cobra.Command {
	d := &dumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump <dataset> <variable>",
		Short: "Print the values of a variable in one step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer r.Close() //nolint:errcheck

			var values any
			if d.block >= 0 {
				values, err = r.GetBlock(args[1], d.step, d.block)
			} else {
				values, err = r.Get(args[1], toUint64s(d.start), toUint64s(d.count), d.step)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s step %d: %v\n", args[1], d.step, values)

			return nil
		},
	}

	cmd.Flags().IntVarP(&d.step, "step", "s", 0, "step to read, starting at 0")
	cmd.Flags().UintSliceVar(&d.start, "start", nil, "selection start per dimension")
	cmd.Flags().UintSliceVar(&d.count, "count", nil, "selection count per dimension")
	cmd.Flags().IntVarP(&d.block, "block", "b", -1, "read one block whole instead of a selection")

	return cmd
}

func toUint64s(in []uint) []uint64 {
	if in == nil {
		return nil
	}

	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}

	return out
}
