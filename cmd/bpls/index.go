package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <dataset>",
		Short: "Show the metadata index header and rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer r.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			h := r.Header()
			order := "little-endian"
			if !h.LittleEndian {
				order = "big-endian"
			}
			fmt.Fprintf(out, "version:    %s (%d.%d.%d, BP%d)\n", h.Tag, h.Major, h.Minor, h.Patch, h.BPVersion)
			fmt.Fprintf(out, "endianness: %s\n", order)
			fmt.Fprintf(out, "active:     %t\n", h.Active)

			table := newTable(out, "Step", "Rank", "PG", "Vars", "Attrs", "End", "Metadata", "Written")
			for _, row := range r.IndexRows() {
				table.Append([]string{
					strconv.FormatUint(row.Step, 10),
					strconv.FormatUint(row.Rank, 10),
					strconv.FormatUint(row.PGIndexStart, 10),
					strconv.FormatUint(row.VarIndexStart, 10),
					strconv.FormatUint(row.AttrIndexStart, 10),
					strconv.FormatUint(row.StepEndPos, 10),
					humanize.IBytes(row.MetadataLength()),
					time.Unix(int64(row.Timestamp), 0).UTC().Format(time.RFC3339), //nolint:gosec
				})
			}
			table.Render()

			return nil
		},
	}
}
