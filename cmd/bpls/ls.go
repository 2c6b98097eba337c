package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arloliu/bp4/engine"
	"github.com/arloliu/bp4/format"
)

func newLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <dataset>",
		Short: "List variables and attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer r.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			size, files := datasetSize(opts, args[0])
			fmt.Fprintf(out, "%s: %d steps, %d files, %s\n", args[0], r.Steps(), files, humanize.IBytes(size))

			vars := newTable(out, "Variable", "Type", "Shape", "Steps", "Blocks", "Min", "Max")
			for _, name := range r.Variables() {
				info, err := r.VariableInfo(name)
				if err != nil {
					return err
				}
				vars.Append([]string{
					name,
					info.Type.String(),
					shapeString(info),
					strconv.Itoa(len(info.Steps)),
					strconv.Itoa(len(info.Blocks)),
					valueString(info.Min),
					valueString(info.Max),
				})
			}
			vars.Render()

			attrs := r.Attributes()
			if len(attrs) == 0 {
				return nil
			}
			table := newTable(out, "Attribute", "Value")
			for _, name := range attrs {
				v, err := r.Attribute(name)
				if err != nil {
					return err
				}
				table.Append([]string{name, fmt.Sprintf("%v", v)})
			}
			table.Render()

			return nil
		},
	}
}

func datasetSize(opts *rootOptions, path string) (uint64, int) {
	names, err := opts.fs.List(path)
	if err != nil {
		return 0, 0
	}

	var total uint64
	for _, name := range names {
		info, err := opts.fs.Stat(opts.fs.PathJoin(path, name))
		if err != nil || info.IsDir() {
			continue
		}
		total += uint64(info.Size()) //nolint:gosec
	}

	return total, len(names)
}

func shapeString(info *engine.VariableInfo) string {
	switch info.ShapeID {
	case format.ShapeGlobalValue:
		return "scalar"
	case format.ShapeLocalValue:
		return "local scalar"
	case format.ShapeLocalArray:
		return "local"
	}

	dims := make([]string, len(info.Shape))
	for i, d := range info.Shape {
		dims[i] = strconv.FormatUint(d, 10)
	}

	return "{" + strings.Join(dims, ", ") + "}"
}

func valueString(v any) string {
	if v == nil {
		return "-"
	}

	return fmt.Sprintf("%v", v)
}
