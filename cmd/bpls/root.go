package main

import (
	"io"

	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arloliu/bp4/engine"
	"github.com/arloliu/bp4/logger"
)

type rootOptions struct {
	fs      vfs.FS
	verbose bool
}

func newRootCmd(fs vfs.FS) *cobra.Command {
	opts := &rootOptions{fs: fs}

	cmd := &cobra.Command{
		Use:           "bpls",
		Short:         "Inspect BP4 datasets",
		Long:          "bpls lists the variables, attributes and index rows of a BP4 dataset directory and dumps variable values.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log reader activity to stderr")

	cmd.AddCommand(
		newLsCmd(opts),
		newIndexCmd(opts),
		newDumpCmd(opts),
	)

	return cmd
}

func (o *rootOptions) open(cmd *cobra.Command, path string) (*engine.Reader, error) {
	log := zap.NewNop()
	if o.verbose {
		log = logger.New(cmd.ErrOrStderr(), zapcore.DebugLevel)
	}

	return engine.OpenReader(path, engine.WithFS(o.fs), engine.WithLogger(log))
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(headers)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)

	return t
}
