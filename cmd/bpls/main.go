// Command bpls inspects BP4 datasets: their variables, attributes, index rows and values.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble/v2/vfs"
)

func main() {
	if err := newRootCmd(vfs.Default).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
