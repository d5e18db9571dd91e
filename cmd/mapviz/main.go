// Command mapviz refreshes public datasets, renders them as interactive map
// documents and serves those documents over HTTP.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var a app
	if err := execute(newRootCmd(&a), &a); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// execute runs the command tree and releases the app's resources whether or
// not the command failed.
func execute(root *cobra.Command, a *app) error {
	err := root.Execute()
	return errors.Join(err, a.teardown())
}
