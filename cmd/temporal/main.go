// Command temporal manages valid-time records from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/temporal/internal/cli"
)

func main() {
	if err := cli.Execute(cli.NewRootCommand()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
