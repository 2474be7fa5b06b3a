// Command veloq validates shard maps and resolves routes.
package main

import (
	"fmt"
	"os"

	"github.com/syssam/veloq/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
