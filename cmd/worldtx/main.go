// Command worldtx runs, records, replays and inspects gridworld sessions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/worldtx/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
