// Command groupreplay posts a snapshot into a chat channel.
package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/grouparchive/internal/command"
)

func main() {
	if err := command.Replay().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := command.ResumeHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}
