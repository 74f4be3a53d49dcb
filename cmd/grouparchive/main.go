// Command grouparchive snapshots a group's message history into SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/grouparchive/internal/command"
)

func main() {
	if err := command.Extract().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
