package main

import (
	"os"

	"github.com/tracklab/relay/cmd/cli/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
