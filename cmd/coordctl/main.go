package main

import (
	"os"

	"github.com/arnavshah/coordination-api/cmd/coordctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
