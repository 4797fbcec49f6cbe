package main

import (
	"os"

	"github.com/ftfvalues/tradecalc/cmd/catalogtotal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
