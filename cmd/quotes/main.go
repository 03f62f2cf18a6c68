package main

import (
	"os"

	"github.com/procural/quotes-go/cmd/quotes/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
