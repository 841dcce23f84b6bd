package main

import (
	"os"

	"github.com/solatis/cratedigger/cmd/cratedigger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
