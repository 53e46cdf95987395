package main

import (
	"os"

	"github.com/casegrid-labs/casegrid/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
