package main

import (
	"os"

	"github.com/rhythmcheck/backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
