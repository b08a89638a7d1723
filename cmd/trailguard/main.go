package main

import (
	"os"

	"github.com/rustyeddy/trailguard/cmd/trailguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
