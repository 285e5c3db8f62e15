package main

import (
	"os"

	"github.com/greenledger/cbio-forecast/cmd/cbio/commands"
)

// main is the entry point for the CBIO forecast CLI
// ⭐ Unified CLI entry point: go run ./cmd/cbio [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
