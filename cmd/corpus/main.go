// Command corpus is the entry point for the hybrid retrieval core.
// It provides a CLI interface (via Cobra) for ingestion, search, and
// maintenance, plus an HTTP server exposing the same operations as a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/murtezaalemdar/CompanyAi-sub001/cmd/corpus/commands"
)

func main() {
	// Best-effort .env bootstrap for local development; real deployments
	// configure through the environment or a YAML file.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
