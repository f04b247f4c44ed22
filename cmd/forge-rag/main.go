package main

import (
	"os"

	"github.com/digital-forge/forge-rag/internal/adapters/driving/cli"
)

func main() {
	os.Exit(cli.Execute())
}
