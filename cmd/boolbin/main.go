package main

import (
	"os"

	"github.com/RTnhN/boolbin/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
