package main

import (
	"os"

	"github.com/ac-freeman/open-accountability/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
