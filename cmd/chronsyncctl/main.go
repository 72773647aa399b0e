package main

import (
	"os"

	"github.com/matheus3301/chronsync/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
