package main

import (
	"os"

	"tenderbridge/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		os.Exit(1)
	}
}
