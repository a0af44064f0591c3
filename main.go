package main

import (
	"os"

	"github.com/mazholin/jobpilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
