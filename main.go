package main

import (
	"os"

	"github.com/agentopia/toolbox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
