package main

import (
	"os"

	"github.com/Aman-CERP/amanmcp/cmd/amanmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Cobra already printed the error; the exit code is ours.
		os.Exit(1)
	}
}
