package main

import (
	"os"

	"github.com/clinicalintel/intake/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
