// Package main is the entry point for the fc2dl application.
package main

import (
	"os"

	"github.com/fc2dl/fc2dl/cmd/fc2dl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
