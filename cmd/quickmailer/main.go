// Package main is the quickmailer entry point.
package main

import (
	"os"

	"github.com/priyanshudevsingh/quickmailer/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
