// Package main is the entry point for the npanalytics CLI.
package main

import (
	"os"

	"github.com/josh20ny/np-analytics-app-sub000/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
