// Package main is the entry point for the pcapmerge capture merging tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/pcapmerge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
