// Package main provides tdmsim, an offline driver for the mixer.
//
// Usage:
//
//	tdmsim [flags] <command> [args]
//
// Commands:
//
//	mix       - run the configured spans and conference plan for N ticks
//	validate  - load a configuration and print the resulting plan
//	modes     - list conference modes and flags
package main

import (
	"fmt"
	"os"

	"github.com/Raikerian/go-tdmmix/cmd/tdmsim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
