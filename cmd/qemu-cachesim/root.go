// Package main provides the qemu-cachesim command-line entry point: the
// outermost layer binding a concrete configuration to the cache hierarchy,
// access driver, fault injector, trace harness and collaborator transport.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "qemu-cachesim",
	Short: "A set-associative cache hierarchy simulator and single-shot fault injector.",
	Long: `qemu-cachesim replays a recorded instruction/memory trace through a ` +
		`two-level ARM v7-A cache hierarchy, optionally arming a single-shot ` +
		`fault injection plan supplied by a TCP collaborator, and reports a ` +
		`final stats snapshot on teardown.`,
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
