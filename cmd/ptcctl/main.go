// Command ptcctl is the PTC operator CLI: status, workers, dead-letters,
// retry, resolve, and stats, against either a running coordinator's admin
// API or the shared SQLite store directly.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
