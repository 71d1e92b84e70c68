package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maumercado/ptc/internal/config"
	"github.com/maumercado/ptc/internal/ptc/store"
	"github.com/maumercado/ptc/pkg/client"
)

var (
	addrFlag  string
	localFlag bool
	dbFlag    string
	jsonFlag  bool
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	okColor    = color.New(color.FgGreen)
	headColor  = color.New(color.FgCyan, color.Bold)
)

var rootCmd = &cobra.Command{
	Use:          "ptcctl",
	Short:        "Operator CLI for the parallel task coordinator",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "http://localhost:8080", "coordinator admin API address")
	rootCmd.PersistentFlags().BoolVar(&localFlag, "local", false, "bypass the admin API and read the SQLite store directly (side-by-side with the coordinator process)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "store path to use with --local (defaults to the coordinator's configured storage path)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "emit JSON instead of a human-readable summary")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(deadLettersCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(statsCmd)
}

func newClient() (*client.Client, error) {
	return client.New(addrFlag)
}

// openLocalStore opens the shared SQLite store directly for --local mode.
// This is the CLI's closest equivalent to "calling the coordinator facade
// directly" from a separate process: the store, not the in-process
// Coordinator struct, is the actual point of shared truth (claims are
// arbitrated by its transactions, not by the facade living in memory).
func openLocalStore() (*store.Store, error) {
	path := dbFlag
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.Coordinator.StoragePath
	}
	return store.Open(path)
}

func printHeading(s string) {
	if jsonFlag {
		return
	}
	headColor.Println(s)
}
