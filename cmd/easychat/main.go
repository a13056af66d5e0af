// Package main is the entry point for the easychat CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/easychat-dev/easychat/internal/policy"
	"github.com/easychat-dev/easychat/internal/storage"
	"github.com/easychat-dev/easychat/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configFile string
	storePath  string
	backend    string
	model      string
	verbose    bool
)

const defaultModel = "claude-sonnet-4-20250514"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "easychat",
		Short: "Local AI chat with self-cleaning storage",
		Long: `easychat keeps a capacity-bounded local conversation history and
streams responses from an AI provider. The persisted history cleans
itself: expired turns are evicted, oversized turns are compressed, and
the store never grows past its byte budget.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultStore := ""
	if home, err := os.UserHomeDir(); err == nil {
		defaultStore = filepath.Join(home, ".easychat", "chat.db")
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to yaml config file")
	root.PersistentFlags().StringVar(&storePath, "store", defaultStore, "Path to the history store")
	root.PersistentFlags().StringVar(&backend, "backend", "sqlite", "Storage backend: sqlite, file, memory")
	root.PersistentFlags().StringVar(&model, "model", defaultModel, "Model identifier")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose output")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newClearCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("easychat %s\n", version)
		},
	}
}

func loadConfig() (policy.Config, error) {
	return policy.Load(configFile)
}

func newCLILogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return telemetry.NewLogger(os.Stderr, level)
}

// openDriver builds the selected storage backend. The returned closer is a
// no-op for backends without resources to release.
func openDriver(cfg policy.Config) (storage.Driver, func(), error) {
	switch backend {
	case "memory":
		return storage.NewMemDriver(cfg.CapacityBytes), func() {}, nil
	case "file":
		d, err := storage.NewFileDriver(storePath, cfg.CapacityBytes)
		return d, func() {}, err
	case "sqlite":
		if storePath == "" {
			return nil, nil, fmt.Errorf("no store path; pass --store")
		}
		if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
			return nil, nil, err
		}
		d, err := storage.NewSQLiteDriver(storePath, cfg.CapacityBytes)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
