package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "carfactory",
		Short: "Car factory simulation - order book, production lines, workers and inventories",
		Long: `carfactory runs a car assembly plant as a network of message-driven agents.

An order book generates orders and dispatches them round robin to production
lines. Each line hands the job to one of its workers, who builds the body,
requests parts from a shared inventory and installs whatever was delivered.
Inventories restock themselves after running short.

Examples:
  carfactory run --duration 5m
  carfactory config show
  carfactory ledger list --limit 20
  carfactory ledger runs
  carfactory health`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getDefaultConfigPath(),
		"Path to factory.yaml (default: search ., ./configs, /etc/carfactory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose output")

	// Add command groups
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewLedgerCommand())
	rootCmd.AddCommand(NewHealthCommand())

	return rootCmd
}

// getDefaultConfigPath returns the config path from the environment, if any
func getDefaultConfigPath() string {
	return os.Getenv("CARFACTORY_CONFIG")
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
