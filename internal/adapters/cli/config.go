package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration settings",
		Long: `Inspect carfactory configuration settings.

Configuration is loaded from multiple sources with priority:
1. Environment variables (CF_* prefix, e.g. CF_FACTORY_SEED)
2. Config file (factory.yaml)
3. Default values

Examples:
  carfactory config show
  carfactory config show --json
  carfactory config validate --config ./configs/factory.yaml`,
	}

	// Add subcommands
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

// newConfigShowCommand creates the config show subcommand
func newConfigShowCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Display the effective configuration after defaults and overrides.

Example:
  carfactory config show`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				fmt.Fprintf(out, "Warning: Failed to load config: %v\n", err)
				fmt.Fprintln(out, "Using default configuration.")
				cfg = config.DefaultConfig()
			}

			if asJSON {
				shown := *cfg
				shown.Database.URL = maskPassword(shown.Database.URL)
				shown.Database.Password = maskSecret(shown.Database.Password)
				shown.Events.AMQPURL = maskPassword(shown.Events.AMQPURL)
				fmt.Fprintln(out, prettyPrint(shown))
				return nil
			}

			printConfig(out, cfg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the configuration as JSON")

	return cmd
}

// newConfigValidateCommand creates the config validate subcommand
func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadConfig(configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	f := cfg.Factory

	fmt.Fprintln(out, "Car Factory Configuration")
	fmt.Fprintln(out, "=========================")

	fmt.Fprintln(out, "Factory:")
	if f.Seed == 0 {
		fmt.Fprintf(out, "  Seed:             (random)\n")
	} else {
		fmt.Fprintf(out, "  Seed:             %d\n", f.Seed)
	}
	fmt.Fprintf(out, "  Catalog:          %s\n", strings.Join(f.Catalog, ", "))
	for _, inv := range f.Inventories {
		fmt.Fprintf(out, "  Inventory:        %s (initial stock %d)\n", inv.Name, inv.StockFor())
	}
	for _, line := range f.Lines {
		fmt.Fprintf(out, "  Line:             %s -> %s [%s]\n", line.Name, line.Inventory, strings.Join(line.Workers, ", "))
	}

	fmt.Fprintln(out, "\nOrders:")
	fmt.Fprintf(out, "  Generate every:   %s\n", f.Orders.GenerateInterval)
	fmt.Fprintf(out, "  Assign every:     %s\n", f.Orders.AssignInterval)
	fmt.Fprintf(out, "  Queue capacity:   %d (%s)\n", f.Orders.QueueCapacity, f.Orders.OverflowPolicy)

	fmt.Fprintln(out, "\nWorkers:")
	fmt.Fprintf(out, "  Build:            %s\n", f.Worker.BuildDuration)
	fmt.Fprintf(out, "  Install:          %s\n", f.Worker.InstallDuration)
	fmt.Fprintf(out, "  Parts per job:    %d\n", f.Worker.PartsPerJob)
	if f.Worker.PartsTimeout > 0 {
		fmt.Fprintf(out, "  Parts timeout:    %s\n", f.Worker.PartsTimeout)
	}
	fmt.Fprintf(out, "  Busy policy:      %s\n", f.Worker.BusyPolicy)

	fmt.Fprintln(out, "\nRestock:")
	fmt.Fprintf(out, "  Delay:            %s - %s\n", f.Restock.MinDelay, f.Restock.MaxDelay)
	fmt.Fprintf(out, "  Increment:        %d\n", f.Restock.Increment)
	fmt.Fprintf(out, "  Coalesce:         %t\n", f.Restock.CoalesceEnabled())

	fmt.Fprintln(out, "\nDatabase:")
	fmt.Fprintf(out, "  Type:             %s\n", cfg.Database.Type)
	switch {
	case cfg.Database.URL != "":
		fmt.Fprintf(out, "  URL:              %s\n", maskPassword(cfg.Database.URL))
	case cfg.Database.Type == "sqlite":
		fmt.Fprintf(out, "  Path:             %s\n", cfg.Database.Path)
	default:
		fmt.Fprintf(out, "  Host:             %s\n", cfg.Database.Host)
		fmt.Fprintf(out, "  Port:             %d\n", cfg.Database.Port)
		fmt.Fprintf(out, "  Database:         %s\n", cfg.Database.Name)
		fmt.Fprintf(out, "  User:             %s\n", cfg.Database.User)
	}

	fmt.Fprintln(out, "\nMetrics:")
	fmt.Fprintf(out, "  Enabled:          %t\n", cfg.Metrics.Enabled)
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  Endpoint:         %s:%d%s\n", cfg.Metrics.Host, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	fmt.Fprintln(out, "\nDaemon:")
	fmt.Fprintf(out, "  Health address:   %s\n", valueOr(cfg.Daemon.Address, "(disabled)"))
	fmt.Fprintf(out, "  PID file:         %s\n", valueOr(cfg.Daemon.PIDFile, "(disabled)"))
	fmt.Fprintf(out, "  Shutdown timeout: %s\n", cfg.Daemon.ShutdownTimeout)

	fmt.Fprintln(out, "\nEvents:")
	if cfg.Events.Enabled() {
		fmt.Fprintf(out, "  Broker:           %s\n", maskPassword(cfg.Events.AMQPURL))
		fmt.Fprintf(out, "  Exchange:         %s\n", cfg.Events.Exchange)
	} else {
		fmt.Fprintf(out, "  Broker:           (disabled)\n")
	}

	fmt.Fprintln(out, "\nLogging:")
	fmt.Fprintf(out, "  Level:            %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  Format:           %s\n", cfg.Logging.Format)
	fmt.Fprintf(out, "  Output:           %s\n", cfg.Logging.Output)
}

// maskPassword hides the password of a connection URL for display
func maskPassword(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

func maskSecret(s string) string {
	if s == "" {
		return s
	}
	return "xxxxx"
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// prettyPrint formats JSON for display
func prettyPrint(v interface{}) string {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(bytes)
}
