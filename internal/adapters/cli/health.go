package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	factorygrpc "github.com/andrescamacho/carfactory-go/internal/adapters/grpc"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/pidfile"
)

// NewHealthCommand creates the health command
func NewHealthCommand() *cobra.Command {
	var (
		address string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a running factory is serving",
		Long: `Query the gRPC health service of a running factory.

Exits non-zero unless the factory reports SERVING.

Examples:
  carfactory health
  carfactory health --address localhost:50061`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := config.LoadConfigOrDefault(configPath)
			if address == "" {
				address = cfg.Daemon.Address
			}
			if address == "" {
				return fmt.Errorf("no health address: set daemon.address or pass --address")
			}

			client, err := factorygrpc.NewHealthClient(address)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			status, err := client.Check(ctx, factorygrpc.FactoryService)
			if err != nil {
				return err
			}
			if status != "SERVING" {
				return fmt.Errorf("factory is %s", status)
			}

			fmt.Fprintln(out, "✓ Factory is healthy")
			fmt.Fprintf(out, "  Status:           %s\n", status)
			fmt.Fprintf(out, "  Address:          %s\n", address)
			if cfg.Daemon.PIDFile != "" {
				if owner, running := pidfile.New(cfg.Daemon.PIDFile).Running(); running {
					fmt.Fprintf(out, "  PID:              %d\n", owner.PID)
					if owner.RunID != "" {
						fmt.Fprintf(out, "  Run ID:           %s\n", owner.RunID)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Health service address (default: daemon.address)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")

	return cmd
}
