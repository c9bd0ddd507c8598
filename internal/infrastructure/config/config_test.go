package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "factory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig_MatchesTwoLinePlant(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, []string{"ENGINE", "WHEEL", "SEAT", "DOOR", "MIRROR"}, cfg.Factory.Catalog)
	require.Len(t, cfg.Factory.Inventories, 2)
	assert.Equal(t, 4, cfg.Factory.Inventories[0].StockFor())
	require.Len(t, cfg.Factory.Lines, 2)
	assert.Equal(t, []string{"Rahul", "Shivam"}, cfg.Factory.Lines[0].Workers)
	assert.Equal(t, "storage2", cfg.Factory.Lines[1].Inventory)

	assert.Equal(t, 5*time.Second, cfg.Factory.Worker.BuildDuration)
	assert.Equal(t, 3*time.Second, cfg.Factory.Worker.InstallDuration)
	assert.Equal(t, 2, cfg.Factory.Worker.PartsPerJob)
	assert.Equal(t, 8, cfg.Factory.Worker.MaxBacklog)
	assert.Equal(t, 15*time.Second, cfg.Factory.Orders.GenerateInterval)
	assert.Equal(t, 10*time.Second, cfg.Factory.Orders.AssignInterval)
	assert.Equal(t, 10*time.Second, cfg.Factory.Restock.MinDelay)
	assert.Equal(t, 15*time.Second, cfg.Factory.Restock.MaxDelay)
	assert.Equal(t, 3, cfg.Factory.Restock.Increment)
	assert.True(t, cfg.Factory.Restock.CoalesceEnabled())

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	require.NoError(t, config.ValidateConfig(cfg))
}

func TestLoadConfig_FromFile(t *testing.T) {
	// Arrange
	path := writeConfig(t, `
factory:
  seed: 42
  catalog: [A, B, C]
  inventories:
    - name: shared
      initial_stock: 0
  lines:
    - name: L1
      inventory: shared
      workers: [w1]
    - name: L2
      inventory: shared
      workers: [w2, w3]
  orders:
    generate_interval: 2s
    queue_capacity: 5
    overflow_policy: drop_oldest
  worker:
    parts_per_job: 3
    busy_policy: reject
  restock:
    coalesce: false
logging:
  level: debug
`)

	// Act
	cfg, err := config.LoadConfig(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Factory.Seed)
	assert.Equal(t, 0, cfg.Factory.Inventories[0].StockFor())
	assert.Equal(t, 2*time.Second, cfg.Factory.Orders.GenerateInterval)
	assert.Equal(t, 10*time.Second, cfg.Factory.Orders.AssignInterval)
	assert.Equal(t, "drop_oldest", cfg.Factory.Orders.OverflowPolicy)
	assert.Equal(t, "reject", cfg.Factory.Worker.BusyPolicy)
	assert.False(t, cfg.Factory.Restock.CoalesceEnabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "factory:\n  worker:\n    build_duration: 7s\n")
	t.Setenv("CF_FACTORY_WORKER_BUILD_DURATION", "9s")

	cfg, err := config.LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Factory.Worker.BuildDuration)
}

func TestLoadConfig_KeepsExplicitZeros(t *testing.T) {
	// Arrange
	path := writeConfig(t, `
factory:
  orders:
    assign_interval: 0s
  worker:
    parts_per_job: 0
    install_duration: 0s
  restock:
    increment: 0
`)
	t.Setenv("CF_FACTORY_ORDERS_GENERATE_INTERVAL", "0s")

	// Act
	cfg, err := config.LoadConfig(path)

	// Assert
	require.NoError(t, err)
	assert.Zero(t, cfg.Factory.Orders.GenerateInterval, "generation disabled from the environment")
	assert.Zero(t, cfg.Factory.Orders.AssignInterval, "periodic dispatch disabled from the file")
	assert.Zero(t, cfg.Factory.Worker.PartsPerJob)
	assert.Zero(t, cfg.Factory.Worker.InstallDuration)
	assert.Zero(t, cfg.Factory.Restock.Increment)

	// Keys left out still get their defaults
	assert.Equal(t, 5*time.Second, cfg.Factory.Worker.BuildDuration)
	assert.Equal(t, 10*time.Second, cfg.Factory.Restock.MinDelay)
}

func TestValidateConfig_RejectsBadTopology(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		message string
	}{
		{
			name:    "parts per job above catalog size",
			mutate:  func(cfg *config.Config) { cfg.Factory.Worker.PartsPerJob = 6 },
			message: "exceeds catalog size",
		},
		{
			name:    "unknown inventory",
			mutate:  func(cfg *config.Config) { cfg.Factory.Lines[0].Inventory = "nowhere" },
			message: "unknown inventory",
		},
		{
			name:    "worker on two lines",
			mutate:  func(cfg *config.Config) { cfg.Factory.Lines[1].Workers = []string{"Rahul"} },
			message: "assigned to both",
		},
		{
			name:    "duplicate inventory",
			mutate:  func(cfg *config.Config) { cfg.Factory.Inventories[1].Name = "storage1" },
			message: "duplicate inventory",
		},
		{
			name: "restock window inverted",
			mutate: func(cfg *config.Config) {
				cfg.Factory.Restock.MinDelay = 20 * time.Second
			},
			message: "gtefield",
		},
		{
			name:    "duplicate catalog entry",
			mutate:  func(cfg *config.Config) { cfg.Factory.Catalog = []string{"A", "A"} },
			message: "unique",
		},
		{
			name:    "unknown busy policy",
			mutate:  func(cfg *config.Config) { cfg.Factory.Worker.BusyPolicy = "panic" },
			message: "oneof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			err := config.ValidateConfig(cfg)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

