package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/adapters/logging"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func lines(buf *bytes.Buffer) []string {
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestConsoleLogger_TextFormat(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, config.LoggingConfig{Level: "info", Format: "text"}, shared.NewMockClock(epoch))

	// Act
	logger.Named("Line-1").Log(common.LevelInfo, "Car fully assembled", map[string]interface{}{
		"order_id": 3,
		"worker":   "Rahul",
	})

	// Assert
	assert.Equal(t, "[2025-03-01T09:00:00Z] [Line-1] INFO: Car fully assembled order_id=3 worker=Rahul\n", buf.String())
}

func TestConsoleLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, config.LoggingConfig{Level: "debug", Format: "json"}, shared.NewMockClock(epoch))

	logger.Log(common.LevelWarn, "Order shed", map[string]interface{}{"order_id": 9})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "Order shed", entry["msg"])
	assert.Equal(t, float64(9), entry["order_id"])
	assert.Equal(t, "2025-03-01T09:00:00Z", entry["time"])
}

func TestConsoleLogger_LevelFilter(t *testing.T) {
	tests := []struct {
		minLevel string
		want     int
	}{
		{minLevel: "debug", want: 4},
		{minLevel: "info", want: 3},
		{minLevel: "warn", want: 2},
		{minLevel: "error", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.minLevel, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.NewWriterLogger(&buf, config.LoggingConfig{Level: tt.minLevel}, shared.NewMockClock(epoch))

			for _, level := range []string{common.LevelDebug, common.LevelInfo, common.LevelWarn, common.LevelError} {
				logger.Log(level, "message "+level, nil)
			}

			assert.Len(t, lines(&buf), tt.want)
		})
	}
}

func TestConsoleLogger_SamplesRepeatedMessages(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	clock := shared.NewMockClock(epoch)
	logger := logging.NewWriterLogger(&buf, config.LoggingConfig{
		Level:    "info",
		Sampling: config.SamplingConfig{Enabled: true, Every: time.Second, Burst: 2},
	}, clock)

	// Act
	for i := 0; i < 10; i++ {
		logger.Log(common.LevelInfo, "Nothing to assign", nil)
	}
	logger.Log(common.LevelInfo, "Different message", nil)

	// Assert
	assert.Len(t, lines(&buf), 3, "burst of two plus the other message")
	assert.Equal(t, 8, logger.Dropped())

	clock.Advance(time.Second)
	logger.Log(common.LevelInfo, "Nothing to assign", nil)
	assert.Len(t, lines(&buf), 4, "one token refilled after a second")
}

func TestConsoleLogger_NeverSamplesErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, config.LoggingConfig{
		Level:    "info",
		Sampling: config.SamplingConfig{Enabled: true, Every: time.Hour, Burst: 1},
	}, shared.NewMockClock(epoch))

	for i := 0; i < 5; i++ {
		logger.Log(common.LevelError, "Failed to record factory event", nil)
	}

	assert.Len(t, lines(&buf), 5)
}

func TestConsoleLogger_FileOutput(t *testing.T) {
	path := t.TempDir() + "/factory.log"
	logger, err := logging.NewConsoleLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "text",
		Output:   "file",
		FilePath: path,
	}, shared.NewMockClock(epoch))
	require.NoError(t, err)

	logger.Log(common.LevelInfo, "Factory started", nil)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO: Factory started")

	_, err = logging.NewConsoleLogger(config.LoggingConfig{Output: "syslog"}, nil)
	assert.Error(t, err)
}
