package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
)

var levelRank = map[string]int{
	common.LevelDebug: 0,
	common.LevelInfo:  1,
	common.LevelWarn:  2,
	common.LevelError: 3,
}

// maxLimiters bounds the per-message sampler table
const maxLimiters = 4096

// ConsoleLogger writes one line per entry to an io.Writer, as text or JSON.
//
// With sampling enabled, each distinct level+message gets its own token bucket:
// after Burst entries the message is written at most once per Every. Errors are
// never sampled.
type ConsoleLogger struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	format string
	min    int
	clock  shared.Clock
	tag    string

	sampling bool
	every    time.Duration
	burst    int
	limiters map[string]*rate.Limiter
	dropped  int
}

// NewConsoleLogger creates a logger from the logging configuration
func NewConsoleLogger(cfg config.LoggingConfig, clock shared.Clock) (*ConsoleLogger, error) {
	var (
		out    io.Writer
		closer io.Closer
	)
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "file":
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
		}
		out, closer = f, f
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}

	l := NewWriterLogger(out, cfg, clock)
	l.closer = closer
	return l, nil
}

// NewWriterLogger creates a logger over an arbitrary writer
func NewWriterLogger(out io.Writer, cfg config.LoggingConfig, clock shared.Clock) *ConsoleLogger {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	threshold, ok := levelRank[strings.ToUpper(cfg.Level)]
	if !ok {
		threshold = levelRank[common.LevelInfo]
	}
	format := cfg.Format
	if format == "" {
		format = "text"
	}

	return &ConsoleLogger{
		out:      out,
		format:   format,
		min:      threshold,
		clock:    clock,
		sampling: cfg.Sampling.Enabled && cfg.Sampling.Every > 0,
		every:    cfg.Sampling.Every,
		burst:    max(cfg.Sampling.Burst, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Named returns a logger sharing this one's output that prefixes text lines with tag
func (l *ConsoleLogger) Named(tag string) common.Logger {
	return &namedLogger{parent: l, tag: tag}
}

type namedLogger struct {
	parent *ConsoleLogger
	tag    string
}

func (n *namedLogger) Log(level, message string, metadata map[string]interface{}) {
	n.parent.write(n.tag, level, message, metadata)
}

// Log implements common.Logger
func (l *ConsoleLogger) Log(level, message string, metadata map[string]interface{}) {
	l.write(l.tag, level, message, metadata)
}

// Dropped returns how many entries sampling suppressed
func (l *ConsoleLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the log file, if any
func (l *ConsoleLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *ConsoleLogger) write(tag, level, message string, metadata map[string]interface{}) {
	level = strings.ToUpper(level)
	rank, ok := levelRank[level]
	if !ok {
		rank = levelRank[common.LevelInfo]
	}
	if rank < l.min {
		return
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sampling && level != common.LevelError && !l.allowLocked(level+"|"+message, now) {
		l.dropped++
		return
	}

	var line string
	if l.format == "json" {
		line = formatJSON(now, tag, level, message, metadata)
	} else {
		line = formatText(now, tag, level, message, metadata)
	}
	_, _ = io.WriteString(l.out, line)
}

func (l *ConsoleLogger) allowLocked(key string, now time.Time) bool {
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Every(l.every), l.burst)
		l.limiters[key] = limiter
	}
	return limiter.AllowN(now, 1)
}

func formatText(now time.Time, tag, level, message string, metadata map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(now.Format(time.RFC3339))
	b.WriteString("] ")
	if tag != "" {
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("] ")
	}
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(message)

	for _, k := range sortedKeys(metadata) {
		fmt.Fprintf(&b, " %s=%v", k, metadata[k])
	}
	b.WriteString("\n")
	return b.String()
}

func formatJSON(now time.Time, tag, level, message string, metadata map[string]interface{}) string {
	entry := make(map[string]interface{}, len(metadata)+4)
	for k, v := range metadata {
		entry[k] = v
	}
	entry["time"] = now.Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = message
	if tag != "" {
		entry["logger"] = tag
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Metadata held something unencodable; keep the message
		data, _ = json.Marshal(map[string]interface{}{
			"time":  entry["time"],
			"level": level,
			"msg":   message,
			"error": err.Error(),
		})
	}
	return string(data) + "\n"
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
