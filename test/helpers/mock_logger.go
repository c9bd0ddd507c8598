package helpers

import (
	"strings"
	"sync"
)

// LogEntry is one captured log call
type LogEntry struct {
	Level    string
	Message  string
	Metadata map[string]interface{}
}

// MockLogger captures log calls for assertions
type MockLogger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Log(level, message string, metadata map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, LogEntry{Level: level, Message: message, Metadata: metadata})
}

// Contains reports whether any message contains substr
func (m *MockLogger) Contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
