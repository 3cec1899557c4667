package tui

import (
	"strings"
	"sync"
)

// LogBuffer keeps the most recent log lines for the log pane. It is the
// io.Writer behind the TUI's zap core, since stderr belongs to the screen.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewLogBuffer returns a buffer holding up to max lines.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 100
	}
	return &LogBuffer{max: max}
}

// Write stores each complete line of p.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		b.lines = append(b.lines, line)
	}
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return len(p), nil
}

// Tail returns the last n lines, oldest first.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.lines) {
		n = len(b.lines)
	}
	return append([]string(nil), b.lines[len(b.lines)-n:]...)
}
