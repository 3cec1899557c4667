package console

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogMessage represents a single log entry
type LogMessage struct {
	Time    time.Time
	Level   LogLevel
	Message string
}

// LogManager feeds the log panel. It is an io.Writer for zap's console
// encoder, so the pipeline's own logger writes straight into the panel.
type LogManager struct {
	textView *tview.TextView

	mu          sync.Mutex
	messages    []LogMessage
	maxMessages int
}

// NewLogManager creates a log panel keeping maxMessages lines.
func NewLogManager(maxMessages int) *LogManager {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxMessages)
	textView.SetBorder(true).SetTitle(" Logs ")

	return &LogManager{
		textView:    textView,
		messages:    make([]LogMessage, 0, maxMessages),
		maxMessages: maxMessages,
	}
}

// GetView returns the tview component
func (lm *LogManager) GetView() tview.Primitive {
	return lm.textView
}

// Write parses zap console lines ("15:04:05\tINFO\tlogger\tmsg\t{...}")
// into panel entries. Lines it cannot parse are kept whole at INFO.
func (lm *LogManager) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		lm.add(parseLine(line))
	}
	return len(p), nil
}

func parseLine(line string) LogMessage {
	msg := LogMessage{Time: time.Now(), Level: LogLevelInfo, Message: line}

	fields := strings.SplitN(line, "\t", 3)
	if len(fields) < 3 {
		return msg
	}
	if t, err := time.Parse("15:04:05", fields[0]); err == nil {
		now := time.Now()
		msg.Time = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	}
	switch level := LogLevel(strings.ToUpper(fields[1])); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		msg.Level = level
	default:
		return msg
	}
	msg.Message = strings.ReplaceAll(fields[2], "\t", " ")
	return msg
}

// Info logs an info message
func (lm *LogManager) Info(format string, args ...any) {
	lm.add(LogMessage{Time: time.Now(), Level: LogLevelInfo, Message: fmt.Sprintf(format, args...)})
}

// Error logs an error message
func (lm *LogManager) Error(format string, args ...any) {
	lm.add(LogMessage{Time: time.Now(), Level: LogLevelError, Message: fmt.Sprintf(format, args...)})
}

func (lm *LogManager) add(msg LogMessage) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.messages = append(lm.messages, msg)
	if len(lm.messages) > lm.maxMessages {
		lm.messages = lm.messages[len(lm.messages)-lm.maxMessages:]
	}
	lm.refresh()
}

// Messages returns a copy of the held entries, oldest first.
func (lm *LogManager) Messages() []LogMessage {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return append([]LogMessage(nil), lm.messages...)
}

// refresh redraws the text view. Callers hold mu.
func (lm *LogManager) refresh() {
	var b strings.Builder
	for _, msg := range lm.messages {
		fmt.Fprintf(&b, "[gray]%s[-] [%s]%-5s[-] %s\n",
			msg.Time.Format("15:04:05"), colorForLevel(msg.Level), msg.Level, tview.Escape(msg.Message))
	}
	lm.textView.SetText(b.String())
	lm.textView.ScrollToEnd()
}

// colorForLevel returns the tview color tag for a log level
func colorForLevel(level LogLevel) string {
	switch level {
	case LogLevelDebug:
		return "gray"
	case LogLevelWarn:
		return "yellow"
	case LogLevelError:
		return "red"
	default:
		return "white"
	}
}
