// logger.go
package storage

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"DeliveryAnalytics/src/config"
)

// LogLevel is the severity of a log entry.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

// Logger writes leveled entries to a file and fans them out to subscribers,
// which the dashboard uses for its live log stream.
type Logger struct {
	name        string
	file        *os.File
	mu          sync.Mutex
	subscribers []chan string
}

// NewLogger opens (or creates) the log file and returns the logger.
func NewLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &Logger{
		name: filename,
		file: file,
	}, nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Log writes one entry: [time] LEVEL: message
func (l *Logger) Log(level LogLevel, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := fmt.Sprintf("[%s] %s: %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		level.String(),
		message)

	l.file.WriteString(entry)

	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default: // drop when a subscriber is slow
		}
	}
}

// CheckRotate rotates the log file once it exceeds the configured size.
func (l *Logger) CheckRotate(cfg *config.Config) {
	info, err := l.file.Stat()
	if err != nil {
		log.Fatal(err)
	}

	if info.Size() > eval(cfg.LogMaxSize) {
		l.rotateLog()
	}
}

func (l *Logger) rotateLog() {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := l.name
	if l.file != nil {
		l.file.Close()
		os.Rename(name, fmt.Sprintf("%s.%s", name, time.Now().Format("20060102150405")))
	}

	var err error
	l.file, err = os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal(err)
	}
}

// Subscribe returns a channel receiving every subsequent log entry. Callers
// must Unsubscribe when done or the subscriber list grows unbounded.
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan string, 100)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe removes the channel from the fan-out and closes it. Closing
// under the same lock Log broadcasts under keeps the two from racing.
func (l *Logger) Unsubscribe(ch <-chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, sub := range l.subscribers {
		if (<-chan string)(sub) == ch {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// eval resolves size expressions like "10 * 1024 * 1024".
func eval(expr string) int64 {
	parts := strings.Split(expr, " * ")
	var result int64 = 1
	for _, part := range parts {
		num, _ := strconv.Atoi(part)
		result *= int64(num)
	}
	return result
}

func (l *Logger) Debug(msg string)   { l.Log(DEBUG, msg) }
func (l *Logger) Info(msg string)    { l.Log(INFO, msg) }
func (l *Logger) Warning(msg string) { l.Log(WARNING, msg) }
func (l *Logger) Error(msg string)   { l.Log(ERROR, msg) }
func (l *Logger) Fatal(msg string)   { l.Log(FATAL, msg) }
