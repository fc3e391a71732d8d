// Package log provides structured logging for regd.
//
// Entries carry a level, a category and key=value fields. They are rendered
// as text or JSON lines to a file (or any writer) and fanned out to
// subscribers through pubsub.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/regd/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the level name in lower case for JSON output.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(l.String())), nil
}

// ParseLevel converts a settings value ("debug", "info", ...) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelDebug, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects how entries are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a settings value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}

// Category groups related log messages.
type Category string

const (
	CatConfig  Category = "config"  // Descriptor and settings loading
	CatDB      Category = "db"      // Data access and migrations
	CatHandler Category = "handler" // Handler registration and dispatch
	CatAspect  Category = "aspect"  // Aspect registration and invocation
	CatMount   Category = "mount"   // Mount resolution
	CatCache   Category = "cache"
	CatWatcher Category = "watcher"
	CatHTTP    Category = "http" // Admin API
	CatSecret  Category = "secret"
	CatQuery   Category = "query"
	CatEvents  Category = "events" // Event sink publication
	CatApp     Category = "app"    // Bootstrap and reload
)

// Field is one key=value pair of an entry.
type Field struct {
	Key   string
	Value any
}

// Entry is a single log record before rendering.
type Entry struct {
	Time     time.Time
	Level    Level
	Category Category
	Message  string
	Fields   []Field
}

func newEntry(level Level, cat Category, msg string, kv []any) Entry {
	e := Entry{Time: time.Now(), Level: level, Category: cat, Message: msg}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Fields = append(e.Fields, Field{Key: fmt.Sprint(kv[i]), Value: kv[i+1]})
	}
	if len(kv)%2 != 0 {
		e.Fields = append(e.Fields, Field{Key: fmt.Sprint(kv[len(kv)-1]), Value: "<missing>"})
	}
	return e
}

// Text renders e as
//
//	2026-01-02T10:45:00 [WARN] [config] message key=value key2=value2
func (e Entry) Text() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", e.Level, e.Category, e.Message)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

// JSON renders e as a single JSON object. Field keys that collide with
// the envelope keys are prefixed with "field.".
func (e Entry) JSON() string {
	obj := map[string]any{
		"time":     e.Time.Format(time.RFC3339Nano),
		"level":    e.Level,
		"category": e.Category,
		"msg":      e.Message,
	}
	for _, f := range e.Fields {
		key := f.Key
		if _, taken := obj[key]; taken {
			key = "field." + key
		}
		v := f.Value
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		obj[key] = v
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Sprintf(`{"level":"error","msg":"unencodable log entry: %s"}`, err)
	}
	return string(data)
}

// Options configures a logger.
type Options struct {
	Level  Level
	Format Format
}

// Logger provides structured logging.
type Logger struct {
	mu      sync.Mutex
	closer  io.Closer
	writer  io.Writer
	enabled bool
	opts    Options
	broker  *pubsub.Broker[string]
}

var defaultLogger atomic.Pointer[Logger]

func install(w io.Writer, c io.Closer, opts Options) *Logger {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	l := &Logger{
		writer:  w,
		closer:  c,
		enabled: true,
		opts:    opts,
		broker:  pubsub.NewBroker[string](),
	}
	if prev := defaultLogger.Swap(l); prev != nil {
		prev.broker.Close()
	}
	return l
}

// Init installs a global logger appending to the file at path and returns
// a cleanup function closing it.
func Init(path string, opts Options) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: log path comes from settings
	if err != nil {
		return nil, err
	}
	l := install(f, f, opts)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.enabled = false
		_ = l.closer.Close()
	}, nil
}

// InitWriter installs a global logger writing to w. It replaces any logger
// installed before and is meant for CLI commands (stderr) and tests.
func InitWriter(w io.Writer, opts Options) {
	install(w, nil, opts)
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := defaultLogger.Load(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := defaultLogger.Load(); l != nil {
		l.mu.Lock()
		l.opts.Level = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	v := "<nil>"
	if err != nil {
		v = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", v))
}

func write(level Level, cat Category, msg string, kv []any) {
	l := defaultLogger.Load()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.opts.Level {
		return
	}

	e := newEntry(level, cat, msg, kv)
	line := e.Text()
	if l.opts.Format == FormatJSON {
		line = e.JSON()
	}
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, line+"\n")
	}
	l.broker.Publish(pubsub.CreatedEvent, line)
}

// LogEvent is a pubsub event containing a rendered log line.
type LogEvent = pubsub.Event[string]

// LogListener receives rendered log lines.
type LogListener = pubsub.Listener[string]

// NewListener subscribes to the current logger. It returns nil when no
// logger is installed. The subscription ends when ctx is cancelled or a
// new logger replaces the current one.
func NewListener(ctx context.Context) *LogListener {
	l := defaultLogger.Load()
	if l == nil {
		return nil
	}
	return pubsub.NewListener(ctx, l.broker)
}
