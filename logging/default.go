package logging

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultLogger is a dependency-free line logger. Debug and Info go to out,
// Warn and above go to errOut. Colors are applied only on a terminal.
type DefaultLogger struct {
	mu        *sync.Mutex
	out       io.Writer
	errOut    io.Writer
	level     Level
	fields    Fields
	useColors bool
	exit      func(int)
}

// NewDefaultLogger creates a logger on stdout/stderr
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		mu:        &sync.Mutex{},
		out:       os.Stdout,
		errOut:    os.Stderr,
		level:     InfoLevel,
		fields:    Fields{},
		useColors: isTerminal(os.Stdout),
		exit:      os.Exit,
	}
}

// NewWriterLogger creates an uncolored logger writing every level to w
func NewWriterLogger(w io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{
		mu:     &sync.Mutex{},
		out:    w,
		errOut: w,
		level:  level,
		fields: Fields{},
		exit:   os.Exit,
	}
}

func isTerminal(f *os.File) bool {
	if fileInfo, _ := f.Stat(); fileInfo != nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func (d *DefaultLogger) format(level Level, err error, msg string, fields ...Fields) string {
	all := Fields{}
	maps.Copy(all, d.fields)
	for _, f := range fields {
		maps.Copy(all, f)
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006/01/02 15:04:05.000"))
	fmt.Fprintf(&b, " [%s] %s", level, msg)
	if err != nil {
		fmt.Fprintf(&b, ": %v", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	line := b.String()
	if d.useColors {
		switch level {
		case WarnLevel:
			line = ColorYellow + line + ColorReset
		case ErrorLevel:
			line = ColorRed + line + ColorReset
		case FatalLevel:
			line = ColorBold + ColorRed + line + ColorReset
		}
	}
	return line + "\n"
}

func (d *DefaultLogger) log(level Level, err error, msg string, fields ...Fields) {
	if level < d.level {
		return
	}

	line := d.format(level, err, msg, fields...)
	w := d.out
	if level >= WarnLevel {
		w = d.errOut
	}

	d.mu.Lock()
	_, _ = io.WriteString(w, line)
	d.mu.Unlock()

	if level == FatalLevel {
		d.exit(1)
	}
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.log(DebugLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.log(InfoLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.log(WarnLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.log(ErrorLevel, err, msg, fields...)
}

func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.log(FatalLevel, err, msg, fields...)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	child := *d
	child.fields = Fields{}
	maps.Copy(child.fields, d.fields)
	maps.Copy(child.fields, fields)
	return &child
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return d.WithFields(fields)
	}
	return d
}

func (d *DefaultLogger) SetLevel(level Level) {
	d.level = level
}

// NoOpLogger discards everything
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
