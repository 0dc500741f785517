package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	level  Level
	msg    string
	fields Fields
}

type recorder struct {
	entries []recorded
}

func (r *recorder) add(level Level, msg string, fields []Fields) {
	all := Fields{}
	for _, f := range fields {
		for k, v := range f {
			all[k] = v
		}
	}
	r.entries = append(r.entries, recorded{level: level, msg: msg, fields: all})
}

func (r *recorder) Debug(msg string, fields ...Fields)            { r.add(DebugLevel, msg, fields) }
func (r *recorder) Info(msg string, fields ...Fields)             { r.add(InfoLevel, msg, fields) }
func (r *recorder) Warn(msg string, fields ...Fields)             { r.add(WarnLevel, msg, fields) }
func (r *recorder) Error(err error, msg string, fields ...Fields) { r.add(ErrorLevel, msg, fields) }
func (r *recorder) Fatal(err error, msg string, fields ...Fields) { r.add(FatalLevel, msg, fields) }
func (r *recorder) WithFields(fields Fields) Logger               { return r }
func (r *recorder) WithContext(ctx context.Context) Logger        { return r }
func (r *recorder) SetLevel(level Level)                          {}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDefaultLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, InfoLevel)

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	child := l.WithFields(Fields{"component": "decoder"})
	child.Warn("dropped", Fields{"reason": "checksum"})
	out := buf.String()
	assert.Contains(t, out, "[WARN] dropped")
	assert.Contains(t, out, "component=decoder")
	assert.Contains(t, out, "reason=checksum")

	buf.Reset()
	l.Error(errors.New("boom"), "failed")
	assert.Contains(t, buf.String(), "[ERROR] failed: boom")
	assert.NotContains(t, buf.String(), "component=decoder")
}

func TestDefaultLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, DebugLevel)

	ctx := ContextWithFields(context.Background(), Fields{"role": "receiver"})
	ctx = ContextWithFields(ctx, Fields{"port": "/dev/ttyUSB0"})
	l.WithContext(ctx).Info("started")

	assert.Contains(t, buf.String(), "role=receiver")
	assert.Contains(t, buf.String(), "port=/dev/ttyUSB0")
}

func TestSampledSuppressesAndReports(t *testing.T) {
	rec := &recorder{}
	s := NewSampled(rec, time.Second, 2)
	t0 := time.Unix(100, 0)

	assert.True(t, s.WarnAt(t0, "drop"))
	assert.True(t, s.WarnAt(t0, "drop"))
	assert.False(t, s.WarnAt(t0, "drop"))
	assert.False(t, s.WarnAt(t0, "drop"))
	assert.Equal(t, 2, s.Suppressed())
	require.Len(t, rec.entries, 2)

	assert.True(t, s.WarnAt(t0.Add(time.Second), "drop"))
	require.Len(t, rec.entries, 3)
	assert.Equal(t, 2, rec.entries[2].fields["suppressed"])
	assert.Equal(t, 0, s.Suppressed())
}

func TestLogrusLoggerAdapter(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := NewLogrusLoggerFrom(base).WithFields(Fields{"component": "sender"})

	l.Info("tick", Fields{"bands": 12})
	require.Len(t, hook.Entries, 1)
	e := hook.LastEntry()
	assert.Equal(t, "tick", e.Message)
	assert.Equal(t, "sender", e.Data["component"])
	assert.Equal(t, 12, e.Data["bands"])

	l.Error(errors.New("io"), "write failed")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.EqualError(t, hook.LastEntry().Data[logrus.ErrorKey].(error), "io")

	l.SetLevel(WarnLevel)
	l.Info("hidden")
	assert.Len(t, hook.Entries, 2)
}

func TestNewLogrusLoggerRejectsBadFormat(t *testing.T) {
	_, err := NewLogrusLogger(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = NewLogrusLogger(Options{Level: "loud"})
	assert.Error(t, err)
}
