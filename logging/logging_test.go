package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriterLogger_FormatsFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, DebugLevel).WithFields(Fields{"component": "peaks"})

	l.Warn("window reset", Fields{"last": int64(20), "now": int64(10)})

	out := buf.String()
	assert.Contains(t, out, "[WARN] window reset component=peaks last=20 now=10")
}

func TestWriterLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, WarnLevel)

	l.Debug("dropped")
	l.Info("dropped too")
	assert.Empty(t, buf.String())

	l.Error(errors.New("boom"), "listener failed")
	assert.Contains(t, buf.String(), "[ERROR] listener failed: boom")
}

func TestRecorder_SharesEntriesAcrossDerivedLoggers(t *testing.T) {
	rec := NewRecorder()
	child := rec.WithFields(Fields{"stream": "ppg"})

	child.Info("started")
	rec.WithContext(ContextWithFields(context.Background(), Fields{"user": "u1"})).Warn("late sample")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "ppg", entries[0].Fields["stream"])
	assert.Equal(t, "u1", entries[1].Fields["user"])
	assert.Equal(t, []string{"late sample"}, rec.Messages(WarnLevel))
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}
