package logging

import (
	"context"
	"maps"
	"sync"
)

// Entry is a single log call captured by a Recorder.
type Entry struct {
	Level   Level
	Message string
	Err     error
	Fields  Fields
}

// Recorder keeps log entries in memory. It is safe for concurrent use and is
// mostly used by tests that assert on diagnostics.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  Fields
	level   Level
}

// NewRecorder returns a Recorder that captures every level.
func NewRecorder() *Recorder {
	return &Recorder{
		mu:      &sync.Mutex{},
		entries: &[]Entry{},
		fields:  make(Fields),
		level:   DebugLevel,
	}
}

func (r *Recorder) record(level Level, err error, msg string, fields ...Fields) {
	if level < r.level {
		return
	}
	all := make(Fields)
	maps.Copy(all, r.fields)
	for _, f := range fields {
		maps.Copy(all, f)
	}

	r.mu.Lock()
	*r.entries = append(*r.entries, Entry{Level: level, Message: msg, Err: err, Fields: all})
	r.mu.Unlock()
}

func (r *Recorder) Debug(msg string, fields ...Fields) { r.record(DebugLevel, nil, msg, fields...) }
func (r *Recorder) Info(msg string, fields ...Fields)  { r.record(InfoLevel, nil, msg, fields...) }
func (r *Recorder) Warn(msg string, fields ...Fields)  { r.record(WarnLevel, nil, msg, fields...) }

func (r *Recorder) Error(err error, msg string, fields ...Fields) {
	r.record(ErrorLevel, err, msg, fields...)
}

// Fatal records at FatalLevel but does not exit.
func (r *Recorder) Fatal(err error, msg string, fields ...Fields) {
	r.record(FatalLevel, err, msg, fields...)
}

func (r *Recorder) WithFields(fields Fields) Logger {
	merged := make(Fields)
	maps.Copy(merged, r.fields)
	maps.Copy(merged, fields)
	return &Recorder{mu: r.mu, entries: r.entries, fields: merged, level: r.level}
}

func (r *Recorder) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return r.WithFields(fields)
	}
	return r
}

func (r *Recorder) SetLevel(level Level) {
	r.level = level
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(*r.entries))
	copy(out, *r.entries)
	return out
}

// Messages returns the recorded messages at the given level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
