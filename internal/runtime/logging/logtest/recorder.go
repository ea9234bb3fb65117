// Package logtest provides a recording ServiceLogger for tests.
package logtest

import (
	"sync"

	loggingpkg "github.com/drblury/nodeflow/internal/runtime/logging"
)

// Entry is a single recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields loggingpkg.LogFields
	Err    error
}

// Recorder captures every log call, including those made through loggers
// derived with With. It is safe for concurrent use.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  loggingpkg.LogFields
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (r *Recorder) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := make(loggingpkg.LogFields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Recorder{mu: r.mu, entries: r.entries, fields: merged}
}

func (r *Recorder) Debug(msg string, fields loggingpkg.LogFields) { r.record("debug", msg, fields, nil) }
func (r *Recorder) Info(msg string, fields loggingpkg.LogFields)  { r.record("info", msg, fields, nil) }
func (r *Recorder) Trace(msg string, fields loggingpkg.LogFields) { r.record("trace", msg, fields, nil) }

func (r *Recorder) Warn(msg string, err error, fields loggingpkg.LogFields) {
	r.record("warn", msg, fields, err)
}

func (r *Recorder) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.record("error", msg, fields, err)
}

func (r *Recorder) record(level, msg string, fields loggingpkg.LogFields, err error) {
	merged := make(loggingpkg.LogFields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.entries = append(*r.entries, Entry{Level: level, Msg: msg, Fields: merged, Err: err})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(*r.entries))
	copy(out, *r.entries)
	return out
}

// Count returns how many entries were recorded at level with the given message.
func (r *Recorder) Count(level, msg string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level && e.Msg == msg {
			n++
		}
	}
	return n
}

// Levels returns the levels of entries recorded with the given message, in order.
func (r *Recorder) Levels(msg string) []string {
	var levels []string
	for _, e := range r.Entries() {
		if e.Msg == msg {
			levels = append(levels, e.Level)
		}
	}
	return levels
}
