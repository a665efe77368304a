package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/onnwee/cloudlog/internal/cloudlog"
)

// newTestLogger creates a logger that discards all output to reduce test noise
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream replays a fixed list of notifications, then returns end.
type fakeStream struct {
	notes  []Notification
	end    error
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		if s.end == nil {
			// Block until cancelled.
			s.mu.Unlock()
			<-ctx.Done()
			s.mu.Lock()
			return Notification{}, ctx.Err()
		}
		return Notification{}, s.end
	}
	n := s.notes[0]
	s.notes = s.notes[1:]
	return n, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeSource hands out results in order; once exhausted it keeps
// returning the last one.
type fakeSource struct {
	mu      sync.Mutex
	results []func() (Stream, error)
	calls   int
}

func (s *fakeSource) Connect(ctx context.Context) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx]()
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func failConnect(msg string) func() (Stream, error) {
	return func() (Stream, error) { return nil, errors.New(msg) }
}

func streamOf(end error, notes ...Notification) func() (Stream, error) {
	return func() (Stream, error) {
		return &fakeStream{notes: append([]Notification(nil), notes...), end: end}, nil
	}
}

// recordingSink stores published entries and optionally fails.
type recordingSink struct {
	mu      sync.Mutex
	entries []cloudlog.Entry
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(ctx context.Context, e cloudlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *recordingSink) Entries() []cloudlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cloudlog.Entry(nil), s.entries...)
}

// staticResolver resolves ids from a map.
type staticResolver struct {
	users map[string]string
	err   error
	calls int
}

func (r *staticResolver) ResolveUser(ctx context.Context, id string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.users[id], nil
}

func setNote(name string, value any, fields map[string]any) Notification {
	all := map[string]any{"method": "set", "name": name, "value": value}
	for k, v := range fields {
		all[k] = v
	}
	return Notification{Method: "set", Name: name, Value: value, Fields: all}
}

// blockingSink holds every publish until release is closed or ctx ends.
type blockingSink struct {
	release chan struct{}

	mu      sync.Mutex
	started int
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Publish(ctx context.Context, e cloudlog.Entry) error {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSink) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
