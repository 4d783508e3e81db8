package audit

import (
	"context"
	"errors"
)

// Sink persists or forwards events. Write is called from the dispatcher
// goroutine only.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Logger is the subset of logging.Logger the package uses.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopSink discards events.
type NoopSink struct{}

// Write implements Sink.
func (NoopSink) Write(context.Context, Event) error { return nil }

// MultiSink writes each event to every sink in order. A failing sink does
// not stop the others; their errors are joined.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
