package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink stores events. When gate is set, Write signals started and
// then blocks until gate is closed.
type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (s *recordingSink) Write(_ context.Context, e Event) error {
	if s.gate != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

type memLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *memLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *memLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestDispatcher_CloseDrains(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{BufferSize: 16}, sink, nil)

	for _, a := range []Action{ActionSignup, ActionLogin, ActionRefresh, ActionLogout} {
		d.Emit(Event{Action: a, Entity: EntitySession})
	}
	d.Close()

	assert.Equal(t, []Action{ActionSignup, ActionLogin, ActionRefresh, ActionLogout}, sink.actions())
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_FillsIDAndTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sink := &recordingSink{}
	d := NewDispatcher(Config{}, sink, nil, WithClock(func() time.Time { return fixed }))

	d.Emit(Event{Action: ActionLogin})
	d.Close()

	require.Len(t, sink.events, 1)
	assert.NotEmpty(t, sink.events[0].ID)
	assert.Equal(t, fixed, sink.events[0].OccurredAt)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	logger := &memLogger{}
	var hookCalls int
	d := NewDispatcher(Config{BufferSize: 1}, sink, logger, WithDropHook(func() { hookCalls++ }))

	d.Emit(Event{Action: ActionLogin})
	<-sink.started // worker holds the first event

	d.Emit(Event{Action: ActionRefresh})   // fills the buffer
	d.Emit(Event{Action: ActionLogout})    // dropped
	d.Emit(Event{Action: ActionLogoutAll}) // dropped

	assert.Equal(t, uint64(2), d.Dropped())
	assert.Equal(t, 2, hookCalls)
	assert.Len(t, logger.warns, 2)

	close(sink.gate)
	d.Close()
	assert.Equal(t, []Action{ActionLogin, ActionRefresh}, sink.actions())
}

func TestDispatcher_SinkErrorIsLoggedOnly(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	logger := &memLogger{}
	d := NewDispatcher(Config{BufferSize: 4}, sink, logger)

	d.Emit(Event{Action: ActionLogin})
	d.Close()

	assert.Len(t, sink.events, 1)
	assert.Equal(t, []string{"audit sink write failed"}, logger.errors)
}

func TestDispatcher_EmitAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{}, sink, nil)
	d.Close()
	d.Close()

	d.Emit(Event{Action: ActionLogin})
	assert.Empty(t, sink.actions())
	assert.Equal(t, uint64(1), d.Dropped(), "late events are counted")
}

func TestDispatcher_EmitDuringCloseIsWrittenOrCounted(t *testing.T) {
	const emitters, perEmitter = 8, 200

	for round := range 20 {
		sink := &recordingSink{}
		d := NewDispatcher(Config{BufferSize: 64}, sink, nil)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for range emitters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for range perEmitter {
					d.Emit(Event{Action: ActionRefresh})
				}
			}()
		}
		close(start)
		d.Close()
		wg.Wait()

		written := uint64(len(sink.actions()))
		assert.Equal(t, uint64(emitters*perEmitter), written+d.Dropped(), "round %d", round)
	}
}

func TestDispatcher_Nil(t *testing.T) {
	var d *Dispatcher
	d.Emit(Event{Action: ActionLogin})
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestMultiSink(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	multi := MultiSink{failing, nil, ok}

	err := multi.Write(context.Background(), Event{Action: ActionLogin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.events, 1, "a failing sink must not stop the others")
	assert.Len(t, failing.events, 1)
}

func TestNoopSink(t *testing.T) {
	assert.NoError(t, NoopSink{}.Write(context.Background(), Event{}))
}
