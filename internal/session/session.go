// Package session keeps at most one live trace at a time. Starting a new
// trace cancels the one before it, so a superseded trace can neither keep
// a request in flight nor publish progress.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/selimozcann/WhereGoes/internal/trace"
)

// Tracer is the part of *trace.Tracer a Session needs.
type Tracer interface {
	Trace(ctx context.Context, startURL string, onProgress trace.Observer) (trace.Outcome, error)
}

// Snapshot is the observable state of the current trace.
type Snapshot struct {
	ID     string
	Target string
	Chain  trace.Chain
	Reason trace.Reason
	Done   bool
	Err    error
}

// Session supervises traces for one consumer.
type Session struct {
	tracer Tracer
	log    *slog.Logger

	// deliver serializes callbacks; mu guards the fields below it.
	deliver sync.Mutex
	mu      sync.Mutex
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	latest Snapshot
}

// New creates a Session. A nil logger discards output.
func New(t Tracer, log *slog.Logger) *Session {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{tracer: t, log: log}
}

// Start cancels any trace still running and begins tracing target in the
// background. onProgress receives every snapshot of the new trace, the
// last one with Done set; it is never called for a superseded trace.
// onProgress may call Latest or Start but must not call Stop.
// The returned ID identifies the new trace.
func (s *Session) Start(ctx context.Context, target string, onProgress func(Snapshot)) string {
	s.mu.Lock()
	if s.cancel != nil {
		s.log.Debug("superseding trace", "id", s.id)
		s.cancel()
	}
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.id, s.cancel, s.done = id, cancel, done
	s.latest = Snapshot{ID: id, Target: target}
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		s.log.Debug("trace started", "id", id, "target", target)
		out, err := s.tracer.Trace(ctx, target, func(c trace.Chain) {
			s.publish(id, Snapshot{ID: id, Target: target, Chain: c}, onProgress)
		})
		s.publish(id, Snapshot{ID: id, Target: target, Chain: out.Chain, Reason: out.Reason, Done: true, Err: err}, onProgress)
		s.log.Debug("trace finished", "id", id, "reason", out.Reason, "hops", len(out.Chain), "err", err)
	}()
	return id
}

// publish records snap and forwards it unless trace id has been superseded.
// Callbacks run under deliver only, so a superseded trace cannot interleave
// with the trace that replaced it while the callback can still reach the
// Session.
func (s *Session) publish(id string, snap Snapshot, onProgress func(Snapshot)) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	current := s.id == id
	if current {
		s.latest = snap
	}
	s.mu.Unlock()

	if current && onProgress != nil {
		onProgress(snap)
	}
}

// Latest returns the newest snapshot of the current trace.
func (s *Session) Latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Wait blocks until the current trace finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return Snapshot{}, nil
	}
	select {
	case <-done:
		return s.Latest(), nil
	case <-ctx.Done():
		return s.Latest(), ctx.Err()
	}
}

// Stop cancels the current trace, if any, and waits for it to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
