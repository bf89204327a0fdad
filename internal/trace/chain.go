package trace

import (
	"time"

	"github.com/selimozcann/WhereGoes/internal/model"
)

// Chain is an ordered, append-only snapshot of the hops of one trace.
// A Chain value is never modified after it has been handed to an observer;
// every state change produces a new Chain.
type Chain []model.Hop

// Observer receives a new snapshot after every state change of a trace.
type Observer func(Chain)

func (c Chain) withPending(rawURL string) Chain {
	next := make(Chain, len(c), len(c)+1)
	copy(next, c)
	return append(next, model.Hop{Index: len(c), URL: rawURL, Status: model.StatusPending})
}

// withStatus returns a copy of c whose last hop carries status.
func (c Chain) withStatus(status int, took time.Duration) Chain {
	next := make(Chain, len(c))
	copy(next, c)
	last := next[len(next)-1]
	last.Status = status
	last.TimeMs = took.Milliseconds()
	next[len(next)-1] = last
	return next
}

// Last returns the most recent hop.
func (c Chain) Last() (model.Hop, bool) {
	if len(c) == 0 {
		return model.Hop{}, false
	}
	return c[len(c)-1], true
}

// Redirects returns the number of redirect hops followed.
func (c Chain) Redirects() int {
	if len(c) == 0 {
		return 0
	}
	return len(c) - 1
}

// Hops returns a copy of the chain as a plain slice.
func (c Chain) Hops() []model.Hop {
	return append([]model.Hop(nil), c...)
}
