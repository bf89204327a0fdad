package model

import "time"

// StatusPending marks a hop whose response has not arrived yet.
const StatusPending = 0

// Hop represents a single step in a redirect chain.
type Hop struct {
	Index  int    `json:"index" yaml:"index"`
	URL    string `json:"url" yaml:"url"`
	Status int    `json:"status" yaml:"status"`
	TimeMs int64  `json:"time_ms" yaml:"time_ms"`
}

// Pending reports whether the hop is still waiting for its response.
func (h Hop) Pending() bool { return h.Status == StatusPending }

// IsRedirect reports whether the hop resolved to a 3xx status.
func (h Hop) IsRedirect() bool { return h.Status >= 300 && h.Status < 400 }

// Note is an observation about a finished redirect chain.
// Severity uses an info/low/medium/high scale for quick triage.
type Note struct {
	Type     string `json:"type" yaml:"type"`
	AtHop    int    `json:"at_hop" yaml:"at_hop"`
	Severity string `json:"severity" yaml:"severity"`
	Detail   string `json:"detail" yaml:"detail"`
}

// Result is the final output for a single traced target.
type Result struct {
	Target     string    `json:"target" yaml:"target"`
	Chain      []Hop     `json:"chain" yaml:"chain"`
	Reason     string    `json:"reason" yaml:"reason"`
	Notes      []Note    `json:"notes,omitempty" yaml:"notes,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Last returns the terminal hop of the chain, if any.
func (r Result) Last() (Hop, bool) {
	if len(r.Chain) == 0 {
		return Hop{}, false
	}
	return r.Chain[len(r.Chain)-1], true
}
