package trace

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/selimozcann/WhereGoes/internal/model"
)

// DefaultMaxRedirects is the redirect ceiling used when none is configured.
const DefaultMaxRedirects = 10

// Reason tells why a trace stopped.
type Reason string

const (
	ReasonFinal      Reason = "final"
	ReasonNoLocation Reason = "no-location"
	ReasonCeiling    Reason = "ceiling"
	ReasonFailed     Reason = "failed"
	ReasonCanceled   Reason = "canceled"
	ReasonInvalid    Reason = "invalid"
)

// Recorder observes hops and finished traces, typically for metrics.
type Recorder interface {
	ObserveHop(status int, took time.Duration)
	ObserveTrace(reason Reason, hops int)
}

// Outcome is everything a trace produced.
type Outcome struct {
	Chain  Chain
	Reason Reason
}

// Tracer performs manual redirect tracing with HEAD requests.
type Tracer struct {
	transport    http.RoundTripper
	maxRedirects int
	hopTimeout   time.Duration
	log          *slog.Logger
	rec          Recorder
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithMaxRedirects sets how many redirects are followed. Negative values
// are treated as zero.
func WithMaxRedirects(n int) Option {
	return func(t *Tracer) {
		if n < 0 {
			n = 0
		}
		t.maxRedirects = n
	}
}

// WithHopTimeout bounds every single request. Zero disables the bound.
func WithHopTimeout(d time.Duration) Option {
	return func(t *Tracer) { t.hopTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) {
		if l != nil {
			t.log = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(t *Tracer) { t.rec = r }
}

// New creates a new Tracer. Requests go straight to c's Transport, so
// 3xx responses always come back as-is, whatever their Location holds.
// c.Timeout bounds each hop unless WithHopTimeout sets another bound.
func New(c *http.Client, opts ...Option) *Tracer {
	if c == nil {
		c = &http.Client{}
	}
	rt := c.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	t := &Tracer{
		transport:    rt,
		maxRedirects: DefaultMaxRedirects,
		hopTimeout:   c.Timeout,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxRedirects returns the configured redirect ceiling.
func (t *Tracer) MaxRedirects() int { return t.maxRedirects }

// Trace follows redirects starting from startURL. onProgress, if not nil,
// is called after a hop is appended and again once its status is known.
//
// Reaching the ceiling or a redirect without Location is a normal
// completion. On failure the returned chain holds every hop recorded so
// far, including the pending one that failed.
func (t *Tracer) Trace(ctx context.Context, startURL string, onProgress Observer) (Outcome, error) {
	emit := func(c Chain) {
		if onProgress != nil {
			onProgress(c)
		}
	}

	current, err := normalizeStart(startURL)
	if err != nil {
		return t.finish(Outcome{Reason: ReasonInvalid}), err
	}

	var chain Chain
	budget := t.maxRedirects
	for {
		if err := ctx.Err(); err != nil {
			return t.finish(Outcome{Chain: chain, Reason: ReasonCanceled}),
				&Error{Hop: len(chain), URL: current, Err: err, canceled: true}
		}

		current = Normalize(current)
		chain = chain.withPending(current)
		emit(chain)

		hop := len(chain) - 1
		resp, err := t.head(ctx, current)
		if err != nil {
			canceled := ctx.Err() != nil
			reason := ReasonFailed
			if canceled {
				reason = ReasonCanceled
			}
			t.log.Debug("hop failed", "hop", hop, "url", current, "err", err)
			return t.finish(Outcome{Chain: chain, Reason: reason}),
				&Error{Hop: hop, URL: current, Err: err, canceled: canceled}
		}

		chain = chain.withStatus(resp.status, resp.took)
		emit(chain)
		if t.rec != nil {
			t.rec.ObserveHop(resp.status, resp.took)
		}
		t.log.Debug("hop", "hop", hop, "url", current, "status", resp.status, "location", resp.location)

		if resp.status < 300 || resp.status >= 400 {
			return t.finish(Outcome{Chain: chain, Reason: ReasonFinal}), nil
		}
		if resp.location == "" {
			return t.finish(Outcome{Chain: chain, Reason: ReasonNoLocation}), nil
		}
		next, err := resolveLocation(current, resp.location)
		if err != nil {
			return t.finish(Outcome{Chain: chain, Reason: ReasonFailed}),
				&Error{Hop: hop, URL: current, Err: err}
		}
		if budget == 0 {
			return t.finish(Outcome{Chain: chain, Reason: ReasonCeiling}), nil
		}
		budget--
		current = next
	}
}

// Run traces target and packs the outcome into a model.Result.
func (t *Tracer) Run(ctx context.Context, target string, onProgress Observer) model.Result {
	res := model.Result{Target: target, StartedAt: time.Now()}
	out, err := t.Trace(ctx, target, onProgress)
	res.Chain = out.Chain.Hops()
	res.Reason = string(out.Reason)
	if err != nil {
		res.Error = err.Error()
	}
	res.DurationMs = time.Since(res.StartedAt).Milliseconds()
	return res
}

func (t *Tracer) finish(out Outcome) Outcome {
	t.log.Debug("trace done", "reason", out.Reason, "redirects", out.Chain.Redirects())
	if t.rec != nil {
		t.rec.ObserveTrace(out.Reason, len(out.Chain))
	}
	return out
}

type hopResponse struct {
	status   int
	location string
	took     time.Duration
}

func (t *Tracer) head(ctx context.Context, target string) (hopResponse, error) {
	if t.hopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.hopTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return hopResponse{}, err
	}
	start := time.Now()
	resp, err := t.transport.RoundTrip(req)
	took := time.Since(start)
	if err != nil {
		return hopResponse{}, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return hopResponse{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		took:     took,
	}, nil
}
