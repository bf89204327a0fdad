package runner

import (
	"context"
	"sync"
	"time"

	"github.com/selimozcann/WhereGoes/internal/detect"
	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/trace"
)

// Config holds settings for the runner.
type Config struct {
	Threads   int
	RateLimit int // traces started per second, 0 = unlimited
}

// Runner traces many independent targets concurrently. Each target gets
// its own trace and chain; hops within a trace stay sequential.
type Runner struct {
	cfg    Config
	tracer *trace.Tracer
}

// New creates a new Runner.
func New(cfg Config, tracer *trace.Tracer) *Runner {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	return &Runner{cfg: cfg, tracer: tracer}
}

// Progress reports a snapshot of the trace for targets[Index].
type Progress func(index int, chain trace.Chain)

// Run processes targets and returns annotated results in input order.
// Targets not started before ctx is done are reported as canceled.
func (r *Runner) Run(ctx context.Context, targets []string, onProgress Progress) []model.Result {
	out := make([]model.Result, len(targets))
	started := make([]bool, len(targets))
	mu := &sync.Mutex{}
	var rateCh <-chan time.Time
	if r.cfg.RateLimit > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(r.cfg.RateLimit))
		defer ticker.Stop()
		rateCh = ticker.C
	}

	type job struct {
		idx    int
		target string
	}

	jobs := make(chan job)
	wg := sync.WaitGroup{}
	for i := 0; i < r.cfg.Threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range jobs {
				if rateCh != nil {
					select {
					case <-ctx.Done():
						continue
					case <-rateCh:
					}
				}
				var observe trace.Observer
				if onProgress != nil {
					idx := jb.idx
					observe = func(c trace.Chain) { onProgress(idx, c) }
				}
				res := r.tracer.Run(ctx, jb.target, observe)
				res.Notes = detect.Annotate(res)
				mu.Lock()
				out[jb.idx] = res
				started[jb.idx] = true
				mu.Unlock()
			}
		}()
	}

	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		jobs <- job{idx: i, target: t}
	}
	close(jobs)
	wg.Wait()

	for i, ok := range started {
		if !ok {
			out[i] = model.Result{Target: targets[i], Reason: string(trace.ReasonCanceled), Error: "not started: " + context.Cause(ctx).Error()}
		}
	}
	return out
}
