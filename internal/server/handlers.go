package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selimozcann/WhereGoes/internal/detect"
	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/output"
	"github.com/selimozcann/WhereGoes/internal/session"
	"github.com/selimozcann/WhereGoes/internal/trace"
)

const maxRequestBody = 64 << 10

// Handler holds the server dependencies.
type Handler struct {
	tracer   atomic.Pointer[trace.Tracer]
	origins  atomic.Pointer[[]string]
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

// NewHandler creates a new handler. gatherer may be nil to disable /metrics.
func NewHandler(t *trace.Tracer, gatherer prometheus.Gatherer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Handler{gatherer: gatherer, log: log}
	h.tracer.Store(t)
	return h
}

// SetTracer swaps the tracer used by requests that start afterwards.
func (h *Handler) SetTracer(t *trace.Tracer) { h.tracer.Store(t) }

// SetAllowedOrigins replaces the Origin host patterns accepted for
// WebSocket upgrades. Same-origin requests are always accepted.
func (h *Handler) SetAllowedOrigins(patterns []string) {
	p := append([]string(nil), patterns...)
	h.origins.Store(&p)
}

// Trace implements session.Tracer with whatever tracer is current.
func (h *Handler) Trace(ctx context.Context, startURL string, onProgress trace.Observer) (trace.Outcome, error) {
	return h.tracer.Load().Trace(ctx, startURL, onProgress)
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Route("/api/v1/trace", func(r chi.Router) {
		r.Post("/", h.HandleTrace)
		r.Get("/ws", h.HandleStream)
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// TraceRequest is the body of POST /api/v1/trace and of WebSocket messages.
type TraceRequest struct {
	URL string `json:"url"`
}

// Frame is one progress message on the WebSocket.
type Frame struct {
	ID      string      `json:"id"`
	Target  string      `json:"target"`
	Chain   []model.Hop `json:"chain"`
	Done    bool        `json:"done"`
	Reason  string      `json:"reason,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func frameOf(s session.Snapshot) Frame {
	f := Frame{ID: s.ID, Target: s.Target, Chain: s.Chain.Hops(), Done: s.Done, Reason: string(s.Reason)}
	if f.Chain == nil {
		f.Chain = []model.Hop{}
	}
	if s.Err != nil {
		f.Error = s.Err.Error()
		f.Message = trace.FailureMessage
	}
	return f
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"max_redirects": h.tracer.Load().MaxRedirects(),
	})
}

// HandleTrace runs one trace to completion and returns its record.
func (h *Handler) HandleTrace(w http.ResponseWriter, r *http.Request) {
	var req TraceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res := h.tracer.Load().Run(r.Context(), req.URL, nil)
	res.Notes = detect.Annotate(res)
	rec := output.BuildRecord(res)
	rec.ID = uuid.New().String()

	status := http.StatusOK
	switch {
	case res.Reason == string(trace.ReasonInvalid):
		status = http.StatusBadRequest
	case res.Error != "":
		status = http.StatusBadGateway
	}
	h.log.Info("trace", "id", rec.ID, "target", req.URL, "hops", len(res.Chain), "reason", res.Reason, "status", status)
	writeJSON(w, status, rec)
}

// HandleStream upgrades to WebSocket. Every {"url": ...} message starts a
// new trace on the connection's session, canceling the previous one, and
// progress frames are streamed back. A "url" query parameter starts a trace
// right away.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var origins []string
	if p := h.origins.Load(); p != nil {
		origins = *p
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		h.log.Debug("websocket upgrade rejected", "origin", r.Header.Get("Origin"), "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sess := session.New(h, h.log)
	defer sess.Stop()

	updates := make(chan session.Snapshot, 64)
	push := func(s session.Snapshot) { offer(updates, s) }

	requests := make(chan string)
	go func() {
		defer close(requests)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req TraceRequest
			if err := json.Unmarshal(data, &req); err != nil {
				h.log.Debug("ignoring malformed message", "err", err)
				continue
			}
			select {
			case requests <- req.URL:
			case <-ctx.Done():
				return
			}
		}
	}()

	if u := r.URL.Query().Get("url"); u != "" {
		sess.Start(ctx, u, push)
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case u, ok := <-requests:
			if !ok {
				return
			}
			id := sess.Start(ctx, u, push)
			h.log.Debug("stream trace", "id", id, "target", u)
		case snap := <-updates:
			if err := writeFrame(ctx, conn, frameOf(snap)); err != nil {
				return
			}
		}
	}
}

// offer queues s, dropping the oldest queued snapshot when the consumer
// falls behind. Snapshots carry the whole chain, so the newest one is
// always enough to render the current state.
func offer(ch chan session.Snapshot, s session.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
