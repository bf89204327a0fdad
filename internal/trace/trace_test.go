package trace_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimozcann/WhereGoes/internal/httpclient"
	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/trace"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type route struct {
	status   int
	location string
}

// mockTransport answers from a fixed table and records requested URLs.
type mockTransport struct {
	mu     sync.Mutex
	routes map[string]route
	seen   []string
	method []string
}

func (m *mockTransport) client() *http.Client {
	return &http.Client{Transport: roundTripFunc(m.roundTrip)}
}

func (m *mockTransport) roundTrip(r *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.seen = append(m.seen, r.URL.String())
	m.method = append(m.method, r.Method)
	m.mu.Unlock()

	rt, ok := m.routes[r.URL.String()]
	if !ok {
		rt = route{status: http.StatusNotFound}
	}
	h := make(http.Header)
	if rt.location != "" {
		h.Set("Location", rt.location)
	}
	return &http.Response{
		StatusCode: rt.status,
		Header:     h,
		Body:       http.NoBody,
		Request:    r,
	}, nil
}

func statuses(c trace.Chain) []int {
	out := make([]int, len(c))
	for i, h := range c {
		out[i] = h.Status
	}
	return out
}

func TestRelativeLocation(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/":     {status: http.StatusMovedPermanently, location: "/next"},
		"https://a.test/next": {status: http.StatusOK},
	}}
	tr := trace.New(m.client())

	out, err := tr.Trace(context.Background(), "https://a.test/", nil)
	require.NoError(t, err)
	assert.Equal(t, trace.ReasonFinal, out.Reason)
	assert.Equal(t, trace.Chain{
		{Index: 0, URL: "https://a.test/", Status: 301, TimeMs: out.Chain[0].TimeMs},
		{Index: 1, URL: "https://a.test/next", Status: 200, TimeMs: out.Chain[1].TimeMs},
	}, out.Chain)
	assert.Equal(t, []string{http.MethodHead, http.MethodHead}, m.method)
}

func TestCeiling(t *testing.T) {
	routes := map[string]route{
		"https://a.test/": {status: http.StatusFound, location: "https://b.test/"},
		"https://b.test/": {status: http.StatusMovedPermanently, location: "https://a.test/"},
	}

	t.Run("default", func(t *testing.T) {
		tr := trace.New((&mockTransport{routes: routes}).client())
		out, err := tr.Trace(context.Background(), "https://a.test/", nil)
		require.NoError(t, err)
		assert.Equal(t, trace.ReasonCeiling, out.Reason)
		assert.Len(t, out.Chain, trace.DefaultMaxRedirects+1)
		assert.Equal(t, trace.DefaultMaxRedirects, out.Chain.Redirects())
	})

	for _, limit := range []int{0, 1, 3} {
		tr := trace.New((&mockTransport{routes: routes}).client(), trace.WithMaxRedirects(limit))
		out, err := tr.Trace(context.Background(), "https://a.test/", nil)
		require.NoError(t, err)
		assert.Len(t, out.Chain, limit+1, "limit %d", limit)
		for _, h := range out.Chain {
			assert.False(t, h.Pending())
		}
	}
}

func TestRedirectWithoutLocation(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/": {status: http.StatusFound},
	}}
	out, err := trace.New(m.client()).Trace(context.Background(), "https://a.test/", nil)
	require.NoError(t, err)
	assert.Equal(t, trace.ReasonNoLocation, out.Reason)
	require.Len(t, out.Chain, 1)
	assert.Equal(t, http.StatusFound, out.Chain[0].Status)
}

func TestConnectionError(t *testing.T) {
	c := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, syscall.ECONNREFUSED
	})}
	var snapshots []trace.Chain
	out, err := trace.New(c).Trace(context.Background(), "https://a.test/", func(ch trace.Chain) {
		snapshots = append(snapshots, ch)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, trace.ErrTraceFailed)
	assert.NotErrorIs(t, err, trace.ErrTraceCanceled)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)

	var terr *trace.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 0, terr.Hop)
	assert.Equal(t, "https://a.test/", terr.URL)

	assert.Equal(t, trace.ReasonFailed, out.Reason)
	require.Len(t, out.Chain, 1)
	assert.True(t, out.Chain[0].Pending())
	require.Len(t, snapshots, 1)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"google.com", "https://google.com"},
		{"  example.test/path \n", "https://example.test/path"},
		{"http://plain.test", "http://plain.test"},
		{"https://secure.test", "https://secure.test"},
		{"HTTP://upper.test", "HTTP://upper.test"},
		{"//proto.test", "https:////proto.test"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trace.Normalize(tt.in), tt.in)
	}
}

func TestFirstHopNormalized(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://google.com": {status: http.StatusOK},
	}}
	out, err := trace.New(m.client()).Trace(context.Background(), "  google.com ", nil)
	require.NoError(t, err)
	require.Len(t, out.Chain, 1)
	assert.Equal(t, "https://google.com", out.Chain[0].URL)
	assert.Equal(t, []string{"https://google.com"}, m.seen)
}

func TestResolvesAgainstPreviousHop(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/one/start":    {status: http.StatusFound, location: "https://b.test/two/page"},
		"https://b.test/two/page":     {status: http.StatusSeeOther, location: "next?x=1"},
		"https://b.test/two/next?x=1": {status: http.StatusTemporaryRedirect, location: "../up"},
		"https://b.test/up":           {status: http.StatusPermanentRedirect, location: "//c.test/end"},
		"https://c.test/end":          {status: http.StatusOK},
	}}
	out, err := trace.New(m.client()).Trace(context.Background(), "a.test/one/start", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://a.test/one/start",
		"https://b.test/two/page",
		"https://b.test/two/next?x=1",
		"https://b.test/up",
		"https://c.test/end",
	}, m.seen)
	assert.Equal(t, []int{302, 303, 307, 308, 200}, statuses(out.Chain))
}

func TestIdempotent(t *testing.T) {
	routes := map[string]route{
		"https://a.test/":  {status: http.StatusMovedPermanently, location: "/b"},
		"https://a.test/b": {status: http.StatusFound, location: "/c"},
		"https://a.test/c": {status: http.StatusGone},
	}
	tr := trace.New((&mockTransport{routes: routes}).client())
	first, err := tr.Trace(context.Background(), "a.test/", nil)
	require.NoError(t, err)
	second, err := tr.Trace(context.Background(), "a.test/", nil)
	require.NoError(t, err)

	for i := range first.Chain {
		first.Chain[i].TimeMs, second.Chain[i].TimeMs = 0, 0
	}
	assert.Equal(t, first, second)
}

func TestProgressSnapshots(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/":  {status: http.StatusMovedPermanently, location: "/b"},
		"https://a.test/b": {status: http.StatusOK},
	}}
	var snapshots []trace.Chain
	_, err := trace.New(m.client()).Trace(context.Background(), "https://a.test/", func(c trace.Chain) {
		snapshots = append(snapshots, c)
	})
	require.NoError(t, err)

	// append, resolve, append, resolve
	require.Len(t, snapshots, 4)
	wantLens := []int{1, 1, 2, 2}
	for i, s := range snapshots {
		assert.Len(t, s, wantLens[i])
		pending := 0
		for j, h := range s {
			if h.Pending() {
				pending++
				assert.Equal(t, len(s)-1, j, "only the last hop may be pending")
			}
		}
		if i%2 == 0 {
			assert.Equal(t, 1, pending)
		} else {
			assert.Equal(t, 0, pending)
		}
	}
	// earlier snapshots are never touched by later updates
	assert.Equal(t, model.StatusPending, snapshots[0][0].Status)
	assert.Equal(t, model.StatusPending, snapshots[2][1].Status)
}

func TestInvalidInput(t *testing.T) {
	called := false
	tr := trace.New((&mockTransport{}).client())
	for _, in := range []string{"", "   ", "https://", "http://%zz"} {
		out, err := tr.Trace(context.Background(), in, func(trace.Chain) { called = true })
		assert.ErrorIs(t, err, trace.ErrInvalidInput, in)
		assert.Equal(t, trace.ReasonInvalid, out.Reason)
		assert.Empty(t, out.Chain)
	}
	assert.False(t, called)
}

func TestUnsupportedScheme(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/": {status: http.StatusFound, location: "ftp://files.test/x"},
	}}
	out, err := trace.New(m.client()).Trace(context.Background(), "https://a.test/", nil)
	assert.ErrorIs(t, err, trace.ErrTraceFailed)
	assert.ErrorIs(t, err, trace.ErrUnsupportedScheme)
	require.Len(t, out.Chain, 1)
	assert.Equal(t, http.StatusFound, out.Chain[0].Status)
}

func TestBadLocation(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/": {status: http.StatusMovedPermanently, location: "http://%zz/"},
	}}
	var snaps []trace.Chain
	out, err := trace.New(m.client()).Trace(context.Background(), "https://a.test/", func(c trace.Chain) {
		snaps = append(snaps, c)
	})
	assert.ErrorIs(t, err, trace.ErrTraceFailed)
	assert.ErrorIs(t, err, trace.ErrBadLocation)
	assert.Equal(t, trace.ReasonFailed, out.Reason)
	require.Len(t, out.Chain, 1)
	assert.Equal(t, http.StatusMovedPermanently, out.Chain[0].Status)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0][0].Pending())
	assert.Equal(t, http.StatusMovedPermanently, snaps[1][0].Status)
}

func blockingClient() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})}
}

func TestCancelBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := trace.New(blockingClient()).Trace(ctx, "https://a.test/", nil)
	assert.ErrorIs(t, err, trace.ErrTraceCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, trace.ReasonCanceled, out.Reason)
	assert.Empty(t, out.Chain)
}

func TestCancelInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := trace.New(blockingClient()).Trace(ctx, "https://a.test/", func(c trace.Chain) {
		if last, _ := c.Last(); last.Pending() {
			go cancel()
		}
	})
	assert.ErrorIs(t, err, trace.ErrTraceCanceled)
	assert.NotErrorIs(t, err, trace.ErrTraceFailed)
	require.Len(t, out.Chain, 1)
	assert.True(t, out.Chain[0].Pending())
}

func TestHopTimeout(t *testing.T) {
	tr := trace.New(blockingClient(), trace.WithHopTimeout(20*time.Millisecond))
	start := time.Now()
	out, err := tr.Trace(context.Background(), "https://slow.test/", nil)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, err, trace.ErrTraceFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, trace.ReasonFailed, out.Reason)
	assert.Len(t, out.Chain, 1)
}

func TestClientTimeoutBoundsHop(t *testing.T) {
	c := blockingClient()
	c.Timeout = 20 * time.Millisecond
	start := time.Now()
	_, err := trace.New(c).Trace(context.Background(), "https://slow.test/", nil)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = trace.New(c, trace.WithHopTimeout(0)).Trace(ctxWithin(t, 50*time.Millisecond), "https://slow.test/", nil)
	assert.ErrorIs(t, err, trace.ErrTraceCanceled, "no hop bound left, only the caller's deadline")
}

func ctxWithin(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

type countingRecorder struct {
	hops    []int
	reasons []trace.Reason
}

func (r *countingRecorder) ObserveHop(status int, _ time.Duration) { r.hops = append(r.hops, status) }
func (r *countingRecorder) ObserveTrace(reason trace.Reason, _ int) {
	r.reasons = append(r.reasons, reason)
}

func TestRecorder(t *testing.T) {
	m := &mockTransport{routes: map[string]route{
		"https://a.test/":  {status: http.StatusMovedPermanently, location: "/b"},
		"https://a.test/b": {status: http.StatusOK},
	}}
	rec := &countingRecorder{}
	_, err := trace.New(m.client(), trace.WithRecorder(rec)).Trace(context.Background(), "https://a.test/", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{301, 200}, rec.hops)
	assert.Equal(t, []trace.Reason{trace.ReasonFinal}, rec.reasons)
}

func setupServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/302", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	return httptest.NewServer(mux)
}

func TestTraceAgainstServer(t *testing.T) {
	srv := setupServer()
	defer srv.Close()

	client := httpclient.New(httpclient.Config{Timeout: 5 * time.Second})
	tr := trace.New(client, trace.WithMaxRedirects(3))

	res := tr.Run(context.Background(), srv.URL+"/302", nil)
	require.Empty(t, res.Error)
	require.Len(t, res.Chain, 2)
	assert.Equal(t, http.StatusFound, res.Chain[0].Status)
	assert.Equal(t, http.StatusOK, res.Chain[1].Status)
	assert.Equal(t, srv.URL+"/final", res.Chain[1].URL)
	assert.Equal(t, string(trace.ReasonFinal), res.Reason)

	loop := tr.Run(context.Background(), srv.URL+"/loop", nil)
	assert.Empty(t, loop.Error)
	assert.Len(t, loop.Chain, 4)
	assert.Equal(t, string(trace.ReasonCeiling), loop.Reason)

	bare := tr.Run(context.Background(), srv.URL+"/bare", nil)
	assert.Empty(t, bare.Error)
	assert.Len(t, bare.Chain, 1)
	assert.Equal(t, string(trace.ReasonNoLocation), bare.Reason)
}
