package httpmock

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

type RouteSpec struct {
	Pattern     string
	Regex       bool
	Status      int
	Body        string
	Headers     map[string]string
	Delay       time.Duration
	MatchPrefix bool
}

// RequestRecord captures one request the mock server observed, letting
// tests assert path/header/sequence expectations after the fact.
type RequestRecord struct {
	Method  string
	Path    string
	Headers http.Header
	Body    string
}

type MockServer struct {
	server  *httptest.Server
	mux     sync.RWMutex
	ordered []*RouteSpec

	// statuses, when non-empty for a matched route's pattern, is consumed
	// one status per request, falling back to the route's own Status once
	// exhausted: the seam the retry/backoff tests drive a 503,503,503,200
	// sequence through.
	statuses map[string][]int

	reqMu    sync.Mutex
	requests []RequestRecord
}

func NewServer(routes []RouteSpec) *MockServer {
	ms := &MockServer{statuses: make(map[string][]int)}
	ms.ordered = make([]*RouteSpec, 0, len(routes))
	for i := range routes { r := routes[i]; if r.Status == 0 { r.Status = http.StatusOK }; ms.ordered = append(ms.ordered, &r) }
	sort.SliceStable(ms.ordered, func(i, j int) bool { return len(ms.ordered[i].Pattern) > len(ms.ordered[j].Pattern) })
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handle))
	return ms
}

// QueueStatuses arranges for the next len(statuses) requests matching
// pattern to return those statuses in order, one per request.
func (m *MockServer) QueueStatuses(pattern string, statuses ...int) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.statuses[pattern] = append(m.statuses[pattern], statuses...)
}

// Requests returns every request observed so far, in arrival order.
func (m *MockServer) Requests() []RequestRecord {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	out := make([]RequestRecord, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockServer) URL() string { return m.server.URL }
func (m *MockServer) Close() { m.server.Close() }

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	body, _ := io.ReadAll(r.Body)
	m.reqMu.Lock()
	m.requests = append(m.requests, RequestRecord{Method: r.Method, Path: path, Headers: r.Header.Clone(), Body: string(body)})
	m.reqMu.Unlock()

	m.mux.Lock()
	defer m.mux.Unlock()
	for _, spec := range m.ordered {
		if spec.Regex { matched, _ := regexp.MatchString(spec.Pattern, path); if !matched { continue } } else if spec.MatchPrefix { if !strings.HasPrefix(path, spec.Pattern) { continue } } else { if !strings.Contains(path, spec.Pattern) { continue } }
		if spec.Delay > 0 { select { case <-r.Context().Done(): return; case <-time.After(spec.Delay): } }
		status := spec.Status
		if queued := m.statuses[spec.Pattern]; len(queued) > 0 {
			status, m.statuses[spec.Pattern] = queued[0], queued[1:]
		}
		for k,v := range spec.Headers { w.Header().Set(k,v) }
		w.WriteHeader(status); _, _ = w.Write([]byte(spec.Body)); return
	}
	log.Printf("httpmock: unmatched path %s", path)
	w.WriteHeader(http.StatusNotFound); _, _ = w.Write([]byte("not found"))
}

func (m *MockServer) MustGet(ctx context.Context, path string) (*http.Response, error) { req, _ := http.NewRequestWithContext(ctx, http.MethodGet, m.URL()+path, nil); return http.DefaultClient.Do(req) }
