package harvest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"
)

type fakeResponse struct {
	status int
	body   string
}

func reply(body string) fakeResponse {
	return fakeResponse{status: http.StatusOK, body: body}
}

func replyStatus(code int) fakeResponse {
	return fakeResponse{status: code, body: http.StatusText(code)}
}

type fakeRequest struct {
	method string
	path   string
	body   string
}

// fakeRemote stands in for the hierarchy API. Each route answers with its
// responses in order and keeps repeating the last one, unknown routes 404.
type fakeRemote struct {
	mu       sync.Mutex
	routes   map[string][]fakeResponse
	requests []fakeRequest
	server   *httptest.Server
}

func newFakeRemote(t *testing.T) *fakeRemote {
	remote := &fakeRemote{routes: map[string][]fakeResponse{}}
	remote.server = httptest.NewServer(http.HandlerFunc(remote.serve))
	t.Cleanup(remote.server.Close)
	return remote
}

func (f *fakeRemote) url() string {
	return f.server.URL + "/api"
}

func (f *fakeRemote) on(method, path string, responses ...fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" /api"+path] = responses
}

func (f *fakeRemote) get(path string, responses ...fakeResponse) {
	f.on(http.MethodGet, path, responses...)
}

func (f *fakeRemote) post(path string, responses ...fakeResponse) {
	f.on(http.MethodPost, path, responses...)
}

func (f *fakeRemote) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	key := r.Method + " " + r.URL.Path
	hit := 0
	for _, req := range f.requests {
		if req.method+" "+req.path == key {
			hit++
		}
	}
	f.requests = append(f.requests, fakeRequest{method: r.Method, path: r.URL.Path, body: string(body)})
	responses := f.routes[key]
	f.mu.Unlock()

	if len(responses) == 0 {
		http.NotFound(w, r)
		return
	}
	res := responses[min(hit, len(responses)-1)]
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(res.status)
	io.WriteString(w, res.body)
}

// hits counts requests made to a path, relative to the api root.
func (f *fakeRemote) hits(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, req := range f.requests {
		if req.method == method && req.path == "/api"+path {
			count++
		}
	}
	return count
}

func (f *fakeRemote) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, req := range f.requests {
		out[i] = req.method + " " + req.path
	}
	return out
}

func (f *fakeRemote) bodies(method, path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, req := range f.requests {
		if req.method == method && req.path == "/api"+path {
			out = append(out, req.body)
		}
	}
	return out
}

type testEnv struct {
	remote *fakeRemote
	client *Client
	tel    *telemetry.Recorder
	clock  *chrono.Fake
}

func newTestEnv(t *testing.T, maxRetries int) testEnv {
	remote := newFakeRemote(t)
	tel := telemetry.NewRecorder()
	clock := chrono.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	client := NewClient(ClientOptions{
		BaseUrl:          remote.url(),
		RateLimitBackoff: 5 * time.Second,
		MaxRetries:       maxRetries,
		Timeout:          5 * time.Second,
	}, tel, clock)
	return testEnv{remote: remote, client: client, tel: tel, clock: clock}
}
