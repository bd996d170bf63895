// Package testutil provides a fake upstream BookStack API for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wrenholt/libris/internal/bookstack"
)

// Upstream is an httptest-backed stand-in for the BookStack API. It records
// every request so tests can assert exact call counts.
type Upstream struct {
	Server *httptest.Server

	mu      sync.Mutex
	calls   []string
	handler http.HandlerFunc
}

// NewUpstream starts a fake upstream that answers collection GETs with an
// empty {data, total} envelope and everything else with {} until a test
// installs its own handler via Respond.
func NewUpstream(t *testing.T) *Upstream {
	t.Helper()
	u := &Upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls = append(u.calls, fmt.Sprintf("%s %s", r.Method, r.URL.Path))
		h := u.handler
		u.mu.Unlock()

		if h != nil {
			h(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet && r.URL.RawQuery != "" {
			_, _ = w.Write([]byte(`{"data":[],"total":0}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(u.Server.Close)
	return u
}

// Respond installs the handler used for subsequent requests.
func (u *Upstream) Respond(h http.HandlerFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handler = h
}

// Client returns a bookstack client pointed at the fake.
func (u *Upstream) Client() *bookstack.Client {
	return bookstack.New(u.Server.URL, "test-id", "test-secret", 5*time.Second)
}

// Calls returns a copy of the recorded "METHOD /path" strings.
func (u *Upstream) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.calls))
	copy(out, u.calls)
	return out
}

// CallCount returns how many requests the fake has served.
func (u *Upstream) CallCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}
