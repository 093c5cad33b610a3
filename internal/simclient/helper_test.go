// internal/simclient/helper_test.go
package simclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/simclient/internal/config"
)

// recordedRequest is what the fake simulation service saw.
type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Header http.Header
}

// fakeService records every request and answers with a scripted reply.
type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	reply    func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   string(body),
		Header: r.Header.Clone(),
	})
	reply := f.reply
	f.mu.Unlock()

	if reply == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
		return
	}
	reply(w, r)
}

func (f *fakeService) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeService) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// replyWith answers every request with the given status and body.
func replyWith(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// testOptions points a client at server.
func testOptions(t *testing.T, server *httptest.Server) Options {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return Options{
		Simulation: config.SimulationConfig{
			Host:      u.Host,
			Scheme:    u.Scheme,
			APIPrefix: "/api/",
		},
		Network: config.NetworkConfig{
			Timeout:    5 * time.Second,
			ForceHTTP2: true,
			RateBurst:  1,
		},
	}
}

// setupClient starts a fake service and a client talking to it.
func setupClient(t *testing.T, reply func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeService) {
	t.Helper()
	service := &fakeService{reply: reply}
	server := httptest.NewServer(service)
	t.Cleanup(server.Close)

	client, err := New(testOptions(t, server), zaptest.NewLogger(t))
	require.NoError(t, err)
	return client, service
}
