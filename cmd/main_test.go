// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/simclient/internal/observability"
)

// isolateEnvironment keeps the developer's own config files and SIMCLIENT_*
// variables out of a test run.
func isolateEnvironment(t *testing.T) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	for _, key := range []string{
		"SIMCLIENT_SIMULATION_HOST",
		"SIMCLIENT_SIMULATION_SCHEME",
		"SIMULATION_HOST",
		"SIMCLIENT_SIMULATION_ENV_NAME",
		"SIMCLIENT_SIMULATION_DEFAULT_MODE",
		"SIMCLIENT_NETWORK_IGNORE_TLS_ERRORS",
		"SIMCLIENT_NETWORK_TIMEOUT",
		"SIMCLIENT_NETWORK_PROXY",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("SIMCLIENT_LOGGER_LEVEL", "fatal")

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

// executeCommand runs a fresh command tree and returns what it printed to stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seenRequest is one request observed by simulationServer.
type seenRequest struct {
	Method string
	Path   string
	Body   string
}

// simulationServer is a scripted stand-in for the remote simulation API.
type simulationServer struct {
	*httptest.Server

	mu           sync.Mutex
	requests     []seenRequest
	rejectAction string
}

func newSimulationServer(t *testing.T) *simulationServer {
	t.Helper()
	s := &simulationServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *simulationServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, seenRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	reject := s.rejectAction
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/api/simulations/create":
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"simulation_id": 7, "agent_count": 3}`)
	case r.Method == http.MethodPut && strings.HasSuffix(path, "/start"):
		_, _ = io.WriteString(w, `{"state": "running"}`)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/status"):
		_, _ = io.WriteString(w, `{"position": [1, 2], "holding": null}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/action"):
		if reject != "" && strings.Contains(string(body), `"`+reject+`"`) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error": "action not allowed"}`)
			return
		}
		_, _ = io.WriteString(w, `{"accepted": true}`)
	case r.Method == http.MethodPut && strings.HasSuffix(path, "/step"):
		_, _ = io.WriteString(w, `{"tick": 1}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// RejectAction makes the action endpoint answer 400 whenever name is submitted.
func (s *simulationServer) RejectAction(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAction = name
}

func (s *simulationServer) Requests() []seenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]seenRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Host returns the host:port to pass as --host.
func (s *simulationServer) Host(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	return u.Host
}

// connect points the command tree at s over plain HTTP.
func (s *simulationServer) connect(t *testing.T) []string {
	t.Helper()
	t.Setenv("SIMCLIENT_SIMULATION_SCHEME", "http")
	return []string{"--host", s.Host(t)}
}
