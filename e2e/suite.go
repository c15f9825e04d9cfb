// Package e2e runs the whole service against a real database through its
// HTTP surface.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/web"
	"github.com/xcono/gridbase/web/handlers"
)

// TestSuite runs the wired service behind an httptest server.
type TestSuite struct {
	t       *testing.T
	svc     *handlers.Services
	server  *httptest.Server
	closeDB func()

	// Workspace and Actor are sent on every request unless overridden.
	Workspace string
	Actor     string
}

// envelope mirrors the wire response shape with the payload left raw.
type envelope struct {
	Success    bool                       `json:"success"`
	Message    string                     `json:"message"`
	Data       json.RawMessage            `json:"data"`
	Pagination *pagination                `json:"pagination"`
	Errors     map[string]json.RawMessage `json:"errors"`
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewTestSuite wires the service against the given DSN and starts an HTTP
// server around the router. Cleanup is registered on the test.
func NewTestSuite(t *testing.T, dsn string) *TestSuite {
	t.Helper()

	cfg := schema.Config{
		DSN:              dsn,
		DefaultWorkspace: "ws-test",
		DefaultActor:     "actor-test",
	}
	cfg.Normalize()

	svc, closeDB, err := web.Wire(cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("failed to wire services: %v", err)
	}

	router := handlers.NewRouter(svc)
	server := httptest.NewServer(http.HandlerFunc(router.Handle))

	s := &TestSuite{
		t:         t,
		svc:       svc,
		server:    server,
		closeDB:   closeDB,
		Workspace: cfg.DefaultWorkspace,
		Actor:     cfg.DefaultActor,
	}
	t.Cleanup(func() {
		server.Close()
		closeDB()
	})
	return s
}

// Do issues a request with the suite's identity headers and decodes the
// envelope.
func (s *TestSuite) Do(method, path string, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		s.t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Workspace-ID", s.Workspace)
	req.Header.Set("X-Actor-ID", s.Actor)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatalf("failed to read response body: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.t.Fatalf("invalid response body %q: %v", raw, err)
	}
	return resp.StatusCode, env
}

// MustDo is Do with a status assertion.
func (s *TestSuite) MustDo(method, path string, body interface{}, wantStatus int) envelope {
	s.t.Helper()
	status, env := s.Do(method, path, body)
	if status != wantStatus {
		s.t.Fatalf("%s %s: got status %d, want %d (message: %s)", method, path, status, wantStatus, env.Message)
	}
	return env
}

// Decode unmarshals the envelope payload into out.
func (s *TestSuite) Decode(env envelope, out interface{}) {
	s.t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		s.t.Fatalf("failed to decode data %q: %v", env.Data, err)
	}
}

// CreateRecord posts a property map and returns the new record's id.
func (s *TestSuite) CreateRecord(entity string, properties map[string]interface{}) string {
	s.t.Helper()
	env := s.MustDo(http.MethodPost, "/"+entity, properties, http.StatusCreated)
	var rec struct {
		ID string `json:"id"`
	}
	s.Decode(env, &rec)
	if rec.ID == "" {
		s.t.Fatalf("created record has no id: %s", env.Data)
	}
	return rec.ID
}

// ListPath builds a list URL with query parameters.
func ListPath(entity, query string) string {
	if query == "" {
		return "/" + entity
	}
	return fmt.Sprintf("/%s?%s", entity, query)
}
