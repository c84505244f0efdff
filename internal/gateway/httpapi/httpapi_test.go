package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/explain"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/protocol"
	"github.com/jkaninda/shellguide/internal/session"
)

var testKeys = map[string]string{"key-alice": "alice", "key-bob": "bob"}

func newTestGateway(t *testing.T, apiKeys map[string]string) *httptest.Server {
	t.Helper()
	catalog, err := lesson.Builtin(nil)
	if err != nil {
		t.Fatalf("loading curriculum: %v", err)
	}
	reg := session.NewRegistry(session.Config{
		SandboxDir: t.TempDir(),
		Catalog:    catalog,
		Runner:     executor.New(executor.Config{}, nil),
	}, 4, nil)
	t.Cleanup(func() { reg.CloseAll() })

	g := NewGateway(Config{APIKeys: apiKeys}, reg, catalog, nil, nil)
	ts := httptest.NewServer(g.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createSession(t *testing.T, ts *httptest.Server, key string) protocol.Session {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/v1/sessions", key, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var sess protocol.Session
	decode(t, resp, &sess)
	return sess
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", session.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("get: %w", session.ErrNotFound), http.StatusNotFound},
		{"unknown lesson", fmt.Errorf("%w: nope", lesson.ErrUnknownLesson), http.StatusNotFound},
		{"unknown command", explain.ErrUnknownCommand, http.StatusNotFound},
		{"closed", session.ErrClosed, http.StatusGone},
		{"no challenge", session.ErrNoChallenge, http.StatusConflict},
		{"locked", &lesson.LessonLockedError{Lesson: "deleting", Requires: "copying"}, http.StatusConflict},
		{"limit", session.ErrLimitReached, http.StatusTooManyRequests},
		{"empty command", executor.ErrEmptyCommand, http.StatusBadRequest},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorStatus(tc.err); got != tc.want {
				t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestLimitBody(t *testing.T) {
	g := NewGateway(Config{MaxRequestSize: 8}, nil, nil, nil, nil)
	h := g.limitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"small", `{"a":1}`, http.StatusOK},
		{"too large", `{"command":"ls -la"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestNewGatewayDefaults(t *testing.T) {
	g := NewGateway(Config{}, nil, nil, nil, nil)
	if g.config.MaxRequestSize != defaultMaxRequestSize {
		t.Errorf("MaxRequestSize = %d, want %d", g.config.MaxRequestSize, defaultMaxRequestSize)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestSessionAttemptFlow(t *testing.T) {
	ts := newTestGateway(t, nil)

	sess := createSession(t, ts, "")
	if sess.Learner != defaultLearner {
		t.Errorf("Learner = %q, want %q", sess.Learner, defaultLearner)
	}
	if sess.Challenge == nil || sess.Challenge.ID != "where-am-i" {
		t.Fatalf("challenge = %+v", sess.Challenge)
	}

	resp := do(t, http.MethodPost, ts.URL+"/v1/sessions/"+sess.ID+"/attempts", "", protocol.AttemptPayload{Command: "pwd"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attempt status = %d", resp.StatusCode)
	}
	var out protocol.Outcome
	decode(t, resp, &out)
	if out.Feedback.Kind != "CORRECT" || !out.Advanced {
		t.Errorf("feedback = %+v, advanced = %v", out.Feedback, out.Advanced)
	}
	if out.Next == nil || out.Next.Index != 2 {
		t.Errorf("next = %+v", out.Next)
	}

	resp = do(t, http.MethodPost, ts.URL+"/v1/sessions/"+sess.ID+"/attempts", "", protocol.AttemptPayload{Command: "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty attempt status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	resp = do(t, http.MethodDelete, ts.URL+"/v1/sessions/"+sess.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, ts.URL+"/v1/sessions/"+sess.ID, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAuthentication(t *testing.T) {
	ts := newTestGateway(t, testKeys)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic a2V5LWFsaWNl", http.StatusUnauthorized},
		{"wrong key", "Bearer key-mallory", http.StatusUnauthorized},
		{"valid key", "Bearer key-alice", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/lessons", nil)
			if err != nil {
				t.Fatal(err)
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestSessionsHiddenFromOtherLearners(t *testing.T) {
	ts := newTestGateway(t, testKeys)

	sess := createSession(t, ts, "key-alice")
	if sess.Learner != "alice" {
		t.Fatalf("Learner = %q, want alice", sess.Learner)
	}

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "", nil},
		{http.MethodGet, "/hint", nil},
		{http.MethodGet, "/sandbox", nil},
		{http.MethodPost, "/attempts", protocol.AttemptPayload{Command: "pwd"}},
		{http.MethodPost, "/reset", nil},
		{http.MethodDelete, "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := do(t, tc.method, ts.URL+"/v1/sessions/"+sess.ID+tc.path, "key-bob", tc.body)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
			}
		})
	}

	resp := do(t, http.MethodGet, ts.URL+"/v1/sessions/"+sess.ID, "key-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
