// Package httpapi implements the HTTP API gateway for shellguide.
//
// Security:
//   - API key authentication on /v1 (constant-time comparison)
//   - Request body size limits (default 64 KiB)
//   - Per-session rate limiting via token bucket
//   - A learner only sees their own sessions
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/explain"
	"github.com/jkaninda/shellguide/internal/gateway"
	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/observability"
	"github.com/jkaninda/shellguide/internal/protocol"
	"github.com/jkaninda/shellguide/internal/ratelimit"
	"github.com/jkaninda/shellguide/internal/session"
)

const defaultMaxRequestSize = 64 << 10

// defaultLearner owns requests when no API keys are configured.
const defaultLearner = "local"

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string            // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → learner ID. Empty disables authentication.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 64 KiB default.

	// Ledger serves GET /v1/cheatsheet across sessions. Optional.
	Ledger ledger.Store

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config   Config
	registry *session.Registry
	catalog  *lesson.Catalog
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	server   *http.Server

	// Extra handlers mounted on the HTTP mux (e.g., the terminal WebSocket).
	extraRoutes []extraRoute
	okapi       *okapi.Okapi
	group       *okapi.Group
	routesOnce  sync.Once
}

type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway serving sessions from registry.
func NewGateway(cfg Config, registry *session.Registry, catalog *lesson.Catalog, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:   cfg,
		registry: registry,
		catalog:  catalog,
		limiter:  rl,
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(cfg.MaxRequestSize)),
	}
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "shellguide",
			Version: "v0.1.0",
		},
	)
	return g
}

// WithHandler mounts an additional handler on the HTTP mux at the given pattern.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

// Handler returns the gateway routes as an http.Handler. Routes are
// registered on first use, so WithHandler must be called before.
func (g *Gateway) Handler() http.Handler {
	g.routesOnce.Do(g.routes)
	return g.okapi
}

func (g *Gateway) routes() {
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}
	g.okapi.UseMiddleware(g.limitBody)

	g.group = g.okapi.Group("/v1", g.authenticate)

	// Sessions.
	g.group.Post("/sessions", g.handleSessionCreate,
		okapi.DocSummary("Open a sandboxed learning session"),
		okapi.DocTags("Sessions"),
		okapi.DocRequestBody(protocol.EnterPayload{}),
		okapi.DocResponse(http.StatusCreated, protocol.Session{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/sessions/{id}", g.handleSessionGet,
		okapi.DocSummary("Get a session and its active challenge"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocResponse(protocol.Session{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/sessions/{id}", g.handleSessionDelete,
		okapi.DocSummary("Close a session and destroy its sandbox"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/sessions/{id}/lesson", g.handleLessonEnter,
		okapi.DocSummary("Enter a lesson"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocRequestBody(protocol.EnterPayload{}),
		okapi.DocResponse(protocol.Session{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Post("/sessions/{id}/attempts", g.handleAttempt,
		okapi.DocSummary("Submit a command line for the active challenge"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocRequestBody(protocol.AttemptPayload{}),
		okapi.DocResponse(protocol.Outcome{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/sessions/{id}/reset", g.handleReset,
		okapi.DocSummary("Restore the sandbox to the start of the challenge"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocResponse(protocol.Session{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/sessions/{id}/hint", g.handleHint,
		okapi.DocSummary("Get the hint of the active challenge"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocResponse(protocol.HintPayload{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/sessions/{id}/sandbox", g.handleSandbox,
		okapi.DocSummary("List the files and directories in the sandbox"),
		okapi.DocTags("Sessions"),
		okapi.DocPathParam("id", "string", "Session ID"),
		okapi.DocResponse(SandboxResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Reference data.
	g.group.Get("/lessons", g.handleLessons,
		okapi.DocSummary("List the curriculum"),
		okapi.DocTags("Lessons"),
		okapi.DocResponse([]protocol.Lesson{}),
	)
	g.group.Get("/commands/{name}", g.handleCommand,
		okapi.DocSummary("Explain a command"),
		okapi.DocTags("Lessons"),
		okapi.DocPathParam("name", "string", "Command name"),
		okapi.DocResponse(explain.Command{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/cheatsheet", g.handleCheatSheet,
		okapi.DocSummary("Get the learner's cheat sheet"),
		okapi.DocTags("Lessons"),
		okapi.DocResponse([]ledger.Group{}),
	)

	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}
}

// Start launches the HTTP server and blocks until it exits.
func (g *Gateway) Start(ctx context.Context) error {
	g.Handler()
	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

func (g *Gateway) handleSessionCreate(c *okapi.Context) error {
	learner := c.GetString("learner")
	if err := g.limiter.Allow("learner:" + learner); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	// The lesson is entered right away. Empty picks the next unlocked one.
	var req protocol.EnterPayload
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.AbortBadRequest("invalid request body")
		}
	}

	sess, err := g.registry.Create(c.Context(), learner)
	if err != nil {
		return g.fail(c, "creating session", err)
	}
	if _, err := sess.Start(c.Context(), req.Lesson); err != nil && !errors.Is(err, session.ErrNoChallenge) {
		_ = g.registry.Remove(sess.ID())
		return g.fail(c, "entering lesson", err)
	}

	g.logger.Info("session opened",
		slog.String("session_id", sess.ID()),
		slog.String("learner", learner),
	)
	return c.JSON(http.StatusCreated, protocol.NewSession(sess))
}

func (g *Gateway) handleSessionGet(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	return c.OK(protocol.NewSession(sess))
}

func (g *Gateway) handleSessionDelete(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	if err := g.registry.Remove(sess.ID()); err != nil {
		return g.fail(c, "closing session", err)
	}
	g.limiter.Forget(sess.ID())
	return c.OK(okapi.M{"status": "closed"})
}

func (g *Gateway) handleLessonEnter(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	var req protocol.EnterPayload
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if _, err := sess.Start(c.Context(), req.Lesson); err != nil {
		return g.fail(c, "entering lesson", err)
	}
	return c.OK(protocol.NewSession(sess))
}

func (g *Gateway) handleAttempt(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	if err := g.limiter.Allow(sess.ID()); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req protocol.AttemptPayload
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	out, err := sess.Submit(c.Context(), req.Command)
	if err != nil {
		return g.fail(c, "submitting attempt", err)
	}
	return c.OK(protocol.NewOutcome(out, sess))
}

func (g *Gateway) handleReset(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	if err := sess.Reset(c.Context()); err != nil {
		return g.fail(c, "resetting challenge", err)
	}
	return c.OK(protocol.NewSession(sess))
}

func (g *Gateway) handleHint(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	hint, err := sess.Hint()
	if err != nil {
		return g.fail(c, "loading hint", err)
	}
	return c.OK(protocol.HintPayload{Hint: hint})
}

// SandboxResponse lists the sandbox contents relative to its root.
type SandboxResponse struct {
	Cwd   string   `json:"cwd"`
	Files []string `json:"files"`
	Dirs  []string `json:"dirs"`
}

func (g *Gateway) handleSandbox(c *okapi.Context) error {
	sess, err := g.session(c)
	if err != nil {
		return g.fail(c, "loading session", err)
	}
	state, err := sess.Snapshot()
	if err != nil {
		return g.fail(c, "reading sandbox", err)
	}
	return c.OK(SandboxResponse{Cwd: sess.Cwd(), Files: state.Files(), Dirs: state.Dirs()})
}

func (g *Gateway) handleLessons(c *okapi.Context) error {
	// Progress comes from the most recent session of the learner, if any.
	var tracker *lesson.Tracker
	learner := c.GetString("learner")
	for _, id := range g.registry.IDs() {
		if sess, err := g.registry.Get(id); err == nil && sess.Learner() == learner {
			tracker = sess.Tracker()
		}
	}
	return c.OK(protocol.NewLessons(g.catalog, tracker))
}

func (g *Gateway) handleCommand(c *okapi.Context) error {
	cmd, err := explain.Lookup(c.Param("name"))
	if err != nil {
		return g.fail(c, "explaining command", err)
	}
	return c.OK(cmd)
}

func (g *Gateway) handleCheatSheet(c *okapi.Context) error {
	if g.config.Ledger == nil {
		return c.OK([]ledger.Group{})
	}
	sheet, err := ledger.Load(c.Context(), g.config.Ledger, c.GetString("learner"))
	if err != nil {
		return g.fail(c, "loading cheat sheet", err)
	}
	groups := sheet.ByCategory()
	if groups == nil {
		groups = []ledger.Group{}
	}
	return c.OK(groups)
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}
	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped learner ID.
// With no keys configured every request belongs to the local learner.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("learner", defaultLearner)
			return next(c)
		}
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		learner := ""
		for key, id := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				learner = id
			}
		}
		if learner == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("learner", learner)
		return next(c)
	}
}

func (g *Gateway) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

// session loads the path session and hides sessions of other learners.
func (g *Gateway) session(c *okapi.Context) (*session.Session, error) {
	sess, err := g.registry.Get(c.Param("id"))
	if err != nil {
		return nil, err
	}
	if sess.Learner() != c.GetString("learner") {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// fail writes the response for err. Unexpected errors are logged and
// reported as 500 without detail.
func (g *Gateway) fail(c *okapi.Context, op string, err error) error {
	code := errorStatus(err)
	if code == http.StatusInternalServerError {
		g.logger.Error(op+" failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError(op + " failed")
	}
	return c.JSON(code, ErrorBody{Error: err.Error()})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var locked *lesson.LessonLockedError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, lesson.ErrUnknownLesson),
		errors.Is(err, explain.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrNoChallenge), errors.As(err, &locked):
		return http.StatusConflict
	case errors.Is(err, session.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, executor.ErrEmptyCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var _ gateway.Gateway = (*Gateway)(nil)
