// Package ws implements the browser terminal: each WebSocket connection
// owns one learner session for as long as it stays open. Clients send
// protocol envelopes (attempt, hint, reset, lesson.enter) and receive
// challenges and evaluated outcomes.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jkaninda/shellguide/internal/config"
	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/protocol"
	"github.com/jkaninda/shellguide/internal/ratelimit"
	"github.com/jkaninda/shellguide/internal/session"
)

// Subprotocol is negotiated on every terminal connection.
const Subprotocol = "shellguide-terminal-v1"

// readLimit caps one inbound frame. Command lines are short.
const readLimit = 16 << 10

// Server accepts terminal connections.
type Server struct {
	registry *session.Registry
	cfg      *config.WebSocketGatewayConfig
	apiKeys  map[string]string // API key → learner ID. Empty disables authentication.
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewServer creates a terminal server that opens sessions in registry.
func NewServer(registry *session.Registry, cfg *config.WebSocketGatewayConfig, apiKeys map[string]string, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		registry: registry,
		cfg:      cfg,
		apiKeys:  apiKeys,
		limiter:  limiter,
		logger:   logger,
	}
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	learner, ok := s.authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	opts := &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}}
	if s.cfg != nil {
		opts.OriginPatterns = s.cfg.OriginPatterns
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(readLimit)

	s.handleConnection(r.Context(), conn, learner)
}

// authenticate resolves the learner from ?token= or a Bearer header.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	if len(s.apiKeys) == 0 {
		return "local", true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", false
	}
	learner := ""
	for key, id := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			learner = id
		}
	}
	return learner, learner != ""
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, learner string) {
	sess, err := s.registry.Create(ctx, learner)
	if err != nil {
		s.writeError(ctx, conn, "", "session_unavailable", err)
		conn.Close(websocket.StatusTryAgainLater, "no session available")
		return
	}
	id := sess.ID()
	defer func() {
		if err := s.registry.Remove(id); err != nil && !errors.Is(err, session.ErrNotFound) {
			s.logger.Warn("closing terminal session failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
		s.limiter.Forget(id)
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}()

	s.logger.Info("terminal connected",
		slog.String("session_id", id),
		slog.String("learner", learner),
	)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx, conn, id)

	if err := s.send(ctx, conn, id, protocol.MsgWelcome, protocol.NewSession(sess)); err != nil {
		return
	}
	if err := s.enter(ctx, conn, sess, ""); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.logger.Info("terminal disconnected", slog.String("session_id", id))
			} else {
				s.logger.Debug("terminal connection error",
					slog.String("session_id", id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		// Decoded by hand: wsjson.Read closes the connection on bad input.
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.writeError(ctx, conn, id, "invalid_message", err)
			continue
		}
		if err := s.handleMessage(ctx, conn, sess, &env); err != nil {
			return
		}
	}
}

// handleMessage processes one client envelope. A returned error ends the
// connection; request-level failures are reported to the client instead.
func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, sess *session.Session, env *protocol.Envelope) error {
	id := sess.ID()
	switch env.Type {
	case protocol.MsgAttempt:
		if err := s.limiter.Allow(id); err != nil {
			return s.writeError(ctx, conn, id, "rate_limited", err)
		}
		var p protocol.AttemptPayload
		if err := env.Decode(&p); err != nil {
			return s.writeError(ctx, conn, id, "invalid_payload", err)
		}
		out, err := sess.Submit(ctx, p.Command)
		if err != nil {
			return s.requestError(ctx, conn, id, err)
		}
		if err := s.send(ctx, conn, id, protocol.MsgOutcome, protocol.NewOutcome(out, sess)); err != nil {
			return err
		}
		if out.Transition.LessonComplete {
			return s.enter(ctx, conn, sess, "")
		}
		return nil

	case protocol.MsgHint:
		hint, err := sess.Hint()
		if err != nil {
			return s.requestError(ctx, conn, id, err)
		}
		return s.send(ctx, conn, id, protocol.MsgHintText, protocol.HintPayload{Hint: hint})

	case protocol.MsgReset:
		if err := sess.Reset(ctx); err != nil {
			return s.requestError(ctx, conn, id, err)
		}
		return s.sendChallenge(ctx, conn, sess)

	case protocol.MsgEnter:
		var p protocol.EnterPayload
		if len(env.Payload) > 0 {
			if err := env.Decode(&p); err != nil {
				return s.writeError(ctx, conn, id, "invalid_payload", err)
			}
		}
		return s.enter(ctx, conn, sess, p.Lesson)

	case protocol.MsgPong:
		return nil

	default:
		return s.writeError(ctx, conn, id, "unknown_type", fmt.Errorf("unknown message type %q", env.Type))
	}
}

// enter starts a lesson and sends its first challenge, or MsgFinished
// when the curriculum is done.
func (s *Server) enter(ctx context.Context, conn *websocket.Conn, sess *session.Session, lessonID string) error {
	_, err := sess.Start(ctx, lessonID)
	if errors.Is(err, session.ErrNoChallenge) {
		return s.send(ctx, conn, sess.ID(), protocol.MsgFinished, protocol.NewSession(sess))
	}
	if err != nil {
		return s.requestError(ctx, conn, sess.ID(), err)
	}
	return s.sendChallenge(ctx, conn, sess)
}

func (s *Server) sendChallenge(ctx context.Context, conn *websocket.Conn, sess *session.Session) error {
	pos, ok := sess.Current()
	if !ok {
		return s.writeError(ctx, conn, sess.ID(), "no_challenge", session.ErrNoChallenge)
	}
	return s.send(ctx, conn, sess.ID(), protocol.MsgChallenge, protocol.NewChallenge(pos))
}

// requestError reports err to the client. A closed session ends the
// connection.
func (s *Server) requestError(ctx context.Context, conn *websocket.Conn, id string, err error) error {
	if errors.Is(err, session.ErrClosed) {
		return err
	}
	return s.writeError(ctx, conn, id, errorCode(err), err)
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, id string) {
	interval := s.cfg.WSPingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(ctx, conn, id, protocol.MsgPing, nil); err != nil {
				s.logger.Debug("terminal ping failed",
					slog.String("session_id", id),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, id string, t protocol.MessageType, payload any) error {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	env.SessionID = id
	return s.writeEnvelope(ctx, conn, env)
}

// writeError sends an error envelope. It only fails when the write does.
func (s *Server) writeError(ctx context.Context, conn *websocket.Conn, id, code string, err error) error {
	return s.send(ctx, conn, id, protocol.MsgError, protocol.ErrorPayload{Code: code, Message: err.Error()})
}

func (s *Server) writeEnvelope(ctx context.Context, conn *websocket.Conn, env *protocol.Envelope) error {
	return wsjson.Write(ctx, conn, env)
}

// errorCode maps domain errors to stable client codes.
func errorCode(err error) string {
	var locked *lesson.LessonLockedError
	switch {
	case errors.Is(err, executor.ErrEmptyCommand):
		return "empty_command"
	case errors.Is(err, session.ErrNoChallenge):
		return "no_challenge"
	case errors.Is(err, lesson.ErrUnknownLesson):
		return "unknown_lesson"
	case errors.As(err, &locked):
		return "lesson_locked"
	default:
		return "internal"
	}
}
