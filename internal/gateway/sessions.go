package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/internal/workflow"
)

// createSessionRequest optionally reopens a saved parser.
type createSessionRequest struct {
	ParserID int64 `json:"parser_id,omitempty"`
}

// messageRequest is one user turn.
type messageRequest struct {
	Text string `json:"text"`
	agent.Options
}

// sessionDetail is returned by GET /api/sessions/{id}.
type sessionDetail struct {
	session.Info
	Memory map[string]any `json:"memory"`
}

// resumeResponse is returned by POST /api/sessions/{id}/resume.
type resumeResponse struct {
	State   workflow.State `json:"state"`
	Resumed bool           `json:"resumed"`
}

func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(r, g.config.MaxBodyBytes, &req); err != nil {
			writeError(w, payloadStatus(err), err.Error())
			return
		}

		var (
			s   *session.Session
			err error
		)
		if req.ParserID > 0 {
			s, err = g.sessions.Open(r.Context(), req.ParserID)
		} else {
			s, err = g.sessions.Create(r.Context())
		}
		if err != nil {
			writeError(w, sessionStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, s.Info())
	}
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.sessions.List())
	}
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return g.withSession(func(w http.ResponseWriter, _ *http.Request, s *session.Session) {
		writeJSON(w, http.StatusOK, sessionDetail{
			Info:   s.Info(),
			Memory: s.Conversation().Memory().Snapshot(),
		})
	})
}

func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.sessions.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, sessionStatus(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleMessage() http.HandlerFunc {
	return g.withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req messageRequest
		if err := decodeJSON(r, g.config.MaxBodyBytes, &req); err != nil {
			writeError(w, payloadStatus(err), err.Error())
			return
		}
		if err := g.allowMessage(s.ID(), r.RemoteAddr); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		req.Stream = false
		reply, err := s.Converse(r.Context(), req.Text, req.Options)
		if err != nil {
			g.logger.Warn("turn failed", "session", s.ID(), "error", err)
			writeError(w, turnStatus(err), agent.UserMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, reply)
	})
}

func (g *Gateway) handleResume() http.HandlerFunc {
	return g.withSession(func(w http.ResponseWriter, _ *http.Request, s *session.Session) {
		state, ok := s.Resume()
		writeJSON(w, http.StatusOK, resumeResponse{State: state, Resumed: ok})
	})
}

func (g *Gateway) handleSave() http.HandlerFunc {
	return g.withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req session.SaveRequest
		if err := decodeJSON(r, g.config.MaxBodyBytes, &req); err != nil {
			writeError(w, payloadStatus(err), err.Error())
			return
		}
		rec, err := g.sessions.Save(r.Context(), s.ID(), req)
		if err != nil {
			writeError(w, saveStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})
}

func (g *Gateway) handleOpLog() http.HandlerFunc {
	return g.withSession(func(w http.ResponseWriter, _ *http.Request, s *session.Session) {
		writeJSON(w, http.StatusOK, s.Conversation().Memory().Log().Entries())
	})
}

func (g *Gateway) handleHistory() http.HandlerFunc {
	return g.withSession(func(w http.ResponseWriter, _ *http.Request, s *session.Session) {
		writeJSON(w, http.StatusOK, s.Conversation().History().All())
	})
}

// withSession resolves the {id} URL parameter to a live session.
func (g *Gateway) withSession(fn func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := g.sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		fn(w, r, s)
	}
}

// allowMessage charges the message bucket and audits rejections.
func (g *Gateway) allowMessage(sessionID, remote string) error {
	if g.limiter == nil {
		return nil
	}
	err := g.limiter.Allow(security.BucketMessage)
	if err != nil {
		g.audit.Log(security.AuditEvent{
			Type:      security.EventRateLimit,
			SessionID: sessionID,
			Remote:    remote,
			Detail:    security.BucketMessage,
		})
	}
	return err
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrNoStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func saveStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNoParserConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, record.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, record.ErrDuplicateName):
		return http.StatusConflict
	default:
		return sessionStatus(err)
	}
}

func turnStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrLLMCall), errors.Is(err, agent.ErrAuthFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrToolLoopExceeded),
		errors.Is(err, agent.ErrLoopDetected),
		errors.Is(err, agent.ErrTokenBudget):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
