package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/session"
)

// Frame types sent to websocket clients.
const (
	FrameText     = "text"
	FrameFunction = "function"
	FrameDone     = "done"
	FrameError    = "error"
)

// Frame is one server-to-client websocket message. A turn produces any
// number of text and function frames followed by exactly one done or
// error frame.
type Frame struct {
	Type     string              `json:"type"`
	Content  string              `json:"content,omitempty"`
	Function *agent.FunctionCall `json:"function,omitempty"`
	Reply    *agent.Reply        `json:"reply,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// handleWebSocket streams turns of one session. Each client message is a
// messageRequest; turns are handled one at a time.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, err := g.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// Turns outlive the server read and write timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()
	conn.SetReadLimit(g.config.MaxBodyBytes)

	g.logger.Info("websocket connected", "session", s.ID(), "remote", r.RemoteAddr)
	g.readLoop(r.Context(), conn, s, r.RemoteAddr)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, s *session.Session, remote string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				g.logger.Debug("websocket read failed", "session", s.ID(), "error", err)
			}
			return
		}

		var req messageRequest
		if err := security.ValidatePayload(data, int(g.config.MaxBodyBytes), 0); err != nil {
			g.sendFrame(ctx, conn, Frame{Type: FrameError, Error: err.Error()})
			continue
		}
		if err := json.Unmarshal(data, &req); err != nil {
			g.sendFrame(ctx, conn, Frame{Type: FrameError, Error: "invalid message: " + err.Error()})
			continue
		}
		if err := g.allowMessage(s.ID(), remote); err != nil {
			g.sendFrame(ctx, conn, Frame{Type: FrameError, Error: err.Error()})
			continue
		}

		if err := g.streamTurn(ctx, conn, s, req); err != nil {
			return
		}
	}
}

// streamTurn runs one streamed turn and forwards its events. It returns an
// error only when the connection is unusable.
func (g *Gateway) streamTurn(ctx context.Context, conn *websocket.Conn, s *session.Session, req messageRequest) error {
	req.Stream = true
	events, err := s.ConverseStream(ctx, req.Text, req.Options)
	if err != nil {
		return g.sendFrame(ctx, conn, Frame{Type: FrameError, Error: agent.UserMessage(err)})
	}
	var sendErr error
	for e := range events {
		if sendErr != nil {
			continue // drain
		}
		sendErr = g.sendFrame(ctx, conn, eventFrame(e))
	}
	return sendErr
}

func eventFrame(e agent.Event) Frame {
	switch e.Type {
	case agent.EventText:
		return Frame{Type: FrameText, Content: e.Text}
	case agent.EventFunction:
		return Frame{Type: FrameFunction, Function: e.Function}
	case agent.EventDone:
		return Frame{Type: FrameDone, Reply: e.Reply}
	default:
		return Frame{Type: FrameError, Error: agent.UserMessage(e.Err)}
	}
}

func (g *Gateway) sendFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		g.logger.Error("failed to marshal frame", "error", err)
		return nil
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Debug("failed to send frame", "type", f.Type, "error", err)
		return err
	}
	return nil
}
