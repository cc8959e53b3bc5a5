package gateway

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/provider/providertest"
)

func dial(t *testing.T, serverURL, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws/sessions/" + sessionID
	conn, _, err := websocket.Dial(t.Context(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []Frame {
	t.Helper()
	var frames []Frame
	for {
		_, data, err := conn.Read(t.Context())
		if err != nil {
			t.Fatalf("read: %v (frames so far %+v)", err, frames)
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, f)
		if f.Type == FrameDone || f.Type == FrameError {
			return frames
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(t.Context(), websocket.MessageText, data); err != nil {
		t.Fatal(err)
	}
}

func TestWebSocket_StreamsTurns(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(
		provider.CompletionResponse{Content: "Which page should I parse?"},
		provider.CompletionResponse{Content: "Got it."},
	)
	m := newManager(p, nil)
	s, err := m.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	srv := serve(t, newTestGateway(t, m, nil))
	conn := dial(t, srv.URL, s.ID())

	send(t, conn, json.RawMessage(`{"text":"hello"}`))
	frames := readFrames(t, conn)

	var text strings.Builder
	for _, f := range frames[:len(frames)-1] {
		if f.Type != FrameText {
			t.Errorf("unexpected frame %+v", f)
		}
		text.WriteString(f.Content)
	}
	done := frames[len(frames)-1]
	if done.Type != FrameDone || done.Reply == nil {
		t.Fatalf("last frame = %+v", done)
	}
	if text.String() != "Which page should I parse?" || done.Reply.Text != "Which page should I parse?" {
		t.Errorf("streamed %q, reply %q", text.String(), done.Reply.Text)
	}

	// A second turn on the same connection.
	send(t, conn, json.RawMessage(`{"text":"https://news.test/"}`))
	frames = readFrames(t, conn)
	if last := frames[len(frames)-1]; last.Type != FrameDone || last.Reply.Text != "Got it." {
		t.Errorf("second turn last frame = %+v", last)
	}
	if n := len(p.Calls()); n != 2 {
		t.Errorf("model calls = %d, want 2", n)
	}

	deadline := time.Now().Add(time.Second)
	for s.Conversation().History().Len() != 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := s.Conversation().History().Len(); n != 4 {
		t.Errorf("history = %d, want 4", n)
	}
}

func TestWebSocket_FrameFields(t *testing.T) {
	t.Parallel()

	m := newManager(echoProvider("Hi."), nil)
	s, _ := m.Create(t.Context())
	srv := serve(t, newTestGateway(t, m, nil))
	conn := dial(t, srv.URL, s.ID())

	send(t, conn, json.RawMessage(`{"text":"hello"}`))
	_, data, err := conn.Read(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	var first map[string]any
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatal(err)
	}
	if first["type"] != "text" || first["content"] != "Hi." {
		t.Errorf("first frame = %s", data)
	}
	if f := readFrames(t, conn); f[len(f)-1].Type != FrameDone {
		t.Errorf("frames = %+v", f)
	}
}

func TestWebSocket_BadMessages(t *testing.T) {
	t.Parallel()

	m := newManager(echoProvider("ok"), nil)
	s, _ := m.Create(t.Context())
	srv := serve(t, newTestGateway(t, m, nil))
	conn := dial(t, srv.URL, s.ID())

	if err := conn.Write(t.Context(), websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if f := readFrames(t, conn); len(f) != 1 || f[0].Type != FrameError {
		t.Errorf("invalid JSON frames = %+v", f)
	}

	send(t, conn, json.RawMessage(`{"text":""}`))
	f := readFrames(t, conn)
	if len(f) != 1 || f[0].Type != FrameError || !strings.Contains(f[0].Error, "type a message") {
		t.Errorf("empty input frames = %+v", f)
	}

	// The connection survives both errors.
	send(t, conn, json.RawMessage(`{"text":"hi"}`))
	if f := readFrames(t, conn); f[len(f)-1].Type != FrameDone {
		t.Errorf("frames = %+v", f)
	}
}

func TestWebSocket_UnknownSession(t *testing.T) {
	t.Parallel()

	srv := serve(t, newTestGateway(t, newManager(echoProvider("ok"), nil), nil))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/nope"
	_, resp, err := websocket.Dial(t.Context(), url, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("resp = %+v", resp)
	}
}
