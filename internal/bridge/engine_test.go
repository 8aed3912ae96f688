package bridge

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeEngineServer upgrades the test connection, consumes the
// session_create handshake and then plays the given frames.
func fakeEngineServer(t *testing.T, play func(ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		if _, _, err := ws.ReadMessage(); err != nil {
			t.Errorf("reading handshake: %v", err)
			return
		}
		play(ws)
		ws.ReadMessage() //nolint:errcheck
	}))
}

func dialTestEngine(t *testing.T, srv *httptest.Server) EngineConn {
	t.Helper()
	d := &Dialer{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
		Logger:         discardLogger(),
	}
	conn, err := d.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEngineConnSkipsMalformedFrames(t *testing.T) {
	srv := fakeEngineServer(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte("{not json"))             //nolint:errcheck
		ws.WriteMessage(websocket.TextMessage, []byte("plain text, no braces")) //nolint:errcheck
		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"conversation_ack","conversation_id":"conv1"}`)) //nolint:errcheck
	})
	defer srv.Close()

	conn := dialTestEngine(t, srv)

	// The two garbage frames are skipped; the first message surfaced is
	// the valid one behind them.
	msg, err := conn.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != EngineMsgConversationAck || msg.ConversationID != "conv1" {
		t.Errorf("message = %+v, want conversation_ack conv1", msg)
	}
}

func TestEngineConnBinaryAudio(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03}
	srv := fakeEngineServer(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.BinaryMessage, raw) //nolint:errcheck
	})
	defer srv.Close()

	conn := dialTestEngine(t, srv)

	msg, err := conn.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != EngineMsgAudio {
		t.Fatalf("type = %q, want %q", msg.Type, EngineMsgAudio)
	}
	if msg.Payload != base64.StdEncoding.EncodeToString(raw) {
		t.Errorf("payload = %q, want base64 of raw chunk", msg.Payload)
	}
}
