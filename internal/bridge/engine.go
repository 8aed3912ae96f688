package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Engine message types as they appear on the voice-engine wire.
const (
	EngineMsgAudio           = "audio"
	EngineMsgConversationAck = "conversation_ack"
	EngineMsgInterruption    = "interruption"
	EngineMsgPong            = "pong"
)

// EngineMessage is one frame received from the voice engine. The engine
// emits either raw binary audio chunks or structured JSON messages with
// a type discriminator; both are normalized into this form.
type EngineMessage struct {
	Type string `json:"type"`
	// Payload is base64 audio for audio messages, already in the
	// encoding the telephony side expects.
	Payload string `json:"payload,omitempty"`
	// ConversationID is set on conversation_ack messages.
	ConversationID string `json:"conversation_id,omitempty"`
}

// EngineConn is a live connection to the voice engine.
type EngineConn interface {
	// SendAudio forwards one base64 audio chunk from the caller.
	SendAudio(payload string) error
	// Read returns the next engine message, blocking until one arrives
	// or the configured read timeout expires.
	Read() (*EngineMessage, error)
	Close() error
}

// EngineDialer establishes connections to the voice engine.
type EngineDialer interface {
	Connect(ctx context.Context) (EngineConn, error)
}

// Dialer connects to a voice engine over websocket.
type Dialer struct {
	URL            string
	APIKey         string
	VoiceID        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Logger         *slog.Logger
}

// Connect dials the engine, performs the session-creation handshake and
// returns the live connection. The engine acknowledges asynchronously
// with a conversation_ack message on the returned connection.
func (d *Dialer) Connect(ctx context.Context) (EngineConn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.ConnectTimeout,
	}

	header := http.Header{}
	if d.APIKey != "" {
		header.Set("X-API-Key", d.APIKey)
	}

	dialCtx := ctx
	if d.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.ConnectTimeout)
		defer cancel()
	}

	ws, _, err := dialer.DialContext(dialCtx, d.URL, header)
	if err != nil {
		return nil, fmt.Errorf("connecting to voice engine: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn := &engineConn{ws: ws, readTimeout: d.ReadTimeout, logger: logger}

	init := map[string]any{"type": "session_create"}
	if d.VoiceID != "" {
		init["voice_id"] = d.VoiceID
	}
	if err := conn.writeJSON(init); err != nil {
		ws.Close()
		return nil, fmt.Errorf("creating engine session: %w", err)
	}

	return conn, nil
}

// engineConn wraps a websocket connection to the voice engine.
type engineConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
	logger      *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// userAudioChunk is the engine's expected shape for caller audio.
type userAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

func (c *engineConn) SendAudio(payload string) error {
	return c.writeJSON(userAudioChunk{UserAudioChunk: payload})
}

func (c *engineConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *engineConn) Read() (*EngineMessage, error) {
	for {
		if c.readTimeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}

		if msgType == websocket.BinaryMessage {
			// Raw audio chunk; re-encode for the telephony side.
			return &EngineMessage{Type: EngineMsgAudio, Payload: encodeAudio(data)}, nil
		}

		var msg EngineMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// A frame the engine sent that we cannot decode is not a
			// reason to drop the call.
			c.logger.Warn("ignoring malformed engine frame", "error", err)
			continue
		}
		return &msg, nil
	}
}

// Close closes the connection. Safe to call from any goroutine and
// idempotent; a pending Read returns with an error once closed.
func (c *engineConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
