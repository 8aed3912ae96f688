package bridge

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TelephonyConn is a live media stream connection from the telephony
// provider.
type TelephonyConn interface {
	// ReadFrame returns the next frame, blocking until one arrives or
	// the configured read timeout expires.
	ReadFrame() (*Frame, error)
	WriteFrame(f *Frame) error
	Close() error
}

// telephonyConn wraps an upgraded websocket connection from the
// telephony provider.
type telephonyConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewTelephonyConn wraps an upgraded websocket connection. readTimeout
// bounds how long a relay loop can sit in a read before the connection
// is considered dead.
func NewTelephonyConn(ws *websocket.Conn, readTimeout time.Duration) TelephonyConn {
	return &telephonyConn{ws: ws, readTimeout: readTimeout}
}

func (c *telephonyConn) ReadFrame() (*Frame, error) {
	if c.readTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return ParseFrame(data)
}

func (c *telephonyConn) WriteFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(f)
}

// Close closes the connection. Safe to call from any goroutine and
// idempotent; a pending ReadFrame returns with an error once closed.
func (c *telephonyConn) Close() error {
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

// encodeAudio converts a raw audio chunk to the base64 form carried in
// telephony media frames.
func encodeAudio(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}
