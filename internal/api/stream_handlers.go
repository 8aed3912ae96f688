package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/bridge"
)

// streamUpgrader upgrades the telephony provider's media stream
// connection. The provider does not send an Origin header.
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades the media stream websocket and runs a bridge
// for the call. The handler blocks until the call ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("media stream upgrade failed", "error", err)
		return
	}

	telephony := bridge.NewTelephonyConn(ws, s.cfg.BridgeReadTimeout)
	handler := &trackingHandler{inner: s.lifecycle, sessions: s.sessions}
	b := bridge.New(telephony, s.dialer, handler, s.registry, s.logger)

	// Detached from the request context: the provider tears the
	// request down when the websocket closes, which the bridge already
	// detects on its own reads.
	term := b.Run(context.Background())
	s.logger.Info("media stream finished", "cause", term.Cause)
}

// trackingHandler registers sessions with the store for the duration of
// the call so tool endpoints can find them.
type trackingHandler struct {
	inner    bridge.SessionHandler
	sessions *agent.Store
}

func (h *trackingHandler) StreamStarted(ctx context.Context, start *bridge.StartFrame) (*agent.Session, error) {
	session, err := h.inner.StreamStarted(ctx, start)
	if err != nil {
		return nil, err
	}
	h.sessions.Put(session)
	return session, nil
}

func (h *trackingHandler) StreamEnded(ctx context.Context, session *agent.Session, term bridge.Termination) {
	h.inner.StreamEnded(ctx, session, term)
	if session != nil {
		h.sessions.Remove(session.CallSID())
	}
}
