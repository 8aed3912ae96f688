package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/duevoice/duevoice/internal/agent"
)

// State is the lifecycle state of a Bridge.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Cause classifies why a bridge terminated.
type Cause string

const (
	// CauseNormal is a clean stop frame from the telephony side.
	CauseNormal Cause = "normal"
	// CauseTelephonyClosed is a telephony disconnect without a stop frame.
	CauseTelephonyClosed Cause = "telephony_closed"
	// CauseEngineClosed is a voice-engine disconnect mid-stream.
	CauseEngineClosed Cause = "engine_closed"
	// CauseConnectFailed means the engine connection never came up.
	CauseConnectFailed Cause = "engine_connect_failed"
	// CauseError is any other transport or protocol failure.
	CauseError Cause = "error"
)

// Normal reports whether the cause is a clean stop.
func (c Cause) Normal() bool { return c == CauseNormal }

// Termination is the terminal condition of a bridge, reported to the
// session handler exactly once.
type Termination struct {
	Cause Cause
	Err   error
}

// SessionHandler receives the bridge's lifecycle events. StreamStarted
// is invoked once when the telephony start frame arrives and returns
// the session the bridge books stream state into; StreamEnded is
// invoked exactly once with the terminal condition, with a nil session
// if the stream never started.
type SessionHandler interface {
	StreamStarted(ctx context.Context, start *StartFrame) (*agent.Session, error)
	StreamEnded(ctx context.Context, session *agent.Session, term Termination)
}

// Bridge relays media between one telephony stream and one voice-engine
// connection. Create with New and drive with Run; a Bridge is single
// use.
type Bridge struct {
	telephony TelephonyConn
	dialer    EngineDialer
	handler   SessionHandler
	registry  *Registry
	logger    *slog.Logger

	state   atomic.Int32
	session atomic.Pointer[agent.Session]
	engine  EngineConn
}

// New creates a bridge for one call. registry may be nil to disable
// stats collection.
func New(telephony TelephonyConn, dialer EngineDialer, handler SessionHandler, registry *Registry, logger *slog.Logger) *Bridge {
	return &Bridge{
		telephony: telephony,
		dialer:    dialer,
		handler:   handler,
		registry:  registry,
		logger:    logger.With("subsystem", "bridge"),
	}
}

// State returns the bridge's current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// Session returns the call session, or nil before the start frame.
func (b *Bridge) Session() *agent.Session {
	return b.session.Load()
}

// Run connects to the voice engine and relays frames in both directions
// until either side terminates, then closes both connections and
// reports the terminal condition. It blocks for the duration of the
// call and returns the termination it reported.
func (b *Bridge) Run(ctx context.Context) Termination {
	b.setState(StateConnecting)

	engine, err := b.dialer.Connect(ctx)
	if err != nil {
		b.setState(StateClosed)
		b.telephony.Close()
		term := Termination{Cause: CauseConnectFailed, Err: err}
		b.logger.Error("voice engine unreachable", "error", err)
		b.registry.recordTermination(term.Cause)
		b.handler.StreamEnded(ctx, nil, term)
		return term
	}
	b.engine = engine

	b.setState(StateStreaming)
	b.registry.bridgeStarted()
	defer b.registry.bridgeStopped()

	// Both loops report here; the first result wins and the loser's is
	// discarded after teardown unblocks it.
	results := make(chan Termination, 2)
	go func() { results <- b.inboundLoop(ctx) }()
	go func() { results <- b.outboundLoop(ctx) }()

	term := <-results

	b.setState(StateDraining)
	b.telephony.Close()
	b.engine.Close()
	<-results

	b.setState(StateClosed)
	b.logger.Info("bridge closed", "cause", term.Cause, "error", term.Err)
	b.registry.recordTermination(term.Cause)
	b.handler.StreamEnded(ctx, b.session.Load(), term)
	return term
}

// inboundLoop reads telephony frames and forwards media to the engine.
// The write is awaited before the next read, so a slow engine slows the
// telephony read instead of growing a queue.
func (b *Bridge) inboundLoop(ctx context.Context) Termination {
	for {
		frame, err := b.telephony.ReadFrame()
		if err != nil {
			return b.classifyRead(err, CauseTelephonyClosed)
		}

		switch frame.Event {
		case EventConnected:
			b.logger.Debug("telephony stream connected")

		case EventStart:
			if frame.Start == nil {
				return Termination{Cause: CauseError, Err: errors.New("start frame without start payload")}
			}
			session, err := b.handler.StreamStarted(ctx, frame.Start)
			if err != nil {
				return Termination{Cause: CauseError, Err: err}
			}
			session.SetStreamSID(frame.Start.StreamSID)
			b.session.Store(session)
			b.logger.Info("stream started",
				"stream_sid", frame.Start.StreamSID,
				"call_sid", frame.Start.CallSID,
			)

		case EventMedia:
			if frame.Media == nil {
				continue
			}
			if err := b.engine.SendAudio(frame.Media.Payload); err != nil {
				return b.classifyRead(err, CauseEngineClosed)
			}
			b.registry.recordInbound()

		case EventDTMF:
			if frame.DTMF != nil {
				b.logger.Debug("dtmf digit", "digit", frame.DTMF.Digit)
			}

		case EventStop:
			b.logger.Info("stream stopped")
			return Termination{Cause: CauseNormal}

		case EventMark:
			// Playback acknowledgement; nothing to relay.

		default:
			b.logger.Debug("ignoring telephony frame", "event", frame.Event)
		}
	}
}

// outboundLoop reads engine messages and forwards audio to the
// telephony side as media frames tagged with the stream identifier.
func (b *Bridge) outboundLoop(ctx context.Context) Termination {
	for {
		msg, err := b.engine.Read()
		if err != nil {
			return b.classifyRead(err, CauseEngineClosed)
		}

		switch msg.Type {
		case EngineMsgAudio:
			session := b.session.Load()
			if session == nil || session.StreamSID() == "" {
				// No stream identifier yet; the frame cannot be
				// addressed, so it is dropped rather than buffered.
				b.registry.recordDropped()
				continue
			}
			if err := b.telephony.WriteFrame(MediaOut(session.StreamSID(), msg.Payload)); err != nil {
				return b.classifyRead(err, CauseTelephonyClosed)
			}
			b.registry.recordOutbound()

		case EngineMsgInterruption:
			// The caller spoke over the agent; flush whatever audio the
			// telephony side has queued so the reply stops promptly.
			session := b.session.Load()
			if session == nil || session.StreamSID() == "" {
				continue
			}
			if err := b.telephony.WriteFrame(ClearOut(session.StreamSID())); err != nil {
				return b.classifyRead(err, CauseTelephonyClosed)
			}
			b.logger.Debug("cleared buffered audio after interruption")

		case EngineMsgConversationAck:
			if session := b.session.Load(); session != nil {
				session.SetConversationID(msg.ConversationID)
			}
			b.logger.Info("engine conversation ready", "conversation_id", msg.ConversationID)

		case EngineMsgPong:
			// Keepalive; nothing to relay.

		default:
			b.logger.Debug("ignoring engine message", "type", msg.Type)
		}
	}
}

// classifyRead maps a transport error to a termination. Errors observed
// after teardown has begun belong to the losing loop and carry no
// meaning of their own.
func (b *Bridge) classifyRead(err error, closedCause Cause) Termination {
	if b.State() >= StateDraining {
		return Termination{Cause: closedCause, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return Termination{Cause: closedCause, Err: err}
	}
	return Termination{Cause: CauseError, Err: err}
}
