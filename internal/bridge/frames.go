// Package bridge relays live call audio between a telephony media
// stream and a conversational voice engine. Each call runs one Bridge
// with two relay loops, one per direction, that race until either side
// terminates; the bridge then tears both connections down together and
// reports the terminal cause exactly once.
package bridge

import (
	"encoding/json"
	"fmt"
)

// Telephony frame event names, as they appear on the media stream wire.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventClear     = "clear"
)

// Frame is the envelope for every message exchanged with the telephony
// media stream. The Event field discriminates which payload is set.
type Frame struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid,omitempty"`
	Start     *StartFrame `json:"start,omitempty"`
	Media     *MediaFrame `json:"media,omitempty"`
	Stop      *StopFrame  `json:"stop,omitempty"`
	Mark      *MarkFrame  `json:"mark,omitempty"`
	DTMF      *DTMFFrame  `json:"dtmf,omitempty"`
}

// StartFrame announces a new media stream and carries the call
// identifiers the bridge needs to open a session.
type StartFrame struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters"`
}

// MediaFormat describes the audio encoding on the telephony stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaFrame carries one chunk of call audio, base64 encoded.
type MediaFrame struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopFrame announces the end of the media stream.
type StopFrame struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// MarkFrame acknowledges playback of a previously sent mark.
type MarkFrame struct {
	Name string `json:"name"`
}

// DTMFFrame carries a keypad digit pressed by the caller.
type DTMFFrame struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// ParseFrame decodes one telephony frame from its wire form.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding telephony frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("telephony frame missing event")
	}
	return &f, nil
}

// MediaOut builds an outbound media frame tagged with the given stream
// identifier, carrying base64 audio for the telephony side.
func MediaOut(streamSID, payload string) *Frame {
	return &Frame{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &MediaFrame{Payload: payload},
	}
}

// ClearOut builds a clear frame, which tells the telephony side to
// discard any audio it has buffered but not yet played.
func ClearOut(streamSID string) *Frame {
	return &Frame{
		Event:     EventClear,
		StreamSID: streamSID,
	}
}
