package api

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// twimlResponse is the root element of a voice routing instruction
// document returned to the telephony provider.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     []twimlSay    `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// connectStreamTwiML builds the instruction that greets the caller and
// connects the call to the media stream endpoint.
func connectStreamTwiML(streamURL, greeting string, params map[string]string) *twimlResponse {
	stream := twimlStream{URL: streamURL}
	for name, value := range params {
		stream.Parameters = append(stream.Parameters, twimlParameter{Name: name, Value: value})
	}

	resp := &twimlResponse{Connect: &twimlConnect{Stream: stream}}
	if greeting != "" {
		resp.Say = []twimlSay{{Text: greeting}}
	}
	return resp
}

// declineTwiML builds the instruction that speaks a message and hangs up.
func declineTwiML(message string) *twimlResponse {
	return &twimlResponse{
		Say:    []twimlSay{{Text: message}},
		Hangup: &struct{}{},
	}
}

// writeTwiML writes a TwiML document response.
func writeTwiML(w http.ResponseWriter, resp *twimlResponse) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode twiml response", "error", err)
	}
}
