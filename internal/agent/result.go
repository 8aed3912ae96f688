package agent

// Result is the structured outcome of a verification or negotiation
// step. Message is spoken-style text for the caller; EndCall tells the
// dialogue driver to hang up; Data carries structured fields for the
// conversational layer.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	EndCall bool           `json:"end_call"`
	Data    map[string]any `json:"data,omitempty"`
}
