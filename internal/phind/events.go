package phind

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Event is one decoded stream envelope.
type Event interface {
	isEvent()
}

// NewTag opens a structural tag.
type NewTag struct{ Tag string }

// EndTag closes the most recent tag with the same name.
type EndTag struct{ Tag string }

// AddTextToken carries answer text.
type AddTextToken struct{ Text string }

// EndTurn finishes the answer.
type EndTurn struct{}

// Unknown is any well-formed envelope with a type the interpreter does not act on.
type Unknown struct{ Type string }

func (NewTag) isEvent()       {}
func (EndTag) isEvent()       {}
func (AddTextToken) isEvent() {}
func (EndTurn) isEvent()      {}
func (Unknown) isEvent()      {}

const (
	eventNewTag       = "new_tag"
	eventEndTag       = "end_tag"
	eventAddTextToken = "add_text_token"
	eventEndTurn      = "end_turn"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEvent decodes a line payload. It reports false for anything that is not a
// JSON object, including null and bare strings or numbers.
func ParseEvent(data string) (Event, bool) {
	raw := bytes.TrimSpace([]byte(data))
	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	payload := payloadText(env.Payload)

	switch env.Type {
	case eventNewTag:
		return NewTag{Tag: payload}, true
	case eventEndTag:
		return EndTag{Tag: payload}, true
	case eventAddTextToken:
		return AddTextToken{Text: payload}, true
	case eventEndTurn:
		return EndTurn{}, true
	default:
		return Unknown{Type: env.Type}, true
	}
}

// payloadText renders scalar payloads as text; null, objects and arrays are empty
func payloadText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
