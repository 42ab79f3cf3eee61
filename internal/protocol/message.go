package protocol

import "encoding/json"

const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Message is the single envelope used on the terminal channel in both directions.
// SessionKey names the terminal session the message belongs to.
type Message struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	Op         string          `json:"op"`
	SessionKey string          `json:"session_key,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      *ErrPayload     `json:"error,omitempty"`
}

type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// Response answers req with the same id, op and session key.
func Response(req Message, payload any) Message {
	out := Message{ID: req.ID, Type: TypeResponse, Op: req.Op, SessionKey: req.SessionKey}
	if payload != nil {
		out.Payload = MustRaw(payload)
	}
	return out
}

func ErrorResponse(req Message, code, message string) Message {
	out := Response(req, nil)
	out.Error = &ErrPayload{Code: code, Message: message}
	return out
}

func Event(op, sessionKey string, payload any) Message {
	out := Message{Type: TypeEvent, Op: op, SessionKey: sessionKey}
	if payload != nil {
		out.Payload = MustRaw(payload)
	}
	return out
}

// DecodePayload unmarshals msg.Payload into v; an absent payload leaves v untouched.
func DecodePayload(msg Message, v any) error {
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(msg.Payload, v)
}
