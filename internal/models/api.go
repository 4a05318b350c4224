package models

// APIError is the body of every non-2xx JSON response.
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

const WSAntiCheatViolation = "anticheat_violation"

// WSMessage is the envelope published on the anti-cheat channel and relayed
// to staff websocket connections.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
