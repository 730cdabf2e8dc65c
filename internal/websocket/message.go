package websocket

import "encoding/json"

// OutgoingMessage is the server -> client envelope.
type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// IncomingMessage is the client -> server envelope. Data stays raw so that
// payloads the server only forwards are never re-encoded.
type IncomingMessage struct {
	From  string          `json:"from"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
