package matchmaker

import (
	"encoding/json"
	"time"
)

// Wire event names shared with the browser client.
const (
	EventFindMatch       = "findMatch"
	EventWaiting         = "waiting"
	EventGameStart       = "gameStart"
	EventAction          = "action"
	EventEnemyAction     = "enemyAction"
	EventEnemyDisconnect = "enemyDisconnect"
)

type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

// FindMatchRequest is the data of a findMatch message. Deck is never inspected.
type FindMatchRequest struct {
	RoomCode string          `json:"roomCode"`
	Deck     json.RawMessage `json:"deck"`
}

// GameStart is sent once to each member when a session is created.
type GameStart struct {
	Role      Role            `json:"role"`
	Room      string          `json:"room"`
	EnemyDeck json.RawMessage `json:"enemyDeck"`
	Seed      int             `json:"seed"`
}

// Player is the match state kept for one connection, from its first
// findMatch until it disconnects.
type Player struct {
	ID       string
	RoomCode string
	Deck     json.RawMessage
}

// Session 对局. Players[0] is player1.
type Session struct {
	ID        string
	RoomCode  string
	Players   [2]string
	Seed      int
	CreatedAt time.Time
}

// Status is the snapshot served by GET /match/status.
type Status struct {
	Waiting     map[string]int64 `json:"waiting"`
	Sessions    int              `json:"sessions"`
	Players     int              `json:"players"`
	Connections int              `json:"connections"`
}

// ParseFindMatch decodes findMatch data leniently: anything that is not a
// non-empty JSON string leaves RoomCode empty so the caller can apply the
// default, and a missing deck stays nil.
func ParseFindMatch(data json.RawMessage) FindMatchRequest {
	var raw struct {
		RoomCode json.RawMessage `json:"roomCode"`
		Deck     json.RawMessage `json:"deck"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return FindMatchRequest{}
	}
	req := FindMatchRequest{Deck: raw.Deck}
	var code string
	if err := json.Unmarshal(raw.RoomCode, &code); err == nil {
		req.RoomCode = code
	}
	return req
}
