package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"DuelRelay/internal/utils"
	"DuelRelay/internal/websocket"
)

var (
	// ErrMissingRoom marks an action without a string "room" field.
	ErrMissingRoom = errors.New("action has no room")
	// ErrNotMember marks an action rejected by strict relay.
	ErrNotMember = errors.New("sender is not a member of the session")
	// ErrNotConnected marks a match request from an id the hub no longer knows.
	ErrNotConnected = errors.New("client is not connected")
)

type Options struct {
	DefaultRoomCode string
	// SeedBound is the exclusive upper bound of the shared seed.
	SeedBound int
	// DedupeRequests drops a client's earlier queue entry when it sends
	// findMatch again. Off by default: a repeated request queues twice.
	DedupeRequests bool
	// StrictRelay only relays actions from members of a session group.
	StrictRelay bool
}

func DefaultOptions() Options {
	return Options{DefaultRoomCode: "default", SeedBound: 1000000}
}

// Service owns every piece of match state. All state changes happen under
// mu, and each call sends its notifications before returning.
type Service struct {
	mu       sync.Mutex
	repo     Repo
	hub      websocket.HubInterface
	opts     Options
	players  map[string]*Player
	sessions map[string]*Session
	groups   *groups

	now  func() time.Time
	seed func(bound int) int
}

func NewService(repo Repo, hub websocket.HubInterface, opts Options) *Service {
	if opts.DefaultRoomCode == "" {
		opts.DefaultRoomCode = DefaultOptions().DefaultRoomCode
	}
	if opts.SeedBound <= 0 {
		opts.SeedBound = DefaultOptions().SeedBound
	}
	return &Service{
		repo:     repo,
		hub:      hub,
		opts:     opts,
		players:  make(map[string]*Player),
		sessions: make(map[string]*Session),
		groups:   newGroups(),
		now:      time.Now,
		seed:     rand.IntN,
	}
}

// HandleMessage routes one inbound websocket message.
func (s *Service) HandleMessage(ctx context.Context, msg websocket.IncomingMessage) error {
	switch msg.Event {
	case EventFindMatch:
		return s.FindMatch(ctx, msg.From, ParseFindMatch(msg.Data))
	case EventAction:
		return s.Relay(msg.From, msg.Data)
	default:
		utils.Log.Debug("ignoring unknown event", "client", msg.From, "event", msg.Event)
		return nil
	}
}

// FindMatch 入队并尝试立即配对（FIFO）。
func (s *Service) FindMatch(ctx context.Context, id string, req FindMatchRequest) error {
	code := req.RoomCode
	if code == "" {
		code = s.opts.DefaultRoomCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a record created now would outlive its only disconnect
	if !s.hub.Connected(id) {
		return ErrNotConnected
	}

	p, ok := s.players[id]
	if !ok {
		p = &Player{ID: id}
		s.players[id] = p
	}
	if s.opts.DedupeRequests && p.RoomCode != "" {
		if err := s.repo.Remove(ctx, p.RoomCode, id); err != nil {
			return err
		}
	}
	p.Deck = req.Deck
	p.RoomCode = code

	n, err := s.repo.Enqueue(ctx, code, id)
	if err != nil {
		return err
	}
	if !s.groups.join(code, roomGroup, id) {
		utils.Log.Warn("room code collides with a session id", "client", id, "room", code)
	}
	utils.Log.Info("match requested", "client", id, "room", code, "waiting", n)

	if n < 2 {
		s.hub.SendToPlayer(id, websocket.OutgoingMessage{
			Event: EventWaiting,
			Data:  fmt.Sprintf("Room code [%s] waiting for an opponent... (%d/2)", code, n),
		})
		return nil
	}

	pair, err := s.repo.PopPair(ctx, code)
	if err != nil {
		return err
	}
	if len(pair) < 2 {
		return nil
	}
	s.startSession(code, pair[0], pair[1])
	return nil
}

// startSession creates the session for two dequeued ids; the first becomes
// player1. Callers hold mu.
func (s *Service) startSession(code, first, second string) *Session {
	now := s.now()
	sess := &Session{
		ID:        fmt.Sprintf("game_%s_%d_%s", code, now.UnixNano(), uuid.NewString()[:8]),
		RoomCode:  code,
		Players:   [2]string{first, second},
		Seed:      s.seed(s.opts.SeedBound),
		CreatedAt: now,
	}

	decks := [2]json.RawMessage{}
	for i, id := range sess.Players {
		// a popped id without a record left before it could be notified
		if p, ok := s.players[id]; ok {
			decks[i] = p.Deck
			s.groups.join(sess.ID, sessionGroup, id)
		}
	}
	if s.groups.exists(sess.ID) {
		s.sessions[sess.ID] = sess
	}

	s.hub.SendToPlayer(first, websocket.OutgoingMessage{
		Event: EventGameStart,
		Data:  GameStart{Role: RolePlayer1, Room: sess.ID, EnemyDeck: decks[1], Seed: sess.Seed},
	})
	s.hub.SendToPlayer(second, websocket.OutgoingMessage{
		Event: EventGameStart,
		Data:  GameStart{Role: RolePlayer2, Room: sess.ID, EnemyDeck: decks[0], Seed: sess.Seed},
	})

	utils.Log.Info("session started", "session", sess.ID, "room", code, "player1", first, "player2", second)
	return sess
}

// Relay forwards an action to the other members of the group named by its
// "room" field. The payload is passed on untouched.
func (s *Service) Relay(from string, data json.RawMessage) error {
	var tag struct {
		Room json.RawMessage `json:"room"`
	}
	var room string
	if err := json.Unmarshal(data, &tag); err != nil || json.Unmarshal(tag.Room, &room) != nil || room == "" {
		return ErrMissingRoom
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.groups.exists(room) {
		return nil
	}
	if s.opts.StrictRelay {
		if k, _ := s.groups.kind(room); k != sessionGroup || !s.groups.has(room, from) {
			return ErrNotMember
		}
	}

	targets := s.groups.others(room, from)
	s.hub.BroadcastToPlayers(targets, websocket.OutgoingMessage{Event: EventEnemyAction, Data: data})
	utils.Log.Debug("relayed action", "client", from, "session", room, "recipients", len(targets))
	return nil
}

// Disconnect drops id from its waiting queue, then tells the other members
// of each of its sessions that their opponent left.
func (s *Service) Disconnect(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if p, ok := s.players[id]; ok && p.RoomCode != "" {
		err = s.repo.Remove(ctx, p.RoomCode, id)
	}

	for _, sid := range s.groups.of(id, sessionGroup) {
		s.hub.BroadcastToPlayers(s.groups.others(sid, id), websocket.OutgoingMessage{Event: EventEnemyDisconnect})
	}
	for _, name := range s.groups.leaveAll(id) {
		delete(s.sessions, name)
	}
	delete(s.players, id)
	return err
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	waiting, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Waiting:     waiting,
		Sessions:    s.groups.count(sessionGroup),
		Players:     len(s.players),
		Connections: s.hub.Count(),
	}, nil
}

// Session returns a copy of a live session.
func (s *Service) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}
