package memory

import (
	"context"
	"sync"
	"time"

	"quizroom/internal/domain"
)

// Store is an in-memory persistence gateway for rooms, players, answers and
// session snapshots. It backs the demo mode and the coordinator tests.
type Store struct {
	mu         sync.RWMutex
	rooms      map[string]domain.Room
	players    map[int64]domain.Player
	answers    []domain.Answer
	sessions   map[string]domain.SessionSnapshot
	nextPlayer int64
	nextSess   int64
}

func NewStore() *Store {
	return &Store{
		rooms:    make(map[string]domain.Room),
		players:  make(map[int64]domain.Player),
		sessions: make(map[string]domain.SessionSnapshot),
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.Code] = room
	return nil
}

func (s *Store) ActiveRoomForQuiz(_ context.Context, quizID int64) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found  domain.Room
		exists bool
	)
	for _, room := range s.rooms {
		if room.QuizID != quizID || !room.Active {
			continue
		}
		if !exists || room.CreatedAt.After(found.CreatedAt) {
			found, exists = room, true
		}
	}
	if !exists {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return found, nil
}

func (s *Store) SetRoomHost(_ context.Context, code, hostID string) error {
	return s.updateRoom(code, func(room *domain.Room) { room.HostID = hostID })
}

func (s *Store) RoomInfo(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) SetRoomActive(_ context.Context, code string, active bool) error {
	return s.updateRoom(code, func(room *domain.Room) { room.Active = active })
}

func (s *Store) MarkRoomStarted(_ context.Context, code string, startedAt time.Time) error {
	return s.updateRoom(code, func(room *domain.Room) {
		room.Active = true
		room.CurrentQuestion = 0
		room.StartedAt = &startedAt
	})
}

func (s *Store) SetCurrentQuestion(_ context.Context, code string, index int) error {
	return s.updateRoom(code, func(room *domain.Room) { room.CurrentQuestion = index })
}

func (s *Store) updateRoom(code string, fn func(*domain.Room)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	fn(&room)
	s.rooms[code] = room
	return nil
}

func (s *Store) PlayerByConnection(_ context.Context, connID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byConnectionLocked(connID); ok {
		return p, nil
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

// GetOrCreatePlayer reactivates a disconnected player of the room with the
// same name, or creates a new one.
func (s *Store) GetOrCreatePlayer(_ context.Context, code, name, connID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.players {
		if p.RoomCode == code && p.Name == name && !p.Connected() {
			p.ConnectionID = connID
			s.players[id] = p
			return p, nil
		}
	}
	s.nextPlayer++
	p := domain.Player{
		ID:           s.nextPlayer,
		RoomCode:     code,
		Name:         name,
		ConnectionID: connID,
		JoinedAt:     time.Now(),
	}
	s.players[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePlayerConnection(_ context.Context, connID, code, name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byConnectionLocked(connID)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if code != "" {
		p.RoomCode = code
	}
	if name != "" {
		p.Name = name
	}
	s.players[p.ID] = p
	return p, nil
}

func (s *Store) ClearPlayerConnection(_ context.Context, connID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byConnectionLocked(connID)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	p.ConnectionID = ""
	s.players[p.ID] = p
	return p, nil
}

func (s *Store) ListPlayers(_ context.Context, code string, activeOnly bool) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]domain.Player, 0)
	for _, p := range s.players {
		if p.RoomCode != code || (activeOnly && !p.Connected()) {
			continue
		}
		players = append(players, p)
	}
	domain.SortStandings(players)
	return players, nil
}

func (s *Store) AddScore(_ context.Context, playerID int64, points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	p.Score += points
	s.players[playerID] = p
	return p.Score, nil
}

func (s *Store) byConnectionLocked(connID string) (domain.Player, bool) {
	for _, p := range s.players {
		if p.ConnectionID == connID {
			return p, true
		}
	}
	return domain.Player{}, false
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answer)
	return nil
}

func (s *Store) SessionExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[code]
	return ok, nil
}

// CreateSessionSnapshot stores the snapshot together with its leaderboard.
func (s *Store) CreateSessionSnapshot(_ context.Context, snapshot domain.SessionSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[snapshot.RoomCode]; ok {
		return 0, domain.ErrSessionExists
	}
	s.nextSess++
	snapshot.ID = s.nextSess
	snapshot.Leaderboard = append([]domain.LeaderboardEntry(nil), snapshot.Leaderboard...)
	s.sessions[snapshot.RoomCode] = snapshot
	return snapshot.ID, nil
}

// Answers returns a copy of every recorded answer.
func (s *Store) Answers() []domain.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers...)
}

// Sessions returns every persisted snapshot.
func (s *Store) Sessions() []domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionSnapshot, 0, len(s.sessions))
	for _, snapshot := range s.sessions {
		out = append(out, snapshot)
	}
	return out
}
