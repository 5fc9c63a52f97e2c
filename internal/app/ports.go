package app

import (
	"context"
	"time"

	"quizroom/internal/domain"
)

// QuestionSource loads the ordered question set (with options) of a quiz.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// RoomStore persists durable room rows.
type RoomStore interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	ActiveRoomForQuiz(ctx context.Context, quizID int64) (domain.Room, error)
	SetRoomHost(ctx context.Context, code, hostID string) error
	RoomInfo(ctx context.Context, code string) (domain.Room, error)
	SetRoomActive(ctx context.Context, code string, active bool) error
	MarkRoomStarted(ctx context.Context, code string, startedAt time.Time) error
	SetCurrentQuestion(ctx context.Context, code string, index int) error
}

// PlayerStore persists players and their scores.
type PlayerStore interface {
	PlayerByConnection(ctx context.Context, connID string) (domain.Player, error)
	GetOrCreatePlayer(ctx context.Context, code, name, connID string) (domain.Player, error)
	UpdatePlayerConnection(ctx context.Context, connID, code, name string) (domain.Player, error)
	ClearPlayerConnection(ctx context.Context, connID string) (domain.Player, error)
	// ListPlayers returns players sorted by score descending, then join order.
	ListPlayers(ctx context.Context, code string, activeOnly bool) ([]domain.Player, error)
	AddScore(ctx context.Context, playerID int64, points int) (int, error)
}

// AnswerStore persists individual submissions.
type AnswerStore interface {
	RecordAnswer(ctx context.Context, answer domain.Answer) error
}

// SessionStore persists finalized session snapshots.
type SessionStore interface {
	SessionExists(ctx context.Context, code string) (bool, error)
	// CreateSessionSnapshot persists the snapshot and its leaderboard
	// atomically. It returns domain.ErrSessionExists when the room already
	// has one.
	CreateSessionSnapshot(ctx context.Context, snapshot domain.SessionSnapshot) (int64, error)
}

// Store is the persistence gateway consumed by the coordinator.
type Store interface {
	RoomStore
	PlayerStore
	AnswerStore
	SessionStore
}

// Notifier is the transport boundary: room membership plus broadcast and
// point-to-point delivery. Implementations must not call back into the
// coordinator.
type Notifier interface {
	Broadcast(roomCode, event string, payload any)
	Send(connID, event string, payload any)
	Join(roomCode, connID string)
	Leave(roomCode, connID string)
	// Remove drops connID from every room and returns the codes it was in.
	Remove(connID string) []string
	Members(roomCode string) int
	Connected(connID string) bool
}

// RoomMarker publishes room liveness and guards finalization across
// processes. Optional.
type RoomMarker interface {
	MarkLive(ctx context.Context, code string) error
	Clear(ctx context.Context, code string) error
	// AcquireFinalize reports whether this process may write the room's
	// snapshot. ReleaseFinalize gives the claim back after a failed attempt.
	AcquireFinalize(ctx context.Context, code string) (bool, error)
	ReleaseFinalize(ctx context.Context, code string) error
}

type noopMarker struct{}

func (noopMarker) MarkLive(context.Context, string) error { return nil }
func (noopMarker) Clear(context.Context, string) error    { return nil }
func (noopMarker) AcquireFinalize(context.Context, string) (bool, error) {
	return true, nil
}
func (noopMarker) ReleaseFinalize(context.Context, string) error { return nil }
