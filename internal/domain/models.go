package domain

import "time"

// Phase is the position of a room in its question sequence.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting" // pre-roll between quiz:start and the first question
	PhaseShowing   Phase = "showing"
	PhaseRevealing Phase = "revealing"
	PhaseEnded     Phase = "ended"
)

// InProgress reports whether players must be admitted by the host.
func (p Phase) InProgress() bool {
	return p == PhaseStarting || p == PhaseShowing || p == PhaseRevealing
}

// Option represents a possible answer for a question.
type Option struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	Color      string `json:"color,omitempty"`
	OrderIndex int    `json:"orderIndex"`
}

// Question models an MCQ question. TimeLimit is expressed in countdown units.
type Question struct {
	ID         int64    `json:"id"`
	QuizID     int64    `json:"quizId"`
	Text       string   `json:"text"`
	TimeLimit  int      `json:"timeLimit"`
	Image      string   `json:"image,omitempty"`
	OrderIndex int      `json:"orderIndex"`
	Options    []Option `json:"options"`
}

// Option looks up one of the question's options by id.
func (q Question) Option(id int64) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// CorrectOption returns the first option flagged as correct.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt, true
		}
	}
	return Option{}, false
}

// Limit returns the question's time limit, or fallback when unset.
func (q Question) Limit(fallback int) int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return fallback
}

// Room is the durable record of one quiz session.
type Room struct {
	Code            string     `json:"id"`
	QuizID          int64      `json:"quiz_id"`
	HostID          string     `json:"host_id"`
	Active          bool       `json:"is_active"`
	CurrentQuestion int        `json:"current_question"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Started reports whether quiz:start was ever accepted for the room.
func (r Room) Started() bool {
	return r.StartedAt != nil && !r.StartedAt.IsZero()
}

// Player is a participant of a room. An empty ConnectionID means the player
// disconnected; the record is kept for scoring history.
type Player struct {
	ID           int64     `json:"id"`
	RoomCode     string    `json:"-"`
	Name         string    `json:"player_name"`
	ConnectionID string    `json:"-"`
	Score        int       `json:"score"`
	JoinedAt     time.Time `json:"-"`
}

// Connected reports whether the player currently holds a connection.
func (p Player) Connected() bool {
	return p.ConnectionID != ""
}

// Answer is one persisted submission.
type Answer struct {
	RoomCode   string
	QuestionID int64
	PlayerID   int64
	OptionID   int64
	Correct    bool
	TimeTaken  int
	AnsweredAt time.Time
}

// LeaderboardEntry is one ranked line of a final leaderboard.
type LeaderboardEntry struct {
	PlayerID   int64  `json:"id"`
	PlayerName string `json:"player_name"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
}

// SessionSnapshot is the immutable outcome of a completed room.
type SessionSnapshot struct {
	ID          int64
	RoomCode    string
	QuizID      int64
	HostID      string
	PlayerCount int
	StartedAt   time.Time
	EndedAt     time.Time
	Leaderboard []LeaderboardEntry
}
