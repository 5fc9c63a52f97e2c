package domain

// Inbound event names.
const (
	EventHostJoin     = "host:join"
	EventPlayerJoin   = "player:join"
	EventJoinResponse = "player:join:response"
	EventQuizStart    = "quiz:start"
	EventAnswerSubmit = "answer:submit"
	EventHostLeave    = "host:leave"
	EventPlayerLeave  = "player:leave"
)

// Outbound event names.
const (
	EventHostJoined        = "host:joined"
	EventPlayersList       = "players:list"
	EventPlayerJoined      = "player:joined"
	EventPlayerLeft        = "player:left"
	EventJoinPending       = "player:join:pending"
	EventJoinRequest       = "player:join:request"
	EventJoinApproved      = "player:join:approved"
	EventJoinDenied        = "player:join:denied"
	EventQuizStarted       = "quiz:started"
	EventQuestionShow      = "question:show"
	EventTimerUpdate       = "timer:update"
	EventAnswerShow        = "answer:show"
	EventAnswerResult      = "answer:result"
	EventLeaderboardUpdate = "leaderboard:update"
	EventQuizEnded         = "quiz:ended"
	EventError             = "error"
)

// RoomRef is the payload of host:join, quiz:start, host:leave and player:leave.
type RoomRef struct {
	RoomCode string `json:"roomCode" validate:"required,max=32"`
}

// PlayerJoinRequest is the payload of player:join.
type PlayerJoinRequest struct {
	RoomCode   string `json:"roomCode" validate:"required,max=32"`
	PlayerName string `json:"playerName" validate:"required,max=50"`
}

// JoinResponse is the host's answer to a pending join request.
type JoinResponse struct {
	RequestID string `json:"requestId" validate:"required"`
	Approved  bool   `json:"approved"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	RoomCode   string `json:"roomCode" validate:"required,max=32"`
	QuestionID int64  `json:"questionId" validate:"required"`
	OptionID   int64  `json:"optionId" validate:"required"`
	TimeTaken  int    `json:"timeTaken"`
}

// HostJoined acknowledges host registration.
type HostJoined struct {
	RoomCode string `json:"roomCode"`
}

// PlayerJoined announces a newly admitted player.
type PlayerJoined struct {
	Player Player `json:"player"`
}

// PlayerLeft announces a dropped player connection.
type PlayerLeft struct {
	ConnectionID string `json:"connectionId"`
}

// Notice carries a human readable message (pending, approved, denied, error).
type Notice struct {
	Message string `json:"message"`
}

// JoinRequestNotice is sent to the host for a pending late join.
type JoinRequestNotice struct {
	RequestID  string `json:"requestId"`
	PlayerName string `json:"playerName"`
	RoomCode   string `json:"roomCode"`
}

// QuizStarted is broadcast on quiz:start and sent to late joiners.
type QuizStarted struct {
	TotalQuestions int  `json:"totalQuestions"`
	LateJoiner     bool `json:"lateJoiner,omitempty"`
}

// OptionView is an option as shown to clients, without its correctness flag.
type OptionView struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	Color      string `json:"color,omitempty"`
	OrderIndex int    `json:"orderIndex"`
}

// QuestionView is a question as shown to clients.
type QuestionView struct {
	ID        int64        `json:"id"`
	Text      string       `json:"text"`
	Options   []OptionView `json:"options"`
	TimeLimit int          `json:"timeLimit"`
	Image     string       `json:"image,omitempty"`
}

// QuestionShow is the question:show payload. StartTime is in Unix milliseconds.
type QuestionShow struct {
	Question       QuestionView `json:"question"`
	QuestionIndex  int          `json:"questionIndex"`
	TotalQuestions int          `json:"totalQuestions"`
	StartTime      int64        `json:"startTime"`
	Remaining      int          `json:"remaining"`
	LateJoiner     bool         `json:"lateJoiner,omitempty"`
}

// TimerUpdate is the periodic countdown broadcast.
type TimerUpdate struct {
	Remaining int `json:"remaining"`
	Elapsed   int `json:"elapsed"`
}

// OptionCount is one tally line of answer:show.
type OptionCount struct {
	OptionID int64 `json:"optionId"`
	Count    int   `json:"count"`
}

// AnswerShow reveals the correct option and the tally.
type AnswerShow struct {
	CorrectOptionID int64         `json:"correctOptionId"`
	Statistics      []OptionCount `json:"statistics"`
}

// AnswerResult is sent to the submitter only.
type AnswerResult struct {
	IsCorrect       bool  `json:"isCorrect"`
	CorrectOptionID int64 `json:"correctOptionId"`
}

// QuizEnded carries the final ranked leaderboard.
type QuizEnded struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// View strips correctness flags and applies the effective time limit.
func (q Question) View(timeLimit int) QuestionView {
	options := make([]OptionView, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, OptionView{
			ID:         opt.ID,
			Text:       opt.Text,
			Color:      opt.Color,
			OrderIndex: opt.OrderIndex,
		})
	}
	return QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		Options:   options,
		TimeLimit: timeLimit,
		Image:     q.Image,
	}
}
