package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room code is unknown.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomClosed is returned when a room already ended.
	ErrRoomClosed = errors.New("room has already ended")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions is returned when starting a quiz without questions.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrDuplicateName is returned when a connected player already uses the display name.
	ErrDuplicateName = errors.New("a player with this name is already in the room")
	// ErrInvalidName is returned for empty or oversized display names.
	ErrInvalidName = errors.New("invalid player name")
	// ErrPlayerNotFound is returned when a connection acts before joining.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrNotHost is returned when a non-host connection issues a host command.
	ErrNotHost = errors.New("only the host can do that")
	// ErrHostUnavailable is returned when a late join needs approval but no host is connected.
	ErrHostUnavailable = errors.New("host is not connected")
	// ErrAlreadyStarted is returned when quiz:start arrives outside the idle phase.
	ErrAlreadyStarted = errors.New("quiz already started")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrQuestionClosed is returned for answers outside the question's window.
	ErrQuestionClosed = errors.New("question is not accepting answers")
	// ErrAlreadyAnswered is returned for a second submission to the same question.
	ErrAlreadyAnswered = errors.New("answer already submitted for this question")
	// ErrJoinRequestNotFound is returned when approving an unknown or settled request.
	ErrJoinRequestNotFound = errors.New("join request not found")
	// ErrRoleConflict is returned when a connection tries to join as both host and player.
	ErrRoleConflict = errors.New("this connection already joined with a different role")
	// ErrSessionExists is returned when a room already has a session snapshot.
	ErrSessionExists = errors.New("session snapshot already exists")
)

var public = []error{
	ErrRoomNotFound,
	ErrRoomClosed,
	ErrQuizNotFound,
	ErrNoQuestions,
	ErrDuplicateName,
	ErrInvalidName,
	ErrPlayerNotFound,
	ErrNotHost,
	ErrHostUnavailable,
	ErrAlreadyStarted,
	ErrQuestionNotFound,
	ErrOptionNotFound,
	ErrQuestionClosed,
	ErrAlreadyAnswered,
	ErrJoinRequestNotFound,
	ErrRoleConflict,
}

// GenericMessage is what clients see for infrastructure failures.
const GenericMessage = "something went wrong, please try again"

// PublicMessage maps err to a message safe to send to a client.
func PublicMessage(err error) string {
	for _, target := range public {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return GenericMessage
}
