package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"

	"quizroom/internal/domain"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

var roomCodes = mustCodeGenerator()

func mustCodeGenerator() func() string {
	gen, err := nanoid.CustomASCII(codeAlphabet, codeLength)
	if err != nil {
		panic(err)
	}
	return gen
}

// CreateRoom opens a room for quizID, reusing the quiz's active room when one
// exists.
func (c *Coordinator) CreateRoom(ctx context.Context, quizID int64, hostID string) (domain.Room, error) {
	questions, err := c.questions.LoadQuestions(ctx, quizID)
	if err != nil {
		return domain.Room{}, err
	}
	if len(questions) == 0 {
		return domain.Room{}, domain.ErrNoQuestions
	}

	existing, err := c.store.ActiveRoomForQuiz(ctx, quizID)
	switch {
	case err == nil:
		if existing.HostID != hostID {
			if err := c.store.SetRoomHost(ctx, existing.Code, hostID); err != nil {
				return domain.Room{}, fmt.Errorf("rebind room host: %w", err)
			}
			existing.HostID = hostID
		}
		c.log.Info("room reused", "room", existing.Code, "quiz", quizID)
		return existing, nil
	case !errors.Is(err, domain.ErrRoomNotFound):
		return domain.Room{}, fmt.Errorf("active room for quiz %d: %w", quizID, err)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := c.newCode()
		_, err := c.store.RoomInfo(ctx, code)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			return domain.Room{}, fmt.Errorf("check room code: %w", err)
		}

		room := domain.Room{
			Code:      code,
			QuizID:    quizID,
			HostID:    hostID,
			Active:    true,
			CreatedAt: c.clock.Now(),
		}
		if err := c.store.CreateRoom(ctx, room); err != nil {
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}
		c.log.Info("room created", "room", code, "quiz", quizID)
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

// RoomDetails returns the durable room and its players ordered by score.
func (c *Coordinator) RoomDetails(ctx context.Context, code string) (domain.Room, []domain.Player, error) {
	code = normalizeCode(code)
	room, err := c.store.RoomInfo(ctx, code)
	if err != nil {
		return domain.Room{}, nil, err
	}
	players, err := c.store.ListPlayers(ctx, code, false)
	if err != nil {
		return domain.Room{}, nil, fmt.Errorf("list players %s: %w", code, err)
	}
	return room, players, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
