package app

import (
	"context"
	"fmt"

	"quizroom/internal/domain"
)

// AnswerOutcome describes how a submission was scored.
type AnswerOutcome struct {
	Correct         bool
	CorrectOptionID int64
	Awarded         int
	Total           int
}

// SubmitAnswer records the first answer of a player to the showing question.
// Unknown ids, closed questions and repeated submissions are rejected without
// touching the tally or storage.
func (c *Coordinator) SubmitAnswer(ctx context.Context, connID string, sub domain.AnswerSubmission) (AnswerOutcome, error) {
	code := normalizeCode(sub.RoomCode)
	ref, ok := c.rooms.lookup(connID)
	if !ok || ref.role != rolePlayer || ref.roomCode != code {
		return AnswerOutcome{}, domain.ErrPlayerNotFound
	}
	room, ok := c.lockRoom(code, false)
	if !ok {
		return AnswerOutcome{}, domain.ErrRoomNotFound
	}
	defer room.mu.Unlock()

	question, ok := findQuestion(room.questions, sub.QuestionID)
	if !ok {
		return AnswerOutcome{}, domain.ErrQuestionNotFound
	}
	option, ok := question.Option(sub.OptionID)
	if !ok {
		return AnswerOutcome{}, domain.ErrOptionNotFound
	}
	current, ok := room.currentQuestion()
	if !ok || room.phase != domain.PhaseShowing || current.ID != question.ID {
		return AnswerOutcome{}, domain.ErrQuestionClosed
	}
	if _, done := room.answered[ref.playerID]; done {
		return AnswerOutcome{}, domain.ErrAlreadyAnswered
	}

	timeTaken := max(sub.TimeTaken, 0)
	if err := c.store.RecordAnswer(ctx, domain.Answer{
		RoomCode:   code,
		QuestionID: question.ID,
		PlayerID:   ref.playerID,
		OptionID:   option.ID,
		Correct:    option.IsCorrect,
		TimeTaken:  timeTaken,
		AnsweredAt: c.clock.Now(),
	}); err != nil {
		return AnswerOutcome{}, fmt.Errorf("record answer: %w", err)
	}
	room.answered[ref.playerID] = struct{}{}
	room.tally[option.ID]++

	correctOption, _ := question.CorrectOption()
	outcome := AnswerOutcome{Correct: option.IsCorrect, CorrectOptionID: correctOption.ID}
	c.notifier.Send(connID, domain.EventAnswerResult, domain.AnswerResult{
		IsCorrect:       outcome.Correct,
		CorrectOptionID: outcome.CorrectOptionID,
	})
	if !option.IsCorrect {
		return outcome, nil
	}

	outcome.Awarded = domain.Points(true, timeTaken)
	total, err := c.store.AddScore(ctx, ref.playerID, outcome.Awarded)
	if err != nil {
		return outcome, fmt.Errorf("add score: %w", err)
	}
	outcome.Total = total
	c.log.Debug("answer scored", "room", code, "player", ref.playerID, "points", outcome.Awarded, "total", total)

	standings, err := c.store.ListPlayers(ctx, code, false)
	if err != nil {
		return outcome, fmt.Errorf("list players %s: %w", code, err)
	}
	c.notifier.Broadcast(code, domain.EventLeaderboardUpdate, standings)
	return outcome, nil
}

func findQuestion(questions []domain.Question, id int64) (domain.Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}
