package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"quizroom/internal/domain"
)

// StartQuiz moves an idle room into its pre-roll. Only the room's host may
// start it, and the durable start marker must be written first.
func (c *Coordinator) StartQuiz(ctx context.Context, connID, code string) error {
	code = normalizeCode(code)
	room, ok := c.lockRoom(code, false)
	if !ok {
		return domain.ErrRoomNotFound
	}
	defer room.mu.Unlock()

	if room.host != connID {
		return domain.ErrNotHost
	}
	if room.phase != domain.PhaseIdle {
		return domain.ErrAlreadyStarted
	}
	if len(room.questions) == 0 {
		return domain.ErrNoQuestions
	}

	if err := c.store.MarkRoomStarted(ctx, code, c.clock.Now()); err != nil {
		return fmt.Errorf("start room %s: %w", code, err)
	}

	room.cancelTimers()
	room.phase = domain.PhaseStarting
	room.index = 0
	c.notifier.Broadcast(code, domain.EventQuizStarted, domain.QuizStarted{TotalQuestions: len(room.questions)})
	c.log.Info("quiz started", "room", code, "questions", len(room.questions))

	c.schedule(room, c.timing.units(c.timing.PreRoll), func(ctx context.Context, room *liveRoom) {
		c.showLocked(ctx, room, 0)
	})
	return nil
}

// showLocked enters Showing(i), or ends the room once the questions are
// exhausted. Must hold room.mu.
func (c *Coordinator) showLocked(ctx context.Context, room *liveRoom, i int) {
	room.cancelTimers()

	if i >= len(room.questions) {
		if err := c.endLocked(ctx, room); err != nil {
			c.log.Error("end room", "room", room.code, "err", err)
		}
		return
	}

	if err := c.store.SetCurrentQuestion(ctx, room.code, i); err != nil {
		c.log.Error("set current question", "room", room.code, "index", i, "err", err)
		c.schedule(room, c.timing.Unit, func(ctx context.Context, room *liveRoom) {
			c.showLocked(ctx, room, i)
		})
		return
	}

	now := c.clock.Now()
	room.index = i
	room.phase = domain.PhaseShowing
	room.questionStart = now
	room.resetTally()

	q := room.questions[i]
	limit := q.Limit(c.timing.DefaultTimeLimit)
	c.notifier.Broadcast(room.code, domain.EventQuestionShow, domain.QuestionShow{
		Question:       q.View(limit),
		QuestionIndex:  i,
		TotalQuestions: len(room.questions),
		StartTime:      now.UnixMilli(),
		Remaining:      limit,
	})

	room.ticker = c.clock.AfterFunc(c.timing.Unit, c.fire(room.code, room.gen, c.tickLocked))
	c.schedule(room, c.timing.units(limit), c.revealLocked)
}

// tickLocked broadcasts the countdown derived from wall-clock elapsed time
// and re-arms itself on the next unit boundary. Must hold room.mu.
func (c *Coordinator) tickLocked(_ context.Context, room *liveRoom) {
	room.ticker = nil
	if room.phase != domain.PhaseShowing {
		return
	}
	q, ok := room.currentQuestion()
	if !ok {
		return
	}

	remaining, elapsed := c.remainingLocked(room, q.Limit(c.timing.DefaultTimeLimit))
	c.notifier.Broadcast(room.code, domain.EventTimerUpdate, domain.TimerUpdate{
		Remaining: remaining,
		Elapsed:   elapsed,
	})
	if remaining <= 0 {
		return
	}

	next := room.questionStart.Add(c.timing.units(elapsed + 1)).Sub(c.clock.Now())
	room.ticker = c.clock.AfterFunc(next, c.fire(room.code, room.gen, c.tickLocked))
}

// remainingLocked returns whole units left and elapsed for the current
// question. Must hold room.mu.
func (c *Coordinator) remainingLocked(room *liveRoom, limit int) (remaining, elapsed int) {
	elapsed = int(c.clock.Now().Sub(room.questionStart) / c.timing.Unit)
	return max(limit-elapsed, 0), elapsed
}

// revealLocked enters Revealing(i) and schedules the next question. Must
// hold room.mu.
func (c *Coordinator) revealLocked(_ context.Context, room *liveRoom) {
	room.cancelTimers()
	q, ok := room.currentQuestion()
	if !ok {
		return
	}
	room.phase = domain.PhaseRevealing

	correct, _ := q.CorrectOption()
	stats := lo.Map(q.Options, func(opt domain.Option, _ int) domain.OptionCount {
		return domain.OptionCount{OptionID: opt.ID, Count: room.tally[opt.ID]}
	})
	c.notifier.Broadcast(room.code, domain.EventAnswerShow, domain.AnswerShow{
		CorrectOptionID: correct.ID,
		Statistics:      stats,
	})

	next := room.index + 1
	c.schedule(room, c.timing.units(c.timing.RevealDelay), func(ctx context.Context, room *liveRoom) {
		c.showLocked(ctx, room, next)
	})
}

// sendQuestionLocked delivers the in-progress question to one connection,
// with the time limit reduced to what is left. Must hold room.mu.
func (c *Coordinator) sendQuestionLocked(room *liveRoom, connID string, lateJoiner bool) {
	if room.phase != domain.PhaseShowing {
		return
	}
	q, ok := room.currentQuestion()
	if !ok {
		return
	}
	remaining, _ := c.remainingLocked(room, q.Limit(c.timing.DefaultTimeLimit))
	c.notifier.Send(connID, domain.EventQuestionShow, domain.QuestionShow{
		Question:       q.View(remaining),
		QuestionIndex:  room.index,
		TotalQuestions: len(room.questions),
		StartTime:      c.clock.Now().UnixMilli(),
		Remaining:      remaining,
		LateJoiner:     lateJoiner,
	})
}

// EndRoom is the single end path for natural exhaustion, host leave and host
// disconnect. It is safe to call repeatedly: the live room broadcasts
// quiz:ended once, and the snapshot is guarded by an existence check.
func (c *Coordinator) EndRoom(ctx context.Context, code string) error {
	code = normalizeCode(code)
	room, ok := c.lockRoom(code, false)
	if !ok {
		_, err := c.finalize(ctx, code)
		return err
	}
	defer room.mu.Unlock()
	return c.endLocked(ctx, room)
}

// endLocked finalizes the room, broadcasts the final leaderboard and tears the
// live state down. When finalizing fails nothing is broadcast and another
// attempt is scheduled one unit later. Must hold room.mu.
func (c *Coordinator) endLocked(ctx context.Context, room *liveRoom) error {
	room.cancelTimers()
	leaderboard, err := c.finalize(ctx, room.code)
	if err != nil {
		room.ending = true
		c.schedule(room, c.timing.Unit, func(ctx context.Context, room *liveRoom) {
			if err := c.endLocked(ctx, room); err != nil {
				c.log.Error("end room retry", "room", room.code, "err", err)
			}
		})
		return err
	}
	room.phase = domain.PhaseEnded
	c.notifier.Broadcast(room.code, domain.EventQuizEnded, domain.QuizEnded{Leaderboard: leaderboard})
	c.log.Info("quiz ended", "room", room.code, "players", len(leaderboard))
	c.teardownLocked(ctx, room)
	return nil
}

// finalize marks the room inactive, ranks its players and writes the session
// snapshot at most once.
func (c *Coordinator) finalize(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	if err := c.store.SetRoomActive(ctx, code, false); err != nil {
		return nil, fmt.Errorf("deactivate room %s: %w", code, err)
	}
	players, err := c.store.ListPlayers(ctx, code, false)
	if err != nil {
		return nil, fmt.Errorf("list players %s: %w", code, err)
	}
	leaderboard := domain.RankLeaderboard(players)

	info, err := c.store.RoomInfo(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("room info %s: %w", code, err)
	}
	if !info.Started() {
		return leaderboard, nil
	}

	snapshot := domain.SessionSnapshot{
		RoomCode:    code,
		QuizID:      info.QuizID,
		HostID:      info.HostID,
		PlayerCount: len(players),
		StartedAt:   *info.StartedAt,
		EndedAt:     c.clock.Now(),
		Leaderboard: leaderboard,
	}
	if err := c.persistSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	return leaderboard, nil
}

func (c *Coordinator) persistSnapshot(ctx context.Context, snapshot domain.SessionSnapshot) (err error) {
	code := snapshot.RoomCode
	acquired, err := c.marker.AcquireFinalize(ctx, code)
	if err != nil {
		return fmt.Errorf("acquire finalize %s: %w", code, err)
	}
	if !acquired {
		c.log.Debug("snapshot claimed elsewhere", "room", code)
		return nil
	}
	defer func() {
		if err == nil {
			return
		}
		if releaseErr := c.marker.ReleaseFinalize(ctx, code); releaseErr != nil {
			c.log.Warn("release finalize", "room", code, "err", releaseErr)
		}
	}()

	exists, err := c.store.SessionExists(ctx, code)
	if err != nil {
		return fmt.Errorf("check session %s: %w", code, err)
	}
	if exists {
		c.log.Debug("snapshot already persisted", "room", code)
		return nil
	}

	sessionID, err := c.store.CreateSessionSnapshot(ctx, snapshot)
	if errors.Is(err, domain.ErrSessionExists) {
		c.log.Debug("snapshot raced with another end path", "room", code)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create session %s: %w", code, err)
	}
	c.log.Info("session snapshot persisted", "room", code, "session", sessionID)
	return nil
}
