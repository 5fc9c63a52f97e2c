package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quizroom/internal/clock"
	"quizroom/internal/domain"
)

// Timing holds the pacing of the question driver. Counts are in units.
type Timing struct {
	Unit             time.Duration
	PreRoll          int
	RevealDelay      int
	DefaultTimeLimit int
}

// DefaultTiming matches the live client: one-second units, a two second
// pre-roll and a three second reveal pause.
var DefaultTiming = Timing{
	Unit:             time.Second,
	PreRoll:          2,
	RevealDelay:      3,
	DefaultTimeLimit: 30,
}

func (t Timing) units(n int) time.Duration {
	return time.Duration(n) * t.Unit
}

// Coordinator is the room/session coordinator. All mutations of one room run
// under that room's lock; storage calls happen inside it so handlers for the
// same room never interleave.
type Coordinator struct {
	store     Store
	questions QuestionSource
	notifier  Notifier
	marker    RoomMarker
	clock     clock.Clock
	log       *slog.Logger
	timing    Timing
	rooms     *Registry
	newCode   func() string
	newID     func() string
}

// Option customises a Coordinator.
type Option func(*Coordinator)

func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.log = l }
}

func WithMarker(m RoomMarker) Option {
	return func(co *Coordinator) { co.marker = m }
}

func WithTiming(t Timing) Option {
	return func(co *Coordinator) { co.timing = t }
}

// WithCodeGenerator replaces the random room code generator.
func WithCodeGenerator(f func() string) Option {
	return func(co *Coordinator) { co.newCode = f }
}

// WithIDGenerator replaces the join request id generator.
func WithIDGenerator(f func() string) Option {
	return func(co *Coordinator) { co.newID = f }
}

func New(store Store, questions QuestionSource, notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		questions: questions,
		notifier:  notifier,
		marker:    noopMarker{},
		clock:     clock.Real(),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		timing:    DefaultTiming,
		rooms:     NewRegistry(),
		newCode:   roomCodes,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timing.Unit <= 0 {
		c.timing.Unit = DefaultTiming.Unit
	}
	if c.timing.DefaultTimeLimit <= 0 {
		c.timing.DefaultTimeLimit = DefaultTiming.DefaultTimeLimit
	}
	return c
}

// ActiveRooms returns the number of rooms with live state in this process.
func (c *Coordinator) ActiveRooms() int {
	return c.rooms.Len()
}

// lockRoom returns the live room for code with its lock held. With create
// set, a missing or just-closed room is replaced by a fresh one.
func (c *Coordinator) lockRoom(code string, create bool) (*liveRoom, bool) {
	for {
		var room *liveRoom
		if create {
			room = c.rooms.ensure(code)
		} else {
			var ok bool
			if room, ok = c.rooms.get(code); !ok {
				return nil, false
			}
		}
		room.mu.Lock()
		if !room.closed {
			return room, true
		}
		room.mu.Unlock()
		if !create {
			return nil, false
		}
	}
}

// schedule replaces the room's pending transition. Must hold room.mu.
func (c *Coordinator) schedule(room *liveRoom, d time.Duration, fn func(context.Context, *liveRoom)) {
	if room.transition != nil {
		room.transition.Stop()
	}
	room.transition = c.clock.AfterFunc(d, c.fire(room.code, room.gen, fn))
}

// fire wraps a timer callback so it runs under the room lock and no-ops
// when the room was torn down or its timers were reset meanwhile.
func (c *Coordinator) fire(code string, gen uint64, fn func(context.Context, *liveRoom)) func() {
	return func() {
		room, ok := c.lockRoom(code, false)
		if !ok {
			c.log.Debug("timer fired for torn down room", "room", code)
			return
		}
		defer room.mu.Unlock()
		if room.gen != gen {
			c.log.Debug("stale timer dropped", "room", code)
			return
		}
		fn(context.Background(), room)
	}
}

// teardownLocked releases the room's live state. Must hold room.mu.
func (c *Coordinator) teardownLocked(ctx context.Context, room *liveRoom) {
	room.cancelTimers()
	room.closed = true
	room.phase = domain.PhaseEnded
	room.questions = nil
	room.pending = nil
	room.tally = nil
	room.answered = nil
	room.host = ""
	for _, connID := range c.rooms.remove(room.code, room) {
		c.notifier.Leave(room.code, connID)
	}
	if err := c.marker.Clear(ctx, room.code); err != nil {
		c.log.Warn("clear room marker", "room", room.code, "err", err)
	}
	c.log.Info("room torn down", "room", room.code)
}

// releaseIfUnused tears down a live room that nothing holds on to. Must hold
// room.mu.
func (c *Coordinator) releaseIfUnused(ctx context.Context, room *liveRoom) {
	if room.host != "" || room.phase != domain.PhaseIdle || len(room.pending) > 0 {
		return
	}
	if c.notifier.Members(room.code) > 0 {
		return
	}
	c.teardownLocked(ctx, room)
}
