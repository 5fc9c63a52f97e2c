package app

import (
	"sync"
	"time"

	"quizroom/internal/clock"
	"quizroom/internal/domain"
)

type role int

const (
	roleHost role = iota + 1
	rolePlayer
)

// connRef records what a transport connection is inside the coordinator.
type connRef struct {
	roomCode string
	role     role
	playerID int64
}

type joinRequest struct {
	id          string
	connID      string
	name        string
	requestedAt time.Time
}

// liveRoom is the memory-only state of one room. Every field is guarded by mu.
type liveRoom struct {
	mu sync.Mutex

	code      string
	quizID    int64
	questions []domain.Question
	host      string

	phase         domain.Phase
	index         int
	questionStart time.Time
	tally         map[int64]int
	answered      map[int64]struct{}
	pending       map[string]joinRequest

	// transition is the single scheduled state change; ticker drives
	// timer:update while a question is showing.
	transition clock.Timer
	ticker     clock.Timer
	// gen is bumped whenever timers are cancelled so callbacks that already
	// fired but wait on mu can tell they are stale.
	gen uint64

	// ending is set once an end attempt failed and a retry is scheduled.
	ending bool
	closed bool
}

func newLiveRoom(code string) *liveRoom {
	return &liveRoom{
		code:     code,
		phase:    domain.PhaseIdle,
		tally:    make(map[int64]int),
		answered: make(map[int64]struct{}),
		pending:  make(map[string]joinRequest),
	}
}

func (r *liveRoom) cancelTimers() {
	if r.transition != nil {
		r.transition.Stop()
		r.transition = nil
	}
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	r.gen++
}

func (r *liveRoom) currentQuestion() (domain.Question, bool) {
	if r.index < 0 || r.index >= len(r.questions) {
		return domain.Question{}, false
	}
	return r.questions[r.index], true
}

func (r *liveRoom) resetTally() {
	r.tally = make(map[int64]int)
	r.answered = make(map[int64]struct{})
}

// Registry maps room codes to live state and connections to their role.
// Lock order: a room's mu may be held while taking Registry.mu, never the
// other way around.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*liveRoom
	conns map[string]connRef
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*liveRoom),
		conns: make(map[string]connRef),
	}
}

func (g *Registry) ensure(code string) *liveRoom {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[code]; ok {
		return room
	}
	room := newLiveRoom(code)
	g.rooms[code] = room
	return room
}

func (g *Registry) get(code string) (*liveRoom, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[code]
	return room, ok
}

// remove drops code only if it still maps to room, along with every
// connection bound to it. The unbound connection ids are returned.
func (g *Registry) remove(code string, room *liveRoom) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.rooms[code]; ok && current == room {
		delete(g.rooms, code)
	}
	var unbound []string
	for connID, ref := range g.conns {
		if ref.roomCode == code {
			delete(g.conns, connID)
			unbound = append(unbound, connID)
		}
	}
	return unbound
}

func (g *Registry) all() []*liveRoom {
	g.mu.Lock()
	defer g.mu.Unlock()
	rooms := make([]*liveRoom, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (g *Registry) bind(connID string, ref connRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[connID] = ref
}

func (g *Registry) lookup(connID string) (connRef, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.conns[connID]
	return ref, ok
}

func (g *Registry) unbind(connID string) (connRef, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.conns[connID]
	delete(g.conns, connID)
	return ref, ok
}

// Len returns the number of rooms with live state.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
