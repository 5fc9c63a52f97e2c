package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quizroom/internal/clock"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
)

const testRoom = "ABC123"

type recorded struct {
	broadcast bool
	target    string
	event     string
	payload   any
}

// recordingNotifier keeps room membership like the websocket hub and records
// every outbound event.
type recordingNotifier struct {
	mu        sync.Mutex
	rooms     map[string]map[string]struct{}
	connected map[string]bool
	events    []recorded
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		rooms:     make(map[string]map[string]struct{}),
		connected: make(map[string]bool),
	}
}

func (n *recordingNotifier) connect(connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected[connID] = true
}

func (n *recordingNotifier) Broadcast(roomCode, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recorded{broadcast: true, target: roomCode, event: event, payload: payload})
}

func (n *recordingNotifier) Send(connID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recorded{target: connID, event: event, payload: payload})
}

func (n *recordingNotifier) Join(roomCode, connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rooms[roomCode] == nil {
		n.rooms[roomCode] = make(map[string]struct{})
	}
	n.rooms[roomCode][connID] = struct{}{}
}

func (n *recordingNotifier) Leave(roomCode, connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.rooms[roomCode], connID)
}

func (n *recordingNotifier) Remove(connID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.connected, connID)
	var codes []string
	for code, members := range n.rooms {
		if _, ok := members[connID]; ok {
			delete(members, connID)
			codes = append(codes, code)
		}
	}
	return codes
}

func (n *recordingNotifier) Members(roomCode string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.rooms[roomCode])
}

func (n *recordingNotifier) Connected(connID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected[connID]
}

// all returns events of the given name, broadcast or direct.
func (n *recordingNotifier) all(event string) []recorded {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recorded
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) sentTo(connID, event string) []recorded {
	var out []recorded
	for _, e := range n.all(event) {
		if !e.broadcast && e.target == connID {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) last(event string) (recorded, bool) {
	events := n.all(event)
	if len(events) == 0 {
		return recorded{}, false
	}
	return events[len(events)-1], true
}

// firstIndex returns the position of the first event named event, or -1.
func (n *recordingNotifier) firstIndex(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.events {
		if e.event == event {
			return i
		}
	}
	return -1
}

var errStorageDown = errors.New("storage unavailable")

// flakyStore fails selected operations while the matching counter is positive.
type flakyStore struct {
	*memory.Store
	mu            sync.Mutex
	failStart     int
	failCurrent   int
	failSnapshots int
}

func (s *flakyStore) take(counter *int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

func (s *flakyStore) MarkRoomStarted(ctx context.Context, code string, at time.Time) error {
	if s.take(&s.failStart) {
		return errStorageDown
	}
	return s.Store.MarkRoomStarted(ctx, code, at)
}

func (s *flakyStore) SetCurrentQuestion(ctx context.Context, code string, index int) error {
	if s.take(&s.failCurrent) {
		return errStorageDown
	}
	return s.Store.SetCurrentQuestion(ctx, code, index)
}

func (s *flakyStore) CreateSessionSnapshot(ctx context.Context, snapshot domain.SessionSnapshot) (int64, error) {
	if s.take(&s.failSnapshots) {
		return 0, errStorageDown
	}
	return s.Store.CreateSessionSnapshot(ctx, snapshot)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	co       *Coordinator
	store    *flakyStore
	clock    *clock.Mock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, questions []domain.Question) *harness {
	t.Helper()
	store := &flakyStore{Store: memory.NewStore()}
	if err := store.CreateRoom(context.Background(), domain.Room{Code: testRoom, QuizID: 1, HostID: "user-1", Active: true}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	manual := clock.NewMock(time.Unix(1_700_000_000, 0), time.Second)
	notifier := newRecordingNotifier()
	requests := 0
	co := New(store, memory.NewStaticQuestions(map[int64][]domain.Question{1: questions}), notifier,
		WithClock(manual),
		WithIDGenerator(func() string {
			requests++
			return fmt.Sprintf("req-%d", requests)
		}),
	)
	return &harness{t: t, ctx: context.Background(), co: co, store: store, clock: manual, notifier: notifier}
}

func (h *harness) host(connID string) {
	h.t.Helper()
	h.notifier.connect(connID)
	if _, err := h.co.HostJoin(h.ctx, connID, testRoom); err != nil {
		h.t.Fatalf("host join: %v", err)
	}
}

func (h *harness) join(connID, name string) error {
	h.notifier.connect(connID)
	return h.co.PlayerJoin(h.ctx, connID, domain.PlayerJoinRequest{RoomCode: testRoom, PlayerName: name})
}

func (h *harness) mustJoin(connID, name string) {
	h.t.Helper()
	if err := h.join(connID, name); err != nil {
		h.t.Fatalf("join %s: %v", name, err)
	}
}

func (h *harness) start(hostConn string) {
	h.t.Helper()
	if err := h.co.StartQuiz(h.ctx, hostConn, testRoom); err != nil {
		h.t.Fatalf("start quiz: %v", err)
	}
}

func (h *harness) submit(connID string, questionID, optionID int64, timeTaken int) (AnswerOutcome, error) {
	return h.co.SubmitAnswer(h.ctx, connID, domain.AnswerSubmission{
		RoomCode:   testRoom,
		QuestionID: questionID,
		OptionID:   optionID,
		TimeTaken:  timeTaken,
	})
}

func twoQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:        10,
			QuizID:    1,
			Text:      "What is 2 + 2?",
			TimeLimit: 30,
			Options: []domain.Option{
				{ID: 1, Text: "4", IsCorrect: true},
				{ID: 2, Text: "5"},
			},
		},
		{
			ID:         11,
			QuizID:     1,
			Text:       "Capital of France?",
			TimeLimit:  20,
			OrderIndex: 1,
			Options: []domain.Option{
				{ID: 3, Text: "Lyon"},
				{ID: 4, Text: "Paris", IsCorrect: true},
			},
		},
	}
}
