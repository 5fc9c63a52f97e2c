package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"quizroom/internal/app"
	"quizroom/internal/clock"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	clock *clock.Mock
	hub   *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	manual := clock.NewMock(time.Unix(1_700_000_000, 0), time.Second)
	hub := NewHub(log)
	co := app.New(memory.NewStore(), memory.NewStaticQuestions(sampleQuiz()), hub,
		app.WithClock(manual),
		app.WithLogger(log),
	)
	server := httptest.NewServer(NewRouter(
		NewWSHandler(co, hub, DefaultSettings, log),
		NewRoomsHandler(co, hub, log),
	))
	t.Cleanup(server.Close)
	return &testServer{Server: server, clock: manual, hub: hub}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) createRoom(t *testing.T) string {
	t.Helper()
	resp, err := http.Post(s.URL+"/api/rooms", "application/json", strings.NewReader(`{"quizId":1,"hostId":"host-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Room struct {
			Code string `json:"id"`
		} `json:"room"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Room.Code, 6)
	return body.Room.Code
}

// advance waits for the coordinator to arm a timer, then moves the clock.
func (s *testServer) advance(t *testing.T, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return s.clock.Pending() > 0 }, 2*time.Second, 5*time.Millisecond)
	s.clock.Advance(d)
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": event, "payload": payload}))
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

// readUntil skips events until one named expect arrives and decodes it into out.
func readUntil(conn *websocket.Conn, t *testing.T, expect string, out any) {
	t.Helper()
	for i := 0; i < 100; i++ {
		typ, payload := readNext(conn, t, "")
		if typ != expect {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(payload, out))
		}
		return
	}
	t.Fatalf("no %s event within 100 messages", expect)
}

func TestWebSocketQuizFlow(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	code := srv.createRoom(t)

	host := srv.dial(t)
	send(t, host, domain.EventHostJoin, domain.RoomRef{RoomCode: code})
	readUntil(host, t, domain.EventHostJoined, nil)

	player := srv.dial(t)
	send(t, player, domain.EventPlayerJoin, domain.PlayerJoinRequest{RoomCode: code, PlayerName: "Alice"})
	var joined domain.PlayerJoined
	readUntil(host, t, domain.EventPlayerJoined, &joined)
	req.Equal("Alice", joined.Player.Name)
	readUntil(player, t, domain.EventPlayersList, nil)

	send(t, host, domain.EventQuizStart, domain.RoomRef{RoomCode: code})
	var started domain.QuizStarted
	readUntil(player, t, domain.EventQuizStarted, &started)
	req.Equal(1, started.TotalQuestions)

	srv.advance(t, 2*time.Second)
	var shown domain.QuestionShow
	readUntil(player, t, domain.EventQuestionShow, &shown)
	req.Equal(int64(100), shown.Question.ID)
	req.Equal(30, shown.Remaining)
	req.Len(shown.Question.Options, 3)

	send(t, player, domain.EventAnswerSubmit, domain.AnswerSubmission{RoomCode: code, QuestionID: 100, OptionID: 2, TimeTaken: 10})
	var result domain.AnswerResult
	readUntil(player, t, domain.EventAnswerResult, &result)
	req.True(result.IsCorrect)
	req.Equal(int64(2), result.CorrectOptionID)

	var board []domain.Player
	readUntil(host, t, domain.EventLeaderboardUpdate, &board)
	req.Len(board, 1)
	req.Equal(900, board[0].Score)

	srv.advance(t, 40*time.Second)
	var reveal domain.AnswerShow
	readUntil(host, t, domain.EventAnswerShow, &reveal)
	req.Equal(int64(2), reveal.CorrectOptionID)
	req.Equal([]domain.OptionCount{{OptionID: 1, Count: 0}, {OptionID: 2, Count: 1}, {OptionID: 3, Count: 0}}, reveal.Statistics)

	var ended domain.QuizEnded
	readUntil(player, t, domain.EventQuizEnded, &ended)
	req.Len(ended.Leaderboard, 1)
	req.Equal(1, ended.Leaderboard[0].Rank)
	req.Equal(900, ended.Leaderboard[0].Score)
}

func TestWebSocketRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	cases := []struct {
		name    string
		raw     string
		message string
	}{
		{"not json", `{{`, "malformed message"},
		{"unknown event", `{"type":"quiz:pause","payload":{}}`, "unsupported message type"},
		{"missing payload", `{"type":"player:join"}`, "invalid player:join payload"},
		{"missing name", `{"type":"player:join","payload":{"roomCode":"ABC123"}}`, "invalid player:join payload"},
		{"unknown room", `{"type":"quiz:start","payload":{"roomCode":"NOPE00"}}`, domain.ErrRoomNotFound.Error()},
		{"player join unknown room", `{"type":"player:join","payload":{"roomCode":"NOPE00","playerName":"Bob"}}`, domain.ErrRoomNotFound.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.raw)))
			var notice domain.Notice
			_, payload := readNext(conn, t, domain.EventError)
			require.NoError(t, json.Unmarshal(payload, &notice))
			require.Equal(t, tc.message, notice.Message)
		})
	}
}

func TestHostDisconnectEndsRoom(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	code := srv.createRoom(t)

	host := srv.dial(t)
	send(t, host, domain.EventHostJoin, domain.RoomRef{RoomCode: code})
	readUntil(host, t, domain.EventHostJoined, nil)

	player := srv.dial(t)
	send(t, player, domain.EventPlayerJoin, domain.PlayerJoinRequest{RoomCode: code, PlayerName: "Bob"})
	readUntil(player, t, domain.EventPlayersList, nil)

	req.NoError(host.Close())
	readUntil(player, t, domain.EventQuizEnded, nil)

	resp, err := http.Get(srv.URL + "/api/rooms/" + code)
	req.NoError(err)
	defer resp.Body.Close()
	var body struct {
		Room struct {
			Active bool `json:"is_active"`
		} `json:"room"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.False(body.Room.Active)
}

func TestRoomsAPI(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	post := func(body string) *http.Response {
		resp, err := http.Post(srv.URL+"/api/rooms", "application/json", bytes.NewBufferString(body))
		req.NoError(err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}
	req.Equal(http.StatusBadRequest, post(`not json`).StatusCode)
	req.Equal(http.StatusBadRequest, post(`{"quizId":1}`).StatusCode)
	req.Equal(http.StatusNotFound, post(`{"quizId":42,"hostId":"h"}`).StatusCode)

	code := srv.createRoom(t)
	req.Equal(code, srv.createRoom(t), "active room is reused")

	resp, err := http.Get(srv.URL + "/api/rooms/" + strings.ToLower(code))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	missing, err := http.Get(srv.URL + "/api/rooms/ZZZZZZ")
	req.NoError(err)
	defer missing.Body.Close()
	req.Equal(http.StatusNotFound, missing.StatusCode)

	health, err := http.Get(srv.URL + "/healthz")
	req.NoError(err)
	defer health.Body.Close()
	req.Equal(http.StatusOK, health.StatusCode)

	host := srv.dial(t)
	send(t, host, domain.EventHostJoin, domain.RoomRef{RoomCode: code})
	readUntil(host, t, domain.EventHostJoined, nil)

	stats, err := http.Get(srv.URL + "/stats")
	req.NoError(err)
	defer stats.Body.Close()
	var got statsResponse
	req.NoError(json.NewDecoder(stats.Body).Decode(&got))
	req.Equal(1, got.Connections)
	req.Equal(1, got.Rooms)
	req.Equal(1, got.LiveRooms)
}

func sampleQuiz() map[int64][]domain.Question {
	return map[int64][]domain.Question{
		1: {
			{
				ID:        100,
				QuizID:    1,
				Text:      "What is 2 + 2?",
				TimeLimit: 30,
				Options: []domain.Option{
					{ID: 1, Text: "3"},
					{ID: 2, Text: "4", IsCorrect: true, OrderIndex: 1},
					{ID: 3, Text: "5", OrderIndex: 2},
				},
			},
		},
	}
}
