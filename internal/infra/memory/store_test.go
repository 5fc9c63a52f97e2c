package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizroom/internal/domain"
)

func TestStoreReactivatesDisconnectedPlayerByName(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewStore()
	req.NoError(store.CreateRoom(ctx, domain.Room{Code: "ABC123", QuizID: 1, Active: true}))

	alice, err := store.GetOrCreatePlayer(ctx, "ABC123", "Alice", "conn-1")
	req.NoError(err)
	_, err = store.AddScore(ctx, alice.ID, 300)
	req.NoError(err)

	cleared, err := store.ClearPlayerConnection(ctx, "conn-1")
	req.NoError(err)
	req.False(cleared.Connected())

	active, err := store.ListPlayers(ctx, "ABC123", true)
	req.NoError(err)
	req.Empty(active)

	again, err := store.GetOrCreatePlayer(ctx, "ABC123", "Alice", "conn-2")
	req.NoError(err)
	req.Equal(alice.ID, again.ID)
	req.Equal(300, again.Score)
	req.Equal("conn-2", again.ConnectionID)
}

func TestStoreListsPlayersByScore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewStore()

	a, _ := store.GetOrCreatePlayer(ctx, "R1", "A", "c1")
	b, _ := store.GetOrCreatePlayer(ctx, "R1", "B", "c2")
	_, _ = store.GetOrCreatePlayer(ctx, "R2", "Other", "c3")
	_, err := store.AddScore(ctx, b.ID, 500)
	req.NoError(err)

	players, err := store.ListPlayers(ctx, "R1", false)
	req.NoError(err)
	req.Len(players, 2)
	req.Equal(b.ID, players[0].ID)
	req.Equal(a.ID, players[1].ID)
}

func TestStoreRejectsSecondSnapshot(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewStore()
	snapshot := domain.SessionSnapshot{
		RoomCode:    "ABC123",
		QuizID:      1,
		StartedAt:   time.Now(),
		Leaderboard: []domain.LeaderboardEntry{{PlayerName: "A", Score: 900, Rank: 1}},
	}

	id, err := store.CreateSessionSnapshot(ctx, snapshot)
	req.NoError(err)
	req.Positive(id)

	_, err = store.CreateSessionSnapshot(ctx, snapshot)
	req.ErrorIs(err, domain.ErrSessionExists)

	exists, err := store.SessionExists(ctx, "ABC123")
	req.NoError(err)
	req.True(exists)

	sessions := store.Sessions()
	req.Len(sessions, 1)
	req.Len(sessions[0].Leaderboard, 1)
}

func TestStoreActiveRoomForQuizPrefersNewest(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewStore()
	base := time.Unix(1_700_000_000, 0)

	req.NoError(store.CreateRoom(ctx, domain.Room{Code: "OLD111", QuizID: 7, Active: true, CreatedAt: base}))
	req.NoError(store.CreateRoom(ctx, domain.Room{Code: "NEW222", QuizID: 7, Active: true, CreatedAt: base.Add(time.Minute)}))
	req.NoError(store.CreateRoom(ctx, domain.Room{Code: "DONE33", QuizID: 7, Active: false, CreatedAt: base.Add(time.Hour)}))

	room, err := store.ActiveRoomForQuiz(ctx, 7)
	req.NoError(err)
	req.Equal("NEW222", room.Code)

	_, err = store.ActiveRoomForQuiz(ctx, 8)
	req.ErrorIs(err, domain.ErrRoomNotFound)
}
