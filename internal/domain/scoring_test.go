package domain

import "testing"

func TestPoints(t *testing.T) {
	cases := []struct {
		name      string
		correct   bool
		timeTaken int
		want      int
	}{
		{"instant", true, 0, 1000},
		{"ten units", true, 10, 900},
		{"reaches floor", true, 90, 100},
		{"below floor", true, 100, 100},
		{"negative clamps", true, -5, 1000},
		{"incorrect", false, 0, 0},
	}
	for _, tc := range cases {
		if got := Points(tc.correct, tc.timeTaken); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestRankLeaderboardBreaksTiesByJoinOrder(t *testing.T) {
	players := []Player{
		{ID: 3, Name: "Carol", Score: 500},
		{ID: 1, Name: "Alice", Score: 900},
		{ID: 2, Name: "Bob", Score: 500},
	}

	entries := RankLeaderboard(players)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"Alice", "Bob", "Carol"}
	for i, entry := range entries {
		if entry.PlayerName != want[i] || entry.Rank != i+1 {
			t.Fatalf("entry %d: expected %s rank %d, got %+v", i, want[i], i+1, entry)
		}
	}
	if players[0].Name != "Carol" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestPublicMessageHidesInfrastructureErrors(t *testing.T) {
	if got := PublicMessage(ErrDuplicateName); got != ErrDuplicateName.Error() {
		t.Fatalf("expected duplicate name message, got %q", got)
	}
	if got := PublicMessage(errString("connection refused")); got != GenericMessage {
		t.Fatalf("expected generic message, got %q", got)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
