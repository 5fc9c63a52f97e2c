package domain

import (
	"sort"

	"github.com/samber/lo"
)

const (
	// MaxPoints is awarded for a correct answer at timeTaken == 0.
	MaxPoints = 1000
	// MinPoints is the floor for any correct answer.
	MinPoints = 100
	// DecayPerUnit is subtracted for every countdown unit spent answering.
	DecayPerUnit = 10
)

// Points returns the award for a submission: max(1000 - t*10, 100) when
// correct, zero otherwise.
func Points(correct bool, timeTaken int) int {
	if !correct {
		return 0
	}
	if timeTaken < 0 {
		timeTaken = 0
	}
	return max(MaxPoints-timeTaken*DecayPerUnit, MinPoints)
}

// SortStandings orders players by score descending, then by join order.
func SortStandings(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].ID < players[j].ID
	})
}

// RankLeaderboard sorts a copy of players and assigns 1-based ranks.
func RankLeaderboard(players []Player) []LeaderboardEntry {
	sorted := append([]Player(nil), players...)
	SortStandings(sorted)
	return lo.Map(sorted, func(p Player, i int) LeaderboardEntry {
		return LeaderboardEntry{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Score:      p.Score,
			Rank:       i + 1,
		}
	})
}
