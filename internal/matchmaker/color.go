package matchmaker

import (
	"context"
	"math"
	"math/rand"

	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// assignColors implements the color-assignment subroutine (§4.4): base
// 50/50, rating bias toward the lower-rated player getting white, a
// same-color-streak correction, and an overall-balance correction, each
// drawn from each player's last up-to-10 completed games in DurableStore.
func assignColors(ctx context.Context, durable store.DurableStore, p1, p2 string, r1, r2 int, rng *rand.Rand) (white, black string) {
	prob := 0.5

	if delta := r1 - r2; delta != 0 {
		abs := delta
		if abs < 0 {
			abs = -abs
		}
		if abs > 100 {
			shift := math.Min(float64(abs)/2000, 0.1)
			if delta < 0 {
				// p1 is lower rated: shift toward p1 getting white.
				prob += shift
			} else {
				prob -= shift
			}
		}
	}

	hist1, _ := durable.RecentGames(ctx, p1, 10)
	hist2, _ := durable.RecentGames(ctx, p2, 10)

	ws1, bs1 := leadingStreak(hist1)
	ws2, bs2 := leadingStreak(hist2)

	if ws1 >= 2 {
		prob -= 0.3
	}
	if bs1 >= 2 {
		prob += 0.3
	}
	if ws2 >= 2 {
		prob += 0.2
	}
	if bs2 >= 2 {
		prob -= 0.2
	}

	wr1 := whiteFraction(hist1)
	if wr1 > 0.7 {
		prob -= 0.2
	} else if wr1 < 0.3 {
		prob += 0.2
	}

	if prob < 0.1 {
		prob = 0.1
	}
	if prob > 0.9 {
		prob = 0.9
	}

	if rng.Float64() < prob {
		return p1, p2
	}
	return p2, p1
}

// leadingStreak returns the count of consecutive games at the head of the
// (most-recent-first) history played as white, and as black, respectively.
func leadingStreak(history []store.CompletedGameSummary) (whiteStreak, blackStreak int) {
	if len(history) == 0 {
		return 0, 0
	}
	leadColor := history[0].Color
	count := 0
	for _, g := range history {
		if g.Color != leadColor {
			break
		}
		count++
	}
	if leadColor == models.ColorWhite {
		return count, 0
	}
	return 0, count
}

// whiteFraction returns the fraction of games in history played as white.
func whiteFraction(history []store.CompletedGameSummary) float64 {
	if len(history) == 0 {
		return 0.5
	}
	whites := 0
	for _, g := range history {
		if g.Color == models.ColorWhite {
			whites++
		}
	}
	return float64(whites) / float64(len(history))
}
