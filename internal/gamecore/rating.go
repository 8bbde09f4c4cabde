package gamecore

import (
	"math"

	"github.com/chesscore/realtime/internal/models"
)

// expectedScore returns Eₐ = 1 / (1 + 10^((Rᵦ − Rₐ)/400)), the Elo
// expected-score function (§4.6).
func expectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// kFactor returns the tiered K-factor (§4.6): provisional players use 40
// regardless of rating; established players use 10/16/32 by rating band.
func kFactor(rating int, provisional bool) int {
	if provisional {
		return 40
	}
	switch {
	case rating >= 2400:
		return 10
	case rating >= 2100:
		return 16
	default:
		return 32
	}
}

// RatingDelta computes ΔR for a player of the given rating/provisional
// status against an opponent of opponentRating, given actual score S.
func RatingDelta(rating, opponentRating int, provisional bool, score float64) int {
	k := kFactor(rating, provisional)
	e := expectedScore(rating, opponentRating)
	delta := int(math.Round(float64(k) * (score - e)))
	if delta > k {
		delta = k
	}
	if delta < -k {
		delta = -k
	}
	return delta
}

// NewRating applies a delta, floored at MinRating.
func NewRating(rating, delta int) int {
	n := rating + delta
	if n < models.MinRating {
		return models.MinRating
	}
	return n
}

// PrecomputeRatingChange builds the pre-game display snapshot (§4.6
// "ratingChanges") for a player given their own and their opponent's
// rating and provisional status.
func PrecomputeRatingChange(rating, opponentRating int, provisional bool) models.RatingChange {
	return models.RatingChange{
		OnWin:         NewRating(rating, RatingDelta(rating, opponentRating, provisional, 1)) - rating,
		OnLoss:        NewRating(rating, RatingDelta(rating, opponentRating, provisional, 0)) - rating,
		OnDraw:        NewRating(rating, RatingDelta(rating, opponentRating, provisional, 0.5)) - rating,
		IsProvisional: provisional,
	}
}
