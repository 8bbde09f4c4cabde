package store

import (
	"sort"
	"strings"

	"github.com/chesscore/realtime/internal/models"
)

// Key helpers centralize the LiveStore key layout specified in §6, so
// every component names keys identically.

func PresenceKey(playerID string) string {
	return "player:" + playerID
}

func SearchSessionKey(playerID string) string {
	return "search_session:" + playerID
}

func MatchQueueKey(gameType models.GameType) string {
	return "match-making-queue:" + string(gameType)
}

func MatchLockKey(a, b string) string {
	lo, hi := a, b
	if strings.Compare(a, b) > 0 {
		lo, hi = b, a
	}
	return "match_lock:" + lo + ":" + hi
}

// SortedPair returns a and b ordered lexicographically, matching the
// sorted(a,b) lock-key construction of §4.3.
func SortedPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

func LiveGameKey(gameID string) string {
	return "live_game:" + gameID
}
