// Package store defines the LiveStore/DurableStore abstractions the core
// depends on (§3, §4.2) and provides Redis- and Firestore-backed
// implementations of the two roles.
package store

import (
	"context"
	"time"
)

// LiveStore is the ephemeral KV abstraction backing Presence, MatchQueue,
// SearchSession, LiveGame and the matchmaking claim lock (§4.2). Every
// operation must complete in bounded time; callers are expected to apply a
// context deadline and translate context.DeadlineExceeded into
// apperr.StoreUnavailable.
type LiveStore interface {
	// GetJSON/SetJSON operate on a whole JSON-encoded value under a key,
	// used for the composite structures (LiveGame, SearchSession,
	// Presence) the spec stores as JSON-encoded hash/string values.
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SetNXWithTTL is the claim primitive: it sets key=value only if key
	// does not already exist, with the given TTL, returning whether the
	// set happened (i.e. whether the lock was acquired).
	SetNXWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CheckAndRemove is the atomic script primitive (§4.2): it removes key
	// only if its current value equals expected, returning whether the
	// removal happened.
	CheckAndRemove(ctx context.Context, key, expected string) (bool, error)

	// Sorted-set primitives back MatchQueue (§3, §6).
	ZAdd(ctx context.Context, key string, member string, score float64) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZIsMember(ctx context.Context, key, member string) (bool, error)

	Close() error
}

// DurableStore is the document-store abstraction backing finalized games
// and player profiles (§3, §4.9).
type DurableStore interface {
	UpsertGameSkeleton(ctx context.Context, game DurableGameSkeleton) error
	AppendMove(ctx context.Context, gameID string, move MoveAppend) error
	FinalizeGame(ctx context.Context, gameID string, fin GameFinalization) error
	PatchPostRating(ctx context.Context, gameID, playerID string, postRating int) error

	// SetRematchedInto links a finished game to the rematch created from it
	// (supplemented rematch flow, SPEC_FULL.md).
	SetRematchedInto(ctx context.Context, gameID, rematchGameID string) error

	GetPlayer(ctx context.Context, playerID string) (PlayerRecord, bool, error)
	UpsertPlayer(ctx context.Context, p PlayerRecord) error

	// RecentGames returns up to n of the player's most recent completed
	// games, most recent first, used by color assignment's streak
	// correction (§4.4).
	RecentGames(ctx context.Context, playerID string, n int) ([]CompletedGameSummary, error)

	Close() error
}
