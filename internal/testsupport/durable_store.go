package testsupport

import (
	"context"
	"sync"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/store"
)

// FakeDurableStore is an in-memory DurableStore.
type FakeDurableStore struct {
	mu      sync.Mutex
	games   map[string]*store.DurableGameSkeleton
	moves   map[string][]store.MoveAppend
	final   map[string]store.GameFinalization
	players map[string]store.PlayerRecord
	recent  map[string][]store.CompletedGameSummary
}

// NewFakeDurableStore constructs an empty FakeDurableStore.
func NewFakeDurableStore() *FakeDurableStore {
	return &FakeDurableStore{
		games:   make(map[string]*store.DurableGameSkeleton),
		moves:   make(map[string][]store.MoveAppend),
		final:   make(map[string]store.GameFinalization),
		players: make(map[string]store.PlayerRecord),
	}
}

func (f *FakeDurableStore) UpsertGameSkeleton(ctx context.Context, game store.DurableGameSkeleton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[game.GameID]; ok {
		return nil // already created; upsert is idempotent
	}
	g := game
	f.games[game.GameID] = &g
	return nil
}

func (f *FakeDurableStore) AppendMove(ctx context.Context, gameID string, move store.MoveAppend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[gameID]; !ok {
		return apperr.NewNotFound("game not found")
	}
	f.moves[gameID] = append(f.moves[gameID], move)
	return nil
}

func (f *FakeDurableStore) FinalizeGame(ctx context.Context, gameID string, fin store.GameFinalization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[gameID]; !ok {
		return apperr.NewNotFound("game not found")
	}
	f.final[gameID] = fin
	return nil
}

func (f *FakeDurableStore) PatchPostRating(ctx context.Context, gameID, playerID string, postRating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return apperr.NewNotFound("game not found")
	}
	for i := range g.Players {
		if g.Players[i].PlayerID == playerID {
			g.Players[i].PostRating = postRating
		}
	}
	return nil
}

func (f *FakeDurableStore) SetRematchedInto(ctx context.Context, gameID, rematchGameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return apperr.NewNotFound("game not found")
	}
	g.RematchedInto = rematchGameID
	return nil
}

func (f *FakeDurableStore) GetPlayer(ctx context.Context, playerID string) (store.PlayerRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[playerID]
	return p, ok, nil
}

func (f *FakeDurableStore) UpsertPlayer(ctx context.Context, p store.PlayerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[p.PlayerID] = p
	return nil
}

func (f *FakeDurableStore) RecentGames(ctx context.Context, playerID string, n int) ([]store.CompletedGameSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	games := f.recent[playerID]
	if len(games) > n {
		games = games[:n]
	}
	return games, nil
}

func (f *FakeDurableStore) Close() error { return nil }

// Games returns a snapshot of every upserted game skeleton, keyed by
// gameId, for test assertions.
func (f *FakeDurableStore) Games() map[string]*store.DurableGameSkeleton {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*store.DurableGameSkeleton, len(f.games))
	for k, v := range f.games {
		out[k] = v
	}
	return out
}

// SetRecentGames seeds the recent-games history a player's color-streak
// correction reads (§4.4); production wiring derives this from Firestore.
func (f *FakeDurableStore) SetRecentGames(playerID string, games []store.CompletedGameSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recent == nil {
		f.recent = make(map[string][]store.CompletedGameSummary)
	}
	f.recent[playerID] = games
}

var _ store.DurableStore = (*FakeDurableStore)(nil)
