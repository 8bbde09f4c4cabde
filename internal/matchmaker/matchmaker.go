// Package matchmaker implements the dynamic, expanding-window rating-based
// pairing engine over a shared ranked queue (§4.3), with race-free claim
// semantics across nodes.
package matchmaker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/metrics"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// Config holds the tunables named in §4.3/§5.
type Config struct {
	InitialRange      int
	MaxRange          int
	RangeStepPerTick  int
	RangeStepInterval time.Duration
	SearchSessionTTL  time.Duration
	MatchLockTTL      time.Duration
	LiveGameTTL       time.Duration
}

// GameIDFactory mints a new opaque gameId; production wiring uses
// google/uuid, tests use a deterministic stub.
type GameIDFactory func() string

// Matchmaker is the matchmaking component.
type Matchmaker struct {
	live    store.LiveStore
	durable store.DurableStore
	core    *gamecore.Core
	cfg     Config
	logger  *zap.Logger
	newGameID GameIDFactory

	mu    sync.Mutex
	rng   *rand.Rand

	statsMu     sync.Mutex
	totalPaired int
}

// New constructs a Matchmaker.
func New(live store.LiveStore, durable store.DurableStore, core *gamecore.Core, cfg Config, newGameID GameIDFactory, logger *zap.Logger) *Matchmaker {
	return &Matchmaker{
		live:      live,
		durable:   durable,
		core:      core,
		cfg:       cfg,
		logger:    logger,
		newGameID: newGameID,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StartSearch creates a SearchSession and inserts the player into the
// matching queue (§4.3). Re-invocation refreshes the session TTL without
// resetting searchStartTime, making it idempotent.
func (m *Matchmaker) StartSearch(ctx context.Context, playerID string, gameType models.GameType, variant models.Variant, tc models.TimeControl, rating int, connID string) error {
	key := store.SearchSessionKey(playerID)

	var existing models.SearchSession
	found, err := m.live.GetJSON(ctx, key, &existing)
	if err != nil {
		return apperr.NewStoreUnavailable(err)
	}

	session := models.SearchSession{
		PlayerID:      playerID,
		GameType:      gameType,
		GameVariant:   variant,
		TimeControl:   tc,
		InitialRating: rating,
		CurrentRange:  m.cfg.InitialRange,
		ConnectionID:  connID,
	}
	if found {
		session.SearchStartTime = existing.SearchStartTime
		if existing.CurrentRange > session.CurrentRange {
			session.CurrentRange = existing.CurrentRange
		}
	} else {
		session.SearchStartTime = time.Now()
	}

	if err := m.live.SetJSON(ctx, key, session, m.cfg.SearchSessionTTL); err != nil {
		return apperr.NewStoreUnavailable(err)
	}
	if err := m.live.ZAdd(ctx, store.MatchQueueKey(gameType), playerID, float64(rating)); err != nil {
		return apperr.NewStoreUnavailable(err)
	}
	metrics.QueueDepth.WithLabelValues(string(gameType)).Inc()
	return nil
}

// Cancel removes a player's SearchSession and queue membership (§4.3
// "cancel"). Idempotent. The player's presence entry is left in place; it
// is cleared only when the connection disconnects.
func (m *Matchmaker) Cancel(ctx context.Context, playerID string) error {
	key := store.SearchSessionKey(playerID)
	var session models.SearchSession
	found, err := m.live.GetJSON(ctx, key, &session)
	if err != nil {
		return apperr.NewStoreUnavailable(err)
	}
	if found {
		_ = m.live.ZRem(ctx, store.MatchQueueKey(session.GameType), playerID)
		metrics.QueueDepth.WithLabelValues(string(session.GameType)).Dec()
	}
	if err := m.live.Delete(ctx, key); err != nil {
		return apperr.NewStoreUnavailable(err)
	}
	return nil
}

// Status returns the player's current SearchSession, if any.
func (m *Matchmaker) Status(ctx context.Context, playerID string) (models.SearchSession, bool, error) {
	var session models.SearchSession
	found, err := m.live.GetJSON(ctx, store.SearchSessionKey(playerID), &session)
	if err != nil {
		return models.SearchSession{}, false, apperr.NewStoreUnavailable(err)
	}
	return session, found, nil
}

// currentRange computes the expanding window (§4.3 "Algorithm — expanding
// window"): expansion = ⌊t/3000ms⌋, currentRange = min(60+60·expansion, 600).
func (m *Matchmaker) currentRange(searchStart time.Time, now time.Time) int {
	elapsed := now.Sub(searchStart)
	expansion := int(elapsed / m.cfg.RangeStepInterval)
	r := m.cfg.InitialRange + m.cfg.RangeStepPerTick*expansion
	if r > m.cfg.MaxRange {
		r = m.cfg.MaxRange
	}
	return r
}

// Tick is invoked by the player's client roughly every 3s; it expands the
// player's range and attempts to pair them (§4.3 "tick").
func (m *Matchmaker) Tick(ctx context.Context, playerID string) (models.TickResult, error) {
	key := store.SearchSessionKey(playerID)
	var session models.SearchSession
	found, err := m.live.GetJSON(ctx, key, &session)
	if err != nil {
		return models.TickResult{}, apperr.NewStoreUnavailable(err)
	}
	if !found {
		return models.TickResult{}, apperr.New(apperr.NotFound, "no active search session")
	}

	now := time.Now()
	newRange := m.currentRange(session.SearchStartTime, now)
	if newRange > session.CurrentRange {
		session.CurrentRange = newRange
		if err := m.live.SetJSON(ctx, key, session, m.cfg.SearchSessionTTL); err != nil {
			return models.TickResult{}, apperr.NewStoreUnavailable(err)
		}
	}

	queueKey := store.MatchQueueKey(session.GameType)
	candidates, err := m.live.ZRangeByScore(ctx, queueKey,
		float64(session.InitialRating-session.CurrentRange),
		float64(session.InitialRating+session.CurrentRange))
	if err != nil {
		return models.TickResult{}, apperr.NewStoreUnavailable(err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, _, _ := m.live.ZScore(ctx, queueKey, candidates[i])
		sj, _, _ := m.live.ZScore(ctx, queueKey, candidates[j])
		return si < sj
	})

	for _, candidate := range candidates {
		if candidate == playerID {
			continue
		}

		var presence models.Presence
		presenceFound, err := m.live.GetJSON(ctx, store.PresenceKey(candidate), &presence)
		if err != nil {
			return models.TickResult{}, apperr.NewStoreUnavailable(err)
		}
		if !presenceFound {
			_ = m.live.ZRem(ctx, queueKey, candidate)
			continue
		}

		inQueue, err := m.live.ZIsMember(ctx, queueKey, candidate)
		if err != nil {
			return models.TickResult{}, apperr.NewStoreUnavailable(err)
		}
		if !inQueue {
			continue
		}

		lo, hi := store.SortedPair(playerID, candidate)
		lockKey := store.MatchLockKey(lo, hi)
		acquired, err := m.live.SetNXWithTTL(ctx, lockKey, "1", m.cfg.MatchLockTTL)
		if err != nil {
			return models.TickResult{}, apperr.NewStoreUnavailable(err)
		}
		if !acquired {
			continue
		}

		selfStillIn, err := m.live.ZIsMember(ctx, queueKey, playerID)
		if err != nil {
			return models.TickResult{}, apperr.NewStoreUnavailable(err)
		}
		candidateStillIn, err := m.live.ZIsMember(ctx, queueKey, candidate)
		if err != nil {
			return models.TickResult{}, apperr.NewStoreUnavailable(err)
		}
		if !selfStillIn || !candidateStillIn {
			_, _ = m.live.CheckAndRemove(ctx, lockKey, "1")
			continue
		}

		candRating, _, err := m.candidateRating(ctx, candidate, session.GameType, session.InitialRating)
		if err != nil {
			_, _ = m.live.CheckAndRemove(ctx, lockKey, "1")
			return models.TickResult{}, err
		}

		result, err := m.pair(ctx, session, playerID, candidate, candRating, now)
		_, _ = m.live.CheckAndRemove(ctx, lockKey, "1")
		if err != nil {
			return models.TickResult{}, err
		}
		return result, nil
	}

	return models.TickResult{
		CurrentRange:   session.CurrentRange,
		SearchDuration: now.Sub(session.SearchStartTime),
	}, nil
}

// pair removes both players from the queue, assigns colors, creates the
// game, and cancels both sessions (§4.3 steps 3e-3f). candRating must be
// read from the queue's sorted set before this call — the ZRem below
// drops the candidate's membership, and a post-removal ZScore lookup
// would silently miss, corrupting §4.4's rating-bias color assignment
// and §4.6's Elo deltas.
func (m *Matchmaker) pair(ctx context.Context, session models.SearchSession, self, candidate string, candRating int, now time.Time) (models.TickResult, error) {
	queueKey := store.MatchQueueKey(session.GameType)
	if err := m.live.ZRem(ctx, queueKey, self, candidate); err != nil {
		return models.TickResult{}, apperr.NewStoreUnavailable(err)
	}
	metrics.QueueDepth.WithLabelValues(string(session.GameType)).Add(-2)

	selfRating := session.InitialRating

	m.mu.Lock()
	whiteID, blackID := assignColors(ctx, m.durable, self, candidate, selfRating, candRating, m.rng)
	m.mu.Unlock()

	whiteRating, blackRating := selfRating, candRating
	if whiteID != self {
		whiteRating, blackRating = candRating, selfRating
	}

	whiteProvisional, blackProvisional := m.provisional(ctx, whiteID), m.provisional(ctx, blackID)

	gameID := m.newGameID()
	_, err := m.core.Create(ctx, gamecore.CreateParams{
		GameID:      gameID,
		White:       gamecore.PlayerDTO{PlayerID: whiteID, Rating: whiteRating, Provisional: whiteProvisional},
		Black:       gamecore.PlayerDTO{PlayerID: blackID, Rating: blackRating, Provisional: blackProvisional},
		Variant:     session.GameVariant,
		GameType:    session.GameType,
		TimeControl: session.TimeControl,
		LiveGameTTL: m.cfg.LiveGameTTL,
	})
	if err != nil {
		return models.TickResult{}, err
	}

	_ = m.live.Delete(ctx, store.SearchSessionKey(self))
	_ = m.live.Delete(ctx, store.SearchSessionKey(candidate))

	m.statsMu.Lock()
	m.totalPaired++
	m.statsMu.Unlock()
	metrics.MatchesPaired.Inc()
	metrics.ActiveGames.Inc()

	return models.TickResult{
		Found:          true,
		GameID:         gameID,
		Opponent:       candidate,
		CurrentRange:   session.CurrentRange,
		SearchDuration: now.Sub(session.SearchStartTime),
		FinalRange:     session.CurrentRange,
	}, nil
}

func (m *Matchmaker) candidateRating(ctx context.Context, candidate string, gameType models.GameType, fallback int) (int, bool, error) {
	score, found, err := m.live.ZScore(ctx, store.MatchQueueKey(gameType), candidate)
	if err != nil {
		return 0, false, apperr.NewStoreUnavailable(err)
	}
	if !found {
		return fallback, false, nil
	}
	return int(score), true, nil
}

func (m *Matchmaker) provisional(ctx context.Context, playerID string) bool {
	p, found, err := m.durable.GetPlayer(ctx, playerID)
	if err != nil || !found {
		return true
	}
	return p.IsProvisional()
}

// Stats is a read-only snapshot for the admin surface.
type Stats struct {
	TotalPaired int
}

// Stats returns aggregate matchmaking counters (§4.3 "stats()").
func (m *Matchmaker) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return Stats{TotalPaired: m.totalPaired}
}

// DefaultGameIDFactory is provided for callers that don't wire their own;
// production wiring uses google/uuid instead (see cmd/gateway).
func DefaultGameIDFactory(prefix string) GameIDFactory {
	var counter int64
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}
