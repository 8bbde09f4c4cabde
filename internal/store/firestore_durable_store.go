package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chesscore/realtime/internal/models"
)

const (
	gamesCollection   = "games"
	playersCollection = "players"
)

// FirestoreDurableStore is the production DurableStore, backed by the
// Firestore client cmd/gateway obtains from a firebase.google.com/go/v4
// app object.
type FirestoreDurableStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreDurableStore constructs a FirestoreDurableStore over an
// already-initialized client.
func NewFirestoreDurableStore(client *firestore.Client, logger *zap.Logger) *FirestoreDurableStore {
	return &FirestoreDurableStore{client: client, logger: logger}
}

func (s *FirestoreDurableStore) gameRef(gameID string) *firestore.DocumentRef {
	return s.client.Collection(gamesCollection).Doc(gameID)
}

func (s *FirestoreDurableStore) playerRef(playerID string) *firestore.DocumentRef {
	return s.client.Collection(playersCollection).Doc(playerID)
}

func (s *FirestoreDurableStore) UpsertGameSkeleton(ctx context.Context, game DurableGameSkeleton) error {
	ref := s.gameRef(game.GameID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err == nil && snap.Exists() {
			return nil // already created; upsert is idempotent
		}
		doc := models.DurableGame{
			GameID:      game.GameID,
			Players:     game.Players,
			Variant:     game.Variant,
			TimeControl: game.TimeControl,
			InitialFEN:  game.InitialFEN,
			Status:      models.DurableStatusInProgress,
			StartedAt:   game.StartedAt,
			RematchOf:   game.RematchOf,
		}
		return tx.Set(ref, doc)
	})
}

func (s *FirestoreDurableStore) AppendMove(ctx context.Context, gameID string, move MoveAppend) error {
	ref := s.gameRef(gameID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc models.DurableGame
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		doc.Moves = append(doc.Moves, move.Move)
		doc.PGN = move.PGN
		if move.AppendFEN != "" {
			doc.FENHistory = append(doc.FENHistory, move.AppendFEN)
		}
		return tx.Set(ref, doc)
	})
}

func (s *FirestoreDurableStore) FinalizeGame(ctx context.Context, gameID string, fin GameFinalization) error {
	ref := s.gameRef(gameID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc models.DurableGame
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		doc.Status = models.DurableStatusCompleted
		doc.Winner = fin.Winner
		doc.EndReason = fin.Reason
		doc.ResultScore = fin.Result
		doc.PGN = fin.FinalPGN
		doc.EndedAt = &fin.EndedAt
		if fin.RatingChanges != nil {
			doc.RatingChanges = fin.RatingChanges
		}
		return tx.Set(ref, doc)
	})
}

func (s *FirestoreDurableStore) PatchPostRating(ctx context.Context, gameID, playerID string, postRating int) error {
	ref := s.gameRef(gameID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc models.DurableGame
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		for i := range doc.Players {
			if doc.Players[i].PlayerID == playerID {
				doc.Players[i].PostRating = postRating
			}
		}
		return tx.Set(ref, doc)
	})
}

func (s *FirestoreDurableStore) SetRematchedInto(ctx context.Context, gameID, rematchGameID string) error {
	ref := s.gameRef(gameID)
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "rematchedInto", Value: rematchGameID},
	})
	return err
}

func (s *FirestoreDurableStore) GetPlayer(ctx context.Context, playerID string) (PlayerRecord, bool, error) {
	snap, err := s.playerRef(playerID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return PlayerRecord{}, false, nil
		}
		return PlayerRecord{}, false, err
	}
	var p PlayerRecord
	if err := snap.DataTo(&p); err != nil {
		return PlayerRecord{}, false, err
	}
	return p, true, nil
}

func (s *FirestoreDurableStore) UpsertPlayer(ctx context.Context, p PlayerRecord) error {
	_, err := s.playerRef(p.PlayerID).Set(ctx, p)
	return err
}

func (s *FirestoreDurableStore) RecentGames(ctx context.Context, playerID string, n int) ([]CompletedGameSummary, error) {
	iter := s.client.Collection(gamesCollection).
		Where("status", "==", models.DurableStatusCompleted).
		OrderBy("endedAt", firestore.Desc).
		Limit(n * 4). // over-fetch since not every game includes playerID; filtered below
		Documents(ctx)
	defer iter.Stop()

	var out []CompletedGameSummary
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var g models.DurableGame
		if err := doc.DataTo(&g); err != nil {
			return nil, err
		}
		color, ok := colorOf(g, playerID)
		if !ok {
			continue
		}
		var endedAt time.Time
		if g.EndedAt != nil {
			endedAt = *g.EndedAt
		}
		out = append(out, CompletedGameSummary{GameID: g.GameID, Color: color, EndedAt: endedAt})
		if len(out) >= n {
			break
		}
	}
	return out, nil
}

func colorOf(g models.DurableGame, playerID string) (models.Color, bool) {
	for _, p := range g.Players {
		if p.PlayerID == playerID {
			return p.Color, true
		}
	}
	return "", false
}

func (s *FirestoreDurableStore) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
