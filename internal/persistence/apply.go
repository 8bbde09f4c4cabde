package persistence

import (
	"context"
	"encoding/json"

	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// Envelopes arrive (locally and remotely) as JSON-normalized
// map[string]interface{} payloads (see eventbus.Bus.Publish), so every
// extractor here goes through a marshal/unmarshal round trip into the
// typed shape it expects rather than trusting live Go types.
func decodeField(payload map[string]interface{}, key string, out interface{}) bool {
	v, ok := payload[key]
	if !ok {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (p *Pipeline) applyGameStarted(ctx context.Context, env models.Envelope) error {
	var players [2]models.Participant
	var info models.GameInfo
	decodeField(env.Payload, "players", &players)
	decodeField(env.Payload, "info", &info)

	return p.durable.UpsertGameSkeleton(ctx, store.DurableGameSkeleton{
		GameID:      env.GameID,
		Players:     players,
		Variant:     info.Variant,
		TimeControl: info.TimeControl,
		InitialFEN:  "", // engine start position; replay reconstructs it from moves
		StartedAt:   env.Timestamp,
	})
}

func (p *Pipeline) applyMoveMade(ctx context.Context, env models.Envelope) error {
	var move models.MoveRecord
	var pgn string
	var moveNumber int
	var newFEN string

	decodeField(env.Payload, "move", &move)
	decodeField(env.Payload, "pgn", &pgn)
	decodeField(env.Payload, "moveNumber", &moveNumber)
	decodeField(env.Payload, "newFEN", &newFEN)

	appendFEN := ""
	if moveNumber > 0 && moveNumber%10 == 0 {
		appendFEN = newFEN
	}

	return p.durable.AppendMove(ctx, env.GameID, store.MoveAppend{
		Move:       move,
		PGN:        pgn,
		MoveNumber: moveNumber,
		AppendFEN:  appendFEN,
	})
}

func (p *Pipeline) applyGameEnded(ctx context.Context, env models.Envelope) error {
	var winner *models.Color
	var reason models.EndReason
	var finalPGN string
	var ratingChanges map[string]models.RatingChange

	decodeField(env.Payload, "winner", &winner)
	decodeField(env.Payload, "reason", &reason)
	decodeField(env.Payload, "finalPGN", &finalPGN)
	decodeField(env.Payload, "ratingChanges", &ratingChanges)

	endedAt := env.Timestamp
	return p.durable.FinalizeGame(ctx, env.GameID, store.GameFinalization{
		Winner:        winner,
		Reason:        reason,
		Result:        models.ResultFor(winner),
		FinalPGN:      finalPGN,
		EndedAt:       endedAt,
		RatingChanges: ratingChanges,
	})
}

func (p *Pipeline) applyRatingUpdated(ctx context.Context, env models.Envelope) error {
	var white, black models.Participant
	decodeField(env.Payload, "white", &white)
	decodeField(env.Payload, "black", &black)

	if white.PlayerID != "" {
		if err := p.durable.PatchPostRating(ctx, env.GameID, white.PlayerID, white.PostRating); err != nil {
			return err
		}
	}
	if black.PlayerID != "" {
		if err := p.durable.PatchPostRating(ctx, env.GameID, black.PlayerID, black.PostRating); err != nil {
			return err
		}
	}
	return nil
}
