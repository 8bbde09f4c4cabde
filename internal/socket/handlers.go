package socket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// subscribeBusEvents wires server-originated broadcasts: the event types
// onBusEvent recognises (moves, clock updates, game endings, player
// disconnect/reconnect) are mirrored onto the room of connections seated
// in (or spectating) that gameId, regardless of which node produced it
// (§5 "Fan-out within a node is direct").
func (a *Adapter) subscribeBusEvents() {
	a.bus.Subscribe(models.ChannelMoves, a.onBusEvent)
	a.bus.Subscribe(models.ChannelStateUpdates, a.onBusEvent)
	a.bus.Subscribe(models.ChannelEvents, a.onBusEvent)
	a.bus.Subscribe(models.ChannelTime, a.onBusEvent)
	a.bus.Subscribe(models.ChannelPlayers, a.onBusEvent)
}

func (a *Adapter) onBusEvent(ctx context.Context, env models.Envelope) {
	if env.GameID == "" {
		return
	}
	switch env.EventType {
	case models.EventMoveMade:
		a.broadcastToRoom(env.GameID, ok(TagTimeUpdate, env.Payload)) // moves carry the fresh clock too
	case models.EventTimeUpdate, models.EventTimeUp:
		a.broadcastToRoom(env.GameID, ok(TagTimeUpdate, env.Payload))
	case models.EventGameEnded, models.EventPlayerResigned, models.EventDrawAccepted:
		a.broadcastToRoom(env.GameID, ok(TagGameOver, env.Payload))
	case models.EventPlayerDisconnected:
		a.broadcastToRoom(env.GameID, ok(TagOpponentDisconnected, env.Payload))
	case models.EventPlayerReconnected:
		a.broadcastToRoom(env.GameID, ok(TagOpponentReconnecting, env.Payload))
	}
}

// dispatch routes one decoded InboundMessage to the owning component
// (§6: matchmaking messages reach Matchmaker, game messages reach
// GameCore/TimeManager).
func (a *Adapter) dispatch(ctx context.Context, c *Connection, msg InboundMessage) {
	switch msg.Tag {
	case TagSearchMatch:
		a.handleSearchMatch(ctx, c, msg.Payload)
	case TagCancelSearch:
		a.handleCancelSearch(ctx, c)
	case TagGetSearchStatus:
		a.handleSearchStatus(ctx, c)
	case TagStartGame, TagRejoin:
		a.handleRejoin(ctx, c, msg.Payload)
	case TagMove:
		a.handleMove(ctx, c, msg.Payload)
	case TagResign:
		a.handleResign(ctx, c, msg.Payload)
	case TagOfferDraw:
		a.handleOfferDraw(ctx, c, msg.Payload)
	case TagAcceptDraw:
		a.handleAcceptDraw(ctx, c, msg.Payload)
	case TagDeclineDraw:
		a.handleDeclineDraw(ctx, c, msg.Payload)
	case TagOfferRematch:
		a.handleOfferRematch(ctx, c, msg.Payload)
	case TagAcceptRematch:
		a.handleAcceptRematch(ctx, c, msg.Payload)
	case TagTimeUp:
		a.handleTimeUp(ctx, c, msg.Payload)
	case TagRequestTimeSync:
		a.handleRequestTimeSync(ctx, c, msg.Payload)
	default:
		a.logger.Debug("socket: unknown inbound tag", zap.String("tag", string(msg.Tag)))
	}
}

func (a *Adapter) handleSearchMatch(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p searchMatchPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		a.sendTo(c, fail(TagSearchStatus, "malformed search_match payload"))
		return
	}

	rating := 1200
	if player, found, err := a.durable.GetPlayer(ctx, c.PlayerID); err == nil && found {
		rating = player.Ratings.Get(models.Variant(p.Variant))
	}

	tc := models.TimeControl{Time: p.TimeControl.Time, Increment: p.TimeControl.Increment}
	if err := a.matchmaker.StartSearch(ctx, c.PlayerID, models.GameType(p.GameType), models.Variant(p.Variant), tc, rating, c.ID); err != nil {
		a.sendTo(c, fail(TagSearchStatus, apperr.ClientMessage(err)))
		return
	}
	a.sendTo(c, ok(TagSearchStatus, map[string]interface{}{"searching": true}))
}

func (a *Adapter) handleCancelSearch(ctx context.Context, c *Connection) {
	if err := a.matchmaker.Cancel(ctx, c.PlayerID); err != nil {
		a.sendTo(c, fail(TagSearchStatus, apperr.ClientMessage(err)))
		return
	}
	a.sendTo(c, ok(TagSearchStatus, map[string]interface{}{"searching": false}))
}

func (a *Adapter) handleSearchStatus(ctx context.Context, c *Connection) {
	session, found, err := a.matchmaker.Status(ctx, c.PlayerID)
	if err != nil {
		a.sendTo(c, fail(TagSearchStatus, apperr.ClientMessage(err)))
		return
	}
	if !found {
		a.sendTo(c, ok(TagSearchStatus, map[string]interface{}{"searching": false}))
		return
	}
	a.sendTo(c, ok(TagSearchStatus, map[string]interface{}{
		"searching":      true,
		"currentRange":   session.CurrentRange,
		"searchDuration": session.SearchDuration(time.Now()).Milliseconds(),
	}))
}

// handleRejoin seats a connection into a game's local room and resumes the
// game's clock.
func (a *Adapter) handleRejoin(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.GameID == "" {
		a.sendTo(c, fail(TagGameOver, "malformed rejoin payload"))
		return
	}
	a.joinRoom(p.GameID, c)
	a.timeManager.Resume(p.GameID)

	a.broadcastToRoom(p.GameID, ok(TagOpponentReconnecting, map[string]interface{}{
		"gameId":   p.GameID,
		"playerId": c.PlayerID,
		"status":   "reconnected",
	}))
}

func (a *Adapter) handleMove(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p movePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		a.sendTo(c, fail(TagGameOver, "malformed move payload"))
		return
	}
	if _, err := a.core.ApplyMove(ctx, p.GameID, c.PlayerID, p.Move); err != nil {
		a.sendTo(c, fail(TagGameOver, apperr.ClientMessage(err)))
	}
	// Success is observed via the move_made (or, for a game-ending move,
	// game_ended) broadcast the bus subscription already relays to the room;
	// no direct ack needed here.
}

func (a *Adapter) handleResign(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if _, err := a.core.Resign(ctx, p.GameID, c.PlayerID); err != nil {
		a.sendTo(c, fail(TagGameOver, apperr.ClientMessage(err)))
	}
}

// handleOfferDraw relays a draw offer to every local connection in the
// game's room; the offer itself carries no durable state until accepted.
func (a *Adapter) handleOfferDraw(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	a.broadcastToRoom(p.GameID, ok(TagDrawOffered, map[string]interface{}{
		"gameId": p.GameID,
		"from":   c.PlayerID,
	}))
}

func (a *Adapter) handleAcceptDraw(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if _, err := a.core.DrawByAgreement(ctx, p.GameID, c.PlayerID); err != nil {
		a.sendTo(c, fail(TagGameOver, apperr.ClientMessage(err)))
	}
}

func (a *Adapter) handleDeclineDraw(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	a.broadcastToRoom(p.GameID, ok(TagDrawDeclined, map[string]interface{}{
		"gameId": p.GameID,
		"from":   c.PlayerID,
	}))
}

// handleOfferRematch/handleAcceptRematch implement the supplemented
// rematch flow: an offer is relayed to the room and not recorded, and an
// accept from any seated player of a finished game triggers server-side
// creation of a brand-new game with colors swapped, linked to the
// original via LiveGame.RematchOf/RematchedInto.
func (a *Adapter) handleOfferRematch(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	a.broadcastToRoom(p.GameID, ok(TagRematchOffered, map[string]interface{}{
		"gameId": p.GameID,
		"from":   c.PlayerID,
	}))
}

// handleAcceptRematch creates the rematch game server-side: it loads the
// finished LiveGame, swaps seats, opens a fresh clock, and links the two
// games via RematchOf/RematchedInto. A rematch already created for this
// game is re-announced instead of creating a second one.
func (a *Adapter) handleAcceptRematch(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.GameID == "" {
		a.sendTo(c, fail(TagRematchOffered, "malformed accept_rematch payload"))
		return
	}

	var g models.LiveGame
	found, err := a.live.GetJSON(ctx, store.LiveGameKey(p.GameID), &g)
	if err != nil {
		a.sendTo(c, fail(TagRematchOffered, apperr.ClientMessage(apperr.NewStoreUnavailable(err))))
		return
	}
	if !found || !g.GameOver {
		a.sendTo(c, fail(TagRematchOffered, "original game is not finished"))
		return
	}
	if _, seated := g.ColorOf(c.PlayerID); !seated {
		a.sendTo(c, fail(TagRematchOffered, apperr.ClientMessage(apperr.NewUnauthorized("player is not seated in this game"))))
		return
	}

	if g.RematchedInto != "" {
		a.broadcastToRoom(p.GameID, ok(TagMatchFound, map[string]interface{}{
			"gameId":    g.RematchedInto,
			"rematchOf": p.GameID,
		}))
		return
	}

	oldWhite, _ := g.ParticipantByColor(models.ColorWhite)
	oldBlack, _ := g.ParticipantByColor(models.ColorBlack)

	newGameID := uuid.NewString()
	_, err = a.core.Create(ctx, gamecore.CreateParams{
		GameID: newGameID,
		// seats swap: the side that played black now plays white
		White:       gamecore.PlayerDTO{PlayerID: oldBlack.PlayerID, Rating: oldBlack.PostRating, Provisional: a.isProvisional(ctx, oldBlack.PlayerID)},
		Black:       gamecore.PlayerDTO{PlayerID: oldWhite.PlayerID, Rating: oldWhite.PostRating, Provisional: a.isProvisional(ctx, oldWhite.PlayerID)},
		Variant:     g.Info.Variant,
		GameType:    g.Info.GameType,
		TimeControl: g.Info.TimeControl,
		LiveGameTTL: a.liveGameTTL,
		RematchOf:   p.GameID,
	})
	if err != nil {
		a.sendTo(c, fail(TagRematchOffered, apperr.ClientMessage(err)))
		return
	}

	g.RematchedInto = newGameID
	_ = a.live.SetJSON(ctx, store.LiveGameKey(p.GameID), g, 0)
	_ = a.durable.SetRematchedInto(ctx, p.GameID, newGameID)

	a.broadcastToRoom(p.GameID, ok(TagMatchFound, map[string]interface{}{
		"gameId":    newGameID,
		"rematchOf": p.GameID,
	}))
}

// isProvisional reports whether a player's durable profile marks them as
// still within the provisional-rating window (§4.4), mirroring
// Matchmaker.provisional for the rematch path.
func (a *Adapter) isProvisional(ctx context.Context, playerID string) bool {
	p, found, err := a.durable.GetPlayer(ctx, playerID)
	if err != nil || !found {
		return true
	}
	return p.IsProvisional()
}

func (a *Adapter) handleTimeUp(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p timeUpPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	timeLeftMs := a.loadTimeLeftMs(ctx, p.GameID)
	forfeited, sync := a.timeManager.ReportTimeUp(ctx, p.GameID, models.Color(p.PlayerColor), timeLeftMs)
	if forfeited {
		a.broadcastToRoom(p.GameID, ok(TagTimeUpdate, sync))
		return
	}
	a.sendTo(c, ok(TagTimeUpdate, sync))
}

func (a *Adapter) handleRequestTimeSync(ctx context.Context, c *Connection, raw json.RawMessage) {
	var p gameIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	timeLeftMs := a.loadTimeLeftMs(ctx, p.GameID)
	sync := a.timeManager.RequestSync(p.GameID, timeLeftMs)
	a.sendTo(c, ok(TagTimeUpdate, sync))
}

// loadTimeLeftMs reads the authoritative clock baseline out of LiveStore;
// TimeManager only tracks elapsed-since-last-move in memory, not the
// baseline itself.
func (a *Adapter) loadTimeLeftMs(ctx context.Context, gameID string) map[models.Color]int64 {
	var g models.LiveGame
	found, err := a.live.GetJSON(ctx, store.LiveGameKey(gameID), &g)
	if err != nil || !found {
		return map[models.Color]int64{}
	}
	return g.TimeLeftMs
}
