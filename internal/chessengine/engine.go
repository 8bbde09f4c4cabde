// Package chessengine implements the abstract ChessEngine the core
// consumes for move legality, FEN/PGN handling, and terminal-state
// classification, backed by github.com/notnil/chess.
package chessengine

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/models"
)

// StartingFEN is the standard chess starting position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// TerminalReason mirrors models.EndReason but scoped to what the engine
// itself can determine (timeout/resignation/agreement are not engine
// states and are never returned here).
type TerminalReason = models.EndReason

// Move is the result of successfully applying a SAN move.
type Move struct {
	SAN       string
	From      string
	To        string
	Piece     string
	Captured  string
	Promotion string
}

// ApplyResult is returned by Engine.ApplyMove.
type ApplyResult struct {
	Move    Move
	NewFEN  string
	NewPGN  string
}

// Terminal describes whether a position is game-over and why.
type Terminal struct {
	Over    bool
	Reason  TerminalReason
	InCheck bool
}

// Engine is the narrow interface the core depends on; GameCore never
// imports github.com/notnil/chess directly.
type Engine interface {
	LoadFEN(fen string) (State, error)
	ApplyMove(s State, san string) (ApplyResult, State, error)
	Turn(s State) models.Color
	LegalMoves(s State) []string
	Terminal(s State) Terminal
}

// State is an opaque, engine-owned position. Callers never inspect its
// fields; they pass it back into Engine methods. lastSAN carries the
// encoded notation of the move that produced this state (standard
// algebraic notation already annotates "+"/"#" for check/checkmate), which
// is how Terminal derives InCheck without re-deriving attack tables.
type State struct {
	game    *chess.Game
	lastSAN string
}

// notnilEngine is the concrete Engine backed by github.com/notnil/chess.
type notnilEngine struct{}

// New returns the production Engine implementation.
func New() Engine { return notnilEngine{} }

func (notnilEngine) LoadFEN(fen string) (State, error) {
	fenFn, err := chess.FEN(fen)
	if err != nil {
		return State{}, apperr.New(apperr.BadRequest, fmt.Sprintf("malformed FEN: %v", err))
	}
	g := chess.NewGame(fenFn)
	return State{game: g}, nil
}

func (notnilEngine) ApplyMove(s State, san string) (ApplyResult, State, error) {
	g := s.game.Clone()

	mv, err := decodeSAN(g, san)
	if err != nil {
		return ApplyResult{}, s, apperr.NewIllegalMove(fmt.Sprintf("illegal move %q: %v", san, err))
	}

	prePos := g.Position()
	piece := prePos.Board().Piece(mv.S1())
	var captured string
	if cp := g.Position().Board().Piece(mv.S2()); cp != chess.NoPiece {
		captured = cp.String()
	}

	if err := g.Move(mv); err != nil {
		return ApplyResult{}, s, apperr.NewIllegalMove(fmt.Sprintf("illegal move %q: %v", san, err))
	}

	// SAN is encoded against the position the move was played from.
	encoded := chess.AlgebraicNotation{}.Encode(prePos, mv)
	result := ApplyResult{
		Move: Move{
			SAN:       encoded,
			From:      mv.S1().String(),
			To:        mv.S2().String(),
			Piece:     piece.String(),
			Captured:  captured,
			Promotion: promotionString(mv),
		},
		NewFEN: g.FEN(),
		NewPGN: g.String(),
	}
	return result, State{game: g, lastSAN: encoded}, nil
}

func (notnilEngine) Turn(s State) models.Color {
	if s.game.Position().Turn() == chess.White {
		return models.ColorWhite
	}
	return models.ColorBlack
}

func (notnilEngine) LegalMoves(s State) []string {
	valid := s.game.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, m := range valid {
		out = append(out, chess.AlgebraicNotation{}.Encode(s.game.Position(), m))
	}
	return out
}

func (notnilEngine) Terminal(s State) Terminal {
	method := s.game.Method()
	outcome := s.game.Outcome()
	inCheck := method == chess.Checkmate ||
		strings.HasSuffix(s.lastSAN, "+") || strings.HasSuffix(s.lastSAN, "#")

	if outcome == chess.NoOutcome {
		return Terminal{Over: false, InCheck: inCheck}
	}

	var reason TerminalReason
	switch method {
	case chess.Checkmate:
		reason = models.ReasonCheckmate
	case chess.Stalemate:
		reason = models.ReasonStalemate
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		// notnil/chess only reports ThreefoldRepetition when a player claims
		// it via Game.Draw; this server exposes no such claim message, so in
		// practice only the automatic FivefoldRepetition outcome is ever
		// reached. Both map to the same reason.
		reason = models.ReasonThreefold
	case chess.InsufficientMaterial:
		reason = models.ReasonInsufficientMaterial
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		// same split as above: FiftyMoveRule needs a claim, SeventyFiveMoveRule
		// is automatic.
		reason = models.ReasonFiftyMove
	default:
		reason = models.ReasonStalemate
	}
	return Terminal{Over: true, Reason: reason, InCheck: inCheck}
}

// decodeSAN resolves a SAN string against the current position's valid
// moves, since notnil/chess's decoders work from a candidate list rather
// than a free-form SAN parser.
func decodeSAN(g *chess.Game, san string) (*chess.Move, error) {
	notation := chess.AlgebraicNotation{}
	for _, m := range g.ValidMoves() {
		encoded := notation.Encode(g.Position(), m)
		if encoded == san {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no legal move matches SAN %q", san)
}

func promotionString(m *chess.Move) string {
	if m.Promo() == chess.NoPieceType {
		return ""
	}
	return m.Promo().String()
}

// ReplayPGN reconstructs engine state by replaying moves from an initial
// FEN, used both by GameCore.applyMove (invariant 2 of the testable
// properties) and by durable-store replay for position reconstruction.
func ReplayPGN(e Engine, initialFEN string, sans []string) (State, error) {
	s, err := e.LoadFEN(initialFEN)
	if err != nil {
		return State{}, err
	}
	for _, san := range sans {
		_, next, err := e.ApplyMove(s, san)
		if err != nil {
			return State{}, err
		}
		s = next
	}
	return s, nil
}
