package chessengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesscore/realtime/internal/chessengine"
)

func TestApplyMoveAdvancesTurn(t *testing.T) {
	e := chessengine.New()
	s, err := e.LoadFEN(chessengine.StartingFEN)
	require.NoError(t, err)
	assert.Equal(t, "white", string(e.Turn(s)))

	_, next, err := e.ApplyMove(s, "e4")
	require.NoError(t, err)
	assert.Equal(t, "black", string(e.Turn(next)))
}

func TestApplyMoveRejectsIllegalSAN(t *testing.T) {
	e := chessengine.New()
	s, err := e.LoadFEN(chessengine.StartingFEN)
	require.NoError(t, err)

	_, _, err = e.ApplyMove(s, "e5")
	assert.Error(t, err)
}

func TestReplayPGNReconstructsState(t *testing.T) {
	e := chessengine.New()
	s, err := chessengine.ReplayPGN(e, chessengine.StartingFEN, []string{"e4", "e5", "Nf3"})
	require.NoError(t, err)
	assert.Equal(t, "black", string(e.Turn(s)))
	assert.False(t, e.Terminal(s).Over)
}

func TestTerminalDetectsFoolsMateCheckmate(t *testing.T) {
	e := chessengine.New()
	s, err := chessengine.ReplayPGN(e, chessengine.StartingFEN, []string{"f3", "e5", "g4", "Qh4#"})
	require.NoError(t, err)
	term := e.Terminal(s)
	assert.True(t, term.Over)
	assert.Equal(t, "checkmate", string(term.Reason))
}

func TestLegalMovesNonEmptyAtStart(t *testing.T) {
	e := chessengine.New()
	s, err := e.LoadFEN(chessengine.StartingFEN)
	require.NoError(t, err)
	assert.Len(t, e.LegalMoves(s), 20)
}
