package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUCIForms(t *testing.T) {
	cases := map[string]string{
		"e2e4":   "e2e4",
		"E2E4":   "e2e4",
		"e2-e4":  "e2e4",
		"e2 e4":  "e2e4",
		"e7e8q":  "e7e8q",
		" g1f3 ": "g1f3",
	}
	for in, want := range cases {
		mv, err := ParseUCI(in)
		require.NoError(t, err, in)
		require.Equal(t, want, mv.UCI())
	}
	for _, bad := range []string{"", "e9e4", "i2e4", "e2e4k", "Nf3", "e2e4e5"} {
		_, err := ParseUCI(bad)
		require.ErrorIs(t, err, ErrBadNotation, bad)
	}
}

func TestApplyOpeningMove(t *testing.T) {
	eng := NewEngine()
	res, err := eng.Apply(StartFEN, Move{From: "e2", To: "e4"})
	require.NoError(t, err)
	require.Equal(t, "e4", res.SAN)
	require.Equal(t, Black, res.SideToMove)
	require.Equal(t, TerminalNone, res.Terminal)
	require.Contains(t, res.FEN, "4P3")
}

func TestApplyRejectsIllegal(t *testing.T) {
	eng := NewEngine()
	_, err := eng.Apply(StartFEN, Move{From: "e2", To: "e5"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected illegal move, got %v", err)
	}
	require.False(t, eng.IsLegal(StartFEN, Move{From: "e7", To: "e5"}))
}

func TestLegalMovesFromStart(t *testing.T) {
	moves, err := NewEngine().LegalMoves(StartFEN)
	require.NoError(t, err)
	require.Len(t, moves, 20)
}

func TestBadPosition(t *testing.T) {
	_, err := NewEngine().LegalMoves("not a fen")
	require.ErrorIs(t, err, ErrBadPosition)
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	eng := NewEngine()
	fen, err := Replay(eng, []string{"f2f3", "e7e5", "g2g4"})
	require.NoError(t, err)
	res, err := eng.Apply(fen, Move{From: "d8", To: "h4"})
	require.NoError(t, err)
	require.Equal(t, TerminalCheckmate, res.Terminal)
	require.Equal(t, Black, res.Winner)
	require.Equal(t, "checkmate", res.Method)
}

func TestStalemateIsDetected(t *testing.T) {
	// queen on b6 covers a7, b7 and b8; a quiet king move leaves black without moves.
	fen := "k7/8/1Q6/8/8/8/8/7K w - - 0 1"
	res, err := NewEngine().Apply(fen, Move{From: "h1", To: "g1"})
	require.NoError(t, err)
	require.Equal(t, TerminalStalemate, res.Terminal)
	require.Equal(t, Color(""), res.Winner)
}

func TestResolveAcceptsSANAndUCI(t *testing.T) {
	eng := NewEngine()
	mv, err := eng.Resolve(StartFEN, "Nf3")
	require.NoError(t, err)
	require.Equal(t, "g1f3", mv.UCI())

	mv, err = eng.Resolve(StartFEN, "E2-E4")
	require.NoError(t, err)
	require.Equal(t, "e2e4", mv.UCI())

	_, err = eng.Resolve(StartFEN, "Qh5")
	require.ErrorIs(t, err, ErrIllegalMove)
	_, err = eng.Resolve(StartFEN, "   ")
	require.ErrorIs(t, err, ErrBadNotation)
}

func TestResolvePromotesToQueenByDefault(t *testing.T) {
	fen := "8/P6k/8/8/8/8/8/K7 w - - 0 1"
	mv, err := NewEngine().Resolve(fen, "a7a8")
	require.NoError(t, err)
	require.Equal(t, "a7a8q", mv.UCI())
}

func TestReplayReportsFailingPly(t *testing.T) {
	_, err := Replay(NewEngine(), []string{"e2e4", "e2e4"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "move 2")
}

func TestColorHelpers(t *testing.T) {
	require.Equal(t, Black, White.Other())
	require.Equal(t, White, Black.Other())
	c, ok := ParseColor("B")
	require.True(t, ok)
	require.Equal(t, Black, c)
	_, ok = ParseColor("purple")
	require.False(t, ok)
}
