package match

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-matchbot/internal/rules"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestMachine(opts ...Option) *Machine {
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	}
	return NewMachine(rules.NewEngine(), append(base, opts...)...)
}

func openInvitation(t *testing.T, m *Machine, target string, color ColorChoice) *Invitation {
	t.Helper()
	inv, err := m.CreateInvitation(Channel{}, InvitationRequest{
		Scope: "guild-1", ChannelID: "chan-1", InitiatorID: "alice", TargetID: target, Color: color, Rated: true,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvitation(t *testing.T) {
	m := newTestMachine()
	inv := openInvitation(t, m, "", "")
	require.Equal(t, InvitationOpen, inv.State)
	require.Equal(t, rules.White, inv.InitiatorColor)
	require.Equal(t, int64(1), inv.Version)
	require.True(t, inv.Open())

	_, err := m.CreateInvitation(Channel{}, InvitationRequest{ChannelID: "chan-1", InitiatorID: "alice", TargetID: "alice"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = m.CreateInvitation(Channel{Invitation: inv}, InvitationRequest{ChannelID: "chan-1", InitiatorID: "bob"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateInvitationConflictsWithActiveMatch(t *testing.T) {
	m := newTestMachine()
	_, game, err := m.Accept(openInvitation(t, m, "", ColorWhite), "bob")
	require.NoError(t, err)
	_, err = m.CreateInvitation(Channel{Match: game}, InvitationRequest{ChannelID: "chan-1", InitiatorID: "carol"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRandomColorIsResolvedAtCreation(t *testing.T) {
	m := newTestMachine(WithCoin(func() bool { return false }))
	inv := openInvitation(t, m, "", ColorRandom)
	require.Equal(t, rules.Black, inv.InitiatorColor)

	_, game, err := m.Accept(inv, "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", game.WhiteID)
	require.Equal(t, "alice", game.BlackID)
}

func TestOpenInvitationAcceptedByAnyone(t *testing.T) {
	m := newTestMachine()
	inv := openInvitation(t, m, "", ColorWhite)

	next, game, err := m.Accept(inv, "carol")
	require.NoError(t, err)
	require.Equal(t, InvitationAccepted, next.State)
	require.Equal(t, game.ID, next.MatchID)
	require.Equal(t, int64(2), next.Version)
	require.Equal(t, InvitationOpen, inv.State, "input must not be mutated")

	require.Equal(t, "alice", game.WhiteID)
	require.Equal(t, "carol", game.BlackID)
	require.Equal(t, rules.White, game.SideToMove)
	require.Equal(t, rules.StartFEN, game.FEN)
	require.Equal(t, StateActive, game.State)
	require.True(t, game.Rated)
}

func TestTargetedInvitationRejectsThirdParty(t *testing.T) {
	m := newTestMachine()
	inv := openInvitation(t, m, "bob", ColorBlack)

	_, _, err := m.Accept(inv, "carol")
	require.ErrorIs(t, err, ErrForbidden)
	_, _, err = m.Accept(inv, "alice")
	require.ErrorIs(t, err, ErrForbidden)

	_, game, err := m.Accept(inv, "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", game.WhiteID)
}

func TestAcceptResolvedInvitationIsNotFound(t *testing.T) {
	m := newTestMachine()
	inv := openInvitation(t, m, "", ColorWhite)
	next, _, err := m.Accept(inv, "bob")
	require.NoError(t, err)
	_, _, err = m.Accept(next, "carol")
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = m.Accept(nil, "carol")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeclineAndCancel(t *testing.T) {
	m := newTestMachine()
	targeted := openInvitation(t, m, "bob", ColorWhite)
	open := openInvitation(t, m, "", ColorWhite)

	_, err := m.Decline(open, "bob")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = m.Decline(targeted, "carol")
	require.ErrorIs(t, err, ErrForbidden)
	declined, err := m.Decline(targeted, "bob")
	require.NoError(t, err)
	require.Equal(t, InvitationDeclined, declined.State)

	_, err = m.Cancel(open, "bob")
	require.ErrorIs(t, err, ErrForbidden)
	cancelled, err := m.Cancel(open, "alice")
	require.NoError(t, err)
	require.Equal(t, InvitationCancelled, cancelled.State)

	_, err = m.Cancel(cancelled, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func startMatch(t *testing.T, m *Machine) *Match {
	t.Helper()
	_, game, err := m.Accept(openInvitation(t, m, "", ColorWhite), "bob")
	require.NoError(t, err)
	return game
}

func TestSubmitMoveEnforcesTurn(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)

	_, _, err := m.SubmitText(game, "bob", "e7e5")
	require.ErrorIs(t, err, ErrForbidden)
	_, _, err = m.SubmitText(game, "mallory", "e2e4")
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, rules.StartFEN, game.FEN)

	next, outcome, err := m.SubmitText(game, "alice", "e2e4")
	require.NoError(t, err)
	require.Nil(t, outcome)
	require.Equal(t, rules.Black, next.SideToMove)
	require.Equal(t, []string{"e2e4"}, next.MovesUCI)
	require.Equal(t, []string{"e4"}, next.MovesSAN)
	require.Equal(t, int64(2), next.Version)
	require.Empty(t, game.MovesUCI, "input must not be mutated")
}

func TestSubmitMoveRejectsIllegal(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)
	_, _, err := m.SubmitText(game, "alice", "e2e5")
	require.ErrorIs(t, err, ErrInvalidMove)
	_, _, err = m.SubmitText(game, "alice", "hello")
	require.ErrorIs(t, err, ErrInvalidMove)
	_, _, err = m.SubmitMove(game, "alice", rules.Move{From: "a1", To: "a5"})
	require.ErrorIs(t, err, ErrInvalidMove)
}

func TestDuplicateMoveIsRevalidated(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)
	next, _, err := m.SubmitText(game, "alice", "e2e4")
	require.NoError(t, err)

	// the same request delivered twice is evaluated against the advanced board
	_, _, err = m.SubmitText(next, "alice", "e2e4")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCheckmateFinishesMatch(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)
	var outcome *Outcome
	var err error
	for i, mv := range []string{"f3", "e5", "g4", "Qh4#"} {
		actor := "alice"
		if i%2 == 1 {
			actor = "bob"
		}
		game, outcome, err = m.SubmitText(game, actor, mv)
		require.NoError(t, err, mv)
	}
	require.Equal(t, StateBlackWon, game.State)
	require.Equal(t, "bob", game.WinnerID)
	require.Equal(t, "checkmate", game.Method)
	require.NotNil(t, game.EndedAt)
	require.NotNil(t, outcome)
	require.Equal(t, "bob", outcome.WinnerID)
	require.Equal(t, "alice", outcome.LoserID)
	require.False(t, outcome.Draw)
	require.NoError(t, Replay(m.Engine(), game))

	_, _, err = m.SubmitText(game, "alice", "a3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSurrender(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)

	_, _, err := m.Surrender(game, "carol")
	require.ErrorIs(t, err, ErrForbidden)

	// surrender is allowed out of turn
	next, outcome, err := m.Surrender(game, "bob")
	require.NoError(t, err)
	require.Equal(t, StateSurrendered, next.State)
	require.Equal(t, "bob", next.SurrenderedBy)
	require.Equal(t, "alice", next.WinnerID)
	require.Equal(t, "alice", outcome.WinnerID)
	require.Equal(t, "bob", outcome.LoserID)
	require.Equal(t, "surrender", outcome.Method)
	require.Equal(t, "1-0", ResultToken(next.State, next))

	_, _, err = m.Surrender(next, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplayDetectsDivergence(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)
	game, _, err := m.SubmitText(game, "alice", "d4")
	require.NoError(t, err)
	require.NoError(t, Replay(m.Engine(), game))

	game.FEN = rules.StartFEN
	require.Error(t, Replay(m.Engine(), game))
}

func TestBuildPGN(t *testing.T) {
	m := newTestMachine()
	game := startMatch(t, m)
	game, _, _ = m.SubmitText(game, "alice", "e4")
	game, _, _ = m.SubmitText(game, "bob", "e5")
	game, _, err := m.Surrender(game, "alice")
	require.NoError(t, err)

	pgn := BuildPGN(game, "Channel Match", "chan-1", map[string]string{"alice": `Al"ice`})
	require.Contains(t, pgn, `[White "Al'ice"]`)
	require.Contains(t, pgn, `[Black "bob"]`)
	require.Contains(t, pgn, `[Date "2026.03.14"]`)
	require.Contains(t, pgn, `[Termination "surrender"]`)
	require.True(t, strings.HasSuffix(pgn, "1. e4 e5 0-1"), pgn)
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict("busy"))
	require.True(t, errors.Is(err, ErrConflict))
	require.False(t, errors.Is(err, ErrNotFound))
	require.Equal(t, KindConflict, KindOf(err))
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))

	cause := errors.New("redis down")
	perr := Persistence(cause, "save match")
	require.ErrorIs(t, perr, ErrPersistence)
	require.ErrorIs(t, perr, cause)
}

func TestPlayerRatio(t *testing.T) {
	p := &Player{Wins: 3, Losses: 1, Draws: 5}
	r, ok := p.Ratio()
	require.True(t, ok)
	require.InDelta(t, 0.75, r, 1e-9)
	require.Equal(t, 9, p.Games())

	_, ok = (&Player{Draws: 2}).Ratio()
	require.False(t, ok)
}
