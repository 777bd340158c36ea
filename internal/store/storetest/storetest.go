// Package storetest holds the behavioural suite every store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/store"
)

// Factory returns an empty store; cleanup is the caller's business (t.Cleanup).
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InvitationLifecycle", func(t *testing.T) { testInvitationLifecycle(t, newStore(t)) })
	t.Run("AcceptCreatesMatch", func(t *testing.T) { testAcceptCreatesMatch(t, newStore(t)) })
	t.Run("MoveVersioning", func(t *testing.T) { testMoveVersioning(t, newStore(t)) })
	t.Run("FinishAppliesStats", func(t *testing.T) { testFinishAppliesStats(t, newStore(t)) })
	t.Run("UnratedFinish", func(t *testing.T) { testUnratedFinish(t, newStore(t)) })
	t.Run("Players", func(t *testing.T) { testPlayers(t, newStore(t)) })
	t.Run("ListLiveAndPrune", func(t *testing.T) { testListLiveAndPrune(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
}

func machine() *match.Machine {
	var mu sync.Mutex
	seq := 0
	return match.NewMachine(rules.NewEngine(),
		match.WithClock(func() time.Time { return base }),
		match.WithIDs(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("rec-%03d", seq)
		}),
	)
}

func invite(t *testing.T, m *match.Machine, channel string, rated bool) *match.Invitation {
	t.Helper()
	inv, err := m.CreateInvitation(match.Channel{}, match.InvitationRequest{
		Scope: "guild", ChannelID: channel, InitiatorID: "alice", Color: match.ColorWhite, Rated: rated,
	})
	require.NoError(t, err)
	return inv
}

func startMatch(t *testing.T, s store.Store, m *match.Machine, channel string, rated bool) *match.Match {
	t.Helper()
	ctx := context.Background()
	inv := invite(t, m, channel, rated)
	require.NoError(t, s.CreateInvitation(ctx, inv))
	acc, game, err := m.Accept(inv, "bob")
	require.NoError(t, err)
	require.NoError(t, s.AcceptInvitation(ctx, acc, inv.Version, game))
	return game
}

func testInvitationLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()

	inv := invite(t, m, "c1", true)
	require.NoError(t, s.CreateInvitation(ctx, inv))

	ch, err := s.LoadChannel(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, ch.Invitation)
	require.Nil(t, ch.Match)
	require.Equal(t, inv.ID, ch.Invitation.ID)

	second := invite(t, m, "c1", true)
	require.ErrorIs(t, s.CreateInvitation(ctx, second), store.ErrChannelBusy)

	cancelled, err := m.Cancel(inv, "alice")
	require.NoError(t, err)
	require.ErrorIs(t, s.UpdateInvitation(ctx, cancelled, inv.Version+5), store.ErrVersionConflict)
	require.NoError(t, s.UpdateInvitation(ctx, cancelled, inv.Version))

	ch, err = s.LoadChannel(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, ch.Invitation)
	require.Nil(t, ch.Match)

	stored, err := s.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, match.InvitationCancelled, stored.State)
	require.Equal(t, inv.Version+1, stored.Version)

	require.NoError(t, s.CreateInvitation(ctx, second))

	_, err = s.GetInvitation(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAcceptCreatesMatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()
	game := startMatch(t, s, m, "c1", true)

	ch, err := s.LoadChannel(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, ch.Invitation)
	require.NotNil(t, ch.Match)
	require.Equal(t, game.ID, ch.Match.ID)
	require.Equal(t, rules.White, ch.Match.SideToMove)

	inv, err := s.GetInvitation(ctx, game.InvitationID)
	require.NoError(t, err)
	require.Equal(t, match.InvitationAccepted, inv.State)
	require.Equal(t, game.ID, inv.MatchID)

	// a stale accept of the same invitation must not create a second match
	open := inv.Clone()
	open.State = match.InvitationOpen
	_, other, err := m.Accept(open, "carol")
	require.NoError(t, err)
	require.ErrorIs(t, s.AcceptInvitation(ctx, inv, 1, other), store.ErrVersionConflict)
	_, err = s.GetMatch(ctx, other.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testMoveVersioning(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()
	game := startMatch(t, s, m, "c1", true)

	next, _, err := m.SubmitText(game, "alice", "e4")
	require.NoError(t, err)
	require.NoError(t, s.SaveMatch(ctx, next, game.Version))
	require.ErrorIs(t, s.SaveMatch(ctx, next, game.Version), store.ErrVersionConflict)

	got, err := s.GetMatch(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, next.FEN, got.FEN)
	require.Equal(t, []string{"e2e4"}, got.MovesUCI)
	require.Equal(t, rules.Black, got.SideToMove)
	require.NoError(t, match.Replay(m.Engine(), got))

	_, err = s.GetMatch(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testFinishAppliesStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()
	game := startMatch(t, s, m, "c1", true)

	done, outcome, err := m.Surrender(game, "bob")
	require.NoError(t, err)
	require.NoError(t, s.FinishMatch(ctx, done, game.Version, outcome))
	// a duplicate terminal write is fenced by the version check
	require.ErrorIs(t, s.FinishMatch(ctx, done, game.Version, outcome), store.ErrVersionConflict)

	alice, err := s.GetPlayer(ctx, "guild", "alice")
	require.NoError(t, err)
	bob, err := s.GetPlayer(ctx, "guild", "bob")
	require.NoError(t, err)
	require.Equal(t, 1, alice.Wins)
	require.Equal(t, 0, alice.Losses)
	require.Equal(t, 1, bob.Losses)
	require.Equal(t, 0, bob.Wins)
	require.Equal(t, 1212, alice.Rating)
	require.Equal(t, 1188, bob.Rating)

	ch, err := s.LoadChannel(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, ch.Match)

	got, err := s.GetMatch(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, match.StateSurrendered, got.State)
	require.Equal(t, "alice", got.WinnerID)
	require.NotNil(t, got.EndedAt)
}

func testUnratedFinish(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()
	game := startMatch(t, s, m, "c1", false)

	done, outcome, err := m.Surrender(game, "alice")
	require.NoError(t, err)
	require.NoError(t, s.FinishMatch(ctx, done, game.Version, outcome))

	_, err = s.GetPlayer(ctx, "guild", "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testPlayers(t *testing.T, s store.Store) {
	ctx := context.Background()
	p, err := s.EnsurePlayer(ctx, "guild", "zoe")
	require.NoError(t, err)
	require.Equal(t, 1200, p.Rating)
	require.Equal(t, 0, p.Wins)

	again, err := s.EnsurePlayer(ctx, "guild", "zoe")
	require.NoError(t, err)
	require.Equal(t, p.ID, again.ID)

	_, err = s.EnsurePlayer(ctx, "other", "yan")
	require.NoError(t, err)

	list, err := s.ListPlayers(ctx, "guild")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "zoe", list[0].ID)
}

func testListLiveAndPrune(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()

	game := startMatch(t, s, m, "c1", true)
	pending := invite(t, m, "c2", true)
	require.NoError(t, s.CreateInvitation(ctx, pending))

	live, err := s.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)

	done, outcome, err := m.Surrender(game, "alice")
	require.NoError(t, err)
	require.NoError(t, s.FinishMatch(ctx, done, game.Version, outcome))

	live, err = s.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, pending.ID, live[0].Invitation.ID)

	n, err := s.PruneFinished(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// the accepted invitation and the finished match are terminal; the open invitation stays
	n, err = s.PruneFinished(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.GetMatch(ctx, game.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetInvitation(ctx, pending.ID)
	require.NoError(t, err)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()
	const n = 8
	invs := make([]*match.Invitation, n)
	for i := range invs {
		invs[i] = invite(t, m, "race", true)
	}

	var mu sync.Mutex
	wins, busy := 0, 0
	var g errgroup.Group
	for _, inv := range invs {
		g.Go(func() error {
			err := s.CreateInvitation(ctx, inv)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrChannelBusy):
				busy++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, wins)
	require.Equal(t, n-1, busy)
}

func testRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := machine()
	inv, err := m.CreateInvitation(match.Channel{}, match.InvitationRequest{
		Scope: "guild", ChannelID: "c9", InitiatorID: "alice", TargetID: "bob", Color: match.ColorBlack, Rated: false,
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateInvitation(ctx, inv))
	got, err := s.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.TargetID, got.TargetID)
	require.Equal(t, rules.Black, got.InitiatorColor)
	require.False(t, got.Rated)
	require.True(t, inv.CreatedAt.Equal(got.CreatedAt))

	acc, game, err := m.Accept(inv, "bob")
	require.NoError(t, err)
	require.NoError(t, s.AcceptInvitation(ctx, acc, inv.Version, game))
	for i, mv := range []string{"e4", "e5", "Nf3"} {
		actor := game.PlayerFor(game.SideToMove)
		next, _, err := m.SubmitText(game, actor, mv)
		require.NoError(t, err, "ply %d", i)
		require.NoError(t, s.SaveMatch(ctx, next, game.Version))
		game = next
	}
	stored, err := s.GetMatch(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, game.MovesSAN, stored.MovesSAN)
	require.Equal(t, game.MovesUCI, stored.MovesUCI)
	require.Equal(t, game.WhiteID, stored.WhiteID)
	require.Equal(t, game.Version, stored.Version)
	require.Equal(t, game.FEN, stored.FEN)
	require.Nil(t, stored.EndedAt)
}
