package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/msgcat"
	"github.com/park285/cheese-matchbot/internal/registry"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/stats"
	"github.com/park285/cheese-matchbot/internal/store"
	"github.com/park285/cheese-matchbot/internal/store/memstore"
	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return newDispatcherOn(t, memstore.New())
}

func newDispatcherOn(t *testing.T, st *memstore.Store) *Dispatcher {
	t.Helper()
	reg := registry.New(st, match.NewMachine(rules.NewEngine()), registry.WithPersistTimeout(time.Second))
	cat, err := msgcat.New("")
	require.NoError(t, err)
	d, err := NewDispatcher(reg, stats.NewAggregator(st, time.Second, 10), cat, "!")
	require.NoError(t, err)
	return d
}

func as(actor string) chessdto.Meta {
	return chessdto.Meta{Scope: "g", Channel: "room", Actor: actor}
}

func TestHandleFullGame(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t)

	_, ok := d.Handle(ctx, "just chatting", as("alice"))
	require.False(t, ok)
	_, ok = d.Handle(ctx, "hi all", as("bob"))
	require.False(t, ok)

	reply, ok := d.Handle(ctx, "!challenge @bob", as("alice"))
	require.True(t, ok)
	require.Contains(t, reply, "alice")
	require.Contains(t, reply, "bob")

	reply, _ = d.Handle(ctx, "!show", as("carol"))
	require.Contains(t, reply, "alice")

	reply, _ = d.Handle(ctx, "!accept", as("bob"))
	require.Contains(t, reply, "bob")

	for _, step := range []struct{ who, text string }{
		{"alice", "!f3"}, {"bob", "!e5"}, {"alice", "!move g2g4"},
	} {
		_, err := d.Dispatch(ctx, mustParse(t, step.text, as(step.who)))
		require.NoError(t, err, step.text)
	}

	reply, _ = d.Handle(ctx, "!Qh4#", as("bob"))
	require.Contains(t, reply, "bob")
	require.Contains(t, reply, "1. f3 e5 2. g4 Qh4")
	require.Contains(t, reply, "0-1")

	reply, _ = d.Handle(ctx, "!stats", as("bob"))
	require.Contains(t, reply, "100.0%")
	require.Contains(t, reply, "1212")

	reply, _ = d.Handle(ctx, "!top", as("bob"))
	require.Contains(t, reply, "1. bob")
	require.Contains(t, reply, "2. alice")
}

func TestDispatchErrorsCarryCodes(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t)

	_, err := d.Dispatch(ctx, chessdto.AcceptRequest{Meta: as("bob")})
	var de chessdto.DomainError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "not_found", de.Code)
	require.False(t, de.Retryable)

	_, err = d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: as("alice"), Target: "alice"})
	require.True(t, errors.As(err, &de))
	require.Equal(t, "forbidden", de.Code)

	_, err = d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: as("alice")})
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: as("carol")})
	require.True(t, errors.As(err, &de))
	require.Equal(t, "conflict", de.Code)
	require.True(t, de.Retryable)
}

func TestReplyRendersErrors(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t)
	_, err := d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: as("alice")})
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, chessdto.AcceptRequest{Meta: as("bob")})
	require.NoError(t, err)

	reply := d.Reply(ctx, chessdto.MoveRequest{Meta: as("alice"), Move: "e5"})
	require.Contains(t, reply, "e5")

	reply, _ = d.Handle(ctx, "!move", as("alice"))
	require.Contains(t, reply, "!move")

	help, _ := d.Handle(ctx, "!", as("alice"))
	unknown, _ := d.Handle(ctx, "!dance", as("alice"))
	require.Equal(t, help, unknown)
}

func TestSurrenderAndShowFinished(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t)
	_, err := d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: as("alice"), Color: "black", Rated: false})
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, chessdto.AcceptRequest{Meta: as("bob")})
	require.NoError(t, err)

	reply, err := d.Dispatch(ctx, chessdto.SurrenderRequest{Meta: as("bob")})
	require.NoError(t, err)
	require.Contains(t, reply, "0-1")

	_, err = d.Dispatch(ctx, chessdto.ShowRequest{Meta: as("bob")})
	require.Error(t, err)

	reply, err = d.Dispatch(ctx, chessdto.StatsRequest{Meta: as("bob")})
	require.NoError(t, err)
	require.Contains(t, reply, "1200")
}

func TestMentionsResolveToUserIDs(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t)
	alice := chessdto.Meta{Scope: "g", Channel: "room", Actor: "u-alice", ActorName: "Alice"}
	bob := chessdto.Meta{Scope: "g", Channel: "room", Actor: "u-bob", ActorName: "Bob"}
	carol := chessdto.Meta{Scope: "g", Channel: "room", Actor: "u-carol", ActorName: "Carol"}

	d.Observe(bob)
	d.Observe(carol)
	_, err := d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: alice, Target: "Bob", Rated: true})
	require.NoError(t, err)

	live, err := d.registry.Live(ctx, "room")
	require.NoError(t, err)
	require.Equal(t, "u-bob", live.Invitation.TargetID)

	_, err = d.Dispatch(ctx, chessdto.AcceptRequest{Meta: carol})
	var de chessdto.DomainError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "forbidden", de.Code)

	reply, err := d.Dispatch(ctx, chessdto.AcceptRequest{Meta: bob})
	require.NoError(t, err)
	require.Contains(t, reply, "Bob")

	_, err = d.Dispatch(ctx, chessdto.SurrenderRequest{Meta: alice})
	require.NoError(t, err)
	reply, err = d.Dispatch(ctx, chessdto.StatsRequest{Meta: alice, PlayerID: "bob"})
	require.NoError(t, err)
	require.Contains(t, reply, "u-bob")
	require.Contains(t, reply, "1승")
}

func TestUnknownMentionIsNotFound(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	d := newDispatcherOn(t, st)
	alice := chessdto.Meta{Scope: "g", Channel: "room", Actor: "u-alice", ActorName: "Alice"}

	_, err := d.Dispatch(ctx, chessdto.StatsRequest{Meta: alice, PlayerID: "ghost"})
	var de chessdto.DomainError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "not_found", de.Code)

	_, err = st.GetPlayer(ctx, "g", "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: alice, Target: "ghost"})
	require.True(t, errors.As(err, &de))
	require.Equal(t, "not_found", de.Code)
	live, err := d.registry.Live(ctx, "room")
	require.NoError(t, err)
	require.False(t, live.Busy())
}

func TestAmbiguousMention(t *testing.T) {
	d := newDispatcher(t)
	d.Observe(chessdto.Meta{Scope: "g", Actor: "u1", ActorName: "Kim"})
	d.Observe(chessdto.Meta{Scope: "g", Actor: "u2", ActorName: "kim"})
	_, err := d.people.resolve("g", "Kim")
	require.ErrorIs(t, err, match.ErrNotFound)
	id, err := d.people.resolve("g", "u2")
	require.NoError(t, err)
	require.Equal(t, "u2", id)
	_, err = d.people.resolve("other", "u2")
	require.ErrorIs(t, err, match.ErrNotFound)
}

func TestUnknownColorIsUsageError(t *testing.T) {
	ctx := context.Background()
	d := newDispatcher(t)
	_, err := d.Dispatch(ctx, chessdto.NewInvitationRequest{Meta: as("alice"), Color: "purple"})
	var de chessdto.DomainError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "usage", de.Code)
	require.Equal(t, "!challenge [@user] [white|black|random] [unrated]", de.Message)

	reply := d.Reply(ctx, chessdto.NewInvitationRequest{Meta: as("alice"), Color: "purple"})
	require.Contains(t, reply, "사용법: !challenge")
}

func TestNewDispatcherRequiresDeps(t *testing.T) {
	_, err := NewDispatcher(nil, nil, nil, "!")
	require.Error(t, err)
}

func TestDomainErrorMapping(t *testing.T) {
	de := domainError(match.InvalidMove(rules.ErrIllegalMove, "e5 is not legal"))
	require.Equal(t, "invalid_move", de.Code)
	require.Equal(t, "e5 is not legal", de.Message)

	de = domainError(errors.New("boom"))
	require.Equal(t, "internal", de.Code)
}

func mustParse(t *testing.T, text string, m chessdto.Meta) chessdto.Request {
	t.Helper()
	req, err := Parse("!", text, m)
	require.NoError(t, err)
	return req
}
