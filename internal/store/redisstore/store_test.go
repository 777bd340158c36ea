package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/store"
	"github.com/park285/cheese-matchbot/internal/store/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
	_, err = Open(context.Background(), "http://localhost:6379")
	require.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	m := match.NewMachine(rules.NewEngine(), match.WithIDs(func() string { return "abc" }))
	inv, err := m.CreateInvitation(match.Channel{}, match.InvitationRequest{ChannelID: "room-7", InitiatorID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.CreateInvitation(ctx, inv))

	ptr, err := mr.Get("cm:chan:room-7")
	require.NoError(t, err)
	require.Equal(t, "inv:abc", ptr)
	require.True(t, mr.Exists("cm:inv:abc"))
	ok, err := mr.SIsMember("cm:live", "room-7")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStateSurvivesNewClient(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	m := match.NewMachine(rules.NewEngine())
	inv, err := m.CreateInvitation(match.Channel{}, match.InvitationRequest{ChannelID: "c", InitiatorID: "u1", Rated: true})
	require.NoError(t, err)
	require.NoError(t, s.CreateInvitation(ctx, inv))
	acc, game, err := m.Accept(inv, "u2")
	require.NoError(t, err)
	require.NoError(t, s.AcceptInvitation(ctx, acc, inv.Version, game))
	next, _, err := m.SubmitText(game, "u1", "d4")
	require.NoError(t, err)
	require.NoError(t, s.SaveMatch(ctx, next, game.Version))

	fresh := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer fresh.Close()
	ch, err := fresh.LoadChannel(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, ch.Match)
	require.Equal(t, next.FEN, ch.Match.FEN)
	require.Equal(t, next.Version, ch.Match.Version)
}

func TestDanglingPointerIsReported(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("cm:chan:ghost", "match:nope"))
	_, err := s.LoadChannel(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mr.Set("cm:chan:weird", "???"))
	_, err = s.LoadChannel(context.Background(), "weird")
	require.Error(t, err)
}

func TestBackendErrorIsNotNotFound(t *testing.T) {
	s, mr := newTestStore(t)
	mr.SetError("ERR server exploded")
	defer mr.SetError("")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.GetMatch(ctx, "x")
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound)
}
