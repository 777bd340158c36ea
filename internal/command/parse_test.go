package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

var meta = chessdto.Meta{Scope: "g", Channel: "room", Actor: "u1", ActorName: "Alice"}

func TestParseIgnoresUnprefixedText(t *testing.T) {
	_, err := Parse("!", "hello there", meta)
	require.ErrorIs(t, err, ErrNotCommand)
	_, err = Parse("", "!help", meta)
	require.ErrorIs(t, err, ErrNotCommand)
}

func TestParseVariants(t *testing.T) {
	cases := []struct {
		text string
		want chessdto.Request
	}{
		{"!", chessdto.HelpRequest{Meta: meta}},
		{"!help", chessdto.HelpRequest{Meta: meta}},
		{"!challenge @bob black", chessdto.NewInvitationRequest{Meta: meta, Target: "bob", Color: "black", Rated: true}},
		{"!도전 랜덤 친선", chessdto.NewInvitationRequest{Meta: meta, Color: "random", Rated: false}},
		{"!challenge", chessdto.NewInvitationRequest{Meta: meta, Rated: true}},
		{"!accept", chessdto.AcceptRequest{Meta: meta}},
		{"!수락 #abc", chessdto.AcceptRequest{Meta: meta, InvitationID: "abc"}},
		{"!decline abc", chessdto.DeclineRequest{Meta: meta, InvitationID: "abc"}},
		{"!취소", chessdto.CancelRequest{Meta: meta}},
		{"!move e2e4", chessdto.MoveRequest{Meta: meta, Move: "e2e4"}},
		{"!m e2 e4", chessdto.MoveRequest{Meta: meta, Move: "e2 e4"}},
		{"!Nf3", chessdto.MoveRequest{Meta: meta, Move: "Nf3"}},
		{"! O-O", chessdto.MoveRequest{Meta: meta, Move: "O-O"}},
		{"!exd8=Q+", chessdto.MoveRequest{Meta: meta, Move: "exd8=Q+"}},
		{"!show", chessdto.ShowRequest{Meta: meta}},
		{"!현황 m-1", chessdto.ShowRequest{Meta: meta, MatchID: "m-1"}},
		{"!resign", chessdto.SurrenderRequest{Meta: meta}},
		{"!stats", chessdto.StatsRequest{Meta: meta}},
		{"!전적 @carol", chessdto.StatsRequest{Meta: meta, PlayerID: "carol"}},
		{"!top", chessdto.LeaderboardRequest{Meta: meta}},
		{"!랭킹 5", chessdto.LeaderboardRequest{Meta: meta, Limit: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := Parse("!", tc.text, meta)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseUsageErrors(t *testing.T) {
	for _, text := range []string{
		"!move",
		"!challenge bob carol",
		"!top zero",
		"!top -3",
		"!accept a b",
		"!stats a b",
	} {
		_, err := Parse("!", text, meta)
		var usage *UsageError
		require.True(t, errors.As(err, &usage), text)
		require.NotEmpty(t, usage.Usage)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("!", "!dance now", meta)
	require.ErrorIs(t, err, ErrUnknown)
	_, err = Parse("!", "!hello", meta)
	require.ErrorIs(t, err, ErrUnknown)
}

func TestLooksLikeMove(t *testing.T) {
	for _, s := range []string{"e4", "exd5", "Nbd7", "R1a3", "Qh4#", "O-O-O", "e7e8q", "E2-E4", "g7g8N"} {
		require.True(t, looksLikeMove(s), s)
	}
	for _, s := range []string{"hello", "e9", "z1z2", "Kk", ""} {
		require.False(t, looksLikeMove(s), s)
	}
}
