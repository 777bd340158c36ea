package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyKakaoSeeMorePadding(t *testing.T) {
	require.Equal(t, "", ApplyKakaoSeeMorePadding("", "head"))

	out := ApplyKakaoSeeMorePadding("body", " head ")
	require.True(t, strings.HasPrefix(out, "head"+KakaoZeroWidthSpace))
	require.True(t, strings.HasSuffix(out, "\nbody"))
	require.Equal(t, KakaoSeeMorePadding, strings.Count(out, KakaoZeroWidthSpace))
}

func TestFoldLongReply(t *testing.T) {
	short := "one\ntwo"
	require.Equal(t, short, FoldLongReply(short, 2))
	require.Equal(t, short, FoldLongReply(short, 0))

	long := "result\n[Event]\n1. e4 e5"
	out := FoldLongReply(long, 2)
	require.True(t, strings.HasPrefix(out, "result"+KakaoZeroWidthSpace))
	require.True(t, strings.HasSuffix(out, "\n[Event]\n1. e4 e5"))
}
