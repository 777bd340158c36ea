package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	require.NoError(t, c.Has("help", "match.finished.checkmate", "leaderboard.entry", "error.persistence"))
	require.Error(t, c.Has("no.such.key"))

	out, err := c.Render("invitation.declined", map[string]any{"Actor": "bob"})
	require.NoError(t, err)
	require.Contains(t, out, "bob")
}

func TestHelpStatesDefaultColor(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	out, err := c.Render("help", map[string]any{"Prefix": "!"})
	require.NoError(t, err)
	require.Contains(t, out, "색 생략 시 신청자가 백")
}

func TestMissingValueFails(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	_, err = c.Render("invitation.declined", map[string]any{})
	require.Error(t, err)
	require.Equal(t, "fallback", c.RenderOr("invitation.declined", map[string]any{}, "fallback"))
	require.Equal(t, "fallback", c.RenderOr("nope", nil, "fallback"))
}

func TestFuncs(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	out, err := c.Render("match.board", map[string]any{
		"White": "a", "Black": "b", "State": "ACTIVE", "FEN": "x",
		"Moves": []string{"e4", "e5"}, "Status": "s",
	})
	require.NoError(t, err)
	require.Contains(t, out, "e4 e5")
}

func TestOverridesApplyAndDetectDuplicates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  internal: \"boom {{.Code}}\"\n"), 0o644))
	c, err := New(dir)
	require.NoError(t, err)
	out, err := c.Render("error.internal", map[string]any{"Code": 7})
	require.NoError(t, err)
	require.Equal(t, "boom 7", out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("error:\n  internal: other\n"), 0o644))
	_, err = New(dir)
	require.ErrorContains(t, err, "duplicate override key")
}

func TestNonStringLeafRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("count: 3\n"), 0o644))
	_, err := New(dir)
	require.Error(t, err)
}
