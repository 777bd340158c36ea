package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/store"
	"github.com/park285/cheese-matchbot/internal/store/storetest"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "matches.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := openTemp(t)
		return s
	})
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", pg.rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)"))
	require.Equal(t, " FOR UPDATE", pg.forUpdate())

	lite := &Store{dialect: DialectSQLite}
	require.Equal(t, "x = ?", lite.rebind("x = ?"))
	require.Equal(t, "", lite.forUpdate())
}

func TestExtractUp(t *testing.T) {
	body := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	require.Equal(t, "\nCREATE TABLE a (x INT);\n", extractUp(body))
	require.Equal(t, "CREATE TABLE b (y INT);", extractUp("CREATE TABLE b (y INT);"))
}

func TestReopenKeepsStateAndSkipsMigrations(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	m := match.NewMachine(rules.NewEngine())

	inv, err := m.CreateInvitation(match.Channel{}, match.InvitationRequest{ChannelID: "c", InitiatorID: "u1", Rated: true})
	require.NoError(t, err)
	require.NoError(t, s.CreateInvitation(ctx, inv))
	acc, game, err := m.Accept(inv, "u2")
	require.NoError(t, err)
	require.NoError(t, s.AcceptInvitation(ctx, acc, inv.Version, game))
	next, _, err := m.SubmitText(game, "u1", "e4")
	require.NoError(t, err)
	require.NoError(t, s.SaveMatch(ctx, next, game.Version))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	var applied int
	require.NoError(t, reopened.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	require.Equal(t, 2, applied)

	ch, err := reopened.LoadChannel(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, ch.Match)
	require.Equal(t, next.FEN, ch.Match.FEN)
	require.Equal(t, []string{"e4"}, ch.Match.MovesSAN)
	require.NoError(t, match.Replay(m.Engine(), ch.Match))
}

func TestOpenValidation(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	require.Error(t, err)
	_, err = OpenPostgres(context.Background(), "")
	require.Error(t, err)
}
