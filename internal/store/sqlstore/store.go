package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/stats"
	"github.com/park285/cheese-matchbot/internal/store"
	"github.com/park285/cheese-matchbot/internal/store/sqlstore/migrations"
)

// Dialect selects placeholder style and locking clauses.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const (
	kindInvitation = "invitation"
	kindMatch      = "match"
)

// Store keeps invitations, matches and players as rows. The channel_live
// table's primary key enforces one live record per channel.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// OpenPostgres connects with lib/pq and applies migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newStore(ctx, db, DialectPostgres)
}

// OpenSQLite opens (or creates) an embedded database file and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer connection; transactions serialize in process
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return newStore(ctx, db, DialectSQLite)
}

func newStore(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, now: time.Now}
	if err := s.applyMigrations(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate locks selected rows on Postgres; SQLite already serializes writers.
func (s *Store) forUpdate() string {
	if s.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const invitationColumns = `id, scope, channel_id, initiator_id, target_id, initiator_color, rated, state, match_id, version, created_at, updated_at`

func scanInvitation(row *sql.Row) (*match.Invitation, error) {
	var (
		inv                  match.Invitation
		color, state         string
		rated                int
		createdAt, updatedAt int64
	)
	err := row.Scan(&inv.ID, &inv.Scope, &inv.ChannelID, &inv.InitiatorID, &inv.TargetID, &color, &rated, &state,
		&inv.MatchID, &inv.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.InitiatorColor = rules.Color(color)
	inv.State = match.InvitationState(state)
	inv.Rated = rated != 0
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return &inv, nil
}

const matchColumns = `id, scope, channel_id, invitation_id, white_id, black_id, fen, side_to_move, moves_uci, moves_san, state, surrendered_by, winner_id, method, rated, version, created_at, updated_at, ended_at`

func scanMatch(row *sql.Row) (*match.Match, error) {
	var (
		m                    match.Match
		side, state          string
		movesUCI, movesSAN   string
		rated                int
		createdAt, updatedAt int64
		endedAt              sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.Scope, &m.ChannelID, &m.InvitationID, &m.WhiteID, &m.BlackID, &m.FEN, &side,
		&movesUCI, &movesSAN, &state, &m.SurrenderedBy, &m.WinnerID, &m.Method, &rated, &m.Version,
		&createdAt, &updatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(movesUCI), &m.MovesUCI); err != nil {
		return nil, fmt.Errorf("decode moves_uci of %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(movesSAN), &m.MovesSAN); err != nil {
		return nil, fmt.Errorf("decode moves_san of %s: %w", m.ID, err)
	}
	m.SideToMove = rules.Color(side)
	m.State = match.State(state)
	m.Rated = rated != 0
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		m.EndedAt = &t
	}
	return &m, nil
}

func matchArgs(m *match.Match) ([]any, error) {
	uci, err := json.Marshal(nonNil(m.MovesUCI))
	if err != nil {
		return nil, err
	}
	san, err := json.Marshal(nonNil(m.MovesSAN))
	if err != nil {
		return nil, err
	}
	var ended any
	if m.EndedAt != nil {
		ended = toMillis(*m.EndedAt)
	}
	return []any{
		m.Scope, m.ChannelID, m.InvitationID, m.WhiteID, m.BlackID, m.FEN, string(m.SideToMove),
		string(uci), string(san), string(m.State), m.SurrenderedBy, m.WinnerID, m.Method, boolInt(m.Rated),
		m.Version, toMillis(m.CreatedAt), toMillis(m.UpdatedAt), ended,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Store) getInvitation(ctx context.Context, q queryer, id string) (*match.Invitation, error) {
	return scanInvitation(q.QueryRowContext(ctx, s.rebind(`SELECT `+invitationColumns+` FROM invitations WHERE id = ?`), id))
}

func (s *Store) getMatch(ctx context.Context, q queryer, id string) (*match.Match, error) {
	return scanMatch(q.QueryRowContext(ctx, s.rebind(`SELECT `+matchColumns+` FROM matches WHERE id = ?`), id))
}

func (s *Store) LoadChannel(ctx context.Context, channelID string) (match.Channel, error) {
	var kind, recordID string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT kind, record_id FROM channel_live WHERE channel_id = ?`), strings.TrimSpace(channelID)).Scan(&kind, &recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return match.Channel{}, nil
	}
	if err != nil {
		return match.Channel{}, err
	}
	switch kind {
	case kindInvitation:
		inv, err := s.getInvitation(ctx, s.db, recordID)
		if err != nil {
			return match.Channel{}, fmt.Errorf("channel %s points at invitation %s: %w", channelID, recordID, err)
		}
		return match.Channel{Invitation: inv}, nil
	case kindMatch:
		m, err := s.getMatch(ctx, s.db, recordID)
		if err != nil {
			return match.Channel{}, fmt.Errorf("channel %s points at match %s: %w", channelID, recordID, err)
		}
		return match.Channel{Match: m}, nil
	default:
		return match.Channel{}, fmt.Errorf("channel %s has unknown live kind %q", channelID, kind)
	}
}

func (s *Store) CreateInvitation(ctx context.Context, inv *match.Invitation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO channel_live (channel_id, kind, record_id) VALUES (?, ?, ?)`),
			inv.ChannelID, kindInvitation, inv.ID)
		if isUniqueViolation(err) {
			return store.ErrChannelBusy
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			inv.ID, inv.Scope, inv.ChannelID, inv.InitiatorID, inv.TargetID, string(inv.InitiatorColor), boolInt(inv.Rated),
			string(inv.State), inv.MatchID, inv.Version, toMillis(inv.CreatedAt), toMillis(inv.UpdatedAt))
		if isUniqueViolation(err) {
			return store.ErrVersionConflict
		}
		return err
	})
}

// casResult turns a zero-row CAS update into NotFound or VersionConflict.
func (s *Store) casResult(ctx context.Context, tx *sql.Tx, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM `+table+` WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrVersionConflict
}

func (s *Store) updateInvitation(ctx context.Context, tx *sql.Tx, inv *match.Invitation, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE invitations SET state = ?, match_id = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`),
		string(inv.State), inv.MatchID, inv.Version, toMillis(inv.UpdatedAt), inv.ID, expectedVersion)
	if err != nil {
		return err
	}
	return s.casResult(ctx, tx, res, "invitations", inv.ID)
}

func (s *Store) UpdateInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateInvitation(ctx, tx, inv, expectedVersion); err != nil {
			return err
		}
		if inv.State.Live() {
			return nil
		}
		_, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM channel_live WHERE channel_id = ? AND record_id = ?`), inv.ChannelID, inv.ID)
		return err
	})
}

func (s *Store) AcceptInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64, m *match.Match) error {
	args, err := matchArgs(m)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateInvitation(ctx, tx, inv, expectedVersion); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE channel_live SET kind = ?, record_id = ? WHERE channel_id = ? AND kind = ? AND record_id = ?`),
			kindMatch, m.ID, inv.ChannelID, kindInvitation, inv.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return store.ErrChannelBusy
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO matches (`+matchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			append([]any{m.ID}, args...)...)
		if isUniqueViolation(err) {
			return store.ErrVersionConflict
		}
		return err
	})
}

func (s *Store) updateMatch(ctx context.Context, tx *sql.Tx, m *match.Match, expectedVersion int64) error {
	args, err := matchArgs(m)
	if err != nil {
		return err
	}
	q := `UPDATE matches SET scope = ?, channel_id = ?, invitation_id = ?, white_id = ?, black_id = ?, fen = ?, side_to_move = ?,
	  moves_uci = ?, moves_san = ?, state = ?, surrendered_by = ?, winner_id = ?, method = ?, rated = ?, version = ?,
	  created_at = ?, updated_at = ?, ended_at = ?
	  WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, s.rebind(q), append(args, m.ID, expectedVersion)...)
	if err != nil {
		return err
	}
	return s.casResult(ctx, tx, res, "matches", m.ID)
}

func (s *Store) SaveMatch(ctx context.Context, m *match.Match, expectedVersion int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateMatch(ctx, tx, m, expectedVersion)
	})
}

func (s *Store) FinishMatch(ctx context.Context, m *match.Match, expectedVersion int64, outcome *match.Outcome) error {
	at := s.now()
	if m.EndedAt != nil {
		at = *m.EndedAt
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateMatch(ctx, tx, m, expectedVersion); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM channel_live WHERE channel_id = ? AND record_id = ?`), m.ChannelID, m.ID); err != nil {
			return err
		}
		if outcome == nil || !outcome.Rated {
			return nil
		}
		return s.applyOutcome(ctx, tx, m, outcome, at)
	})
}

// applyOutcome seeds missing player rows, locks both, and writes the updated counters.
func (s *Store) applyOutcome(ctx context.Context, tx *sql.Tx, m *match.Match, outcome *match.Outcome, at time.Time) error {
	for _, id := range []string{m.WhiteID, m.BlackID} {
		if err := s.insertPlayer(ctx, tx, stats.NewPlayer(m.Scope, id, at)); err != nil {
			return err
		}
	}
	rows, err := tx.QueryContext(ctx, s.rebind(`SELECT `+playerColumns+` FROM players WHERE scope = ? AND id IN (?, ?) ORDER BY id`+s.forUpdate()),
		m.Scope, m.WhiteID, m.BlackID)
	if err != nil {
		return err
	}
	byID := make(map[string]*match.Player, 2)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			rows.Close()
			return err
		}
		byID[p.ID] = p
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w, b, applied := stats.ApplyOutcome(byID[m.WhiteID], byID[m.BlackID], outcome, at)
	if !applied {
		return nil
	}
	for _, p := range []*match.Player{w, b} {
		_, err := tx.ExecContext(ctx, s.rebind(`UPDATE players SET wins = ?, losses = ?, draws = ?, rating = ?, updated_at = ? WHERE scope = ? AND id = ?`),
			p.Wins, p.Losses, p.Draws, p.Rating, toMillis(p.UpdatedAt), p.Scope, p.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

const playerColumns = `scope, id, wins, losses, draws, rating, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (*match.Player, error) {
	var (
		p                    match.Player
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.Scope, &p.ID, &p.Wins, &p.Losses, &p.Draws, &p.Rating, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertPlayer(ctx context.Context, e execer, p *match.Player) error {
	_, err := e.ExecContext(ctx, s.rebind(`INSERT INTO players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (scope, id) DO NOTHING`),
		p.Scope, p.ID, p.Wins, p.Losses, p.Draws, p.Rating, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	return err
}

func (s *Store) GetInvitation(ctx context.Context, id string) (*match.Invitation, error) {
	return s.getInvitation(ctx, s.db, id)
}

func (s *Store) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	return s.getMatch(ctx, s.db, id)
}

func (s *Store) GetPlayer(ctx context.Context, scope, id string) (*match.Player, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+playerColumns+` FROM players WHERE scope = ? AND id = ?`),
		strings.TrimSpace(scope), strings.TrimSpace(id))
	return scanPlayer(row)
}

func (s *Store) EnsurePlayer(ctx context.Context, scope, id string) (*match.Player, error) {
	if err := s.insertPlayer(ctx, s.db, stats.NewPlayer(scope, id, s.now())); err != nil {
		return nil, err
	}
	return s.GetPlayer(ctx, scope, id)
}

func (s *Store) ListPlayers(ctx context.Context, scope string) ([]*match.Player, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+playerColumns+` FROM players WHERE scope = ? ORDER BY id`), strings.TrimSpace(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*match.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListLive(ctx context.Context) ([]match.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM channel_live ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	var channels []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			rows.Close()
			return nil, err
		}
		channels = append(channels, ch)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]match.Channel, 0, len(channels))
	for _, ch := range channels {
		c, err := s.LoadChannel(ctx, ch)
		if err != nil {
			return nil, err
		}
		if c.Invitation == nil && c.Match == nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) PruneFinished(ctx context.Context, before time.Time) (int, error) {
	cutoff := toMillis(before)
	total := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM invitations WHERE state <> ? AND updated_at < ?`), string(match.InvitationOpen), cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += int(n)
		res, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM matches WHERE state <> ? AND updated_at < ?`), string(match.StateActive), cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		total += int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
