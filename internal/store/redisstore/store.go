package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/obslog"
	"github.com/park285/cheese-matchbot/internal/stats"
	"github.com/park285/cheese-matchbot/internal/store"
)

const (
	defaultPrefix = "cm"
	maxTxAttempts = 16

	refInvitation = "inv:"
	refMatch      = "match:"
)

// Store keeps records as JSON values. Multi-key writes run as optimistic
// WATCH/MULTI transactions; watch contention is retried internally.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to a redis:// or rediss:// URL and pings it.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, prefix: defaultPrefix, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyInvitation(id string) string { return s.prefix + ":inv:" + strings.TrimSpace(id) }
func (s *Store) keyMatch(id string) string      { return s.prefix + ":match:" + strings.TrimSpace(id) }
func (s *Store) keyChannel(ch string) string    { return s.prefix + ":chan:" + strings.TrimSpace(ch) }
func (s *Store) keyLive() string                { return s.prefix + ":live" }
func (s *Store) keyFinished() string            { return s.prefix + ":finished" }
func (s *Store) keyPlayers(scope string) string { return s.prefix + ":players:" + strings.TrimSpace(scope) }
func (s *Store) keyPlayer(scope, id string) string {
	return s.prefix + ":player:" + strings.TrimSpace(scope) + ":" + strings.TrimSpace(id)
}

// txn runs fn under WATCH on keys and retries when another client touched them.
func (s *Store) txn(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		obslog.L().Debug("redis_tx_retry", zap.String("op", op), zap.Int("attempt", attempt))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: watch contention after %d attempts: %w", op, maxTxAttempts, err)
}

// getter is the read subset shared by the client and a watched transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c getter, key string) (*T, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

func scoreOf(t time.Time) float64 { return float64(t.UnixMilli()) }

func (s *Store) LoadChannel(ctx context.Context, channelID string) (match.Channel, error) {
	return s.loadChannel(ctx, s.rdb, channelID)
}

func (s *Store) loadChannel(ctx context.Context, c getter, channelID string) (match.Channel, error) {
	ref, err := c.Get(ctx, s.keyChannel(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return match.Channel{}, nil
	}
	if err != nil {
		return match.Channel{}, err
	}
	switch {
	case strings.HasPrefix(ref, refInvitation):
		inv, err := getJSON[match.Invitation](ctx, c, s.keyInvitation(strings.TrimPrefix(ref, refInvitation)))
		if err != nil {
			return match.Channel{}, fmt.Errorf("channel %s points at %s: %w", channelID, ref, err)
		}
		return match.Channel{Invitation: inv}, nil
	case strings.HasPrefix(ref, refMatch):
		m, err := getJSON[match.Match](ctx, c, s.keyMatch(strings.TrimPrefix(ref, refMatch)))
		if err != nil {
			return match.Channel{}, fmt.Errorf("channel %s points at %s: %w", channelID, ref, err)
		}
		return match.Channel{Match: m}, nil
	default:
		return match.Channel{}, fmt.Errorf("channel %s has malformed pointer %q", channelID, ref)
	}
}

func (s *Store) CreateInvitation(ctx context.Context, inv *match.Invitation) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	chanK, invK := s.keyChannel(inv.ChannelID), s.keyInvitation(inv.ID)
	return s.txn(ctx, "create_invitation", func(tx *redis.Tx) error {
		if err := tx.Get(ctx, chanK).Err(); err == nil {
			return store.ErrChannelBusy
		} else if !errors.Is(err, redis.Nil) {
			return err
		}
		n, err := tx.Exists(ctx, invK).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, invK, raw, 0)
			p.Set(ctx, chanK, refInvitation+inv.ID, 0)
			p.SAdd(ctx, s.keyLive(), inv.ChannelID)
			return nil
		})
		return err
	}, chanK, invK)
}

func (s *Store) checkVersion(ctx context.Context, tx *redis.Tx, key string, expected int64) error {
	type versioned struct {
		Version int64 `json:"version"`
	}
	cur, err := getJSON[versioned](ctx, tx, key)
	if err != nil {
		return err
	}
	if cur.Version != expected {
		return store.ErrVersionConflict
	}
	return nil
}

func (s *Store) UpdateInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	chanK, invK := s.keyChannel(inv.ChannelID), s.keyInvitation(inv.ID)
	return s.txn(ctx, "update_invitation", func(tx *redis.Tx) error {
		if err := s.checkVersion(ctx, tx, invK, expectedVersion); err != nil {
			return err
		}
		ref, err := tx.Get(ctx, chanK).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, invK, raw, 0)
			if !inv.State.Live() {
				if ref == refInvitation+inv.ID {
					p.Del(ctx, chanK)
					p.SRem(ctx, s.keyLive(), inv.ChannelID)
				}
				p.ZAdd(ctx, s.keyFinished(), redis.Z{Score: scoreOf(inv.UpdatedAt), Member: refInvitation + inv.ID})
			}
			return nil
		})
		return err
	}, chanK, invK)
}

func (s *Store) AcceptInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64, m *match.Match) error {
	invRaw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	matchRaw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	chanK, invK, matchK := s.keyChannel(inv.ChannelID), s.keyInvitation(inv.ID), s.keyMatch(m.ID)
	return s.txn(ctx, "accept_invitation", func(tx *redis.Tx) error {
		if err := s.checkVersion(ctx, tx, invK, expectedVersion); err != nil {
			return err
		}
		ref, err := tx.Get(ctx, chanK).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if ref != refInvitation+inv.ID {
			return store.ErrChannelBusy
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, invK, invRaw, 0)
			p.Set(ctx, matchK, matchRaw, 0)
			p.Set(ctx, chanK, refMatch+m.ID, 0)
			p.ZAdd(ctx, s.keyFinished(), redis.Z{Score: scoreOf(inv.UpdatedAt), Member: refInvitation + inv.ID})
			return nil
		})
		return err
	}, chanK, invK, matchK)
}

func (s *Store) SaveMatch(ctx context.Context, m *match.Match, expectedVersion int64) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	matchK := s.keyMatch(m.ID)
	return s.txn(ctx, "save_match", func(tx *redis.Tx) error {
		if err := s.checkVersion(ctx, tx, matchK, expectedVersion); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, matchK, raw, 0)
			return nil
		})
		return err
	}, matchK)
}

func (s *Store) FinishMatch(ctx context.Context, m *match.Match, expectedVersion int64, outcome *match.Outcome) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	at := s.now()
	if m.EndedAt != nil {
		at = *m.EndedAt
	}
	matchK, chanK := s.keyMatch(m.ID), s.keyChannel(m.ChannelID)
	whiteK, blackK := s.keyPlayer(m.Scope, m.WhiteID), s.keyPlayer(m.Scope, m.BlackID)
	return s.txn(ctx, "finish_match", func(tx *redis.Tx) error {
		if err := s.checkVersion(ctx, tx, matchK, expectedVersion); err != nil {
			return err
		}
		ref, err := tx.Get(ctx, chanK).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		white, err := optionalPlayer(ctx, tx, whiteK)
		if err != nil {
			return err
		}
		black, err := optionalPlayer(ctx, tx, blackK)
		if err != nil {
			return err
		}
		w, b, applied := stats.ApplyOutcome(white, black, outcome, at)
		var wRaw, bRaw []byte
		if applied {
			if wRaw, err = json.Marshal(w); err != nil {
				return err
			}
			if bRaw, err = json.Marshal(b); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, matchK, raw, 0)
			if ref == refMatch+m.ID {
				p.Del(ctx, chanK)
				p.SRem(ctx, s.keyLive(), m.ChannelID)
			}
			p.ZAdd(ctx, s.keyFinished(), redis.Z{Score: scoreOf(m.UpdatedAt), Member: refMatch + m.ID})
			if applied {
				p.Set(ctx, whiteK, wRaw, 0)
				p.Set(ctx, blackK, bRaw, 0)
				p.SAdd(ctx, s.keyPlayers(m.Scope), w.ID, b.ID)
			}
			return nil
		})
		return err
	}, matchK, chanK, whiteK, blackK)
}

func optionalPlayer(ctx context.Context, c getter, key string) (*match.Player, error) {
	p, err := getJSON[match.Player](ctx, c, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *Store) GetInvitation(ctx context.Context, id string) (*match.Invitation, error) {
	return getJSON[match.Invitation](ctx, s.rdb, s.keyInvitation(id))
}

func (s *Store) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	return getJSON[match.Match](ctx, s.rdb, s.keyMatch(id))
}

func (s *Store) GetPlayer(ctx context.Context, scope, id string) (*match.Player, error) {
	return getJSON[match.Player](ctx, s.rdb, s.keyPlayer(scope, id))
}

func (s *Store) EnsurePlayer(ctx context.Context, scope, id string) (*match.Player, error) {
	fresh := stats.NewPlayer(scope, id, s.now())
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}
	key := s.keyPlayer(scope, id)
	created, err := s.rdb.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.rdb.SAdd(ctx, s.keyPlayers(scope), fresh.ID).Err(); err != nil {
			return nil, err
		}
		return fresh, nil
	}
	return s.GetPlayer(ctx, scope, id)
}

func (s *Store) ListPlayers(ctx context.Context, scope string) ([]*match.Player, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyPlayers(scope)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*match.Player{}, nil
	}
	sort.Strings(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keyPlayer(scope, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*match.Player, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var p match.Player
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *Store) ListLive(ctx context.Context) ([]match.Channel, error) {
	channels, err := s.rdb.SMembers(ctx, s.keyLive()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(channels)
	out := make([]match.Channel, 0, len(channels))
	for _, ch := range channels {
		c, err := s.loadChannel(ctx, s.rdb, ch)
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
	members, err := s.rdb.ZRangeByScore(ctx, s.keyFinished(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, member := range members {
		var key string
		switch {
		case strings.HasPrefix(member, refInvitation):
			key = s.keyInvitation(strings.TrimPrefix(member, refInvitation))
		case strings.HasPrefix(member, refMatch):
			key = s.keyMatch(strings.TrimPrefix(member, refMatch))
		default:
			continue
		}
		_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.ZRem(ctx, s.keyFinished(), member)
			return nil
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
