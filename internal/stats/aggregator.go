package stats

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/obslog"
)

// PlayerSource is the read side of the player store.
type PlayerSource interface {
	EnsurePlayer(ctx context.Context, scope, id string) (*match.Player, error)
	ListPlayers(ctx context.Context, scope string) ([]*match.Player, error)
}

// Aggregator serves stats and leaderboard queries from materialized rows.
type Aggregator struct {
	players PlayerSource
	timeout time.Duration
	size    int
	log     *zap.Logger
}

func NewAggregator(players PlayerSource, timeout time.Duration, leaderboardSize int) *Aggregator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if leaderboardSize <= 0 {
		leaderboardSize = 10
	}
	return &Aggregator{players: players, timeout: timeout, size: leaderboardSize, log: obslog.L()}
}

// Stats returns the player's record, creating it on first query.
func (a *Aggregator) Stats(ctx context.Context, scope, playerID string) (*match.Player, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, match.NotFound("player id required")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	p, err := a.players.EnsurePlayer(ctx, scope, playerID)
	if err != nil {
		a.log.Error("stats_query_error", zap.String("scope", scope), zap.String("player_id", playerID), zap.Error(err))
		return nil, match.Persistence(err, "load player %s", playerID)
	}
	return p, nil
}

// Leaderboard returns at most n ranked players of a scope; n <= 0 uses the configured size.
func (a *Aggregator) Leaderboard(ctx context.Context, scope string, n int) ([]*match.Player, error) {
	if n <= 0 {
		n = a.size
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	all, err := a.players.ListPlayers(ctx, scope)
	if err != nil {
		a.log.Error("leaderboard_query_error", zap.String("scope", scope), zap.Error(err))
		return nil, match.Persistence(err, "list players")
	}
	return Rank(all, n), nil
}
