package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/park285/cheese-matchbot/internal/match"
)

const (
	DefaultRating = 1200
	kFactor       = 24.0
)

// NewPlayer returns a zeroed record at the default rating.
func NewPlayer(scope, id string, at time.Time) *match.Player {
	return &match.Player{
		Scope:     strings.TrimSpace(scope),
		ID:        strings.TrimSpace(id),
		Rating:    DefaultRating,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// ApplyOutcome returns updated copies of both participants after a finished
// match: one win and one loss, or two draws, plus an Elo adjustment. Unrated
// matches return the inputs unchanged with applied=false. Nil players are
// created at the default rating.
func ApplyOutcome(white, black *match.Player, o *match.Outcome, at time.Time) (w, b *match.Player, applied bool) {
	if o == nil || !o.Rated {
		return white, black, false
	}
	w = white.Clone()
	if w == nil {
		w = NewPlayer(o.Scope, o.WhiteID, at)
	}
	b = black.Clone()
	if b == nil {
		b = NewPlayer(o.Scope, o.BlackID, at)
	}

	var scoreWhite float64
	switch {
	case o.Draw:
		w.Draws++
		b.Draws++
		scoreWhite = 0.5
	case o.WinnerID == w.ID:
		w.Wins++
		b.Losses++
		scoreWhite = 1
	default:
		w.Losses++
		b.Wins++
		scoreWhite = 0
	}

	expectedWhite := 1 / (1 + math.Pow(10, float64(b.Rating-w.Rating)/400))
	delta := int(math.Round(kFactor * (scoreWhite - expectedWhite)))
	w.Rating += delta
	b.Rating -= delta
	w.UpdatedAt = at
	b.UpdatedAt = at
	return w, b, true
}

// Rank orders players for the leaderboard: ratio desc, total games desc, id
// asc. Players without a decisive game are excluded. n <= 0 means no limit.
func Rank(players []*match.Player, n int) []*match.Player {
	out := make([]*match.Player, 0, len(players))
	for _, p := range players {
		if p == nil {
			continue
		}
		if _, ok := p.Ratio(); ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, _ := out[i].Ratio()
		rj, _ := out[j].Ratio()
		if ri != rj {
			return ri > rj
		}
		if gi, gj := out[i].Games(), out[j].Games(); gi != gj {
			return gi > gj
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
