package command

import (
	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

func invitationView(inv *match.Invitation) chessdto.InvitationView {
	return chessdto.InvitationView{
		ID:             inv.ID,
		InitiatorID:    inv.InitiatorID,
		TargetID:       inv.TargetID,
		InitiatorColor: string(inv.InitiatorColor),
		Rated:          inv.Rated,
		State:          string(inv.State),
		MatchID:        inv.MatchID,
		CreatedAt:      inv.CreatedAt,
	}
}

func matchView(m *match.Match) chessdto.MatchView {
	v := chessdto.MatchView{
		ID:            m.ID,
		WhiteID:       m.WhiteID,
		BlackID:       m.BlackID,
		FEN:           m.FEN,
		SideToMove:    string(m.SideToMove),
		MovesSAN:      append([]string(nil), m.MovesSAN...),
		State:         string(m.State),
		Result:        match.ResultToken(m.State, m),
		WinnerID:      m.WinnerID,
		SurrenderedBy: m.SurrenderedBy,
		Method:        m.Method,
		Rated:         m.Rated,
		Version:       m.Version,
		StartedAt:     m.CreatedAt,
		EndedAt:       m.EndedAt,
	}
	if m.State.Live() {
		v.ToMoveID = m.PlayerFor(m.SideToMove)
	}
	return v
}

func playerView(p *match.Player) chessdto.PlayerView {
	ratio, ok := p.Ratio()
	return chessdto.PlayerView{
		ID:        p.ID,
		Wins:      p.Wins,
		Losses:    p.Losses,
		Draws:     p.Draws,
		Rating:    p.Rating,
		Ratio:     ratio,
		HasRatio:  ok,
		Games:     p.Games(),
		UpdatedAt: p.UpdatedAt,
	}
}

func leaderboardView(scope string, players []*match.Player) chessdto.LeaderboardView {
	v := chessdto.LeaderboardView{Scope: scope, Entries: make([]chessdto.LeaderboardEntry, 0, len(players))}
	for i, p := range players {
		v.Entries = append(v.Entries, chessdto.LeaderboardEntry{Rank: i + 1, Player: playerView(p)})
	}
	return v
}
