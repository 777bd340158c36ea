package chessdto

import "time"

type InvitationView struct {
	ID             string
	InitiatorID    string
	TargetID       string
	InitiatorColor string
	Rated          bool
	State          string
	MatchID        string
	CreatedAt      time.Time
}

// MatchView is a read-only snapshot of a match for replies.
type MatchView struct {
	ID            string
	WhiteID       string
	BlackID       string
	FEN           string
	SideToMove    string
	ToMoveID      string
	MovesSAN      []string
	State         string
	Result        string
	WinnerID      string
	SurrenderedBy string
	Method        string
	Rated         bool
	Version       int64
	StartedAt     time.Time
	EndedAt       *time.Time
}

func (v MatchView) Finished() bool { return v.State != "" && v.State != "ACTIVE" }
