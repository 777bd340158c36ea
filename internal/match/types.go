package match

import (
	"strings"
	"time"

	"github.com/park285/cheese-matchbot/internal/rules"
)

// InvitationState represents an invitation lifecycle state.
type InvitationState string

const (
	InvitationOpen      InvitationState = "OPEN"
	InvitationAccepted  InvitationState = "ACCEPTED"
	InvitationDeclined  InvitationState = "DECLINED"
	InvitationCancelled InvitationState = "CANCELLED"
)

// Live reports whether the invitation still occupies its channel.
func (s InvitationState) Live() bool { return s == InvitationOpen }

// State represents a match lifecycle state.
type State string

const (
	StateActive      State = "ACTIVE"
	StateWhiteWon    State = "WHITE_WON"
	StateBlackWon    State = "BLACK_WON"
	StateDraw        State = "DRAW"
	StateSurrendered State = "SURRENDERED"
)

func (s State) Live() bool { return s == StateActive }

// ColorChoice is what the initiator asked for; random is resolved at creation.
type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

// ParseColorChoice maps user input to a choice. Empty input means white.
func ParseColorChoice(s string) (ColorChoice, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "white", "w":
		return ColorWhite, true
	case "black", "b":
		return ColorBlack, true
	case "random", "r", "any":
		return ColorRandom, true
	default:
		return "", false
	}
}

// Invitation is a pending or resolved challenge in one channel.
type Invitation struct {
	ID             string          `json:"id"`
	Scope          string          `json:"scope"`
	ChannelID      string          `json:"channel_id"`
	InitiatorID    string          `json:"initiator_id"`
	TargetID       string          `json:"target_id,omitempty"`
	InitiatorColor rules.Color     `json:"initiator_color"`
	Rated          bool            `json:"rated"`
	State          InvitationState `json:"state"`
	MatchID        string          `json:"match_id,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Open reports whether anyone other than the initiator may accept.
func (i *Invitation) Open() bool { return strings.TrimSpace(i.TargetID) == "" }

func (i *Invitation) Clone() *Invitation {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Match is the materialized snapshot of a game. FEN always equals the
// position reached by replaying MovesUCI from the initial position.
type Match struct {
	ID            string      `json:"id"`
	Scope         string      `json:"scope"`
	ChannelID     string      `json:"channel_id"`
	InvitationID  string      `json:"invitation_id"`
	WhiteID       string      `json:"white_id"`
	BlackID       string      `json:"black_id"`
	FEN           string      `json:"fen"`
	SideToMove    rules.Color `json:"side_to_move"`
	MovesUCI      []string    `json:"moves_uci"`
	MovesSAN      []string    `json:"moves_san"`
	State         State       `json:"state"`
	SurrenderedBy string      `json:"surrendered_by,omitempty"`
	WinnerID      string      `json:"winner_id,omitempty"`
	Method        string      `json:"method,omitempty"`
	Rated         bool        `json:"rated"`
	Version       int64       `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	EndedAt       *time.Time  `json:"ended_at,omitempty"`
}

func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.MovesUCI = append([]string(nil), m.MovesUCI...)
	c.MovesSAN = append([]string(nil), m.MovesSAN...)
	if m.EndedAt != nil {
		t := *m.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// ColorOf returns the side the player controls, or "" for non-participants.
func (m *Match) ColorOf(playerID string) rules.Color {
	switch playerID {
	case m.WhiteID:
		return rules.White
	case m.BlackID:
		return rules.Black
	default:
		return ""
	}
}

// PlayerFor returns the id of the player on the given side.
func (m *Match) PlayerFor(c rules.Color) string {
	if c == rules.White {
		return m.WhiteID
	}
	return m.BlackID
}

func (m *Match) Opponent(playerID string) string {
	switch playerID {
	case m.WhiteID:
		return m.BlackID
	case m.BlackID:
		return m.WhiteID
	default:
		return ""
	}
}

// Player carries per-scope results. Matches reference players by id only.
type Player struct {
	Scope     string    `json:"scope"`
	ID        string    `json:"id"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ratio is wins/(wins+losses); ok is false while no decisive game exists.
func (p *Player) Ratio() (float64, bool) {
	decided := p.Wins + p.Losses
	if decided == 0 {
		return 0, false
	}
	return float64(p.Wins) / float64(decided), true
}

func (p *Player) Games() int { return p.Wins + p.Losses + p.Draws }

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Outcome describes a terminal transition for statistics.
type Outcome struct {
	MatchID  string
	Scope    string
	WhiteID  string
	BlackID  string
	WinnerID string
	LoserID  string
	Draw     bool
	Method   string
	Rated    bool
}

// Channel is the live record set of one channel: at most one of the two is set.
type Channel struct {
	Invitation *Invitation
	Match      *Match
}

func (c Channel) Busy() bool {
	return (c.Invitation != nil && c.Invitation.State.Live()) || (c.Match != nil && c.Match.State.Live())
}
