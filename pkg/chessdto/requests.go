package chessdto

// Meta scopes a request to a guild, a channel and the acting user.
type Meta struct {
	Scope     string
	Channel   string
	Actor     string
	ActorName string
}

// Request is the closed set of inbound commands.
type Request interface {
	RequestMeta() Meta
	isRequest()
}

type NewInvitationRequest struct {
	Meta   Meta
	Target string
	Color  string
	Rated  bool
}

type AcceptRequest struct {
	Meta         Meta
	InvitationID string
}

type DeclineRequest struct {
	Meta         Meta
	InvitationID string
}

type CancelRequest struct {
	Meta         Meta
	InvitationID string
}

type MoveRequest struct {
	Meta    Meta
	MatchID string
	Move    string
}

type ShowRequest struct {
	Meta    Meta
	MatchID string
}

type SurrenderRequest struct {
	Meta    Meta
	MatchID string
}

// StatsRequest asks for one player's record; empty PlayerID means the actor.
type StatsRequest struct {
	Meta     Meta
	PlayerID string
}

// LeaderboardRequest asks for the top players; Limit <= 0 uses the configured size.
type LeaderboardRequest struct {
	Meta  Meta
	Limit int
}

type HelpRequest struct {
	Meta Meta
}

func (r NewInvitationRequest) RequestMeta() Meta { return r.Meta }
func (r AcceptRequest) RequestMeta() Meta        { return r.Meta }
func (r DeclineRequest) RequestMeta() Meta       { return r.Meta }
func (r CancelRequest) RequestMeta() Meta        { return r.Meta }
func (r MoveRequest) RequestMeta() Meta          { return r.Meta }
func (r ShowRequest) RequestMeta() Meta          { return r.Meta }
func (r SurrenderRequest) RequestMeta() Meta     { return r.Meta }
func (r StatsRequest) RequestMeta() Meta         { return r.Meta }
func (r LeaderboardRequest) RequestMeta() Meta   { return r.Meta }
func (r HelpRequest) RequestMeta() Meta          { return r.Meta }

func (NewInvitationRequest) isRequest() {}
func (AcceptRequest) isRequest()        {}
func (DeclineRequest) isRequest()       {}
func (CancelRequest) isRequest()        {}
func (MoveRequest) isRequest()          {}
func (ShowRequest) isRequest()          {}
func (SurrenderRequest) isRequest()     {}
func (StatsRequest) isRequest()         {}
func (LeaderboardRequest) isRequest()   {}
func (HelpRequest) isRequest()          {}
