package match

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/park285/cheese-matchbot/internal/rules"
)

// Machine applies lifecycle transitions. Every transition works on clones of
// its inputs and never mutates them, so callers can persist the result and
// discard it on failure.
type Machine struct {
	engine rules.Engine
	now    func() time.Time
	newID  func() string
	coin   func() bool
}

type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDs overrides record id generation.
func WithIDs(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// WithCoin overrides the random color draw; true means white.
func WithCoin(coin func() bool) Option {
	return func(m *Machine) { m.coin = coin }
}

func NewMachine(engine rules.Engine, opts ...Option) *Machine {
	m := &Machine{
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
		coin:   cryptoCoin,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Engine() rules.Engine { return m.engine }

// InvitationRequest carries the inputs of a new invitation.
type InvitationRequest struct {
	Scope       string
	ChannelID   string
	InitiatorID string
	TargetID    string
	Color       ColorChoice
	Rated       bool
}

// CreateInvitation opens a new invitation in a channel with no live record.
func (m *Machine) CreateInvitation(ch Channel, req InvitationRequest) (*Invitation, error) {
	initiator := strings.TrimSpace(req.InitiatorID)
	target := strings.TrimSpace(req.TargetID)
	channel := strings.TrimSpace(req.ChannelID)
	if initiator == "" || channel == "" {
		return nil, Forbidden("initiator and channel are required")
	}
	if target == initiator {
		return nil, Forbidden("cannot challenge yourself")
	}
	if ch.Busy() {
		return nil, Conflict("channel %s already has a live invitation or match", channel)
	}

	color := rules.White
	switch req.Color {
	case ColorBlack:
		color = rules.Black
	case ColorRandom:
		if !m.coin() {
			color = rules.Black
		}
	}

	now := m.now()
	return &Invitation{
		ID:             m.newID(),
		Scope:          strings.TrimSpace(req.Scope),
		ChannelID:      channel,
		InitiatorID:    initiator,
		TargetID:       target,
		InitiatorColor: color,
		Rated:          req.Rated,
		State:          InvitationOpen,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Accept resolves an open invitation into a fresh active match. The initiator
// plays the color fixed at creation and the acceptor the other one.
func (m *Machine) Accept(inv *Invitation, actor string) (*Invitation, *Match, error) {
	if inv == nil || inv.State != InvitationOpen {
		return nil, nil, NotFound("no open invitation")
	}
	actor = strings.TrimSpace(actor)
	if actor == inv.InitiatorID {
		return nil, nil, Forbidden("cannot accept your own invitation")
	}
	if !inv.Open() && actor != inv.TargetID {
		return nil, nil, Forbidden("invitation is addressed to another player")
	}

	now := m.now()
	next := inv.Clone()
	next.State = InvitationAccepted
	next.Version++
	next.UpdatedAt = now

	white, black := inv.InitiatorID, actor
	if inv.InitiatorColor == rules.Black {
		white, black = actor, inv.InitiatorID
	}
	game := &Match{
		ID:           m.newID(),
		Scope:        inv.Scope,
		ChannelID:    inv.ChannelID,
		InvitationID: inv.ID,
		WhiteID:      white,
		BlackID:      black,
		FEN:          rules.StartFEN,
		SideToMove:   rules.White,
		MovesUCI:     []string{},
		MovesSAN:     []string{},
		State:        StateActive,
		Rated:        inv.Rated,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	next.MatchID = game.ID
	return next, game, nil
}

// Decline is reserved to the addressed target; open invitations cannot be declined.
func (m *Machine) Decline(inv *Invitation, actor string) (*Invitation, error) {
	if inv == nil || inv.State != InvitationOpen {
		return nil, NotFound("no open invitation")
	}
	if inv.Open() {
		return nil, Forbidden("open invitations cannot be declined")
	}
	if strings.TrimSpace(actor) != inv.TargetID {
		return nil, Forbidden("only the invited player can decline")
	}
	return m.close(inv, InvitationDeclined), nil
}

// Cancel withdraws an open invitation; initiator only.
func (m *Machine) Cancel(inv *Invitation, actor string) (*Invitation, error) {
	if inv == nil || inv.State != InvitationOpen {
		return nil, NotFound("no open invitation")
	}
	if strings.TrimSpace(actor) != inv.InitiatorID {
		return nil, Forbidden("only the initiator can cancel")
	}
	return m.close(inv, InvitationCancelled), nil
}

func (m *Machine) close(inv *Invitation, state InvitationState) *Invitation {
	next := inv.Clone()
	next.State = state
	next.Version++
	next.UpdatedAt = m.now()
	return next
}

// SubmitText resolves UCI or SAN input against the current board and submits it.
func (m *Machine) SubmitText(game *Match, actor, text string) (*Match, *Outcome, error) {
	if err := m.checkTurn(game, actor); err != nil {
		return nil, nil, err
	}
	mv, err := m.engine.Resolve(game.FEN, text)
	if err != nil {
		return nil, nil, InvalidMove(err, "%q is not playable", strings.TrimSpace(text))
	}
	return m.SubmitMove(game, actor, mv)
}

// SubmitMove applies one move for the side to move. A terminal report from
// the rules engine finishes the match and yields an Outcome.
func (m *Machine) SubmitMove(game *Match, actor string, mv rules.Move) (*Match, *Outcome, error) {
	if err := m.checkTurn(game, actor); err != nil {
		return nil, nil, err
	}
	res, err := m.engine.Apply(game.FEN, mv)
	if err != nil {
		if errors.Is(err, rules.ErrBadPosition) {
			return nil, nil, fmt.Errorf("match %s has a corrupt board: %w", game.ID, err)
		}
		return nil, nil, InvalidMove(err, "%s is not legal", mv.UCI())
	}

	now := m.now()
	next := game.Clone()
	next.FEN = res.FEN
	next.SideToMove = res.SideToMove
	next.MovesUCI = append(next.MovesUCI, res.Move.UCI())
	next.MovesSAN = append(next.MovesSAN, res.SAN)
	next.Version++
	next.UpdatedAt = now

	switch res.Terminal {
	case rules.TerminalNone:
		return next, nil, nil
	case rules.TerminalCheckmate:
		if res.Winner == rules.White {
			next.State = StateWhiteWon
		} else {
			next.State = StateBlackWon
		}
		next.WinnerID = next.PlayerFor(res.Winner)
	default:
		next.State = StateDraw
	}
	next.Method = res.Method
	next.EndedAt = &now
	return next, outcomeOf(next), nil
}

// Surrender ends the match in the opponent's favour; participants only.
func (m *Machine) Surrender(game *Match, actor string) (*Match, *Outcome, error) {
	if game == nil || game.State != StateActive {
		return nil, nil, NotFound("no active match")
	}
	actor = strings.TrimSpace(actor)
	if game.ColorOf(actor) == "" {
		return nil, nil, Forbidden("only participants can surrender")
	}
	now := m.now()
	next := game.Clone()
	next.State = StateSurrendered
	next.SurrenderedBy = actor
	next.WinnerID = game.Opponent(actor)
	next.Method = "surrender"
	next.Version++
	next.UpdatedAt = now
	next.EndedAt = &now
	return next, outcomeOf(next), nil
}

func (m *Machine) checkTurn(game *Match, actor string) error {
	if game == nil || game.State != StateActive {
		return NotFound("no active match")
	}
	actor = strings.TrimSpace(actor)
	color := game.ColorOf(actor)
	if color == "" {
		return Forbidden("not a participant of this match")
	}
	if color != game.SideToMove {
		return Forbidden("it is %s to move", game.SideToMove)
	}
	return nil
}

func outcomeOf(m *Match) *Outcome {
	o := &Outcome{
		MatchID: m.ID,
		Scope:   m.Scope,
		WhiteID: m.WhiteID,
		BlackID: m.BlackID,
		Method:  m.Method,
		Rated:   m.Rated,
	}
	if m.State == StateDraw {
		o.Draw = true
		return o
	}
	o.WinnerID = m.WinnerID
	o.LoserID = m.Opponent(m.WinnerID)
	return o
}

// OutcomeOf rebuilds the outcome of a finished match; nil while it is active.
func OutcomeOf(m *Match) *Outcome {
	if m == nil || m.State.Live() {
		return nil
	}
	return outcomeOf(m)
}

// Replay checks that the stored history reproduces the stored board.
func Replay(engine rules.Engine, m *Match) error {
	fen, err := rules.Replay(engine, m.MovesUCI)
	if err != nil {
		return fmt.Errorf("replay match %s: %w", m.ID, err)
	}
	if fen != m.FEN {
		return fmt.Errorf("replay match %s: board %q does not match snapshot %q", m.ID, fen, m.FEN)
	}
	return nil
}

func cryptoCoin() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return true
	}
	return n.Int64() == 0
}
