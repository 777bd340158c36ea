package registry

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/store"
)

// NewInvitation opens an invitation in an idle channel.
func (r *Registry) NewInvitation(ctx context.Context, req match.InvitationRequest) (*match.Invitation, error) {
	channel := channelKey(req.ChannelID)
	var out *match.Invitation
	err := r.write(ctx, channel, func(ctx context.Context, e *entry) error {
		inv, err := r.machine.CreateInvitation(e.state, req)
		if err != nil {
			return err
		}
		if err := r.persist(ctx, "create invitation", channel, e, func(ctx context.Context) error {
			return r.store.CreateInvitation(ctx, inv)
		}); err != nil {
			return err
		}
		e.state = match.Channel{Invitation: inv}
		out = inv.Clone()
		r.log.Info("invitation_create",
			zap.String("channel_id", channel),
			zap.String("invitation_id", inv.ID),
			zap.String("initiator_id", inv.InitiatorID),
			zap.String("target_id", inv.TargetID),
			zap.String("initiator_color", string(inv.InitiatorColor)),
			zap.Bool("rated", inv.Rated),
		)
		return nil
	})
	return out, err
}

// Accept starts a match from the channel's open invitation. invitationID is
// optional; a non-empty id must name the open invitation.
func (r *Registry) Accept(ctx context.Context, channel, invitationID, actor string) (*match.Invitation, *match.Match, error) {
	channel = channelKey(channel)
	var (
		outInv   *match.Invitation
		outMatch *match.Match
	)
	err := r.write(ctx, channel, func(ctx context.Context, e *entry) error {
		inv, err := openInvitation(e, invitationID)
		if err != nil {
			return err
		}
		accepted, game, err := r.machine.Accept(inv, actor)
		if err != nil {
			return err
		}
		if err := r.persist(ctx, "accept invitation", channel, e, func(ctx context.Context) error {
			return r.store.AcceptInvitation(ctx, accepted, inv.Version, game)
		}); err != nil {
			return err
		}
		e.state = match.Channel{Match: game}
		outInv, outMatch = accepted.Clone(), game.Clone()
		r.log.Info("match_start",
			zap.String("channel_id", channel),
			zap.String("match_id", game.ID),
			zap.String("invitation_id", accepted.ID),
			zap.String("white_id", game.WhiteID),
			zap.String("black_id", game.BlackID),
		)
		return nil
	})
	return outInv, outMatch, err
}

// Decline resolves the open invitation as DECLINED; target only.
func (r *Registry) Decline(ctx context.Context, channel, invitationID, actor string) (*match.Invitation, error) {
	return r.closeInvitation(ctx, "decline invitation", channel, invitationID, actor, r.machine.Decline)
}

// Cancel resolves the open invitation as CANCELLED; initiator only.
func (r *Registry) Cancel(ctx context.Context, channel, invitationID, actor string) (*match.Invitation, error) {
	return r.closeInvitation(ctx, "cancel invitation", channel, invitationID, actor, r.machine.Cancel)
}

func (r *Registry) closeInvitation(
	ctx context.Context, op, channel, invitationID, actor string,
	transition func(*match.Invitation, string) (*match.Invitation, error),
) (*match.Invitation, error) {
	channel = channelKey(channel)
	var out *match.Invitation
	err := r.write(ctx, channel, func(ctx context.Context, e *entry) error {
		inv, err := openInvitation(e, invitationID)
		if err != nil {
			return err
		}
		closed, err := transition(inv, actor)
		if err != nil {
			return err
		}
		if err := r.persist(ctx, op, channel, e, func(ctx context.Context) error {
			return r.store.UpdateInvitation(ctx, closed, inv.Version)
		}); err != nil {
			return err
		}
		e.state = match.Channel{}
		out = closed.Clone()
		r.log.Info("invitation_close",
			zap.String("channel_id", channel),
			zap.String("invitation_id", closed.ID),
			zap.String("state", string(closed.State)),
			zap.String("actor_id", actor),
		)
		return nil
	})
	return out, err
}

// Move applies UCI or SAN text to the channel's active match. A terminal
// move also returns the outcome, which the store has already applied.
func (r *Registry) Move(ctx context.Context, channel, matchID, actor, text string) (*match.Match, *match.Outcome, error) {
	return r.advance(ctx, "move", channel, matchID, func(game *match.Match) (*match.Match, *match.Outcome, error) {
		return r.machine.SubmitText(game, actor, text)
	})
}

// Surrender ends the channel's active match in the opponent's favour.
func (r *Registry) Surrender(ctx context.Context, channel, matchID, actor string) (*match.Match, *match.Outcome, error) {
	return r.advance(ctx, "surrender", channel, matchID, func(game *match.Match) (*match.Match, *match.Outcome, error) {
		return r.machine.Surrender(game, actor)
	})
}

func (r *Registry) advance(
	ctx context.Context, op, channel, matchID string,
	transition func(*match.Match) (*match.Match, *match.Outcome, error),
) (*match.Match, *match.Outcome, error) {
	channel = channelKey(channel)
	var (
		outMatch   *match.Match
		outOutcome *match.Outcome
	)
	err := r.write(ctx, channel, func(ctx context.Context, e *entry) error {
		game, err := activeMatch(e, matchID)
		if err != nil {
			return err
		}
		next, outcome, err := transition(game)
		if err != nil {
			return err
		}
		if outcome == nil {
			err = r.persist(ctx, op, channel, e, func(ctx context.Context) error {
				return r.store.SaveMatch(ctx, next, game.Version)
			})
		} else {
			err = r.persist(ctx, op, channel, e, func(ctx context.Context) error {
				return r.store.FinishMatch(ctx, next, game.Version, outcome)
			})
		}
		if err != nil {
			return err
		}

		if outcome == nil {
			e.state = match.Channel{Match: next}
			r.log.Debug("match_move",
				zap.String("channel_id", channel),
				zap.String("match_id", next.ID),
				zap.Int("ply", len(next.MovesUCI)),
				zap.String("fen", next.FEN),
			)
		} else {
			e.state = match.Channel{}
			r.log.Info("match_finish",
				zap.String("channel_id", channel),
				zap.String("match_id", next.ID),
				zap.String("state", string(next.State)),
				zap.String("method", next.Method),
				zap.String("winner_id", next.WinnerID),
				zap.Int("ply", len(next.MovesUCI)),
			)
		}
		outMatch, outOutcome = next.Clone(), outcome
		return nil
	})
	return outMatch, outOutcome, err
}

// Show returns the channel's active match, or a finished match by id.
func (r *Registry) Show(ctx context.Context, channel, matchID string) (*match.Match, error) {
	channel = channelKey(channel)
	var out *match.Match
	err := r.read(ctx, channel, func(e *entry) error {
		if game := e.state.Match; game != nil && idMatches(matchID, game.ID) {
			out = game.Clone()
			return nil
		}
		return nil
	})
	if err != nil || out != nil {
		return out, err
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, match.NotFound("no active match in this channel")
	}

	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	game, err := r.store.GetMatch(sctx, matchID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, match.NotFound("match %s not found", matchID)
	case err != nil:
		return nil, match.Persistence(err, "get match %s", matchID)
	case game.ChannelID != channel:
		return nil, match.NotFound("match %s not found", matchID)
	}
	return game, nil
}

// Live returns a copy of the channel's live records.
func (r *Registry) Live(ctx context.Context, channel string) (match.Channel, error) {
	channel = channelKey(channel)
	var out match.Channel
	err := r.read(ctx, channel, func(e *entry) error {
		out = match.Channel{
			Invitation: e.state.Invitation.Clone(),
			Match:      e.state.Match.Clone(),
		}
		return nil
	})
	return out, err
}

func openInvitation(e *entry, id string) (*match.Invitation, error) {
	inv := e.state.Invitation
	if inv == nil || !inv.State.Live() || !idMatches(id, inv.ID) {
		return nil, match.NotFound("no open invitation in this channel")
	}
	return inv, nil
}

func activeMatch(e *entry, id string) (*match.Match, error) {
	game := e.state.Match
	if game == nil || !game.State.Live() || !idMatches(id, game.ID) {
		return nil, match.NotFound("no active match in this channel")
	}
	return game, nil
}
