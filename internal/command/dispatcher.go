package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/msgcat"
	"github.com/park285/cheese-matchbot/internal/obslog"
	"github.com/park285/cheese-matchbot/internal/registry"
	"github.com/park285/cheese-matchbot/internal/stats"
	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

const defaultEvent = "Cheese Match"

// templates the dispatcher renders; checked at construction.
var requiredTemplates = []string{
	"help",
	"invitation.created", "invitation.created_open", "invitation.declined", "invitation.cancelled", "invitation.pending",
	"match.started", "match.moved", "match.board", "match.to_move", "match.pgn",
	"match.finished.checkmate", "match.finished.draw", "match.finished.surrender",
	"stats.player", "stats.no_ratio",
	"leaderboard.header", "leaderboard.entry", "leaderboard.empty",
	"error.conflict", "error.not_found", "error.forbidden", "error.invalid_move",
	"error.persistence", "error.usage", "error.internal",
	"labels.rated", "labels.unrated", "labels.white", "labels.black", "labels.anyone",
}

// Dispatcher routes requests to the registry and the stats aggregator and
// renders replies. It holds no game state.
type Dispatcher struct {
	registry *registry.Registry
	stats    *stats.Aggregator
	cat      *msgcat.Catalog
	people   *directory
	prefix   string
	event    string
	log      *zap.Logger
}

func NewDispatcher(reg *registry.Registry, agg *stats.Aggregator, cat *msgcat.Catalog, prefix string) (*Dispatcher, error) {
	if reg == nil || agg == nil || cat == nil {
		return nil, errors.New("dispatcher: registry, aggregator and catalog are required")
	}
	if err := cat.Has(requiredTemplates...); err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	return &Dispatcher{
		registry: reg,
		stats:    agg,
		cat:      cat,
		people:   newDirectory(),
		prefix:   strings.TrimSpace(prefix),
		event:    defaultEvent,
		log:      obslog.L(),
	}, nil
}

// Handle parses chat text and returns the reply. ok is false for text that
// is not addressed to the bot.
func (d *Dispatcher) Handle(ctx context.Context, text string, meta chessdto.Meta) (reply string, ok bool) {
	d.Observe(meta)
	req, err := Parse(d.prefix, text, meta)
	switch {
	case errors.Is(err, ErrNotCommand):
		return "", false
	case errors.Is(err, ErrUnknown):
		return d.help(), true
	case err != nil:
		var usage *UsageError
		if errors.As(err, &usage) {
			return d.render("error.usage", map[string]any{"Usage": usage.Usage}), true
		}
		return d.render("error.internal", map[string]any{}), true
	}
	return d.Reply(ctx, req), true
}

// Observe records the sender so later @mentions of their name resolve to
// their user id.
func (d *Dispatcher) Observe(meta chessdto.Meta) {
	d.people.observe(meta)
}

// Reply dispatches req and renders failures as chat text.
func (d *Dispatcher) Reply(ctx context.Context, req chessdto.Request) string {
	out, err := d.Dispatch(ctx, req)
	if err == nil {
		return out
	}
	var de chessdto.DomainError
	if !errors.As(err, &de) {
		de = domainError(err)
	}
	data := map[string]any{"Message": de.Message, "Move": "", "Usage": de.Message}
	if mv, ok := req.(chessdto.MoveRequest); ok {
		data["Move"] = mv.Move
	}
	return d.render("error."+de.Code, data)
}

// Dispatch executes one request. Failures are returned as chessdto.DomainError.
func (d *Dispatcher) Dispatch(ctx context.Context, req chessdto.Request) (string, error) {
	meta := req.RequestMeta()
	d.people.observe(meta)
	out, err := d.dispatch(ctx, req)
	if err != nil {
		de := domainError(err)
		d.log.Info("command_rejected",
			zap.String("request", fmt.Sprintf("%T", req)),
			zap.String("channel_id", meta.Channel),
			zap.String("actor_id", meta.Actor),
			zap.String("code", de.Code),
			zap.Error(err),
		)
		return "", de
	}
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req chessdto.Request) (string, error) {
	switch r := req.(type) {
	case chessdto.NewInvitationRequest:
		return d.newInvitation(ctx, r)
	case chessdto.AcceptRequest:
		_, game, err := d.registry.Accept(ctx, r.Meta.Channel, r.InvitationID, r.Meta.Actor)
		if err != nil {
			return "", err
		}
		v := matchView(game)
		names := d.names(r.Meta)
		return d.render("match.started", map[string]any{
			"ID": v.ID, "White": names(v.WhiteID), "Black": names(v.BlackID), "ToMove": names(v.ToMoveID),
		}), nil
	case chessdto.DeclineRequest:
		if _, err := d.registry.Decline(ctx, r.Meta.Channel, r.InvitationID, r.Meta.Actor); err != nil {
			return "", err
		}
		return d.render("invitation.declined", map[string]any{"Actor": d.names(r.Meta)(r.Meta.Actor)}), nil
	case chessdto.CancelRequest:
		if _, err := d.registry.Cancel(ctx, r.Meta.Channel, r.InvitationID, r.Meta.Actor); err != nil {
			return "", err
		}
		return d.render("invitation.cancelled", map[string]any{"Actor": d.names(r.Meta)(r.Meta.Actor)}), nil
	case chessdto.MoveRequest:
		game, outcome, err := d.registry.Move(ctx, r.Meta.Channel, r.MatchID, r.Meta.Actor, r.Move)
		if err != nil {
			return "", err
		}
		return d.moveReply(r.Meta, game, outcome), nil
	case chessdto.SurrenderRequest:
		game, _, err := d.registry.Surrender(ctx, r.Meta.Channel, r.MatchID, r.Meta.Actor)
		if err != nil {
			return "", err
		}
		return d.finishReply(r.Meta, game), nil
	case chessdto.ShowRequest:
		return d.show(ctx, r)
	case chessdto.StatsRequest:
		id := r.Meta.Actor
		if strings.TrimSpace(r.PlayerID) != "" {
			resolved, err := d.people.resolve(r.Meta.Scope, r.PlayerID)
			if err != nil {
				return "", err
			}
			id = resolved
		}
		p, err := d.stats.Stats(ctx, r.Meta.Scope, id)
		if err != nil {
			return "", err
		}
		return d.statsLine("stats.player", d.names(r.Meta), playerView(p), 0), nil
	case chessdto.LeaderboardRequest:
		players, err := d.stats.Leaderboard(ctx, r.Meta.Scope, r.Limit)
		if err != nil {
			return "", err
		}
		return d.leaderboard(r.Meta, leaderboardView(r.Meta.Scope, players)), nil
	case chessdto.HelpRequest:
		return d.help(), nil
	default:
		return "", fmt.Errorf("unsupported request %T", req)
	}
}

func (d *Dispatcher) newInvitation(ctx context.Context, r chessdto.NewInvitationRequest) (string, error) {
	color, ok := match.ParseColorChoice(r.Color)
	if !ok {
		return "", &UsageError{Command: "challenge", Usage: d.prefix + challengeUsage}
	}
	target := ""
	if strings.TrimSpace(r.Target) != "" {
		id, err := d.people.resolve(r.Meta.Scope, r.Target)
		if err != nil {
			return "", err
		}
		target = id
	}
	inv, err := d.registry.NewInvitation(ctx, match.InvitationRequest{
		Scope:       r.Meta.Scope,
		ChannelID:   r.Meta.Channel,
		InitiatorID: r.Meta.Actor,
		TargetID:    target,
		Color:       color,
		Rated:       r.Rated,
	})
	if err != nil {
		return "", err
	}
	return d.invitationText(r.Meta, invitationView(inv), "invitation.created"), nil
}

func (d *Dispatcher) invitationText(meta chessdto.Meta, v chessdto.InvitationView, key string) string {
	names := d.names(meta)
	target := names(v.TargetID)
	if v.TargetID == "" {
		if key == "invitation.created" {
			key = "invitation.created_open"
		}
		target = d.render("labels.anyone", nil)
	}
	rated := d.render("labels.unrated", nil)
	if v.Rated {
		rated = d.render("labels.rated", nil)
	}
	return d.render(key, map[string]any{
		"Prefix":     d.prefix,
		"Initiator":  names(v.InitiatorID),
		"Target":     target,
		"Color":      d.render("labels."+v.InitiatorColor, nil),
		"RatedLabel": rated,
	})
}

func (d *Dispatcher) show(ctx context.Context, r chessdto.ShowRequest) (string, error) {
	game, err := d.registry.Show(ctx, r.Meta.Channel, r.MatchID)
	if err == nil {
		return d.board(r.Meta, matchView(game)), nil
	}
	if !errors.Is(err, match.ErrNotFound) || strings.TrimSpace(r.MatchID) != "" {
		return "", err
	}
	live, lerr := d.registry.Live(ctx, r.Meta.Channel)
	if lerr != nil {
		return "", lerr
	}
	if live.Invitation != nil && live.Invitation.State.Live() {
		return d.invitationText(r.Meta, invitationView(live.Invitation), "invitation.pending"), nil
	}
	return "", err
}

func (d *Dispatcher) board(meta chessdto.Meta, v chessdto.MatchView) string {
	names := d.names(meta)
	status := v.Result
	if !v.Finished() {
		status = d.render("match.to_move", map[string]any{"ToMove": names(v.ToMoveID)})
	}
	return d.render("match.board", map[string]any{
		"White":  names(v.WhiteID),
		"Black":  names(v.BlackID),
		"State":  v.State,
		"FEN":    v.FEN,
		"Moves":  v.MovesSAN,
		"Status": status,
	})
}

func (d *Dispatcher) moveReply(meta chessdto.Meta, game *match.Match, outcome *match.Outcome) string {
	if outcome != nil {
		return d.finishReply(meta, game)
	}
	v := matchView(game)
	san := ""
	if n := len(v.MovesSAN); n > 0 {
		san = v.MovesSAN[n-1]
	}
	return d.render("match.moved", map[string]any{
		"Ply":    (len(v.MovesSAN) + 1) / 2,
		"SAN":    san,
		"ToMove": d.names(meta)(v.ToMoveID),
	})
}

func (d *Dispatcher) finishReply(meta chessdto.Meta, game *match.Match) string {
	names := d.names(meta)
	v := matchView(game)
	winner := names(v.WinnerID)
	var head string
	switch game.State {
	case match.StateSurrendered:
		head = d.render("match.finished.surrender", map[string]any{"Winner": winner, "Loser": names(v.SurrenderedBy)})
	case match.StateDraw:
		head = d.render("match.finished.draw", map[string]any{"Method": v.Method})
	default:
		head = d.render("match.finished.checkmate", map[string]any{"Winner": winner})
	}
	pgn := match.BuildPGN(game, d.event, meta.Channel, map[string]string{meta.Actor: meta.ActorName})
	return head + "\n\n" + d.render("match.pgn", map[string]any{"PGN": pgn})
}

func (d *Dispatcher) statsLine(key string, names func(string) string, p chessdto.PlayerView, rank int) string {
	ratio := d.render("stats.no_ratio", nil)
	if p.HasRatio {
		ratio = fmt.Sprintf("%.1f%%", p.Ratio*100)
	}
	return d.render(key, map[string]any{
		"Rank":   rank,
		"Player": names(p.ID),
		"Wins":   p.Wins,
		"Losses": p.Losses,
		"Draws":  p.Draws,
		"Ratio":  ratio,
		"Rating": p.Rating,
	})
}

func (d *Dispatcher) leaderboard(meta chessdto.Meta, v chessdto.LeaderboardView) string {
	if len(v.Entries) == 0 {
		return d.render("leaderboard.empty", nil)
	}
	names := d.names(meta)
	lines := make([]string, 0, len(v.Entries)+1)
	lines = append(lines, d.render("leaderboard.header", map[string]any{"Size": len(v.Entries)}))
	for _, e := range v.Entries {
		lines = append(lines, d.statsLine("leaderboard.entry", names, e.Player, e.Rank))
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) help() string {
	return d.render("help", map[string]any{"Prefix": d.prefix})
}

// names resolves a player id to a display name; only the actor's name is known.
func (d *Dispatcher) names(meta chessdto.Meta) func(string) string {
	return func(id string) string {
		if id == meta.Actor && strings.TrimSpace(meta.ActorName) != "" {
			return meta.ActorName
		}
		return id
	}
}

func (d *Dispatcher) render(key string, data any) string {
	out, err := d.cat.Render(key, data)
	if err != nil {
		d.log.Warn("template_render_error", zap.String("key", key), zap.Error(err))
		return key
	}
	return out
}

func domainError(err error) chessdto.DomainError {
	var de chessdto.DomainError
	if errors.As(err, &de) {
		return de
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return chessdto.DomainError{Code: "usage", Message: usage.Usage}
	}
	kind := match.KindOf(err)
	if kind == "" {
		return chessdto.DomainError{Code: "internal", Message: err.Error()}
	}
	msg := err.Error()
	var me *match.Error
	if errors.As(err, &me) && me.Msg != "" {
		msg = me.Msg
	}
	return chessdto.DomainError{
		Code:      string(kind),
		Message:   msg,
		Retryable: kind == match.KindConflict || kind == match.KindPersistence,
	}
}
