package store

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-matchbot/internal/match"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version changed")
	ErrChannelBusy     = errors.New("channel already has a live record")
)

// Store is the durable backing of invitations, matches and players.
//
// Every write is a compare-and-set on the record's Version: expectedVersion
// must equal the stored value, otherwise ErrVersionConflict. Backends keep a
// channel -> live record pointer so at most one OPEN invitation or ACTIVE
// match exists per channel regardless of how many processes write.
type Store interface {
	// LoadChannel returns the live records of a channel; both fields nil when idle.
	LoadChannel(ctx context.Context, channelID string) (match.Channel, error)

	// CreateInvitation inserts a new OPEN invitation and claims its channel.
	CreateInvitation(ctx context.Context, inv *match.Invitation) error
	// UpdateInvitation stores a declined or cancelled invitation and frees its channel.
	UpdateInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64) error
	// AcceptInvitation atomically stores the accepted invitation and its new match,
	// moving the channel pointer from the invitation to the match.
	AcceptInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64, m *match.Match) error

	// SaveMatch stores a non-terminal match update.
	SaveMatch(ctx context.Context, m *match.Match, expectedVersion int64) error
	// FinishMatch stores a terminal match, frees its channel and applies the
	// outcome to both player rows in the same atomic write.
	FinishMatch(ctx context.Context, m *match.Match, expectedVersion int64, outcome *match.Outcome) error

	GetInvitation(ctx context.Context, id string) (*match.Invitation, error)
	GetMatch(ctx context.Context, id string) (*match.Match, error)

	GetPlayer(ctx context.Context, scope, id string) (*match.Player, error)
	// EnsurePlayer returns the player, creating a default record when missing.
	EnsurePlayer(ctx context.Context, scope, id string) (*match.Player, error)
	ListPlayers(ctx context.Context, scope string) ([]*match.Player, error)

	// ListLive returns every channel holding a live record.
	ListLive(ctx context.Context) ([]match.Channel, error)
	// PruneFinished deletes terminal invitations and matches last updated before cutoff.
	PruneFinished(ctx context.Context, before time.Time) (int, error)

	Close() error
}
