package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/stats"
	"github.com/park285/cheese-matchbot/internal/store"
)

// Store is a process-local store for development and tests. Nothing survives a restart.
type Store struct {
	mu sync.RWMutex

	invitations map[string]*match.Invitation
	matches     map[string]*match.Match
	players     map[string]*match.Player // scope|id -> player
	live        map[string]liveRef       // channel -> live record

	now func() time.Time
}

type liveRef struct {
	invitationID string
	matchID      string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		invitations: make(map[string]*match.Invitation),
		matches:     make(map[string]*match.Match),
		players:     make(map[string]*match.Player),
		live:        make(map[string]liveRef),
		now:         time.Now,
	}
}

func playerKey(scope, id string) string {
	return strings.TrimSpace(scope) + "|" + strings.TrimSpace(id)
}

func (s *Store) LoadChannel(ctx context.Context, channelID string) (match.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelLocked(strings.TrimSpace(channelID)), nil
}

func (s *Store) channelLocked(channelID string) match.Channel {
	ref, ok := s.live[channelID]
	if !ok {
		return match.Channel{}
	}
	var ch match.Channel
	if ref.invitationID != "" {
		ch.Invitation = s.invitations[ref.invitationID].Clone()
	}
	if ref.matchID != "" {
		ch.Match = s.matches[ref.matchID].Clone()
	}
	return ch
}

func (s *Store) CreateInvitation(ctx context.Context, inv *match.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.live[inv.ChannelID]; busy {
		return store.ErrChannelBusy
	}
	if _, exists := s.invitations[inv.ID]; exists {
		return store.ErrVersionConflict
	}
	s.invitations[inv.ID] = inv.Clone()
	s.live[inv.ChannelID] = liveRef{invitationID: inv.ID}
	return nil
}

func (s *Store) checkInvitation(inv *match.Invitation, expectedVersion int64) error {
	cur, ok := s.invitations[inv.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	return nil
}

func (s *Store) UpdateInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInvitation(inv, expectedVersion); err != nil {
		return err
	}
	s.invitations[inv.ID] = inv.Clone()
	if !inv.State.Live() {
		if ref := s.live[inv.ChannelID]; ref.invitationID == inv.ID {
			delete(s.live, inv.ChannelID)
		}
	}
	return nil
}

func (s *Store) AcceptInvitation(ctx context.Context, inv *match.Invitation, expectedVersion int64, m *match.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInvitation(inv, expectedVersion); err != nil {
		return err
	}
	if ref := s.live[inv.ChannelID]; ref.invitationID != inv.ID {
		return store.ErrChannelBusy
	}
	s.invitations[inv.ID] = inv.Clone()
	s.matches[m.ID] = m.Clone()
	s.live[m.ChannelID] = liveRef{matchID: m.ID}
	return nil
}

func (s *Store) checkMatch(m *match.Match, expectedVersion int64) error {
	cur, ok := s.matches[m.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	return nil
}

func (s *Store) SaveMatch(ctx context.Context, m *match.Match, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMatch(m, expectedVersion); err != nil {
		return err
	}
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *Store) FinishMatch(ctx context.Context, m *match.Match, expectedVersion int64, outcome *match.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMatch(m, expectedVersion); err != nil {
		return err
	}
	at := s.now()
	if m.EndedAt != nil {
		at = *m.EndedAt
	}
	wk, bk := playerKey(m.Scope, m.WhiteID), playerKey(m.Scope, m.BlackID)
	if w, b, applied := stats.ApplyOutcome(s.players[wk], s.players[bk], outcome, at); applied {
		s.players[wk] = w
		s.players[bk] = b
	}
	s.matches[m.ID] = m.Clone()
	if ref := s.live[m.ChannelID]; ref.matchID == m.ID {
		delete(s.live, m.ChannelID)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id string) (*match.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return inv.Clone(), nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) GetPlayer(ctx context.Context, scope, id string) (*match.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerKey(scope, id)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) EnsurePlayer(ctx context.Context, scope, id string) (*match.Player, error) {
	key := playerKey(scope, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[key]
	if !ok {
		p = stats.NewPlayer(scope, id, s.now())
		s.players[key] = p
	}
	return p.Clone(), nil
}

func (s *Store) ListPlayers(ctx context.Context, scope string) ([]*match.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope = strings.TrimSpace(scope)
	out := make([]*match.Player, 0)
	for _, p := range s.players {
		if p.Scope == scope {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListLive(ctx context.Context) ([]match.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make([]string, 0, len(s.live))
	for ch := range s.live {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	out := make([]match.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, s.channelLocked(ch))
	}
	return out, nil
}

func (s *Store) PruneFinished(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, inv := range s.invitations {
		if !inv.State.Live() && inv.UpdatedAt.Before(before) {
			delete(s.invitations, id)
			n++
		}
	}
	for id, m := range s.matches {
		if !m.State.Live() && m.UpdatedAt.Before(before) {
			delete(s.matches, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
