package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/obslog"
	"github.com/park285/cheese-matchbot/internal/store"
)

const defaultPersistTimeout = 3 * time.Second

// Registry owns the channel -> live record index. Mutations on one channel
// are serialized; channels are independent. A channel is loaded from the
// store on first reference and its resident state is replaced only after a
// successful durable write.
type Registry struct {
	store   store.Store
	machine *match.Machine
	timeout time.Duration
	log     *zap.Logger

	mu       sync.Mutex
	channels map[string]*entry
}

type entry struct {
	mu     sync.RWMutex
	refs   int
	loaded bool
	state  match.Channel
}

type Option func(*Registry)

// WithPersistTimeout bounds every store call.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func New(st store.Store, machine *match.Machine, opts ...Option) *Registry {
	r := &Registry{
		store:    st,
		machine:  machine,
		timeout:  defaultPersistTimeout,
		log:      obslog.L(),
		channels: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) acquire(channel string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[channel]
	if !ok {
		e = &entry{}
		r.channels[channel] = e
	}
	e.refs++
	return e
}

// release drops idle entries once nobody references them.
func (r *Registry) release(channel string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	if e.mu.TryLock() {
		idle := !e.loaded || !e.state.Busy()
		e.mu.Unlock()
		if idle {
			delete(r.channels, channel)
		}
	}
}

// Resident reports how many channels currently hold cached state.
func (r *Registry) Resident() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *Registry) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	// in-flight writes are not cancelled by the caller; only the timeout applies
	return context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
}

// load fills e from the store. Caller holds e.mu for writing.
func (r *Registry) load(ctx context.Context, channel string, e *entry) error {
	if e.loaded {
		return nil
	}
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	ch, err := r.store.LoadChannel(sctx, channel)
	if err != nil {
		r.log.Error("channel_load_error", zap.String("channel_id", channel), zap.Error(err))
		return match.Persistence(err, "load channel %s", channel)
	}
	e.state = ch
	e.loaded = true
	r.log.Debug("channel_load", zap.String("channel_id", channel),
		zap.Bool("invitation", ch.Invitation != nil), zap.Bool("match", ch.Match != nil))
	return nil
}

func (r *Registry) write(ctx context.Context, channel string, fn func(ctx context.Context, e *entry) error) error {
	e := r.acquire(channel)
	defer r.release(channel, e)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := r.load(ctx, channel, e); err != nil {
		return err
	}
	return fn(ctx, e)
}

func (r *Registry) read(ctx context.Context, channel string, fn func(e *entry) error) error {
	e := r.acquire(channel)
	defer r.release(channel, e)
	e.mu.RLock()
	if !e.loaded {
		e.mu.RUnlock()
		e.mu.Lock()
		err := r.load(ctx, channel, e)
		e.mu.Unlock()
		if err != nil {
			return err
		}
		e.mu.RLock()
	}
	defer e.mu.RUnlock()
	return fn(e)
}

// persist runs a store write under the timeout. Any failure evicts the
// resident state so the next request reloads from the store.
func (r *Registry) persist(ctx context.Context, op, channel string, e *entry, fn func(ctx context.Context) error) error {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	err := fn(sctx)
	if err == nil {
		return nil
	}
	e.loaded = false
	e.state = match.Channel{}

	switch {
	case errors.Is(err, store.ErrChannelBusy):
		r.log.Warn("store_channel_busy", zap.String("op", op), zap.String("channel_id", channel))
		return match.Conflict("channel %s is busy", channel)
	case errors.Is(err, store.ErrVersionConflict):
		r.log.Warn("store_version_conflict", zap.String("op", op), zap.String("channel_id", channel))
		return match.Conflict("channel %s changed concurrently, try again", channel)
	case errors.Is(err, store.ErrNotFound):
		return match.NotFound("record no longer exists")
	default:
		r.log.Error("store_persist_error", zap.String("op", op), zap.String("channel_id", channel), zap.Error(err))
		return match.Persistence(err, "%s", op)
	}
}

// Warm loads every live channel from the store. Returns how many were restored.
func (r *Registry) Warm(ctx context.Context) (int, error) {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	live, err := r.store.ListLive(sctx)
	if err != nil {
		return 0, match.Persistence(err, "list live channels")
	}
	n := 0
	for _, ch := range live {
		channel := channelOf(ch)
		if channel == "" {
			continue
		}
		r.mu.Lock()
		e, ok := r.channels[channel]
		if !ok {
			e = &entry{loaded: true, state: ch}
			r.channels[channel] = e
			n++
		}
		r.mu.Unlock()
	}
	r.log.Info("registry_warm", zap.Int("channels", n))
	return n, nil
}

func channelOf(ch match.Channel) string {
	switch {
	case ch.Match != nil:
		return ch.Match.ChannelID
	case ch.Invitation != nil:
		return ch.Invitation.ChannelID
	default:
		return ""
	}
}

// channelKey normalizes a room id before it keys the registry or the store.
func channelKey(s string) string { return strings.TrimSpace(s) }

func idMatches(want, have string) bool {
	want = strings.TrimSpace(want)
	return want == "" || want == have
}
