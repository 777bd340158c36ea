package main

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/park285/cheese-matchbot/internal/config"
	"github.com/park285/cheese-matchbot/internal/gateway"
	"github.com/park285/cheese-matchbot/internal/util"
	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

type replier interface {
	Handle(ctx context.Context, text string, meta chessdto.Meta) (string, bool)
}

// observer learns who is talking in a room from ordinary chat.
type observer interface {
	Observe(meta chessdto.Meta)
}

// handler runs chat commands on a bounded pool so the websocket read loop
// never blocks on storage.
type handler struct {
	cfg    *config.AppConfig
	disp   replier
	egress gateway.Egress
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	log    *zap.Logger
}

func newHandler(cfg *config.AppConfig, disp replier, egress gateway.Egress, logger *zap.Logger) *handler {
	n := int64(cfg.MaxConcurrentCommands)
	if n <= 0 {
		n = 1
	}
	return &handler{cfg: cfg, disp: disp, egress: egress, sem: semaphore.NewWeighted(n), log: logger}
}

// Dispatch filters msg and schedules it. It returns once a worker slot is held.
func (h *handler) Dispatch(ctx context.Context, msg *gateway.Message) {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return
	}
	if !h.cfg.RoomAllowed(msg.Room) {
		h.log.Debug("room_ignored", zap.String("room", msg.Room))
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(msg.Msg), h.cfg.BotPrefix) {
		if o, ok := h.disp.(observer); ok {
			o.Observe(metaOf(msg))
		}
		return
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		h.log.Warn("command_dropped", zap.String("room", msg.Room), zap.Error(err))
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)
		h.run(ctx, msg)
	}()
}

func (h *handler) run(ctx context.Context, msg *gateway.Message) {
	meta := metaOf(msg)
	if meta.Actor == "" {
		h.log.Warn("command_without_sender", zap.String("room", msg.Room))
		return
	}
	reply, ok := h.disp.Handle(ctx, msg.Msg, meta)
	if !ok || strings.TrimSpace(reply) == "" {
		return
	}
	reply = util.FoldLongReply(reply, h.cfg.FoldLines)
	if err := h.egress.SendText(context.WithoutCancel(ctx), msg.Room, reply); err != nil {
		h.log.Error("reply_send_error", zap.String("room", msg.Room), zap.Error(err))
	}
}

// Wait blocks until in-flight commands finish or ctx expires.
func (h *handler) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn("shutdown_with_inflight_commands")
	}
}

func metaOf(msg *gateway.Message) chessdto.Meta {
	return chessdto.Meta{
		Scope:     msg.Scope(),
		Channel:   msg.Room,
		Actor:     msg.UserID(),
		ActorName: msg.SenderName(),
	}
}
