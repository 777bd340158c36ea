package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/builder"
	"github.com/park285/cheese-matchbot/internal/config"
	"github.com/park285/cheese-matchbot/internal/gateway"
	"github.com/park285/cheese-matchbot/internal/obslog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Console: cfg.Log.Console,
		ToFile:  cfg.Log.ToFile,
		File:    cfg.Log.File,
		Caller:  cfg.Log.Caller,
	}); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := builder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("match_service_init_error", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()
	if err := deps.Janitor.Start(); err != nil {
		logger.Fatal("janitor_start_error", zap.Error(err))
	}

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}
	client := gateway.NewClient(cfg.IrisBaseURL, gateway.WithHeaderProvider(headers))
	ws := gateway.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state gateway.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})

	h := newHandler(cfg, deps.Dispatcher, gateway.NewEgress(cfg.EgressMode, client, ws, logger), logger)
	ws.OnMessage(func(msg *gateway.Message) { h.Dispatch(ctx, msg) })

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = ws.Connect(cctx)
	cancel()
	if err != nil {
		logger.Error("ws_connect_error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("bot_started", zap.String("prefix", cfg.BotPrefix), zap.Strings("allowed_rooms", cfg.AllowedRooms))

	<-ctx.Done()
	logger.Info("bot_stopping")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = ws.Close(sctx)
	h.Wait(sctx)
}
