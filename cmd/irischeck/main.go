// Command irischeck probes the Iris HTTP API and websocket with the bot's
// configuration and prints inbound chat events for a short window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/config"
	"github.com/park285/cheese-matchbot/internal/gateway"
	"github.com/park285/cheese-matchbot/internal/obslog"
)

func main() {
	window := flag.Duration("window", 10*time.Second, "how long to watch the websocket")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{Level: cfg.Log.Level, Format: "console", Console: true}); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	logger := obslog.L()

	headers := func() map[string]string {
		m := map[string]string{}
		if cfg.XUserID != "" {
			m["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			m["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			m["X-Session-Id"] = cfg.XSessionID
		}
		return m
	}

	client := gateway.NewClient(cfg.IrisBaseURL,
		gateway.WithHeaderProvider(headers),
		gateway.WithTimeout(8*time.Second),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if icfg, err := client.GetConfig(ctx); err != nil {
		logger.Error("iris_config_error", zap.Error(err))
	} else {
		logger.Info("iris_config_ok",
			zap.Int("port", icfg.Port),
			zap.Int("polling", icfg.PollingSpeed),
			zap.Int("rate", icfg.MessageRate),
			zap.String("endpoint", icfg.WebserverEndpoint),
		)
	}

	ws := gateway.NewWebSocket(cfg.IrisWSURL, 0, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state gateway.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *gateway.Message) {
		fmt.Printf("WS msg room=%s from=%s allowed=%t text=%q\n", msg.Room, msg.UserID(), cfg.RoomAllowed(msg.Room), msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		logger.Error("ws_connect_error", zap.Error(err))
		return
	}
	time.Sleep(*window)
	_ = ws.Close(context.Background())
}
