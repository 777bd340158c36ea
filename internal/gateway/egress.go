package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Egress sends text replies to a room.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
}

const (
	EgressHTTP = "http"
	EgressWS   = "ws"
	EgressAuto = "auto"
)

// NewEgress picks the transport. auto prefers a connected websocket and
// falls back to HTTP once.
func NewEgress(mode string, c *Client, ws *WebSocket, logger *zap.Logger) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch mode {
	case EgressWS:
		return &wsEgress{ws: ws}
	case EgressAuto:
		return &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}, logger: logger}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) SendText(ctx context.Context, room, message string) error {
	if h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendMessage(ctx, room, message)
}

type wsEgress struct{ ws *WebSocket }

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	if w.ws == nil {
		return errors.New("ws egress not available")
	}
	return w.ws.WriteJSON(ctx, &ReplyRequest{Type: "text", Room: room, Data: message})
}

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	if a.ws.ws != nil && a.ws.ws.State() == WSStateConnected {
		err := a.ws.SendText(ctx, room, message)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("room", room), zap.Error(err))
	}
	return a.http.SendText(ctx, room, message)
}
