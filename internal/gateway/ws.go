package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-matchbot/internal/obslog"
)

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// Listener is the inbound side of the gateway.
type Listener interface {
	Connect(ctx context.Context) error
	OnMessage(cb MessageCallback) int
	OnStateChange(cb StateCallback) int
	Close(ctx context.Context) error
}

var ErrNotConnected = errors.New("ws not connected")

type callbackEntry struct {
	id       int
	callback MessageCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// WebSocket reads chat events from Iris and reconnects with backoff.
type WebSocket struct {
	wsURL string

	conn   *websocket.Conn
	state  WebSocketState
	stateM sync.RWMutex
	writeM sync.Mutex

	msgCbs   []callbackEntry
	stateCbs []stateCallbackEntry
	nextID   int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
	log            *zap.Logger
}

func NewWebSocket(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		wsURL:                wsURL,
		state:                WSStateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
		log:                  obslog.L(),
	}
}

// SetHeaderProvider injects headers into the handshake.
func (ws *WebSocket) SetHeaderProvider(h HeaderProvider) {
	ws.headerProvider = h
}

func (ws *WebSocket) State() WebSocketState {
	ws.stateM.RLock()
	defer ws.stateM.RUnlock()
	return ws.state
}

func (ws *WebSocket) Connect(ctx context.Context) error {
	switch ws.State() {
	case WSStateConnected, WSStateConnecting:
		return nil
	}
	ws.setState(WSStateConnecting)
	if err := ws.dial(ctx); err != nil {
		ws.log.Warn("ws_connect_error", zap.String("url", ws.wsURL), zap.Error(err))
		ws.setState(WSStateFailed)
		ws.scheduleReconnect()
		return err
	}
	return nil
}

func (ws *WebSocket) dial(ctx context.Context) error {
	if ws.isStopping() {
		return errors.New("ws closed")
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	if err != nil {
		return err
	}
	ws.stateM.Lock()
	ws.conn = conn
	ws.stateM.Unlock()
	ws.setState(WSStateConnected)

	ws.wg.Add(2)
	go ws.listen(conn)
	go ws.pingLoop(conn)
	return nil
}

func (ws *WebSocket) listen(conn *websocket.Conn) {
	defer ws.wg.Done()
	for {
		var msg Message
		if err := wsjson.Read(ws.rootCtx, conn, &msg); err != nil {
			if ws.isStopping() {
				return
			}
			ws.log.Warn("ws_read_error", zap.Error(err))
			ws.dropConn(conn, "reconnect")
			return
		}

		ws.cbM.RLock()
		callbacks := make([]callbackEntry, len(ws.msgCbs))
		copy(callbacks, ws.msgCbs)
		ws.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(&msg)
			}
		}
	}
}

func (ws *WebSocket) pingLoop(conn *websocket.Conn) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-ws.rootCtx.Done():
			return
		case <-t.C:
			if ws.currentConn() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if ws.isStopping() {
					return
				}
				ws.log.Warn("ws_ping_failure", zap.Error(err))
				ws.dropConn(conn, "ping failure")
				return
			}
		}
	}
}

// dropConn closes conn if it is still current and starts reconnecting.
func (ws *WebSocket) dropConn(conn *websocket.Conn, reason string) {
	ws.stateM.Lock()
	current := ws.conn == conn
	if current {
		ws.conn = nil
	}
	ws.stateM.Unlock()
	if !current {
		return
	}
	_ = conn.Close(websocket.StatusGoingAway, reason)
	ws.setState(WSStateDisconnected)
	ws.scheduleReconnect()
}

func (ws *WebSocket) scheduleReconnect() {
	if ws.maxReconnectAttempts <= 0 || ws.isStopping() {
		return
	}
	ws.setState(WSStateReconnecting)

	go func() {
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			delay := backoffDuration(attempt)
			if ws.reconnectDelay > delay {
				delay = ws.reconnectDelay
			}
			select {
			case <-ws.stopCh:
				return
			case <-time.After(delay):
			}
			if err := ws.dial(ws.rootCtx); err != nil {
				ws.log.Debug("ws_reconnect_attempt", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			ws.log.Info("ws_reconnected", zap.Int("attempt", attempt))
			return
		}
		ws.setState(WSStateFailed)
	}()
}

// WriteJSON sends one frame; writes are serialized.
func (ws *WebSocket) WriteJSON(ctx context.Context, v any) error {
	conn := ws.currentConn()
	if conn == nil || ws.State() != WSStateConnected {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	ws.writeM.Lock()
	defer ws.writeM.Unlock()
	return wsjson.Write(ctx, conn, v)
}

func (ws *WebSocket) currentConn() *websocket.Conn {
	ws.stateM.RLock()
	defer ws.stateM.RUnlock()
	return ws.conn
}

func (ws *WebSocket) OnMessage(cb MessageCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.nextID++
	ws.msgCbs = append(ws.msgCbs, callbackEntry{id: ws.nextID, callback: cb})
	return ws.nextID
}

func (ws *WebSocket) OnStateChange(cb StateCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.nextID++
	ws.stateCbs = append(ws.stateCbs, stateCallbackEntry{id: ws.nextID, callback: cb})
	return ws.nextID
}

func (ws *WebSocket) setState(state WebSocketState) {
	ws.stateM.Lock()
	ws.state = state
	ws.stateM.Unlock()

	ws.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(ws.stateCbs))
	copy(callbacks, ws.stateCbs)
	ws.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	ws.stateM.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.stateM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	ws.rootCancel()

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		ws.setState(WSStateDisconnected)
		return nil
	}
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}

func (ws *WebSocket) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.headerProvider == nil {
		return hdr
	}
	for k, v := range ws.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
