package httpapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/scan"
	"github.com/park285/nickguard/internal/supervisor"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	EventState    = "state"
	EventScan     = "scan"
	EventAIReview = "ai_review"

	clientBuffer = 16
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Event is one frame of the /ws feed.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type wsClient struct {
	send chan Event
	// closed once the hub dropped the client for falling behind
	dropped chan struct{}
	once    sync.Once
}

func (c *wsClient) drop() { c.once.Do(func() { close(c.dropped) }) }

// Hub fans session and scan events out to websocket subscribers. Slow
// subscribers are disconnected instead of blocking publishers.
type Hub struct {
	logger *zap.Logger
	ping   time.Duration

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	lastState atomic.Pointer[Event]
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, ping: pingInterval, clients: make(map[*wsClient]struct{})}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnState matches supervisor.Supervisor.OnStateChange.
func (h *Hub) OnState(st supervisor.Status) {
	ev := Event{Type: EventState, Time: time.Now(), Data: st}
	h.lastState.Store(&ev)
	h.Publish(ev)
}

// OnResult matches scan.Orchestrator.OnResult.
func (h *Hub) OnResult(kind scan.Kind, res domain.ScanResult) {
	typ := EventScan
	if kind == scan.KindAIReview {
		typ = EventAIReview
	}
	h.Publish(Event{Type: typ, Time: time.Now(), Data: res})
}

// Publish never blocks.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			c.drop()
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(n))
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(n))
}

// Serve upgrades the request and streams events until the peer leaves or the
// request context ends. The last known session state is sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Debug("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	// the feed is one-way; CloseRead answers pings and notices the peer closing
	ctx := conn.CloseRead(r.Context())

	c := &wsClient{send: make(chan Event, clientBuffer), dropped: make(chan struct{})}
	h.add(c)
	defer h.remove(c)
	h.logger.Debug("ws_client_connected", zap.String("remote", r.RemoteAddr))

	if ev := h.lastState.Load(); ev != nil {
		if err := h.write(ctx, conn, *ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-c.dropped:
			h.logger.Info("ws_client_dropped", zap.String("remote", r.RemoteAddr))
			conn.Close(websocket.StatusPolicyViolation, "slow consumer")
			return
		case ev := <-c.send:
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("ws_write_failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					h.logger.Debug("ws_ping_failed", zap.Error(err))
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}
