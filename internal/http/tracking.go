package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"medicart/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 16
)

// TrackingHub streams a user's order events to their open websocket
// connections. It is an events.Sink.
type TrackingHub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*trackingClient]struct{}
}

type trackingClient struct {
	userID string
	conn   *websocket.Conn
	send   chan events.Event
}

var _ events.Sink = (*TrackingHub)(nil)

func NewTrackingHub(log *slog.Logger) *TrackingHub {
	return &TrackingHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[string]map[*trackingClient]struct{}),
	}
}

func (h *TrackingHub) Name() string { return "tracking" }

// Publish hands e to every connection of e.UserID. A connection whose buffer
// is full misses the event rather than stalling the others.
func (h *TrackingHub) Publish(ctx context.Context, e events.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients[e.UserID] {
		select {
		case cl.send <- e:
		default:
			h.log.WarnContext(ctx, "tracking client too slow, event skipped", "user_id", e.UserID, "order_id", e.OrderID)
		}
	}
	return nil
}

func (h *TrackingHub) register(cl *trackingClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[cl.userID]
	if !ok {
		set = make(map[*trackingClient]struct{})
		h.clients[cl.userID] = set
	}
	set[cl] = struct{}{}
}

func (h *TrackingHub) unregister(cl *trackingClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[cl.userID]
	if _, ok := set[cl]; !ok {
		return
	}
	delete(set, cl)
	if len(set) == 0 {
		delete(h.clients, cl.userID)
	}
	close(cl.send)
}

func (h *TrackingHub) connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *TrackingHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for user, set := range h.clients {
		for cl := range set {
			close(cl.send)
		}
		delete(h.clients, user)
	}
}

// @Summary Live order updates
// @Description Upgrades to a websocket that receives the caller's order events as JSON.
// @Tags orders
// @Security BearerAuth
// @Param access_token query string false "Bearer token, for clients that cannot set headers"
// @Success 101
// @Failure 401 {object} map[string]string
// @Router /orders/ws [get]
func (h *TrackingHub) serveWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		return
	}
	cl := &trackingClient{userID: currentUser(c), conn: conn, send: make(chan events.Event, wsSendBuffer)}
	h.register(cl)
	h.log.InfoContext(c, "tracking client connected", "user_id", cl.userID)

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// readLoop only watches for the peer going away.
func (h *TrackingHub) readLoop(cl *trackingClient) {
	defer h.unregister(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *TrackingHub) writeLoop(cl *trackingClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case e, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
