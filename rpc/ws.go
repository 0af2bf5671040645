package rpc

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/metrics"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

// WSHub fans committed chain events out to websocket clients. Clients may
// narrow the stream with ?types=coupon_minted,coupon_sold.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	log     *logrus.Entry
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	filter map[events.EventType]bool
	once   sync.Once
}

func (c *wsClient) wants(typ events.EventType) bool {
	return len(c.filter) == 0 || c.filter[typ]
}

// NewWSHub creates a hub subscribed to every event of emitter.
func NewWSHub(emitter *events.Emitter) *WSHub {
	h := &WSHub{
		clients: make(map[*wsClient]struct{}),
		log:     logrus.StandardLogger().WithField("type", "rpc/ws"),
	}
	emitter.SubscribeAll(h.publish)
	return h
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish never blocks the emitter; slow clients lose messages.
func (h *WSHub) publish(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.WithField("remote", c.conn.RemoteAddr().String()).Debug("dropping event for slow client")
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// HandleWS upgrades the request and streams events until the client leaves.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		filter: parseTypes(r.URL.Query()["types"]),
	}
	h.add(c)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	h.log.WithField("total", n).Debug("websocket client connected")
}

func (h *WSHub) remove(c *wsClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		close(c.send)
		h.mu.Unlock()
		metrics.WebSocketClients.Set(float64(n))
		_ = c.conn.Close()
	})
}

// readPump drains client frames so pongs and close frames are processed.
func (h *WSHub) readPump(c *wsClient) {
	defer h.remove(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTypes(values []string) map[events.EventType]bool {
	filter := make(map[events.EventType]bool)
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter[events.EventType(t)] = true
			}
		}
	}
	return filter
}
