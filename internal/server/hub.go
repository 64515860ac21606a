package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AnEntrypoint/sequential-gui/internal/events"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10

	// wsBuffer is the per-client event backlog. A client further behind
	// than this misses events; there is no replay.
	wsBuffer = 256
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Hub forwards bus events to websocket clients as JSON text messages.
// Clients may narrow the stream with ?task=<id> and ?topics=run,log.
type Hub struct {
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]context.CancelFunc
}

// NewHub creates a hub over bus.
func NewHub(bus *events.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[string]context.CancelFunc),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cancel := range h.clients {
		cancel()
	}
}

// filter decides which events a client receives. scope and dir narrow
// artifactChanged events only; dir matches itself and everything below it.
type filter struct {
	task   string
	topics map[string]bool
	scope  string
	dir    string
}

func parseFilter(r *http.Request) filter {
	q := r.URL.Query()
	f := filter{
		task:  strings.TrimSpace(q.Get("task")),
		scope: strings.TrimSpace(q.Get("scope")),
	}
	if raw := strings.TrimSpace(q.Get("path")); raw != "" {
		if f.dir = path.Clean("/" + raw); f.dir == "/" {
			f.dir = ""
		}
	}
	if raw := strings.TrimSpace(q.Get("topics")); raw != "" {
		f.topics = make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.topics[t] = true
			}
		}
	}
	return f
}

func (f filter) match(ev events.Event) bool {
	if f.task != "" && ev.TaskID() != "" && ev.TaskID() != f.task {
		return false
	}
	if f.topics != nil && !f.topics[ev.Topic()] {
		return false
	}
	if ac, ok := ev.(events.ArtifactChangedEvent); ok {
		if f.scope != "" && ac.Scope != f.scope {
			return false
		}
		if f.dir != "" && ac.Path != f.dir && !strings.HasPrefix(ac.Path, f.dir+"/") {
			return false
		}
	}
	return true
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away or the hub is closed. Messages from the client are read only to
// process control frames and are otherwise ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	f := parseFilter(r)
	logger := h.logger.With("client", id, "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.bus.SubscribeAll(wsBuffer)
	defer func() {
		if n := sub.Dropped(); n > 0 {
			logger.Warn("websocket client missed events", "dropped", n)
		}
		sub.Close()
	}()

	// Registered after subscribing: a counted client receives every event
	// published from then on.
	h.mu.Lock()
	h.clients[id] = cancel
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
	}()
	logger.Debug("websocket client connected", "task", f.task)

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.writeClose(conn)
			logger.Debug("websocket client disconnected")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				h.writeClose(conn)
				return
			}
			if !f.match(ev) {
				continue
			}
			data, err := events.Encode(ev)
			if err != nil {
				logger.Error("failed to encode event", "type", ev.EventType(), "error", err)
				continue
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
