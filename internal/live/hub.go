// Package live pushes click summaries to dashboards watching a short link.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shorturl/internal/domain"
	"shorturl/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
)

// ErrHubStopped is returned by ServeWS after Stop
var ErrHubStopped = errors.New("live hub stopped")

// Notifier delivers a fresh click summary for a code
type Notifier interface {
	Notify(ctx context.Context, code string, summary *domain.ClickSummary) error
}

// Hub tracks websocket subscribers per short code
type Hub struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	rooms   map[string]map[*subscriber]struct{}
	stopped bool
}

type subscriber struct {
	code      string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

// NewHub creates a hub. An empty origin list accepts any origin.
func NewHub(log *logger.Logger, allowedOrigins []string) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}

	return &Hub{
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		rooms: make(map[string]map[*subscriber]struct{}),
	}
}

// ServeWS upgrades the request and subscribes it to code
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, code string) error {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return ErrHubStopped
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	s := &subscriber{
		code: code,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	if !h.register(s) {
		conn.Close()
		return ErrHubStopped
	}

	go s.writePump()
	go s.readPump()

	h.logger.Debugw("Live subscriber connected", "code", code)
	return nil
}

// Notify implements Notifier by broadcasting to local subscribers
func (h *Hub) Notify(_ context.Context, code string, summary *domain.ClickSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	h.Broadcast(code, payload)
	return nil
}

// Broadcast sends a raw payload to every subscriber of code.
// Subscribers whose buffer is full miss the update.
func (h *Hub) Broadcast(code string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[code] {
		select {
		case s.send <- payload:
		default:
			h.logger.Warnw("Live subscriber buffer full", "code", code)
		}
	}
}

// Subscribers returns the number of connections watching code
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// Stop closes every connection and rejects new ones
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for code, subs := range h.rooms {
		for s := range subs {
			s.closeSend()
			s.conn.Close()
		}
		delete(h.rooms, code)
	}
}

func (h *Hub) register(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	if h.rooms[s.code] == nil {
		h.rooms[s.code] = make(map[*subscriber]struct{})
	}
	h.rooms[s.code][s] = struct{}{}
	return true
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[s.code]
	if !ok {
		return
	}
	if _, ok := subs[s]; ok {
		delete(subs, s)
		s.closeSend()
	}
	if len(subs) == 0 {
		delete(h.rooms, s.code)
	}
}

func (s *subscriber) closeSend() {
	s.closeOnce.Do(func() { close(s.send) })
}

// readPump drains client frames so pongs and close frames are processed
func (s *subscriber) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warnw("Live subscriber read failed", "code", s.code, "error", err)
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
