package observer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Frame is the JSON message written to live viewers.
type Frame struct {
	Event string     `json:"event"`
	Data  FiredEvent `json:"data"`
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() { close(v.send) })
}

// WebSocketHub streams firings to connected viewers. New viewers first
// receive the current history from Replay. A viewer that cannot keep up is
// disconnected rather than slowing down recording.
type WebSocketHub struct {
	Logger *slog.Logger
	Replay func() []FiredEvent

	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// NewWebSocketHub creates a hub replaying history from replay, which may be
// nil.
func NewWebSocketHub(replay func() []FiredEvent, logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		Logger: logger,
		Replay: replay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 10,
			WriteBufferSize: 1 << 12,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
	}
}

// Emit implements Sink.
func (h *WebSocketHub) Emit(name string, evt FiredEvent) error {
	msg, err := json.Marshal(Frame{Event: name, Data: evt})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			delete(h.viewers, v)
			v.close()
			dropped++
		}
	}
	liveViewers.Set(float64(len(h.viewers)))
	if dropped > 0 {
		return fmt.Errorf("dropped %d slow viewers", dropped)
	}
	return nil
}

// Viewers is the number of connected viewers.
func (h *WebSocketHub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// ServeHTTP upgrades the request and streams firings until the viewer
// disconnects.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	v := &viewer{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.Replay != nil {
		for _, evt := range h.Replay() {
			msg, err := json.Marshal(Frame{Event: EventFired, Data: evt})
			if err != nil {
				continue
			}
			select {
			case v.send <- msg:
			default:
			}
		}
	}
	h.viewers[v] = struct{}{}
	liveViewers.Set(float64(len(h.viewers)))
	h.mu.Unlock()

	go h.writeLoop(v)
	h.readLoop(v)
}

func (h *WebSocketHub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		v.close()
	}
	liveViewers.Set(float64(len(h.viewers)))
}

// readLoop discards viewer input and returns once the connection closes.
func (h *WebSocketHub) readLoop(v *viewer) {
	defer func() {
		h.remove(v)
		_ = v.conn.Close()
	}()
	v.conn.SetReadLimit(512)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writeLoop(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every viewer.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		delete(h.viewers, v)
		v.close()
	}
	liveViewers.Set(0)
}
