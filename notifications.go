package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"newomega/pkg/types"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 64
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type subscriber struct {
	id      string
	account types.AccountID // empty receives every event
	conn    *websocket.Conn
	send    chan []byte
}

// Hub fans events out to websocket subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	if s, ok := h.subs[id]; ok {
		close(s.send)
		delete(h.subs, id)
	}
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast never blocks on a slow subscriber; a full buffer drops the event
// for that subscriber only.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		ErrorLog.Printf("encode event %s: %v", ev.Type, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.account != "" && s.account != ev.Account {
			continue
		}
		select {
		case s.send <- data:
		default:
			zapLogger.Warn("dropping event for slow subscriber", zap.String("subscriber", s.id), zap.String("event", ev.Type))
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
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the close; subscribers never send commands.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s.id)
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleEvents upgrades to a websocket streaming events. ?account= narrows the
// stream to one account.
func handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ErrorLog.Printf("websocket upgrade: %v", err)
		return
	}
	s := &subscriber{
		id:      uuid.NewString(),
		account: types.AccountID(r.URL.Query().Get("account")),
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
	}
	hub.add(s)
	zapLogger.Debug("subscriber joined", zap.String("subscriber", s.id), zap.String("account", string(s.account)))

	go s.writePump()
	go hub.readPump(s)
}

// deposit publishes a committed event.
func deposit(ev Event) {
	zapLogger.Info("event", zap.String("type", ev.Type), zap.String("account", string(ev.Account)))
	if hub != nil {
		hub.Broadcast(ev)
	}
}
