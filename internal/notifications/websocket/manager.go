package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MessageTypeNotification = "notification"
	MessageTypeStatus       = "status"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// ErrNotConnected is returned when the user has no open connection.
var ErrNotConnected = errors.New("user not connected")

// Message is the JSON frame pushed to clients
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Manager handles WebSocket connections and routes messages per user
type Manager struct {
	mu          sync.RWMutex
	connections map[uint]map[string]*Connection
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	UserID       uint
	Conn         *websocket.Conn
	Send         chan Message
	LastActivity time.Time
	mu           sync.Mutex
	closed       bool
}

// enqueue reports false when the connection is closed or its buffer is full.
func (c *Connection) enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// NewManager creates a new WebSocket manager. An empty allowedOrigins list
// accepts any origin.
func NewManager(logger *zap.Logger, allowedOrigins []string) *Manager {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Manager{
		connections: make(map[uint]map[string]*Connection),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// HandleConnection upgrades the request and registers the connection for userID.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID uint) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		Conn:         conn,
		Send:         make(chan Message, sendBuffer),
		LastActivity: time.Now(),
	}
	connection.enqueue(Message{
		Type:      MessageTypeStatus,
		Data:      map[string]any{"status": "connected", "connection_id": connection.ID},
		Timestamp: time.Now(),
	})
	m.register(connection)

	go m.readPump(connection)
	go m.writePump(connection)
	return connection, nil
}

// SendToUser queues msg on every connection of the user.
func (m *Manager) SendToUser(userID uint, msg Message) error {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections[userID]))
	for _, c := range m.connections[userID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	if len(conns) == 0 {
		return ErrNotConnected
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	for _, c := range conns {
		if !c.enqueue(msg) {
			m.logger.Warn("Dropping websocket connection with full buffer",
				zap.Uint("user_id", userID), zap.String("connection_id", c.ID))
			m.unregister(c)
		}
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.connections {
		n += len(conns)
	}
	return n
}

// Close drops every connection.
func (m *Manager) Close() {
	m.mu.RLock()
	var all []*Connection
	for _, conns := range m.connections {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	m.mu.RUnlock()
	for _, c := range all {
		m.unregister(c)
	}
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[c.UserID] == nil {
		m.connections[c.UserID] = make(map[string]*Connection)
	}
	m.connections[c.UserID][c.ID] = c
}

func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	if conns, ok := m.connections[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(m.connections, c.UserID)
		}
	}
	m.mu.Unlock()
	c.close()
}

// readPump only tracks liveness; clients do not send commands.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("Websocket closed", zap.Uint("user_id", conn.UserID), zap.Error(err))
			}
			return
		}
		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
