package webui

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsConn is the part of *websocket.Conn the pool writes to.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type poolClient struct {
	conn wsConn
	send chan []byte
	once sync.Once
}

func (c *poolClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// ConnectionPool fans history frames out to websocket clients. Every client
// has its own buffered writer; a client that cannot keep up is dropped.
type ConnectionPool struct {
	mu           sync.Mutex
	clients      map[wsConn]*poolClient
	sendBuffer   int
	writeTimeout time.Duration
}

func NewConnectionPool() *ConnectionPool {
	return &ConnectionPool{
		clients:      map[wsConn]*poolClient{},
		sendBuffer:   64,
		writeTimeout: 5 * time.Second,
	}
}

func (cp *ConnectionPool) Add(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	c := &poolClient{conn: conn, send: make(chan []byte, max(cp.sendBuffer, 1))}
	cp.mu.Lock()
	if _, ok := cp.clients[conn]; ok {
		cp.mu.Unlock()
		return
	}
	cp.clients[conn] = c
	timeout := cp.writeTimeout
	cp.mu.Unlock()

	go cp.writeLoop(c, timeout)
}

func (cp *ConnectionPool) writeLoop(c *poolClient, timeout time.Duration) {
	for data := range c.send {
		if timeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("component", "webui").Msg("ws write failed, dropping connection")
			cp.Remove(c.conn)
			// drain so senders never block on a dead client
			for range c.send {
			}
			return
		}
	}
}

func (cp *ConnectionPool) Remove(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	c, ok := cp.clients[conn]
	delete(cp.clients, conn)
	cp.mu.Unlock()
	if ok {
		c.close()
	}
	_ = conn.Close()
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	var slow []wsConn
	for conn, c := range cp.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cp.mu.Unlock()
	for _, conn := range slow {
		log.Warn().Str("component", "webui").Msg("ws send buffer full, dropping connection")
		cp.Remove(conn)
	}
}

func (cp *ConnectionPool) SendToOne(conn wsConn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	c, ok := cp.clients[conn]
	full := false
	if ok {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	cp.mu.Unlock()
	if full {
		cp.Remove(conn)
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.clients)
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	clients := cp.clients
	cp.clients = map[wsConn]*poolClient{}
	cp.mu.Unlock()
	for conn, c := range clients {
		c.close()
		_ = conn.Close()
	}
}
