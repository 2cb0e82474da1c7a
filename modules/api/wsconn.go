package api

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	domain "github.com/XuanSon0704/Reels-Chat/domain/realtime"
)

// wsConn adapts a Fiber WebSocket connection to domain.Connection. The
// mutex serializes writers; the hub fans out from many goroutines and
// the underlying connection allows only one concurrent writer.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

var _ domain.Connection = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.New().String(),
		conn: conn,
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
