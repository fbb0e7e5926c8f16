package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single write to a peer
const writeWait = 10 * time.Second

// websocketClient wraps a gorilla/websocket connection. Writes are
// serialized because gorilla allows one concurrent writer.
type websocketClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebsocketClient creates a new client that wraps the given connection.
func NewWebsocketClient(conn *websocket.Conn) Client {
	return &websocketClient{conn: conn}
}

func (c *websocketClient) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *websocketClient) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *websocketClient) Close() error {
	return c.conn.Close()
}
