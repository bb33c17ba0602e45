package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	DefaultSendBuffer = 256
)

// Client is one live socket connection of an authenticated user.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte
	Conn   *websocket.Conn

	log *log.Entry

	// owned by the hub loop
	closed bool
	rooms  map[string]struct{}
}

func NewClient(conn *websocket.Conn, userID string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	id := uuid.NewString()
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
		Conn:   conn,
		log:    log.WithFields(log.Fields{"conn": id, "user": userID}),
		rooms:  make(map[string]struct{}),
	}
}

func (c *Client) Log() *log.Entry {
	return c.log
}

// WritePump drains Send onto the socket and keeps it alive with pings. It
// returns, closing the socket, once the hub closes Send.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Debug("write failed")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump hands every frame to handle, in order, until the socket fails.
func (c *Client) ReadPump(handle func([]byte)) {
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("connection closed unexpectedly")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(msg)
	}
}
