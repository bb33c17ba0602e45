// Package ws owns live connections: which rooms they are subscribed to, who is
// online and who is typing. All of that state lives on one goroutine, Hub.Run;
// every other goroutine reaches it by posting a closure and waiting for it.
package ws

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/metrics"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/typing"
)

// ErrStopped is returned by hub calls made after Run has returned.
var ErrStopped = errors.New("hub stopped")

// Exclude removes a connection and/or every connection of a user from a broadcast.
type Exclude struct {
	ConnID string
	UserID string
}

func (e Exclude) skips(c *Client) bool {
	return (e.ConnID != "" && c.ID == e.ConnID) || (e.UserID != "" && c.UserID == e.UserID)
}

type Hub struct {
	ops     chan func()
	stopped chan struct{}

	rooms    map[string]map[*Client]struct{} // conversationID -> clients
	clients  map[string]*Client              // connID -> client
	presence *presence.Registry
	typing   *typing.Registry
}

func NewHub() *Hub {
	return &Hub{
		ops:      make(chan func()),
		stopped:  make(chan struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		clients:  make(map[string]*Client),
		presence: presence.NewRegistry(),
		typing:   typing.NewRegistry(),
	}
}

// Run executes posted operations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			for _, c := range h.clients {
				h.closeClient(c)
			}
			log.Debug("hub stopped")
			return
		}
	}
}

// do runs fn on the hub loop and waits for it.
func (h *Hub) do(fn func()) error {
	done := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(done) }:
	case <-h.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

func (h *Hub) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	for room := range c.rooms {
		h.unsubscribe(c, room)
	}
	close(c.Send)
}

// deliver queues frame without blocking. A client that cannot keep up is
// dropped; it will reconnect and rejoin.
func (h *Hub) deliver(c *Client, frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.Send <- frame:
	default:
		metrics.CountDropped()
		c.log.Warn("send queue full, dropping connection")
		h.closeClient(c)
	}
}

func (h *Hub) subscribe(c *Client, room string) bool {
	if c.closed {
		return false
	}
	clients, ok := h.rooms[room]
	if !ok {
		clients = make(map[*Client]struct{})
		h.rooms[room] = clients
	}
	if _, ok := clients[c]; ok {
		return false
	}
	clients[c] = struct{}{}
	c.rooms[room] = struct{}{}
	h.sendTypingState(c, room)
	return true
}

func (h *Hub) unsubscribe(c *Client, room string) {
	if clients, ok := h.rooms[room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// sendTypingState tells a newly subscribed connection who is already typing.
func (h *Hub) sendTypingState(c *Client, room string) {
	for _, userID := range h.typing.Typing(room) {
		if userID == c.UserID {
			continue
		}
		frame, err := protocol.Encode(protocol.KindTyping, "", protocol.TypingState{ConversationID: room, UserID: userID})
		if err == nil {
			h.deliver(c, frame)
		}
	}
}

func (h *Hub) broadcast(room string, frame []byte, ex Exclude) {
	for c := range h.rooms[room] {
		if !ex.skips(c) {
			h.deliver(c, frame)
		}
	}
}

func (h *Hub) broadcastAll(rooms []string, kind protocol.Kind, payload interface{}, ex Exclude) {
	frame, err := protocol.Encode(kind, "", payload)
	if err != nil {
		log.WithError(err).WithField("event", kind).Error("failed to encode event")
		return
	}
	for _, room := range rooms {
		h.broadcast(room, frame, ex)
	}
}

func (h *Hub) updateGauges() {
	metrics.SetConnections(len(h.clients))
	metrics.SetOnlineUsers(h.presence.OnlineCount())
}

// Register adds c, subscribes it to rooms and announces the user online to
// those rooms if this is the user's first connection.
func (h *Hub) Register(c *Client, rooms []string) error {
	return h.do(func() {
		h.clients[c.ID] = c
		first := h.presence.Connect(c.UserID, c.ID)
		for _, room := range rooms {
			h.subscribe(c, room)
		}
		if first {
			h.broadcastAll(rooms, protocol.KindUserOnline, protocol.PresenceChange{UserID: c.UserID}, Exclude{UserID: c.UserID})
		}
		h.updateGauges()
	})
}

// Unregister removes c. The user's typing state is cleared everywhere, and on
// the last connection the user is announced offline to audience plus every
// room c was subscribed to.
func (h *Hub) Unregister(c *Client, audience []string) error {
	return h.do(func() {
		if _, ok := h.clients[c.ID]; !ok {
			return
		}
		rooms := make(map[string]struct{}, len(c.rooms)+len(audience))
		for room := range c.rooms {
			rooms[room] = struct{}{}
		}
		for _, room := range audience {
			rooms[room] = struct{}{}
		}

		delete(h.clients, c.ID)
		h.closeClient(c)
		last := h.presence.Disconnect(c.UserID, c.ID)

		for _, room := range h.typing.StopAll(c.UserID) {
			h.broadcastAll([]string{room}, protocol.KindStopTyping,
				protocol.TypingState{ConversationID: room, UserID: c.UserID}, Exclude{UserID: c.UserID})
		}
		if last {
			all := make([]string, 0, len(rooms))
			for room := range rooms {
				all = append(all, room)
			}
			h.broadcastAll(all, protocol.KindUserOffline, protocol.PresenceChange{UserID: c.UserID}, Exclude{UserID: c.UserID})
		}
		h.updateGauges()
	})
}

// Join subscribes one connection to room.
func (h *Hub) Join(c *Client, room string) error {
	return h.do(func() { h.subscribe(c, room) })
}

// Leave unsubscribes one connection from room.
func (h *Hub) Leave(c *Client, room string) error {
	return h.do(func() { h.unsubscribe(c, room) })
}

// JoinUser subscribes every live connection of userID to room and returns how
// many there were.
func (h *Hub) JoinUser(userID, room string) (int, error) {
	n := 0
	err := h.do(func() {
		for _, id := range h.presence.Connections(userID) {
			if c, ok := h.clients[id]; ok && !c.closed {
				h.subscribe(c, room)
				n++
			}
		}
	})
	return n, err
}

// LeaveUser unsubscribes every connection of userID from room and clears the
// user's typing state there.
func (h *Hub) LeaveUser(userID, room string) error {
	return h.do(func() {
		for _, id := range h.presence.Connections(userID) {
			if c, ok := h.clients[id]; ok {
				h.unsubscribe(c, room)
			}
		}
		if h.typing.Stop(room, userID) {
			h.broadcastAll([]string{room}, protocol.KindStopTyping,
				protocol.TypingState{ConversationID: room, UserID: userID}, Exclude{UserID: userID})
		}
	})
}

// Broadcast encodes the event once and queues it for every subscriber of room
// not matched by ex.
func (h *Hub) Broadcast(room string, kind protocol.Kind, payload interface{}, ex Exclude) error {
	frame, err := protocol.Encode(kind, "", payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", kind)
	}
	return h.do(func() { h.broadcast(room, frame, ex) })
}

// SendToUser queues an event on every live connection of each user.
func (h *Hub) SendToUser(kind protocol.Kind, payload interface{}, userIDs ...string) error {
	frame, err := protocol.Encode(kind, "", payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", kind)
	}
	return h.do(func() {
		for _, userID := range userIDs {
			for _, id := range h.presence.Connections(userID) {
				if c, ok := h.clients[id]; ok {
					h.deliver(c, frame)
				}
			}
		}
	})
}

// Send queues a pre-encoded frame for one connection, ordered with broadcasts.
func (h *Hub) Send(c *Client, frame []byte) error {
	return h.do(func() { h.deliver(c, frame) })
}

// SetTyping records a typing or stop-typing signal and broadcasts it to the
// room, excluding the user, only when the state changed.
func (h *Hub) SetTyping(room, userID string, active bool) (changed bool, err error) {
	err = h.do(func() {
		kind := protocol.KindStopTyping
		if active {
			changed = h.typing.Start(room, userID)
			kind = protocol.KindTyping
		} else {
			changed = h.typing.Stop(room, userID)
		}
		if changed {
			h.broadcastAll([]string{room}, kind, protocol.TypingState{ConversationID: room, UserID: userID}, Exclude{UserID: userID})
		}
	})
	return changed, err
}

// IsOnline reports whether userID holds a live connection.
func (h *Hub) IsOnline(userID string) (online bool) {
	_ = h.do(func() { online = h.presence.IsOnline(userID) })
	return online
}

// OnlineCount counts how many of userIDs are online.
func (h *Hub) OnlineCount(userIDs []string) (n int) {
	_ = h.do(func() {
		for _, id := range userIDs {
			if h.presence.IsOnline(id) {
				n++
			}
		}
	})
	return n
}

// Typing lists the users typing in room.
func (h *Hub) Typing(room string) (users []string) {
	_ = h.do(func() { users = h.typing.Typing(room) })
	return users
}

// Subscribed reports whether connection c is in room.
func (h *Hub) Subscribed(c *Client, room string) (ok bool) {
	_ = h.do(func() { _, ok = h.rooms[room][c] })
	return ok
}
