// Package session runs the socket protocol for one connection at a time:
// authenticate, join the user's rooms, then dispatch every inbound event in
// the order it arrived.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/metrics"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

// maxAuthFrameSize caps what an unauthenticated peer can make us buffer.
// ReadPump raises the limit once the connection is authenticated.
const maxAuthFrameSize = 4 << 10

const (
	DefaultAuthTimeout     = 10 * time.Second
	DefaultEventsPerSecond = 20
	DefaultBurst           = 40
)

type Config struct {
	// AllowedOrigins lists the browser origins allowed to connect. Empty
	// allows any origin.
	AllowedOrigins  []string
	SendBuffer      int
	EventsPerSecond float64
	Burst           int
	AuthTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.EventsPerSecond <= 0 {
		c.EventsPerSecond = DefaultEventsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	return c
}

// Manager upgrades HTTP requests into chat sessions.
type Manager struct {
	hub      *ws.Hub
	chat     *chat.Service
	resolver *auth.Resolver
	cfg      Config
	upgrader websocket.Upgrader
}

func NewManager(hub *ws.Hub, svc *chat.Service, resolver *auth.Resolver, cfg Config) *Manager {
	m := &Manager{
		hub:      hub,
		chat:     svc,
		resolver: resolver,
		cfg:      cfg.withDefaults(),
	}
	m.upgrader = websocket.Upgrader{CheckOrigin: m.checkOrigin}
	return m
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	if len(m.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range m.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP handles /ws. It blocks for the lifetime of the connection.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	identity, requestID, err := m.authenticate(conn, auth.TokenFromRequest(r))
	if err != nil {
		log.WithError(err).Debug("rejecting unauthenticated connection")
		metrics.CountEvent(string(protocol.KindAuthenticate), metrics.ResultRejected)
		reject(conn, err, requestID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rooms, err := m.chat.ConversationIDs(ctx, identity.UserID)
	if err != nil {
		log.WithError(err).WithField("user", identity.UserID).Error("failed to load conversations")
		reject(conn, err, requestID)
		return
	}
	if rooms == nil {
		rooms = []string{}
	}

	client := ws.NewClient(conn, identity.UserID, m.cfg.SendBuffer)
	s := &session{
		Manager: m,
		ctx:     ctx,
		client:  client,
		actor:   chat.Actor{UserID: identity.UserID, ConnID: client.ID},
		limiter: rate.NewLimiter(rate.Limit(m.cfg.EventsPerSecond), m.cfg.Burst),
	}
	// authenticated is queued before any room traffic can reach the client.
	s.reply(protocol.KindAuthenticated, requestID, protocol.Authenticated{
		UserID:        identity.UserID,
		Role:          identity.Role,
		ConnectionID:  client.ID,
		Conversations: rooms,
	})
	if err := m.hub.Register(client, rooms); err != nil {
		reject(conn, err, requestID)
		return
	}
	go client.WritePump()
	metrics.CountEvent(string(protocol.KindAuthenticate), metrics.ResultOK)
	client.Log().WithField("rooms", len(rooms)).Debug("connection authenticated")

	client.ReadPump(s.handle)
	s.close()
}

// authenticate resolves the credential carried by the upgrade request or, when
// there is none, by the first frame, which must be authenticate.
func (m *Manager) authenticate(conn *websocket.Conn, token string) (auth.Identity, string, error) {
	if token != "" {
		identity, err := m.resolver.Resolve(token)
		return identity, "", err
	}

	conn.SetReadLimit(maxAuthFrameSize)
	conn.SetReadDeadline(time.Now().Add(m.cfg.AuthTimeout))
	_, raw, err := conn.ReadMessage()
	if errors.Is(err, websocket.ErrReadLimit) {
		return auth.Identity{}, "", errors.Wrap(models.ErrUnauthenticated, "credential frame too large")
	}
	if err != nil {
		return auth.Identity{}, "", errors.Wrap(models.ErrUnauthenticated, "no credential received")
	}
	conn.SetReadDeadline(time.Time{})

	in, requestID, err := protocol.Decode(raw)
	if err != nil {
		return auth.Identity{}, requestID, errors.Wrap(models.ErrUnauthenticated, err.Error())
	}
	msg, ok := in.(*protocol.Authenticate)
	if !ok {
		return auth.Identity{}, requestID, errors.Wrapf(models.ErrUnauthenticated, "%s before authenticate", in.Kind())
	}
	identity, err := m.resolver.Resolve(msg.Token)
	return identity, requestID, err
}

// reject writes an error frame straight to a connection that never reached
// the hub and closes it.
func reject(conn *websocket.Conn, err error, requestID string) {
	deadline := time.Now().Add(time.Second)
	conn.SetWriteDeadline(deadline)
	conn.WriteMessage(websocket.TextMessage, protocol.ErrorFrame(err, requestID))
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, models.PublicMessage(err)), deadline)
	conn.Close()
}
