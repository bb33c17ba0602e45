package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/access"
	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

const waitTimeout = 2 * time.Second

type harness struct {
	t        *testing.T
	url      string
	resolver *auth.Resolver
	store    *memory.Store
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store := memory.NewStore()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	svc := chat.NewService(store, access.NewGuard(store), hub)
	resolver := auth.NewResolver("test-secret", time.Hour)
	srv := httptest.NewServer(NewManager(hub, svc, resolver, cfg))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{
		t:        t,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		resolver: resolver,
		store:    store,
	}
}

// peer is a test client. Frames are read on a goroutine so waiting for one
// never puts a deadline on the socket.
type peer struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan protocol.Envelope
	auth   protocol.Authenticated
}

func (h *harness) token(userID string) string {
	token, err := h.resolver.Issue(userID, "")
	require.NoError(h.t, err)
	return token
}

func (h *harness) rawDial(query string) *peer {
	conn, _, err := websocket.DefaultDialer.Dial(h.url+query, nil)
	require.NoError(h.t, err)
	p := &peer{t: h.t, conn: conn, frames: make(chan protocol.Envelope, 64)}
	go func() {
		defer close(p.frames)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env protocol.Envelope
			if json.Unmarshal(raw, &env) == nil {
				p.frames <- env
			}
		}
	}()
	h.t.Cleanup(func() { conn.Close() })
	return p
}

func (h *harness) dial(userID string) *peer {
	p := h.rawDial("?token=" + h.token(userID))
	env := p.expect(protocol.KindAuthenticated)
	p.decode(env, &p.auth)
	require.Equal(h.t, userID, p.auth.UserID)
	return p
}

func (p *peer) send(in protocol.Inbound, requestID string) {
	frame, err := protocol.EncodeInbound(in, requestID)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, frame))
}

func (p *peer) sendRaw(frame string) {
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// expect skips frames until one of kind arrives.
func (p *peer) expect(kind protocol.Kind) protocol.Envelope {
	p.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-p.frames:
			require.True(p.t, ok, "connection closed while waiting for %s", kind)
			if env.Event == kind {
				return env
			}
		case <-timeout:
			require.FailNow(p.t, "timed out waiting for "+string(kind))
		}
	}
}

// quiet fails if a frame of kind arrives within d.
func (p *peer) quiet(kind protocol.Kind, d time.Duration) {
	p.t.Helper()
	timeout := time.After(d)
	for {
		select {
		case env, ok := <-p.frames:
			if !ok {
				return
			}
			require.NotEqual(p.t, kind, env.Event, "unexpected %s", kind)
		case <-timeout:
			return
		}
	}
}

// closed waits for the server to close the connection.
func (p *peer) closed() {
	p.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-p.frames:
			if !ok {
				return
			}
		case <-timeout:
			require.FailNow(p.t, "connection was not closed")
		}
	}
}

func (p *peer) decode(env protocol.Envelope, v interface{}) {
	require.NoError(p.t, json.Unmarshal(env.Data, v))
}

func (p *peer) createGroup(name string, members ...string) string {
	p.send(&protocol.CreateGroup{Name: name, MemberIDs: members}, "")
	var created protocol.GroupCreated
	p.decode(p.expect(protocol.KindGroupCreated), &created)
	return created.Conversation.ID
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t, Config{})

	t.Run("bad token in query", func(t *testing.T) {
		p := h.rawDial("?token=garbage")
		var e protocol.ErrorPayload
		p.decode(p.expect(protocol.KindError), &e)
		assert.Equal(t, models.KindAuthentication, e.Code)
		p.closed()
	})

	t.Run("event before authenticate", func(t *testing.T) {
		p := h.rawDial("")
		p.sendRaw(`{"event":"join_room","id":"r1","data":"c1"}`)
		var e protocol.ErrorPayload
		p.decode(p.expect(protocol.KindError), &e)
		assert.Equal(t, models.KindAuthentication, e.Code)
		assert.Equal(t, "r1", e.RequestID)
		p.closed()
	})

	t.Run("authenticate frame", func(t *testing.T) {
		p := h.rawDial("")
		p.send(&protocol.Authenticate{Token: h.token("A")}, "auth-1")
		env := p.expect(protocol.KindAuthenticated)
		assert.Equal(t, "auth-1", env.ID)
		var a protocol.Authenticated
		p.decode(env, &a)
		assert.Equal(t, "A", a.UserID)
		assert.NotEmpty(t, a.ConnectionID)
		assert.Equal(t, []string{}, a.Conversations)
	})

	t.Run("authenticate twice", func(t *testing.T) {
		p := h.dial("A")
		p.send(&protocol.Authenticate{Token: h.token("A")}, "again")
		var e protocol.ErrorPayload
		p.decode(p.expect(protocol.KindError), &e)
		assert.Equal(t, models.KindValidation, e.Code)
	})
}

func TestFarmersGroup(t *testing.T) {
	h := newHarness(t, Config{})
	a, b, c := h.dial("A"), h.dial("B"), h.dial("C")

	convID := a.createGroup("Farmers", "B", "C")
	for _, p := range []*peer{b, c} {
		var created protocol.GroupCreated
		p.decode(p.expect(protocol.KindGroupCreated), &created)
		assert.Equal(t, convID, created.Conversation.ID)
		assert.Equal(t, "Farmers", created.Conversation.Name)
	}

	role, err := h.store.MemberRole(context.Background(), convID, "A")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	b.send(&protocol.SendMessage{ConversationID: convID, Content: "hello"}, "m1")

	ack := b.expect(protocol.KindMessageDelivered)
	assert.Equal(t, "m1", ack.ID)
	var delivered protocol.MessageDelivered
	b.decode(ack, &delivered)

	for _, p := range []*peer{a, c} {
		var msg models.Message
		p.decode(p.expect(protocol.KindReceiveMessage), &msg)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, delivered.MessageID, msg.ID)
		p.quiet(protocol.KindReceiveMessage, 200*time.Millisecond)
	}
}

func TestThreadReply(t *testing.T) {
	h := newHarness(t, Config{})
	a, b := h.dial("A"), h.dial("B")
	convID := a.createGroup("Farmers", "B")
	b.expect(protocol.KindGroupCreated)

	a.send(&protocol.SendMessage{ConversationID: convID, Content: "root"}, "")
	var root models.Message
	a.decode(a.expect(protocol.KindReceiveMessage), &root)

	b.send(&protocol.SendMessage{ConversationID: convID, Content: "reply", ReplyTo: root.ID}, "")
	var tr protocol.ThreadReply
	a.decode(a.expect(protocol.KindThreadReplyReceived), &tr)
	assert.Equal(t, root.ID, tr.ParentID)
	assert.Equal(t, 1, tr.ReplyCount)
	assert.Equal(t, "reply", tr.Reply.Content)

	parent, err := h.store.GetMessage(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, parent.ReplyCount)
}

func TestRoomsJoinedOnConnect(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.dial("A")
	convID := a.createGroup("Farmers", "B")
	a.send(&protocol.SendMessage{ConversationID: convID, Content: "while you were out"}, "")
	a.expect(protocol.KindReceiveMessage)

	b := h.dial("B")
	assert.Equal(t, []string{convID}, b.auth.Conversations)
	a.expect(protocol.KindUserOnline)

	a.send(&protocol.SendMessage{ConversationID: convID, Content: "welcome back"}, "")
	var msg models.Message
	b.decode(b.expect(protocol.KindReceiveMessage), &msg)
	assert.Equal(t, "welcome back", msg.Content)

	b.send(&protocol.JoinRoom{ConversationID: convID}, "")
	var read protocol.MessagesRead
	a.decode(a.expect(protocol.KindMessagesRead), &read)
	assert.Equal(t, "B", read.UserID)
	assert.Equal(t, convID, read.ConversationID)
}

func TestErrorsKeepConnectionOpen(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.dial("A")
	x := h.dial("X")
	convID := a.createGroup("Farmers", "B")

	x.send(&protocol.SendMessage{ConversationID: convID, Content: "let me in"}, "x1")
	var e protocol.ErrorPayload
	x.decode(x.expect(protocol.KindError), &e)
	assert.Equal(t, models.KindAuthorization, e.Code)
	assert.Equal(t, "x1", e.RequestID)

	x.sendRaw(`{"event":"send_message","data":{"conversationId":""}}`)
	x.decode(x.expect(protocol.KindError), &e)
	assert.Equal(t, models.KindValidation, e.Code)

	x.send(&protocol.JoinRoom{ConversationID: "missing"}, "")
	x.decode(x.expect(protocol.KindError), &e)
	assert.Equal(t, models.KindNotFound, e.Code)

	a.send(&protocol.AddReaction{MessageID: "missing", Emoji: "not an emoji"}, "")
	a.decode(a.expect(protocol.KindError), &e)
	assert.Equal(t, models.KindValidation, e.Code)

	x.quiet(protocol.KindReceiveMessage, 100*time.Millisecond)
	a.send(&protocol.SendMessage{ConversationID: convID, Content: "still open"}, "")
	a.expect(protocol.KindReceiveMessage)
}

func TestTypingIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	a, b := h.dial("A"), h.dial("B")
	convID := a.createGroup("Farmers", "B")
	b.expect(protocol.KindGroupCreated)

	a.send(&protocol.Typing{ConversationID: convID}, "")
	a.send(&protocol.Typing{ConversationID: convID}, "")
	var state protocol.TypingState
	b.decode(b.expect(protocol.KindTyping), &state)
	assert.Equal(t, "A", state.UserID)
	b.quiet(protocol.KindTyping, 200*time.Millisecond)

	a.send(&protocol.SendMessage{ConversationID: convID, Content: "done typing"}, "")
	b.expect(protocol.KindStopTyping)
}

func TestOfflineOnLastConnection(t *testing.T) {
	h := newHarness(t, Config{})
	a1 := h.dial("A")
	b := h.dial("B")
	convID := a1.createGroup("Farmers", "B")
	b.expect(protocol.KindGroupCreated)

	a2 := h.dial("A")
	assert.Equal(t, []string{convID}, a2.auth.Conversations)
	a2.send(&protocol.Typing{ConversationID: convID}, "")
	b.expect(protocol.KindTyping)

	// any disconnect of the user clears their typing state
	require.NoError(t, a1.conn.Close())
	b.expect(protocol.KindStopTyping)
	b.quiet(protocol.KindUserOffline, 300*time.Millisecond)

	require.NoError(t, a2.conn.Close())
	var off protocol.PresenceChange
	b.decode(b.expect(protocol.KindUserOffline), &off)
	assert.Equal(t, "A", off.UserID)
}

func TestRemovedMemberStopsReceiving(t *testing.T) {
	h := newHarness(t, Config{})
	a, b, c := h.dial("A"), h.dial("B"), h.dial("C")
	convID := a.createGroup("Farmers", "B", "C")
	b.expect(protocol.KindGroupCreated)
	c.expect(protocol.KindGroupCreated)

	a.send(&protocol.RemoveMember{ConversationID: convID, UserID: "C"}, "")
	var removed protocol.MemberRemoved
	c.decode(c.expect(protocol.KindMemberRemoved), &removed)
	assert.Equal(t, "C", removed.RemovedMember)

	a.send(&protocol.SendMessage{ConversationID: convID, Content: "members only"}, "")
	b.expect(protocol.KindReceiveMessage)
	c.quiet(protocol.KindReceiveMessage, 200*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Config{EventsPerSecond: 1, Burst: 1})
	a := h.dial("A")
	a.sendRaw(`{"event":"stop_typing","data":"nowhere"}`)
	a.sendRaw(`{"event":"stop_typing","data":"nowhere"}`)

	var e protocol.ErrorPayload
	a.decode(a.expect(protocol.KindError), &e)
	assert.Equal(t, models.KindNotFound, e.Code)
	a.decode(a.expect(protocol.KindError), &e)
	assert.Equal(t, models.KindRateLimited, e.Code)
}

func TestOversizedCredentialFrameIsRefused(t *testing.T) {
	h := newHarness(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame, err := protocol.EncodeInbound(&protocol.Authenticate{Token: strings.Repeat("x", 4*maxAuthFrameSize)}, "auth-1")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", raw)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
}
