package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/access"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

type call struct {
	op      string // broadcast, send, join, leave, typing
	room    string
	kind    protocol.Kind
	payload interface{}
	ex      ws.Exclude
	users   []string
}

type fakeHub struct {
	mu     sync.Mutex
	calls  []call
	online map[string]bool
	typing map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{online: map[string]bool{}, typing: map[string]bool{}}
}

func (f *fakeHub) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeHub) Broadcast(room string, kind protocol.Kind, payload interface{}, ex ws.Exclude) error {
	f.record(call{op: "broadcast", room: room, kind: kind, payload: payload, ex: ex})
	return nil
}

func (f *fakeHub) SendToUser(kind protocol.Kind, payload interface{}, userIDs ...string) error {
	f.record(call{op: "send", kind: kind, payload: payload, users: userIDs})
	return nil
}

func (f *fakeHub) JoinUser(userID, room string) (int, error) {
	f.record(call{op: "join", room: room, users: []string{userID}})
	return 1, nil
}

func (f *fakeHub) LeaveUser(userID, room string) error {
	f.record(call{op: "leave", room: room, users: []string{userID}})
	return nil
}

func (f *fakeHub) SetTyping(room, userID string, active bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := room + "/" + userID
	changed := f.typing[key] != active
	f.typing[key] = active
	f.calls = append(f.calls, call{op: "typing", room: room, users: []string{userID}})
	return changed, nil
}

func (f *fakeHub) OnlineCount(userIDs []string) int {
	n := 0
	for _, id := range userIDs {
		if f.online[id] {
			n++
		}
	}
	return n
}

func (f *fakeHub) broadcasts(kind protocol.Kind) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == "broadcast" && c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHub) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.op+":"+string(c.kind))
	}
	return out
}

func (f *fakeHub) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func setup(t *testing.T) (*Service, *memory.Store, *fakeHub) {
	t.Helper()
	store := memory.NewStore()
	hub := newFakeHub()
	return NewService(store, access.NewGuard(store), hub), store, hub
}

func createFarmers(t *testing.T, s *Service) *models.Conversation {
	t.Helper()
	created, err := s.CreateGroup(context.Background(), Actor{UserID: "A", ConnID: "a1"},
		&protocol.CreateGroup{Name: "Farmers", MemberIDs: []string{"B", "C", "A", "B"}})
	require.NoError(t, err)
	return &created.Conversation
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	s, store, hub := setup(t)

	created, err := s.CreateGroup(ctx, Actor{UserID: "A"}, &protocol.CreateGroup{Name: " Farmers ", MemberIDs: []string{"B", "C", "A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, "Farmers", created.Conversation.Name)
	require.Len(t, created.Participants, 3)
	assert.Equal(t, "A", created.Participants[0].UserID)
	assert.Equal(t, models.RoleAdmin, created.Participants[0].Role)

	var joined []string
	for _, c := range hub.calls {
		if c.op == "join" {
			joined = append(joined, c.users...)
		}
	}
	assert.ElementsMatch(t, []string{"A", "B", "C"}, joined)
	assert.Contains(t, hub.ops(), "send:"+string(protocol.KindGroupCreated))

	invites, err := store.ListNotifications(ctx, "B", true, 0)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, models.NotifyGroupInvitation, invites[0].Type)

	_, err = s.CreateGroup(ctx, Actor{UserID: "A"}, &protocol.CreateGroup{Name: "Solo", MemberIDs: []string{"A"}})
	assert.Equal(t, models.KindValidation, models.Classify(err))
}

func TestSendMessageAndReply(t *testing.T) {
	ctx := context.Background()
	s, store, hub := setup(t)
	conv := createFarmers(t, s)
	hub.reset()

	m1, err := s.SendMessage(ctx, Actor{UserID: "A", ConnID: "a1"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "hello @C"})
	require.NoError(t, err)

	received := hub.broadcasts(protocol.KindReceiveMessage)
	require.Len(t, received, 1)
	assert.Equal(t, ws.Exclude{}, received[0].ex, "the whole room, sender included")
	assert.Equal(t, "typing:", hub.ops()[0], "typing cleared before the broadcast")

	forB, err := store.ListNotifications(ctx, "B", false, 0)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyMessage, forB[0].Type)
	forC, err := store.ListNotifications(ctx, "C", false, 0)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyMention, forC[0].Type)

	reply, err := s.SendMessage(ctx, Actor{UserID: "B", ConnID: "b1"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "ack", ReplyTo: m1.ID})
	require.NoError(t, err)
	threads := hub.broadcasts(protocol.KindThreadReplyReceived)
	require.Len(t, threads, 1)
	assert.Equal(t, ws.Exclude{ConnID: "b1"}, threads[0].ex)
	tr := threads[0].payload.(protocol.ThreadReply)
	assert.Equal(t, m1.ID, tr.ParentID)
	assert.Equal(t, 1, tr.ReplyCount)
	assert.Equal(t, reply.ID, tr.Reply.ID)

	forA, err := store.ListNotifications(ctx, "A", false, 0)
	require.NoError(t, err)
	require.Len(t, forA, 1)
	assert.Equal(t, models.NotifyThreadReply, forA[0].Type)

	_, err = s.SendMessage(ctx, Actor{UserID: "X"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "let me in"})
	assert.Equal(t, models.KindAuthorization, models.Classify(err))
}

func TestMarkReadBroadcastsOnce(t *testing.T) {
	ctx := context.Background()
	s, _, hub := setup(t)
	conv := createFarmers(t, s)
	_, err := s.SendMessage(ctx, Actor{UserID: "A"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "hi"})
	require.NoError(t, err)
	hub.reset()

	res, err := s.MarkRead(ctx, Actor{UserID: "B"}, conv.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	_, err = s.MarkRead(ctx, Actor{UserID: "B"}, conv.ID)
	require.NoError(t, err)

	reads := hub.broadcasts(protocol.KindMessagesRead)
	require.Len(t, reads, 1)
	assert.Equal(t, ws.Exclude{UserID: "B"}, reads[0].ex)
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	s, store, hub := setup(t)
	conv := createFarmers(t, s)
	hub.reset()

	_, err := s.AddMember(ctx, Actor{UserID: "B"}, &protocol.AddMember{ConversationID: conv.ID, UserID: "D"})
	assert.Equal(t, models.KindAuthorization, models.Classify(err), "members cannot add")

	p, err := s.AddMember(ctx, Actor{UserID: "A"}, &protocol.AddMember{ConversationID: conv.ID, UserID: "D"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, p.Role)
	assert.Equal(t, []string{"join:", "broadcast:" + string(protocol.KindMemberAdded)}, hub.ops())

	err = s.RemoveMember(ctx, Actor{UserID: "C"}, &protocol.RemoveMember{ConversationID: conv.ID, UserID: "B"})
	assert.Equal(t, models.KindAuthorization, models.Classify(err), "members cannot remove others")

	hub.reset()
	require.NoError(t, s.RemoveMember(ctx, Actor{UserID: "C"}, &protocol.RemoveMember{ConversationID: conv.ID, UserID: "C"}), "self removal")
	assert.Equal(t, []string{"broadcast:" + string(protocol.KindMemberRemoved), "leave:"}, hub.ops())

	require.NoError(t, s.RemoveMember(ctx, Actor{UserID: "A"}, &protocol.RemoveMember{ConversationID: conv.ID, UserID: "B"}))
	_, err = s.SendMessage(ctx, Actor{UserID: "B"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "still here?"})
	assert.Equal(t, models.KindAuthorization, models.Classify(err))

	direct, _, err := store.StartDirect(ctx, "buyer", "seller")
	require.NoError(t, err)
	_, err = s.AddMember(ctx, Actor{UserID: "buyer"}, &protocol.AddMember{ConversationID: direct.ID, UserID: "D"})
	assert.Equal(t, models.KindValidation, models.Classify(err), "direct conversations have no roster")
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	s, store, hub := setup(t)
	conv := createFarmers(t, s)
	m, err := s.SendMessage(ctx, Actor{UserID: "A"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "tomatoes"})
	require.NoError(t, err)
	hub.reset()

	_, err = s.ToggleReaction(ctx, Actor{UserID: "B"}, m.ID, "nice")
	assert.Equal(t, models.KindValidation, models.Classify(err))
	_, err = s.ToggleReaction(ctx, Actor{UserID: "B"}, m.ID, "👍👍")
	assert.Equal(t, models.KindValidation, models.Classify(err))

	update, err := s.ToggleReaction(ctx, Actor{UserID: "B"}, m.ID, "👍")
	require.NoError(t, err)
	assert.True(t, update.Added)
	require.Len(t, update.Reactions, 1)
	assert.Equal(t, 1, update.Reactions[0].Count)

	update, err = s.ToggleReaction(ctx, Actor{UserID: "B"}, m.ID, "👍")
	require.NoError(t, err)
	assert.False(t, update.Added)
	assert.Empty(t, update.Reactions)
	assert.Len(t, hub.broadcasts(protocol.KindReactionUpdated), 2)

	_, err = s.RemoveReaction(ctx, Actor{UserID: "B"}, m.ID, "👍")
	require.NoError(t, err)
	assert.Len(t, hub.broadcasts(protocol.KindReactionUpdated), 2, "no-op removal is silent")

	notes, err := store.ListNotifications(ctx, "A", false, 0)
	require.NoError(t, err)
	assert.Equal(t, models.NotifyReaction, notes[0].Type)
}

func TestEditAndUpdateGroup(t *testing.T) {
	ctx := context.Background()
	s, _, hub := setup(t)
	conv := createFarmers(t, s)
	m, err := s.SendMessage(ctx, Actor{UserID: "A"}, &protocol.SendMessage{ConversationID: conv.ID, Content: "tomatos"})
	require.NoError(t, err)

	_, err = s.EditMessage(ctx, Actor{UserID: "B"}, &protocol.EditMessage{MessageID: m.ID, Content: "x"})
	assert.Equal(t, models.KindAuthorization, models.Classify(err))

	edited, err := s.EditMessage(ctx, Actor{UserID: "A"}, &protocol.EditMessage{MessageID: m.ID, Content: "tomatoes"})
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Len(t, hub.broadcasts(protocol.KindMessageUpdated), 1)

	name := "Growers"
	_, err = s.UpdateGroup(ctx, Actor{UserID: "B"}, &protocol.UpdateGroup{ConversationID: conv.ID, GroupUpdate: models.GroupUpdate{Name: &name}})
	assert.Equal(t, models.KindAuthorization, models.Classify(err))
	updated, err := s.UpdateGroup(ctx, Actor{UserID: "A"}, &protocol.UpdateGroup{ConversationID: conv.ID, GroupUpdate: models.GroupUpdate{Name: &name}})
	require.NoError(t, err)
	assert.Equal(t, "Growers", updated.Name)
	assert.Len(t, hub.broadcasts(protocol.KindGroupUpdated), 1)
}

func TestListConversationsCountsOnlineOthers(t *testing.T) {
	ctx := context.Background()
	s, _, hub := setup(t)
	createFarmers(t, s)
	hub.online["A"] = true
	hub.online["C"] = true

	list, err := s.ListConversations(ctx, "A")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].OnlineParticipants)
	assert.Equal(t, []string{"A", "B", "C"}, list[0].ParticipantIDs)
}

func TestMentions(t *testing.T) {
	assert.Equal(t, map[string]bool{"bob": true, "carol.s": true}, Mentions("hey @bob and @carol.s, @bob"))
	assert.Empty(t, Mentions("email me"))
}
