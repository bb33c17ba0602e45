package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

func newGroup(t *testing.T, s *Store) *models.Conversation {
	t.Helper()
	conv, participants, err := s.CreateGroup(context.Background(), models.NewGroup{
		CreatorID: "A",
		Name:      "Farmers",
		MemberIDs: []string{"B", "C", "B"},
	})
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, models.RoleAdmin, participants[0].Role)
	return conv
}

func send(t *testing.T, s *Store, convID, sender, content, replyTo string) *models.Message {
	t.Helper()
	m, err := s.AppendMessage(context.Background(), models.NewMessage{
		ConversationID: convID,
		SenderID:       sender,
		Content:        content,
		ReplyToID:      replyTo,
	})
	require.NoError(t, err)
	return m
}

func TestStartDirectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	conv, created, err := s.StartDirect(ctx, "buyer", "seller")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, conv.IsGroup)

	again, created, err := s.StartDirect(ctx, "seller", "buyer")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	_, _, err = s.StartDirect(ctx, "buyer", "buyer")
	assert.Equal(t, models.KindValidation, models.Classify(err))
}

func TestReplyIncrementsParent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)

	parent := send(t, s, conv.ID, "A", "M1", "")
	reply := send(t, s, conv.ID, "B", "ack", parent.ID)
	assert.Equal(t, parent.ID, reply.IsReplyToID)

	got, err := s.GetMessage(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReplyCount)

	replies, err := s.ListReplies(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "ack", replies[0].Content)

	page, err := s.ListMessages(ctx, conv.ID, storage.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, page, 1, "replies stay out of the main list")

	_, err = s.AppendMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "C", Content: "x", ReplyToID: reply.ID})
	assert.Equal(t, models.KindValidation, models.Classify(err), "no replies to replies")

	_, err = s.AppendMessage(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: "C", Content: "x", ReplyToID: "missing"})
	assert.Equal(t, models.KindNotFound, models.Classify(err))

	got, err = s.GetMessage(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReplyCount, "failed appends leave the count alone")
}

func TestConcurrentRepliesConverge(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)
	parent := send(t, s, conv.ID, "A", "M1", "")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, models.NewMessage{
				ConversationID: conv.ID,
				SenderID:       "B",
				Content:        fmt.Sprintf("reply %d", i),
				ReplyToID:      parent.ID,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetMessage(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.ReplyCount)

	replies, err := s.ListReplies(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, replies, n)
}

func TestToggleReaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)
	m := send(t, s, conv.ID, "A", "hi", "")
	r := models.Reaction{MessageID: m.ID, UserID: "B", Emoji: "👍"}

	added, err := s.ToggleReaction(ctx, r)
	require.NoError(t, err)
	assert.True(t, added)
	list, err := s.ListReactions(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	added, err = s.ToggleReaction(ctx, r)
	require.NoError(t, err)
	assert.False(t, added)
	list, err = s.ListReactions(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	removed, err := s.RemoveReaction(ctx, r)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestListMessagesBeforeCursor(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)
	var sent []*models.Message
	for i := 0; i < 5; i++ {
		sent = append(sent, send(t, s, conv.ID, "A", fmt.Sprintf("m%d", i), ""))
	}

	latest, err := s.ListMessages(ctx, conv.ID, storage.MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "m3", latest[0].Content)
	assert.Equal(t, "m4", latest[1].Content)

	older, err := s.ListMessages(ctx, conv.ID, storage.MessageQuery{Before: latest[0].CreatedAt, Limit: 2})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, sent[1].ID, older[0].ID)
	assert.Equal(t, sent[2].ID, older[1].ID)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)
	send(t, s, conv.ID, "A", "one", "")
	last := send(t, s, conv.ID, "A", "two", "")

	list, err := s.ListConversations(ctx, "B")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].UnreadCount)
	assert.True(t, list[0].HasNewMessages)

	res, err := s.MarkRead(ctx, conv.ID, "B")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, last.ID, res.LastReadMessageID)

	res, err = s.MarkRead(ctx, conv.ID, "B")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	list, err = s.ListConversations(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 0, list[0].UnreadCount)
}

func TestParticipantLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)

	require.NoError(t, s.RemoveParticipant(ctx, conv.ID, "B"))
	_, err := s.MemberRole(ctx, conv.ID, "B")
	assert.Equal(t, models.KindNotFound, models.Classify(err))

	p, err := s.GetParticipant(ctx, conv.ID, "B")
	require.NoError(t, err, "history row stays")
	assert.NotNil(t, p.LeftAt)

	ids, err := s.ConversationIDs(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, ids)

	p, err = s.AddParticipant(ctx, conv.ID, "B", models.RoleAdmin)
	require.NoError(t, err)
	assert.Nil(t, p.LeftAt)
	role, err := s.MemberRole(ctx, conv.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = s.AddParticipant(ctx, conv.ID, "B", models.RoleMember)
	assert.Equal(t, models.KindValidation, models.Classify(err))
}

func TestPinIsPerParticipant(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)
	require.NoError(t, s.SetPinned(ctx, conv.ID, "A", true))

	forA, err := s.ListConversations(ctx, "A")
	require.NoError(t, err)
	forB, err := s.ListConversations(ctx, "B")
	require.NoError(t, err)
	assert.True(t, forA[0].IsPinned)
	assert.False(t, forB[0].IsPinned)
}

func TestSearchScopedToMembership(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conv := newGroup(t, s)
	send(t, s, conv.ID, "A", "Fresh tomatoes today", "")
	direct, _, err := s.StartDirect(ctx, "X", "Y")
	require.NoError(t, err)
	send(t, s, direct.ID, "X", "tomatoes for sale", "")

	got, err := s.SearchMessages(ctx, "B", "TOMATOES", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, conv.ID, got[0].ConversationID)

	_, err = s.SearchMessages(ctx, "B", "  ", 10)
	assert.Equal(t, models.KindValidation, models.Classify(err))
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	n, err := s.CreateNotification(ctx, models.Notification{UserID: "B", Type: models.NotifyMention, Message: "A mentioned you"})
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, models.Notification{UserID: "B", Type: models.NotifyMessage, Message: "new message"})
	require.NoError(t, err)

	require.NoError(t, s.MarkNotificationRead(ctx, "B", n.ID))
	unread, err := s.ListNotifications(ctx, "B", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, models.NotifyMessage, unread[0].Type)

	assert.Equal(t, models.KindNotFound, models.Classify(s.MarkNotificationRead(ctx, "C", n.ID)))
}
