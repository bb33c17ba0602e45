package memory

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

func (s *Store) copyMessage(m *models.Message) models.Message {
	out := *m
	if len(m.Attachments) > 0 {
		out.Attachments = append([]models.Attachment(nil), m.Attachments...)
	}
	out.Reactions = models.CountReactions(s.reactions[m.ID])
	return out
}

// AppendMessage runs entirely under the write lock, so the parent's reply count
// and the reply row change together.
func (s *Store) AppendMessage(_ context.Context, nm models.NewMessage) (*models.Message, error) {
	if err := nm.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[nm.ConversationID]
	if !ok {
		return nil, models.NotFoundf("conversation %s", nm.ConversationID)
	}

	var parent *models.Message
	if nm.ReplyToID != "" {
		parent, ok = s.messages[nm.ReplyToID]
		if !ok || parent.ConversationID != nm.ConversationID {
			return nil, models.NotFoundf("parent message %s", nm.ReplyToID)
		}
		if parent.IsReply() {
			return nil, models.Invalidf("replies cannot be replied to")
		}
	}

	now := s.tick()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: nm.ConversationID,
		SenderID:       nm.SenderID,
		Content:        nm.Content,
		IsReplyToID:    nm.ReplyToID,
		Status:         models.StatusSent,
		CreatedAt:      now,
	}
	for _, a := range nm.Attachments {
		a.ID = uuid.NewString()
		a.MessageID = msg.ID
		if a.Status == "" {
			a.Status = "complete"
		}
		msg.Attachments = append(msg.Attachments, a)
	}

	if parent != nil {
		parent.ReplyCount++
		s.replies[parent.ID] = append(s.replies[parent.ID], msg.ID)
	} else {
		s.convMessages[conv.ID] = append(s.convMessages[conv.ID], msg.ID)
	}
	s.messages[msg.ID] = msg
	conv.LastMessageAt = &now
	for userID, p := range s.participants[conv.ID] {
		if userID != nm.SenderID && p.Active() {
			p.HasNewMessages = true
		}
	}

	out := s.copyMessage(msg)
	return &out, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, models.NotFoundf("message %s", id)
	}
	out := s.copyMessage(m)
	return &out, nil
}

func (s *Store) ListMessages(_ context.Context, convID string, q storage.MessageQuery) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[convID]; !ok {
		return nil, models.NotFoundf("conversation %s", convID)
	}

	ids := s.convMessages[convID]
	end := len(ids)
	if !q.Before.IsZero() {
		end = sort.Search(len(ids), func(i int) bool {
			return !s.messages[ids[i]].CreatedAt.Before(q.Before)
		})
	}
	start := end - storage.PageLimit(q.Limit)
	if start < 0 {
		start = 0
	}

	out := make([]models.Message, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, s.copyMessage(s.messages[id]))
	}
	return out, nil
}

func (s *Store) ListReplies(_ context.Context, parentID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.messages[parentID]; !ok {
		return nil, models.NotFoundf("message %s", parentID)
	}
	out := make([]models.Message, 0, len(s.replies[parentID]))
	for _, id := range s.replies[parentID] {
		out = append(out, s.copyMessage(s.messages[id]))
	}
	return out, nil
}

func (s *Store) SearchMessages(_ context.Context, userID, query string, limit int) ([]models.Message, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, models.Invalidf("search query is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, convID := range s.activeConversationIDs(userID) {
		for _, id := range s.convMessages[convID] {
			m := s.messages[id]
			if strings.Contains(strings.ToLower(m.Content), query) {
				out = append(out, s.copyMessage(m))
			}
			for _, rid := range s.replies[id] {
				r := s.messages[rid]
				if strings.Contains(strings.ToLower(r.Content), query) {
					out = append(out, s.copyMessage(r))
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := storage.PageLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, convID, userID string) (models.ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[convID][userID]
	if !p.Active() {
		return models.ReadResult{}, models.NotFoundf("participant %s in conversation %s", userID, convID)
	}

	var res models.ReadResult
	now := s.tick()
	ids := s.convMessages[convID]
	for _, id := range ids {
		m := s.messages[id]
		if m.SenderID != userID && !m.IsRead {
			m.IsRead = true
			readAt := now
			m.ReadAt = &readAt
			m.Status = models.StatusRead
			res.Count++
		}
	}
	if len(ids) > 0 && p.LastReadMessageID != ids[len(ids)-1] {
		p.LastReadMessageID = ids[len(ids)-1]
		res.Changed = true
	}
	if p.HasNewMessages {
		p.HasNewMessages = false
		res.Changed = true
	}
	res.Changed = res.Changed || res.Count > 0
	res.LastReadMessageID = p.LastReadMessageID
	return res, nil
}

func (s *Store) MarkThreadRead(_ context.Context, parentID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[parentID]; !ok {
		return 0, models.NotFoundf("message %s", parentID)
	}
	now := s.tick()
	n := 0
	for _, id := range s.replies[parentID] {
		m := s.messages[id]
		if m.SenderID != userID && !m.IsRead {
			m.IsRead = true
			readAt := now
			m.ReadAt = &readAt
			m.Status = models.StatusRead
			n++
		}
	}
	return n, nil
}

func (s *Store) EditMessage(_ context.Context, id, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, models.Invalidf("content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return nil, models.Invalidf("content exceeds %d characters", models.MaxContentLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, models.NotFoundf("message %s", id)
	}
	now := s.tick()
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &now
	out := s.copyMessage(m)
	return &out, nil
}
