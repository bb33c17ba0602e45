package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

func (s *Store) ToggleReaction(_ context.Context, r models.Reaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[r.MessageID]; !ok {
		return false, models.NotFoundf("message %s", r.MessageID)
	}
	if s.deleteReaction(r) {
		return false, nil
	}
	r.CreatedAt = s.tick()
	s.reactions[r.MessageID] = append(s.reactions[r.MessageID], r)
	return true, nil
}

func (s *Store) RemoveReaction(_ context.Context, r models.Reaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[r.MessageID]; !ok {
		return false, models.NotFoundf("message %s", r.MessageID)
	}
	return s.deleteReaction(r), nil
}

func (s *Store) deleteReaction(r models.Reaction) bool {
	list := s.reactions[r.MessageID]
	for i, existing := range list {
		if existing.UserID == r.UserID && existing.Emoji == r.Emoji {
			s.reactions[r.MessageID] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) ListReactions(_ context.Context, messageID string) ([]models.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.messages[messageID]; !ok {
		return nil, models.NotFoundf("message %s", messageID)
	}
	return append([]models.Reaction(nil), s.reactions[messageID]...), nil
}

func (s *Store) CreateNotification(_ context.Context, n models.Notification) (*models.Notification, error) {
	if n.UserID == "" {
		return nil, models.Invalidf("notification recipient is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = s.tick()
	n.IsRead = false
	stored := n
	s.notifications[n.UserID] = append([]*models.Notification{&stored}, s.notifications[n.UserID]...)
	return &n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = storage.PageLimit(limit)
	var out []models.Notification
	for _, n := range s.notifications[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, *n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications[userID] {
		if n.ID == id {
			n.IsRead = true
			return nil
		}
	}
	return models.NotFoundf("notification %s", id)
}
