package chat

import (
	"context"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

// ListConversations returns the user's conversations with unread counts and
// how many of the other participants are online.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	list, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		others := make([]string, 0, len(list[i].ParticipantIDs))
		for _, id := range list[i].ParticipantIDs {
			if id != userID {
				others = append(others, id)
			}
		}
		list[i].OnlineParticipants = s.hub.OnlineCount(others)
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	return list, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, convID string, q storage.MessageQuery) ([]models.Message, error) {
	if _, err := s.guard.Conversation(ctx, userID, convID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, convID, q)
}

func (s *Service) Replies(ctx context.Context, userID, messageID string) ([]models.Message, error) {
	if _, _, err := s.guard.Message(ctx, userID, messageID); err != nil {
		return nil, err
	}
	return s.store.ListReplies(ctx, messageID)
}

func (s *Service) MarkThreadRead(ctx context.Context, userID, messageID string) (int, error) {
	if _, _, err := s.guard.Message(ctx, userID, messageID); err != nil {
		return 0, err
	}
	return s.store.MarkThreadRead(ctx, messageID, userID)
}

// Search is scoped by the store to conversations the user belongs to.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]models.Message, error) {
	return s.store.SearchMessages(ctx, userID, query, limit)
}

func (s *Service) Members(ctx context.Context, userID, convID string) ([]models.Participant, error) {
	if _, err := s.guard.Conversation(ctx, userID, convID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, convID)
}

func (s *Service) SetPinned(ctx context.Context, userID, convID string, pinned bool) error {
	if _, err := s.guard.Conversation(ctx, userID, convID); err != nil {
		return err
	}
	return s.store.SetPinned(ctx, convID, userID, pinned)
}

func (s *Service) SetArchived(ctx context.Context, userID, convID string, archived bool) error {
	if _, err := s.guard.Conversation(ctx, userID, convID); err != nil {
		return err
	}
	return s.store.SetArchived(ctx, convID, userID, archived)
}

// ConversationIDs lists the rooms a new connection is joined to.
func (s *Service) ConversationIDs(ctx context.Context, userID string) ([]string, error) {
	return s.store.ConversationIDs(ctx, userID)
}

func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if list == nil && err == nil {
		list = []models.Notification{}
	}
	return list, err
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id)
}
