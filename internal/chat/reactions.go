package chat

import (
	"context"

	"github.com/forPelevin/gomoji"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

// ValidateReaction accepts exactly one emoji and nothing else.
func ValidateReaction(reaction string) error {
	emojis := gomoji.CollectAll(reaction)
	if len(emojis) != 1 || emojis[0].Character != reaction {
		return models.Invalidf("reaction must be a single emoji")
	}
	return nil
}

// ToggleReaction adds the actor's emoji to a message or takes it back.
func (s *Service) ToggleReaction(ctx context.Context, actor Actor, messageID, emoji string) (*protocol.ReactionUpdated, error) {
	if err := ValidateReaction(emoji); err != nil {
		return nil, err
	}
	msg, conv, err := s.guard.Message(ctx, actor.UserID, messageID)
	if err != nil {
		return nil, err
	}
	added, err := s.store.ToggleReaction(ctx, models.Reaction{MessageID: msg.ID, UserID: actor.UserID, Emoji: emoji})
	if err != nil {
		return nil, err
	}
	update, err := s.reactionUpdate(ctx, conv.ID, msg.ID, actor.UserID, emoji, added)
	if err != nil {
		return nil, err
	}
	s.emit(conv.ID, protocol.KindReactionUpdated, update, ws.Exclude{})

	if added && msg.SenderID != actor.UserID {
		s.notify(ctx, models.Notification{
			UserID:  msg.SenderID,
			Type:    models.NotifyReaction,
			Message: actor.UserID + " reacted " + emoji + " to your message",
			Metadata: map[string]string{
				"conversationId": conv.ID,
				"messageId":      msg.ID,
				"emoji":          emoji,
			},
		})
	}
	return update, nil
}

// RemoveReaction takes the actor's emoji back. Removing an absent reaction is
// a no-op and broadcasts nothing.
func (s *Service) RemoveReaction(ctx context.Context, actor Actor, messageID, emoji string) (*protocol.ReactionUpdated, error) {
	msg, conv, err := s.guard.Message(ctx, actor.UserID, messageID)
	if err != nil {
		return nil, err
	}
	removed, err := s.store.RemoveReaction(ctx, models.Reaction{MessageID: msg.ID, UserID: actor.UserID, Emoji: emoji})
	if err != nil {
		return nil, err
	}
	update, err := s.reactionUpdate(ctx, conv.ID, msg.ID, actor.UserID, emoji, false)
	if err != nil {
		return nil, err
	}
	if removed {
		s.emit(conv.ID, protocol.KindReactionUpdated, update, ws.Exclude{})
	}
	return update, nil
}

func (s *Service) reactionUpdate(ctx context.Context, convID, msgID, userID, emoji string, added bool) (*protocol.ReactionUpdated, error) {
	reactions, err := s.store.ListReactions(ctx, msgID)
	if err != nil {
		return nil, err
	}
	counts := models.CountReactions(reactions)
	if counts == nil {
		counts = []models.ReactionCount{}
	}
	return &protocol.ReactionUpdated{
		MessageID:      msgID,
		ConversationID: convID,
		UserID:         userID,
		Emoji:          emoji,
		Added:          added,
		Reactions:      counts,
	}, nil
}
