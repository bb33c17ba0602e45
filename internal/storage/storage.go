// Package storage defines the persistence gateway. It is the only layer that
// touches durable state; memory, postgres and cached provide implementations.
package storage

import (
	"context"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// MessageQuery pages backwards through the top-level messages of a conversation.
type MessageQuery struct {
	Before time.Time // zero means latest
	Limit  int
}

// PageLimit clamps a requested page size.
func PageLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

type Store interface {
	ConversationStore
	ParticipantStore
	MessageStore
	ReactionStore
	NotificationStore
	Close() error
}

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// StartDirect returns the direct conversation between the pair, creating it
	// on first contact.
	StartDirect(ctx context.Context, buyerID, sellerID string) (conv *models.Conversation, created bool, err error)
	CreateGroup(ctx context.Context, g models.NewGroup) (*models.Conversation, []models.Participant, error)
	UpdateGroup(ctx context.Context, convID string, u models.GroupUpdate) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	// ConversationIDs lists the conversations the user currently belongs to.
	ConversationIDs(ctx context.Context, userID string) ([]string, error)
	SetPinned(ctx context.Context, convID, userID string, pinned bool) error
	SetArchived(ctx context.Context, convID, userID string, archived bool) error
}

type ParticipantStore interface {
	// GetParticipant returns the row even when the participant has left.
	GetParticipant(ctx context.Context, convID, userID string) (*models.Participant, error)
	// MemberRole returns the role of an active participant, ErrNotFound otherwise.
	MemberRole(ctx context.Context, convID, userID string) (models.Role, error)
	ListParticipants(ctx context.Context, convID string) ([]models.Participant, error)
	// AddParticipant inserts the row or reactivates a participant who left.
	AddParticipant(ctx context.Context, convID, userID string, role models.Role) (*models.Participant, error)
	RemoveParticipant(ctx context.Context, convID, userID string) error
}

type MessageStore interface {
	// AppendMessage inserts a message. For replies the parent's reply count is
	// incremented in the same unit of work; either both happen or neither.
	AppendMessage(ctx context.Context, m models.NewMessage) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, convID string, q MessageQuery) ([]models.Message, error)
	ListReplies(ctx context.Context, parentID string) ([]models.Message, error)
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, convID, userID string) (models.ReadResult, error)
	MarkThreadRead(ctx context.Context, parentID, userID string) (int, error)
	EditMessage(ctx context.Context, id, content string) (*models.Message, error)
}

type ReactionStore interface {
	// ToggleReaction adds the reaction or removes it if present.
	ToggleReaction(ctx context.Context, r models.Reaction) (added bool, err error)
	RemoveReaction(ctx context.Context, r models.Reaction) (removed bool, err error)
	ListReactions(ctx context.Context, messageID string) ([]models.Reaction, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}
