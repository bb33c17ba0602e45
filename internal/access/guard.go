// Package access decides who may read and write a conversation.
package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

// Store is the slice of storage.Store the guard reads.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	MemberRole(ctx context.Context, convID, userID string) (models.Role, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
}

type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// CanAccess is true for the buyer or seller of a direct conversation and for
// active participants of a group.
func (g *Guard) CanAccess(ctx context.Context, userID string, conv *models.Conversation) (bool, error) {
	if conv == nil || userID == "" {
		return false, nil
	}
	if !conv.IsGroup {
		return conv.HasMember(userID), nil
	}
	_, err := g.store.MemberRole(ctx, conv.ID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IsAdmin is true only for an active admin participant.
func (g *Guard) IsAdmin(ctx context.Context, userID, convID string) (bool, error) {
	role, err := g.store.MemberRole(ctx, convID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == models.RoleAdmin, nil
}

// Conversation loads convID and checks userID may access it.
func (g *Guard) Conversation(ctx context.Context, userID, convID string) (*models.Conversation, error) {
	conv, err := g.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	ok, err := g.CanAccess(ctx, userID, conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.Forbiddenf("not a participant of conversation %s", convID)
	}
	return conv, nil
}

// Group is Conversation restricted to group conversations.
func (g *Guard) Group(ctx context.Context, userID, convID string) (*models.Conversation, error) {
	conv, err := g.Conversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, models.Invalidf("conversation %s is not a group", convID)
	}
	return conv, nil
}

// Admin is Group plus an admin check.
func (g *Guard) Admin(ctx context.Context, userID, convID string) (*models.Conversation, error) {
	conv, err := g.Group(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	admin, err := g.IsAdmin(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, models.Forbiddenf("admin rights required in conversation %s", convID)
	}
	return conv, nil
}

// Message loads msgID and checks userID may access its conversation.
func (g *Guard) Message(ctx context.Context, userID, msgID string) (*models.Message, *models.Conversation, error) {
	msg, err := g.store.GetMessage(ctx, msgID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := g.Conversation(ctx, userID, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}
