// Package chat implements the conversation operations shared by the socket
// protocol and the HTTP endpoints: every mutation goes guard, store, then
// broadcast.
package chat

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/access"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

// Broadcaster is the part of ws.Hub the service drives.
type Broadcaster interface {
	Broadcast(room string, kind protocol.Kind, payload interface{}, ex ws.Exclude) error
	SendToUser(kind protocol.Kind, payload interface{}, userIDs ...string) error
	JoinUser(userID, room string) (int, error)
	LeaveUser(userID, room string) error
	SetTyping(room, userID string, active bool) (bool, error)
	OnlineCount(userIDs []string) int
}

// Actor is who performs an operation. ConnID is empty for HTTP callers.
type Actor struct {
	UserID string
	ConnID string
}

type Service struct {
	store storage.Store
	guard *access.Guard
	hub   Broadcaster
}

func NewService(store storage.Store, guard *access.Guard, hub Broadcaster) *Service {
	return &Service{store: store, guard: guard, hub: hub}
}

func (s *Service) Guard() *access.Guard {
	return s.guard
}

// emit broadcasts to a room. The mutation has already been persisted, so a
// hub failure is logged rather than returned.
func (s *Service) emit(room string, kind protocol.Kind, payload interface{}, ex ws.Exclude) {
	if err := s.hub.Broadcast(room, kind, payload, ex); err != nil {
		log.WithError(err).WithFields(log.Fields{"conversation": room, "event": kind}).Warn("broadcast failed")
	}
}

func (s *Service) emitToUsers(kind protocol.Kind, payload interface{}, userIDs ...string) {
	if err := s.hub.SendToUser(kind, payload, userIDs...); err != nil {
		log.WithError(err).WithField("event", kind).Warn("direct send failed")
	}
}

// SendMessage persists a message, clears the sender's typing state and fans
// the message out to the whole room. Replies additionally raise
// thread_reply_received for everyone but the sending connection.
func (s *Service) SendMessage(ctx context.Context, actor Actor, in *protocol.SendMessage) (*models.Message, error) {
	conv, err := s.guard.Conversation(ctx, actor.UserID, in.ConversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.AppendMessage(ctx, models.NewMessage{
		ConversationID: conv.ID,
		SenderID:       actor.UserID,
		Content:        in.Content,
		Attachments:    in.Attachments,
		ReplyToID:      in.ReplyTo,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.hub.SetTyping(conv.ID, actor.UserID, false); err != nil {
		log.WithError(err).Warn("failed to clear typing state")
	}
	s.emit(conv.ID, protocol.KindReceiveMessage, msg, ws.Exclude{})

	var parent *models.Message
	if msg.IsReply() {
		parent, err = s.store.GetMessage(ctx, msg.IsReplyToID)
		if err != nil {
			log.WithError(err).WithField("message", msg.IsReplyToID).Warn("failed to reload thread parent")
		} else {
			s.emit(conv.ID, protocol.KindThreadReplyReceived, protocol.ThreadReply{
				ParentID:       parent.ID,
				ConversationID: conv.ID,
				ReplyCount:     parent.ReplyCount,
				Reply:          *msg,
			}, ws.Exclude{ConnID: actor.ConnID})
		}
	}

	s.notifyMessage(ctx, conv, msg, parent)
	return msg, nil
}

// MarkRead advances the user's read watermark and, when anything changed,
// tells the rest of the room.
func (s *Service) MarkRead(ctx context.Context, actor Actor, convID string) (models.ReadResult, error) {
	if _, err := s.guard.Conversation(ctx, actor.UserID, convID); err != nil {
		return models.ReadResult{}, err
	}
	res, err := s.store.MarkRead(ctx, convID, actor.UserID)
	if err != nil {
		return models.ReadResult{}, err
	}
	if res.Changed {
		s.emit(convID, protocol.KindMessagesRead, protocol.MessagesRead{
			ConversationID:    convID,
			UserID:            actor.UserID,
			LastReadMessageID: res.LastReadMessageID,
			Count:             res.Count,
		}, ws.Exclude{UserID: actor.UserID})
	}
	return res, nil
}

// SetTyping authorizes and records a typing signal.
func (s *Service) SetTyping(ctx context.Context, actor Actor, convID string, active bool) error {
	if _, err := s.guard.Conversation(ctx, actor.UserID, convID); err != nil {
		return err
	}
	_, err := s.hub.SetTyping(convID, actor.UserID, active)
	return err
}

// memberIDs trims, de-duplicates and drops the creator.
func memberIDs(creatorID string, ids []string) []string {
	seen := map[string]bool{creatorID: true}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CreateGroup creates a group with the actor as admin, subscribes every live
// connection of every participant and pushes group_created to them.
func (s *Service) CreateGroup(ctx context.Context, actor Actor, in *protocol.CreateGroup) (*protocol.GroupCreated, error) {
	members := memberIDs(actor.UserID, in.MemberIDs)
	if len(members) == 0 {
		return nil, models.Invalidf("a group needs at least one member besides its creator")
	}
	conv, participants, err := s.store.CreateGroup(ctx, models.NewGroup{
		CreatorID:   actor.UserID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		IconURL:     in.IconURL,
		MemberIDs:   members,
	})
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
		if _, err := s.hub.JoinUser(p.UserID, conv.ID); err != nil {
			log.WithError(err).Warn("failed to subscribe group member")
		}
	}
	created := &protocol.GroupCreated{Conversation: *conv, Participants: participants}
	s.emitToUsers(protocol.KindGroupCreated, created, userIDs...)

	for _, id := range members {
		s.notify(ctx, models.Notification{
			UserID:   id,
			Type:     models.NotifyGroupInvitation,
			Message:  "You were added to " + conv.Name,
			Metadata: map[string]string{"conversationId": conv.ID, "addedBy": actor.UserID},
		})
	}
	return created, nil
}

// AddMember is admin only. The new member's live connections join the room
// before member_added is broadcast, so they see it too.
func (s *Service) AddMember(ctx context.Context, actor Actor, in *protocol.AddMember) (*models.Participant, error) {
	conv, err := s.guard.Admin(ctx, actor.UserID, in.ConversationID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.AddParticipant(ctx, conv.ID, in.UserID, in.Role)
	if err != nil {
		return nil, err
	}
	if _, err := s.hub.JoinUser(in.UserID, conv.ID); err != nil {
		log.WithError(err).Warn("failed to subscribe new member")
	}
	s.emit(conv.ID, protocol.KindMemberAdded, protocol.MemberAdded{
		ConversationID: conv.ID,
		NewMember:      in.UserID,
		AddedBy:        actor.UserID,
		Role:           p.Role,
	}, ws.Exclude{})
	s.notify(ctx, models.Notification{
		UserID:   in.UserID,
		Type:     models.NotifyGroupInvitation,
		Message:  "You were added to " + conv.Name,
		Metadata: map[string]string{"conversationId": conv.ID, "addedBy": actor.UserID},
	})
	return p, nil
}

// RemoveMember requires admin rights unless users remove themselves. The
// removed user hears member_removed and is then unsubscribed.
func (s *Service) RemoveMember(ctx context.Context, actor Actor, in *protocol.RemoveMember) error {
	conv, err := s.guard.Group(ctx, actor.UserID, in.ConversationID)
	if err != nil {
		return err
	}
	if in.UserID != actor.UserID {
		admin, err := s.guard.IsAdmin(ctx, actor.UserID, conv.ID)
		if err != nil {
			return err
		}
		if !admin {
			return models.Forbiddenf("admin rights required in conversation %s", conv.ID)
		}
	}
	if err := s.store.RemoveParticipant(ctx, conv.ID, in.UserID); err != nil {
		return err
	}
	s.emit(conv.ID, protocol.KindMemberRemoved, protocol.MemberRemoved{
		ConversationID: conv.ID,
		RemovedMember:  in.UserID,
		RemovedBy:      actor.UserID,
	}, ws.Exclude{})
	if err := s.hub.LeaveUser(in.UserID, conv.ID); err != nil {
		log.WithError(err).Warn("failed to unsubscribe removed member")
	}
	return nil
}

// UpdateGroup is admin only.
func (s *Service) UpdateGroup(ctx context.Context, actor Actor, in *protocol.UpdateGroup) (*models.Conversation, error) {
	if _, err := s.guard.Admin(ctx, actor.UserID, in.ConversationID); err != nil {
		return nil, err
	}
	conv, err := s.store.UpdateGroup(ctx, in.ConversationID, in.GroupUpdate)
	if err != nil {
		return nil, err
	}
	s.emit(conv.ID, protocol.KindGroupUpdated, protocol.GroupUpdated{Conversation: *conv, UpdatedBy: actor.UserID}, ws.Exclude{})
	return conv, nil
}

// EditMessage lets senders change their own messages.
func (s *Service) EditMessage(ctx context.Context, actor Actor, in *protocol.EditMessage) (*models.Message, error) {
	msg, conv, err := s.guard.Message(ctx, actor.UserID, in.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.UserID {
		return nil, models.Forbiddenf("only the sender can edit message %s", msg.ID)
	}
	edited, err := s.store.EditMessage(ctx, msg.ID, in.Content)
	if err != nil {
		return nil, err
	}
	s.emit(conv.ID, protocol.KindMessageUpdated, edited, ws.Exclude{})
	return edited, nil
}

// StartDirect opens the buyer/seller conversation and, on first contact,
// subscribes both parties' live connections.
func (s *Service) StartDirect(ctx context.Context, actor Actor, sellerID string) (*models.Conversation, error) {
	conv, created, err := s.store.StartDirect(ctx, actor.UserID, strings.TrimSpace(sellerID))
	if err != nil {
		return nil, err
	}
	if created {
		for _, id := range []string{conv.BuyerID, conv.SellerID} {
			if _, err := s.hub.JoinUser(id, conv.ID); err != nil {
				log.WithError(err).Warn("failed to subscribe direct participant")
			}
		}
	}
	return conv, nil
}
