// Package protocol defines the socket event vocabulary. Inbound events form a
// closed set: every kind decodes into its own payload type and nothing else can
// be constructed outside this package.
package protocol

import (
	"strings"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

// Kind is the name of an event on the wire.
type Kind string

// Inbound kinds (client to server).
const (
	KindAuthenticate   Kind = "authenticate"
	KindJoinRoom       Kind = "join_room"
	KindLeaveRoom      Kind = "leave_room"
	KindSendMessage    Kind = "send_message"
	KindTyping         Kind = "typing"
	KindStopTyping     Kind = "stop_typing"
	KindMarkRead       Kind = "mark_read"
	KindCreateGroup    Kind = "create_group"
	KindAddMember      Kind = "add_member"
	KindRemoveMember   Kind = "remove_member"
	KindAddReaction    Kind = "add_reaction"
	KindRemoveReaction Kind = "remove_reaction"
	KindUpdateGroup    Kind = "update_group"
	KindEditMessage    Kind = "edit_message"
)

// Outbound kinds (server to client). typing and stop_typing are shared with the
// inbound names; direction tells them apart.
const (
	KindAuthenticated       Kind = "authenticated"
	KindReceiveMessage      Kind = "receive_message"
	KindMessageDelivered    Kind = "message_delivered"
	KindMessagesRead        Kind = "messages_read"
	KindUserOnline          Kind = "user_online"
	KindUserOffline         Kind = "user_offline"
	KindGroupCreated        Kind = "group_created"
	KindMemberAdded         Kind = "member_added"
	KindMemberRemoved       Kind = "member_removed"
	KindGroupUpdated        Kind = "group_updated"
	KindThreadReplyReceived Kind = "thread_reply_received"
	KindReactionUpdated     Kind = "reaction_updated"
	KindMessageUpdated      Kind = "message_updated"
	KindError               Kind = "error"
)

// Inbound is implemented only by the payload types in this file.
type Inbound interface {
	Kind() Kind
	Validate() error
	inbound()
}

type Authenticate struct {
	Token string `json:"token"`
}

type JoinRoom struct {
	ConversationID string `json:"conversationId"`
}

type LeaveRoom struct {
	ConversationID string `json:"conversationId"`
}

type SendMessage struct {
	ConversationID string              `json:"conversationId"`
	Content        string              `json:"content"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
	ReplyTo        string              `json:"replyTo,omitempty"`
}

type Typing struct {
	ConversationID string `json:"conversationId"`
}

type StopTyping struct {
	ConversationID string `json:"conversationId"`
}

type MarkRead struct {
	ConversationID string `json:"conversationId"`
}

type CreateGroup struct {
	Name        string   `json:"name"`
	MemberIDs   []string `json:"memberIds"`
	Description string   `json:"description,omitempty"`
	IconURL     string   `json:"iconUrl,omitempty"`
}

type AddMember struct {
	ConversationID string      `json:"conversationId"`
	UserID         string      `json:"userId"`
	Role           models.Role `json:"role,omitempty"`
}

type RemoveMember struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type AddReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type RemoveReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type UpdateGroup struct {
	ConversationID string `json:"conversationId"`
	models.GroupUpdate
}

type EditMessage struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

func (*Authenticate) Kind() Kind   { return KindAuthenticate }
func (*JoinRoom) Kind() Kind       { return KindJoinRoom }
func (*LeaveRoom) Kind() Kind      { return KindLeaveRoom }
func (*SendMessage) Kind() Kind    { return KindSendMessage }
func (*Typing) Kind() Kind         { return KindTyping }
func (*StopTyping) Kind() Kind     { return KindStopTyping }
func (*MarkRead) Kind() Kind       { return KindMarkRead }
func (*CreateGroup) Kind() Kind    { return KindCreateGroup }
func (*AddMember) Kind() Kind      { return KindAddMember }
func (*RemoveMember) Kind() Kind   { return KindRemoveMember }
func (*AddReaction) Kind() Kind    { return KindAddReaction }
func (*RemoveReaction) Kind() Kind { return KindRemoveReaction }
func (*UpdateGroup) Kind() Kind    { return KindUpdateGroup }
func (*EditMessage) Kind() Kind    { return KindEditMessage }

func (*Authenticate) inbound()   {}
func (*JoinRoom) inbound()       {}
func (*LeaveRoom) inbound()      {}
func (*SendMessage) inbound()    {}
func (*Typing) inbound()         {}
func (*StopTyping) inbound()     {}
func (*MarkRead) inbound()       {}
func (*CreateGroup) inbound()    {}
func (*AddMember) inbound()      {}
func (*RemoveMember) inbound()   {}
func (*AddReaction) inbound()    {}
func (*RemoveReaction) inbound() {}
func (*UpdateGroup) inbound()    {}
func (*EditMessage) inbound()    {}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return models.Invalidf("%s is required", name)
	}
	return nil
}

func (e *Authenticate) Validate() error { return requireField("token", e.Token) }
func (e *JoinRoom) Validate() error     { return requireField("conversationId", e.ConversationID) }
func (e *LeaveRoom) Validate() error    { return requireField("conversationId", e.ConversationID) }
func (e *Typing) Validate() error       { return requireField("conversationId", e.ConversationID) }
func (e *StopTyping) Validate() error   { return requireField("conversationId", e.ConversationID) }
func (e *MarkRead) Validate() error     { return requireField("conversationId", e.ConversationID) }

func (e *SendMessage) Validate() error {
	if err := requireField("conversationId", e.ConversationID); err != nil {
		return err
	}
	// sender is filled in by the server; validate the rest of the shape now
	return models.NewMessage{
		ConversationID: e.ConversationID,
		SenderID:       "-",
		Content:        e.Content,
		Attachments:    e.Attachments,
		ReplyToID:      e.ReplyTo,
	}.Validate()
}

func (e *CreateGroup) Validate() error {
	if err := requireField("name", e.Name); err != nil {
		return err
	}
	if len(e.MemberIDs) == 0 {
		return models.Invalidf("memberIds must name at least one member")
	}
	for _, id := range e.MemberIDs {
		if strings.TrimSpace(id) == "" {
			return models.Invalidf("memberIds must not contain empty ids")
		}
	}
	return nil
}

func (e *AddMember) Validate() error {
	if err := requireField("conversationId", e.ConversationID); err != nil {
		return err
	}
	if err := requireField("userId", e.UserID); err != nil {
		return err
	}
	if e.Role != "" && !e.Role.Valid() {
		return models.Invalidf("unknown role %q", e.Role)
	}
	return nil
}

func (e *RemoveMember) Validate() error {
	if err := requireField("conversationId", e.ConversationID); err != nil {
		return err
	}
	return requireField("userId", e.UserID)
}

func (e *AddReaction) Validate() error {
	if err := requireField("messageId", e.MessageID); err != nil {
		return err
	}
	return requireField("emoji", e.Emoji)
}

func (e *RemoveReaction) Validate() error {
	if err := requireField("messageId", e.MessageID); err != nil {
		return err
	}
	return requireField("emoji", e.Emoji)
}

func (e *UpdateGroup) Validate() error {
	if err := requireField("conversationId", e.ConversationID); err != nil {
		return err
	}
	if e.GroupUpdate.Empty() {
		return models.Invalidf("nothing to update")
	}
	if e.Name != nil && strings.TrimSpace(*e.Name) == "" {
		return models.Invalidf("name must not be empty")
	}
	return nil
}

func (e *EditMessage) Validate() error {
	if err := requireField("messageId", e.MessageID); err != nil {
		return err
	}
	return requireField("content", e.Content)
}
