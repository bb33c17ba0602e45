package protocol

import "github.com/Vasu1712/scenyx-chat/internal/models"

// Outbound payloads. Messages themselves travel as models.Message for
// receive_message and message_updated.

type Authenticated struct {
	UserID        string   `json:"userId"`
	Role          string   `json:"role,omitempty"`
	ConnectionID  string   `json:"connectionId"`
	Conversations []string `json:"conversations"`
}

type MessageDelivered struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type MessagesRead struct {
	ConversationID    string `json:"conversationId"`
	UserID            string `json:"userId"`
	LastReadMessageID string `json:"lastReadMessageId,omitempty"`
	Count             int    `json:"count"`
}

type TypingState struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type PresenceChange struct {
	UserID string `json:"userId"`
}

type GroupCreated struct {
	Conversation models.Conversation  `json:"conversation"`
	Participants []models.Participant `json:"participants"`
}

type MemberAdded struct {
	ConversationID string      `json:"conversationId"`
	NewMember      string      `json:"newMember"`
	AddedBy        string      `json:"addedBy"`
	Role           models.Role `json:"role"`
}

type MemberRemoved struct {
	ConversationID string `json:"conversationId"`
	RemovedMember  string `json:"removedMember"`
	RemovedBy      string `json:"removedBy"`
}

type GroupUpdated struct {
	Conversation models.Conversation `json:"conversation"`
	UpdatedBy    string              `json:"updatedBy"`
}

type ThreadReply struct {
	ParentID       string         `json:"parentId"`
	ConversationID string         `json:"conversationId"`
	ReplyCount     int            `json:"replyCount"`
	Reply          models.Message `json:"reply"`
}

type ReactionUpdated struct {
	MessageID      string                 `json:"messageId"`
	ConversationID string                 `json:"conversationId"`
	UserID         string                 `json:"userId"`
	Emoji          string                 `json:"emoji"`
	Added          bool                   `json:"added"`
	Reactions      []models.ReactionCount `json:"reactions"`
}

type ErrorPayload struct {
	Message   string           `json:"message"`
	Code      models.ErrorKind `json:"code"`
	RequestID string           `json:"requestId,omitempty"`
}
