package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MessageStatus tracks a message through delivery.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusError     MessageStatus = "error"
)

// MaxContentLength bounds the number of characters in a message body.
const MaxContentLength = 10000

// MaxAttachments bounds the attachments carried by a single message.
const MaxAttachments = 10

// Message is a chat message. IsReplyToID points at the parent of a one-level thread.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	SenderID       string          `json:"senderId"`
	Content        string          `json:"content"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	IsRead         bool            `json:"isRead"`
	ReadAt         *time.Time      `json:"readAt,omitempty"`
	IsReplyToID    string          `json:"isReplyToId,omitempty"`
	ReplyCount     int             `json:"replyCount"`
	Status         MessageStatus   `json:"status"`
	IsEdited       bool            `json:"isEdited"`
	EditedAt       *time.Time      `json:"editedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Reactions      []ReactionCount `json:"reactions,omitempty"`
}

// IsReply reports whether the message belongs to a thread.
func (m *Message) IsReply() bool {
	return m.IsReplyToID != ""
}

// Attachment is a file attached to a message. Immutable once created.
type Attachment struct {
	ID           string `json:"id,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	URL          string `json:"url"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Status       string `json:"status,omitempty"`
}

// NewMessage is the input of an append.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	Attachments    []Attachment
	ReplyToID      string
}

// Validate checks the shape of the message before it reaches storage.
func (m NewMessage) Validate() error {
	if m.ConversationID == "" {
		return Invalidf("conversationId is required")
	}
	if m.SenderID == "" {
		return Invalidf("senderId is required")
	}
	if strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 {
		return Invalidf("message must have content or attachments")
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		return Invalidf("content exceeds %d characters", MaxContentLength)
	}
	if len(m.Attachments) > MaxAttachments {
		return Invalidf("at most %d attachments per message", MaxAttachments)
	}
	for i, a := range m.Attachments {
		if a.URL == "" {
			return Invalidf("attachment %d has no url", i)
		}
		if a.Size < 0 {
			return Invalidf("attachment %d has a negative size", i)
		}
	}
	return nil
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionCount aggregates reactions of one emoji on a message.
type ReactionCount struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// CountReactions groups reactions by emoji, keeping first-seen order.
func CountReactions(reactions []Reaction) []ReactionCount {
	var out []ReactionCount
	index := map[string]int{}
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(out)
			index[r.Emoji] = i
			out = append(out, ReactionCount{Emoji: r.Emoji})
		}
		out[i].Count++
		out[i].UserIDs = append(out[i].UserIDs, r.UserID)
	}
	return out
}

// ReadResult describes the effect of marking a conversation read.
type ReadResult struct {
	Changed           bool
	Count             int
	LastReadMessageID string
}
