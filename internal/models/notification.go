package models

import "time"

// NotificationType enumerates what triggered a notification.
type NotificationType string

const (
	NotifyMessage         NotificationType = "message"
	NotifyMention         NotificationType = "mention"
	NotifyThreadReply     NotificationType = "thread-reply"
	NotifyGroupInvitation NotificationType = "group-invitation"
	NotifyReaction        NotificationType = "reaction"
	NotifySystem          NotificationType = "system"
)

// Notification is created for every affected participant except the actor.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      NotificationType  `json:"type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
}
