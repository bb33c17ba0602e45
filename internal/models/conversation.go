package models

import "time"

// Role is the permission level of a participant inside a group conversation.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Conversation is either a direct buyer/seller conversation or a group.
type Conversation struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Description   string     `json:"description,omitempty"`
	IconURL       string     `json:"iconUrl,omitempty"`
	IsGroup       bool       `json:"isGroup"`
	BuyerID       string     `json:"buyerId,omitempty"`   // direct conversations only
	SellerID      string     `json:"sellerId,omitempty"`  // direct conversations only
	CreatorID     string     `json:"creatorId,omitempty"` // group conversations only
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	IsArchived    bool       `json:"isArchived"`
	IsPinned      bool       `json:"isPinned"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasMember reports whether userID is one of the two parties of a direct conversation.
func (c *Conversation) HasMember(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.SellerID == userID)
}

// Participant is a row of the conversation roster. LeftAt is set on soft-leave;
// the row stays so history remains queryable.
type Participant struct {
	ConversationID       string     `json:"conversationId"`
	UserID               string     `json:"userId"`
	Role                 Role       `json:"role"`
	JoinedAt             time.Time  `json:"joinedAt"`
	LeftAt               *time.Time `json:"leftAt,omitempty"`
	HasNewMessages       bool       `json:"hasNewMessages"`
	LastReadMessageID    string     `json:"lastReadMessageId,omitempty"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
	IsPinned             bool       `json:"isPinned"`
	IsArchived           bool       `json:"isArchived"`
}

// Active reports whether the participant has not left.
func (p *Participant) Active() bool {
	return p != nil && p.LeftAt == nil
}

// IsAdmin reports whether the participant is an active admin.
func (p *Participant) IsAdmin() bool {
	return p.Active() && p.Role == RoleAdmin
}

// NewGroup describes a group conversation to be created.
type NewGroup struct {
	CreatorID   string
	Name        string
	Description string
	IconURL     string
	MemberIDs   []string
}

// GroupUpdate carries the optional fields of a group edit. Nil fields are left untouched.
type GroupUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IconURL     *string `json:"iconUrl,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u GroupUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.IconURL == nil
}

// ConversationSummary is a conversation as seen by one participant in a listing.
type ConversationSummary struct {
	Conversation
	Role               Role     `json:"role,omitempty"`
	UnreadCount        int      `json:"unreadCount"`
	HasNewMessages     bool     `json:"hasNewMessages"`
	ParticipantIDs     []string `json:"participantIds"`
	OnlineParticipants int      `json:"onlineParticipants"`
}
