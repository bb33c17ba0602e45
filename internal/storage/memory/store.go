// Package memory is an in-process implementation of storage.Store used in dev
// mode and by tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	participants  map[string]map[string]*models.Participant // convID -> userID -> row
	userIndex     map[string][]string                       // userID -> convIDs ever joined
	directIndex   map[[2]string]string                      // sorted pair -> convID
	messages      map[string]*models.Message
	convMessages  map[string][]string // convID -> top-level message ids, oldest first
	replies       map[string][]string // parentID -> reply ids, oldest first
	reactions     map[string][]models.Reaction
	notifications map[string][]*models.Notification // userID -> newest first

	now  func() time.Time
	last time.Time
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		participants:  make(map[string]map[string]*models.Participant),
		userIndex:     make(map[string][]string),
		directIndex:   make(map[[2]string]string),
		messages:      make(map[string]*models.Message),
		convMessages:  make(map[string][]string),
		replies:       make(map[string][]string),
		reactions:     make(map[string][]models.Reaction),
		notifications: make(map[string][]*models.Notification),
		now:           time.Now,
	}
}

func (s *Store) Close() error { return nil }

// tick returns a strictly increasing timestamp so cursors never tie. Callers
// hold the write lock.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func directKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, models.NotFoundf("conversation %s", id)
	}
	c := *conv
	return &c, nil
}

func (s *Store) StartDirect(_ context.Context, buyerID, sellerID string) (*models.Conversation, bool, error) {
	if buyerID == "" || sellerID == "" {
		return nil, false, models.Invalidf("both parties are required")
	}
	if buyerID == sellerID {
		return nil, false, models.Invalidf("cannot start a conversation with yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := directKey(buyerID, sellerID)
	if id, ok := s.directIndex[key]; ok {
		c := *s.conversations[id]
		return &c, false, nil
	}

	now := s.tick()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.directIndex[key] = conv.ID
	s.insertParticipant(conv.ID, buyerID, models.RoleMember, now)
	s.insertParticipant(conv.ID, sellerID, models.RoleMember, now)
	c := *conv
	return &c, true, nil
}

func (s *Store) insertParticipant(convID, userID string, role models.Role, now time.Time) *models.Participant {
	rows, ok := s.participants[convID]
	if !ok {
		rows = make(map[string]*models.Participant)
		s.participants[convID] = rows
	}
	p := &models.Participant{
		ConversationID:       convID,
		UserID:               userID,
		Role:                 role,
		JoinedAt:             now,
		NotificationsEnabled: true,
	}
	rows[userID] = p
	s.userIndex[userID] = append(s.userIndex[userID], convID)
	return p
}

func (s *Store) CreateGroup(_ context.Context, g models.NewGroup) (*models.Conversation, []models.Participant, error) {
	if strings.TrimSpace(g.Name) == "" {
		return nil, nil, models.Invalidf("group name is required")
	}
	if g.CreatorID == "" {
		return nil, nil, models.Invalidf("creator is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	conv := &models.Conversation{
		ID:          uuid.NewString(),
		Name:        g.Name,
		Description: g.Description,
		IconURL:     g.IconURL,
		IsGroup:     true,
		CreatorID:   g.CreatorID,
		CreatedAt:   now,
	}
	s.conversations[conv.ID] = conv

	participants := []models.Participant{*s.insertParticipant(conv.ID, g.CreatorID, models.RoleAdmin, now)}
	for _, id := range g.MemberIDs {
		if _, dup := s.participants[conv.ID][id]; dup {
			continue
		}
		participants = append(participants, *s.insertParticipant(conv.ID, id, models.RoleMember, now))
	}
	c := *conv
	return &c, participants, nil
}

func (s *Store) UpdateGroup(_ context.Context, convID string, u models.GroupUpdate) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[convID]
	if !ok {
		return nil, models.NotFoundf("conversation %s", convID)
	}
	if !conv.IsGroup {
		return nil, models.Invalidf("direct conversations cannot be renamed")
	}
	if u.Name != nil {
		conv.Name = *u.Name
	}
	if u.Description != nil {
		conv.Description = *u.Description
	}
	if u.IconURL != nil {
		conv.IconURL = *u.IconURL
	}
	c := *conv
	return &c, nil
}

func (s *Store) activeConversationIDs(userID string) []string {
	var ids []string
	for _, convID := range s.userIndex[userID] {
		if s.participants[convID][userID].Active() {
			ids = append(ids, convID)
		}
	}
	return ids
}

func (s *Store) ConversationIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeConversationIDs(userID), nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ConversationSummary
	for _, convID := range s.activeConversationIDs(userID) {
		p := s.participants[convID][userID]
		sum := models.ConversationSummary{
			Conversation:   *s.conversations[convID],
			Role:           p.Role,
			HasNewMessages: p.HasNewMessages,
			UnreadCount:    s.unreadCount(convID, p),
		}
		sum.IsPinned = p.IsPinned
		sum.IsArchived = p.IsArchived
		for _, other := range s.participants[convID] {
			if other.Active() {
				sum.ParticipantIDs = append(sum.ParticipantIDs, other.UserID)
			}
		}
		sort.Strings(sum.ParticipantIDs)
		out = append(out, sum)
	}
	sortSummaries(out)
	return out, nil
}

// sortSummaries puts pinned conversations first, then most recent activity.
func sortSummaries(out []models.ConversationSummary) {
	activity := func(c models.ConversationSummary) time.Time {
		if c.LastMessageAt != nil {
			return *c.LastMessageAt
		}
		return c.CreatedAt
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return activity(out[i]).After(activity(out[j]))
	})
}

// unreadCount counts top-level messages from others after the read watermark.
func (s *Store) unreadCount(convID string, p *models.Participant) int {
	ids := s.convMessages[convID]
	start := 0
	if p.LastReadMessageID != "" {
		for i, id := range ids {
			if id == p.LastReadMessageID {
				start = i + 1
				break
			}
		}
	}
	n := 0
	for _, id := range ids[start:] {
		if s.messages[id].SenderID != p.UserID {
			n++
		}
	}
	return n
}

func (s *Store) setFlag(convID, userID string, set func(*models.Participant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[convID][userID]
	if !p.Active() {
		return models.NotFoundf("participant %s in conversation %s", userID, convID)
	}
	set(p)
	return nil
}

func (s *Store) SetPinned(_ context.Context, convID, userID string, pinned bool) error {
	return s.setFlag(convID, userID, func(p *models.Participant) { p.IsPinned = pinned })
}

func (s *Store) SetArchived(_ context.Context, convID, userID string, archived bool) error {
	return s.setFlag(convID, userID, func(p *models.Participant) { p.IsArchived = archived })
}

func (s *Store) GetParticipant(_ context.Context, convID, userID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[convID][userID]
	if !ok {
		return nil, models.NotFoundf("participant %s in conversation %s", userID, convID)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) MemberRole(_ context.Context, convID, userID string) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.participants[convID][userID]
	if !p.Active() {
		return "", models.NotFoundf("participant %s in conversation %s", userID, convID)
	}
	return p.Role, nil
}

func (s *Store) ListParticipants(_ context.Context, convID string) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[convID]; !ok {
		return nil, models.NotFoundf("conversation %s", convID)
	}
	var out []models.Participant
	for _, p := range s.participants[convID] {
		if p.Active() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) AddParticipant(_ context.Context, convID, userID string, role models.Role) (*models.Participant, error) {
	if role == "" {
		role = models.RoleMember
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[convID]; !ok {
		return nil, models.NotFoundf("conversation %s", convID)
	}
	now := s.tick()
	if p, ok := s.participants[convID][userID]; ok {
		if p.Active() {
			return nil, models.Invalidf("%s is already a member", userID)
		}
		p.LeftAt = nil
		p.Role = role
		p.JoinedAt = now
		cp := *p
		return &cp, nil
	}
	cp := *s.insertParticipant(convID, userID, role, now)
	return &cp, nil
}

func (s *Store) RemoveParticipant(_ context.Context, convID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[convID][userID]
	if !p.Active() {
		return models.NotFoundf("participant %s in conversation %s", userID, convID)
	}
	now := s.tick()
	p.LeftAt = &now
	return nil
}
