// Package chatclient is the client side of the chat: a State that folds
// server events into what a chat window shows, and a Controller that talks
// to the server over the socket and the HTTP API.
package chatclient

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
)

type UploadStatus string

const (
	UploadUploading UploadStatus = "uploading"
	UploadComplete  UploadStatus = "complete"
	UploadError     UploadStatus = "error"
	UploadCancelled UploadStatus = "cancelled"
)

// Upload tracks one attachment transfer by its client generated id.
type Upload struct {
	TempID     string
	Name       string
	Progress   int
	Status     UploadStatus
	Attachment *models.Attachment
	Err        string

	cancel context.CancelFunc
}

// PendingSend is a send_message the server has not acknowledged yet. Err is
// set when the server rejected it; the send can then be retried.
type PendingSend struct {
	RequestID string
	Message   protocol.SendMessage
	Attempts  int
	Err       string
}

type Thread struct {
	ParentID string
	Replies  []models.Message
}

// State is safe for concurrent use. Every accessor returns copies.
type State struct {
	mu sync.Mutex

	self     string
	active   string
	messages map[string][]models.Message // conversationID -> top-level messages, oldest first
	seen     map[string]map[string]bool // conversationID -> message ids already held
	typing   map[string]map[string]bool
	unread   map[string]int
	thread   *Thread
	online   map[string]bool
	pending  map[string]*PendingSend
	uploads  map[string]*Upload
}

func NewState() *State {
	return &State{
		messages: make(map[string][]models.Message),
		seen:     make(map[string]map[string]bool),
		typing:   make(map[string]map[string]bool),
		unread:   make(map[string]int),
		online:   make(map[string]bool),
		pending:  make(map[string]*PendingSend),
		uploads:  make(map[string]*Upload),
	}
}

// Apply folds one server event into the state.
func (s *State) Apply(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Event {
	case protocol.KindAuthenticated:
		var p protocol.Authenticated
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode authenticated")
		}
		s.self = p.UserID

	case protocol.KindReceiveMessage:
		var m models.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return errors.Wrap(err, "decode message")
		}
		s.receive(m)

	case protocol.KindMessageDelivered:
		delete(s.pending, env.ID)

	case protocol.KindMessagesRead:
		var p protocol.MessagesRead
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode messages_read")
		}
		if p.UserID != s.self {
			list := s.messages[p.ConversationID]
			for i := range list {
				if list[i].SenderID == s.self {
					list[i].IsRead = true
					list[i].Status = models.StatusRead
				}
			}
		}

	case protocol.KindTyping, protocol.KindStopTyping:
		var p protocol.TypingState
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode typing")
		}
		users := s.typing[p.ConversationID]
		if users == nil {
			users = make(map[string]bool)
			s.typing[p.ConversationID] = users
		}
		if env.Event == protocol.KindTyping {
			users[p.UserID] = true
		} else {
			delete(users, p.UserID)
		}

	case protocol.KindUserOnline, protocol.KindUserOffline:
		var p protocol.PresenceChange
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode presence")
		}
		if env.Event == protocol.KindUserOnline {
			s.online[p.UserID] = true
		} else {
			delete(s.online, p.UserID)
		}

	case protocol.KindThreadReplyReceived:
		var p protocol.ThreadReply
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode thread reply")
		}
		// The server's count is authoritative over the local increment.
		s.receive(p.Reply)
		s.update(p.ConversationID, p.ParentID, func(m *models.Message) { m.ReplyCount = p.ReplyCount })

	case protocol.KindReactionUpdated:
		var p protocol.ReactionUpdated
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode reaction")
		}
		s.update(p.ConversationID, p.MessageID, func(m *models.Message) { m.Reactions = p.Reactions })

	case protocol.KindMessageUpdated:
		var edited models.Message
		if err := json.Unmarshal(env.Data, &edited); err != nil {
			return errors.Wrap(err, "decode edited message")
		}
		s.update(edited.ConversationID, edited.ID, func(m *models.Message) {
			m.Content = edited.Content
			m.IsEdited = edited.IsEdited
			m.EditedAt = edited.EditedAt
		})

	case protocol.KindMemberRemoved:
		var p protocol.MemberRemoved
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode member_removed")
		}
		if p.RemovedMember == s.self {
			delete(s.messages, p.ConversationID)
			delete(s.seen, p.ConversationID)
			delete(s.unread, p.ConversationID)
			delete(s.typing, p.ConversationID)
			if s.active == p.ConversationID {
				s.active = ""
				s.thread = nil
			}
		}

	case protocol.KindError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return errors.Wrap(err, "decode error")
		}
		if pending, ok := s.pending[env.ID]; ok {
			pending.Err = p.Message
		}
	}
	return nil
}

// markSeen records a message id and reports whether it was new.
func (s *State) markSeen(m models.Message) bool {
	ids := s.seen[m.ConversationID]
	if ids == nil {
		ids = make(map[string]bool)
		s.seen[m.ConversationID] = ids
	}
	if ids[m.ID] {
		return false
	}
	ids[m.ID] = true
	return true
}

// receive adds a message once. Replies go to the open thread only and bump
// the parent's count.
func (s *State) receive(m models.Message) {
	if !s.markSeen(m) {
		return
	}

	if m.IsReply() {
		s.update(m.ConversationID, m.IsReplyToID, func(parent *models.Message) { parent.ReplyCount++ })
		if s.thread != nil && s.thread.ParentID == m.IsReplyToID {
			s.thread.Replies = append(s.thread.Replies, m)
		}
		return
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	if m.ConversationID != s.active && m.SenderID != s.self {
		s.unread[m.ConversationID]++
	}
}

func (s *State) update(convID, msgID string, fn func(*models.Message)) {
	list := s.messages[convID]
	for i := range list {
		if list[i].ID == msgID {
			fn(&list[i])
			return
		}
	}
	if s.thread != nil {
		for i := range s.thread.Replies {
			if s.thread.Replies[i].ID == msgID {
				fn(&s.thread.Replies[i])
				return
			}
		}
	}
}

func (s *State) Self() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *State) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive switches the open conversation and clears its unread counter.
func (s *State) SetActive(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != convID {
		s.thread = nil
	}
	s.active = convID
	delete(s.unread, convID)
}

// Load merges a page of history, which may be older or overlap what is held.
func (s *State) Load(convID string, page []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[convID]
	for _, m := range page {
		if m.IsReply() || !s.markSeen(m) {
			continue
		}
		list = append(list, m)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	s.messages[convID] = list
}

func (s *State) Messages(convID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[convID]...)
}

// Oldest returns the earliest message held for convID, the cursor for the
// next older page.
func (s *State) Oldest(convID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[convID]
	if len(list) == 0 {
		return models.Message{}, false
	}
	return list[0], true
}

func (s *State) Unread(convID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[convID]
}

func (s *State) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.unread {
		n += c
	}
	return n
}

// Typing lists the other users typing in convID.
func (s *State) Typing(convID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.typing[convID] {
		if id != s.self {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (s *State) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

func (s *State) OpenThread(parentID string, replies []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = &Thread{ParentID: parentID}
	for _, r := range replies {
		s.markSeen(r)
		s.thread.Replies = append(s.thread.Replies, r)
	}
}

func (s *State) CloseThread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = nil
}

func (s *State) Thread() (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread == nil {
		return Thread{}, false
	}
	return Thread{ParentID: s.thread.ParentID, Replies: append([]models.Message(nil), s.thread.Replies...)}, true
}

func (s *State) addPending(requestID string, msg protocol.SendMessage) *PendingSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requestID]
	if !ok {
		p = &PendingSend{RequestID: requestID, Message: msg}
		s.pending[requestID] = p
	}
	p.Attempts++
	p.Err = ""
	return &PendingSend{RequestID: p.RequestID, Message: p.Message, Attempts: p.Attempts}
}

func (s *State) Pending(requestID string) (PendingSend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requestID]
	if !ok {
		return PendingSend{}, false
	}
	return *p, true
}

func (s *State) startUpload(tempID, name string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[tempID] = &Upload{TempID: tempID, Name: name, Status: UploadUploading, cancel: cancel}
}

func (s *State) uploadProgress(tempID string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.uploads[tempID]; ok && u.Status == UploadUploading {
		u.Progress = percent
	}
}

func (s *State) finishUpload(tempID string, att *models.Attachment, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[tempID]
	if !ok || u.Status == UploadCancelled {
		return
	}
	if err != nil {
		u.Status = UploadError
		u.Err = err.Error()
		return
	}
	u.Status = UploadComplete
	u.Progress = 100
	u.Attachment = att
}

// CancelUpload aborts a running upload. It reports whether there was one.
func (s *State) CancelUpload(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[tempID]
	if !ok || u.Status != UploadUploading {
		return false
	}
	u.Status = UploadCancelled
	if u.cancel != nil {
		u.cancel()
	}
	return true
}

func (s *State) Upload(tempID string) (Upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[tempID]
	if !ok {
		return Upload{}, false
	}
	out := *u
	out.cancel = nil
	return out, true
}
