package chat

import (
	"context"
	"regexp"

	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

var mentionPattern = regexp.MustCompile(`@([\w.\-]+)`)

// Mentions returns the distinct user ids written as @id in content.
func Mentions(content string) map[string]bool {
	out := map[string]bool{}
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		out[m[1]] = true
	}
	return out
}

// notify stores a notification. Failures never fail the operation that caused it.
func (s *Service) notify(ctx context.Context, n models.Notification) {
	if _, err := s.store.CreateNotification(ctx, n); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user": n.UserID,
			"type": n.Type,
		}).Warn("failed to create notification")
	}
}

func preview(content string) string {
	const max = 80
	r := []rune(content)
	if len(r) <= max {
		return content
	}
	return string(r[:max]) + "…"
}

// notifyMessage notifies the other active participants who have notifications
// on. Top-level messages raise message or mention; replies raise thread-reply
// for the parent's author and mention for anyone named.
func (s *Service) notifyMessage(ctx context.Context, conv *models.Conversation, msg *models.Message, parent *models.Message) {
	participants, err := s.store.ListParticipants(ctx, conv.ID)
	if err != nil {
		log.WithError(err).WithField("conversation", conv.ID).Warn("failed to list participants for notifications")
		return
	}
	mentioned := Mentions(msg.Content)
	meta := map[string]string{"conversationId": conv.ID, "messageId": msg.ID, "senderId": msg.SenderID}

	for _, p := range participants {
		if p.UserID == msg.SenderID || !p.NotificationsEnabled {
			continue
		}
		n := models.Notification{UserID: p.UserID, Metadata: meta}
		switch {
		case mentioned[p.UserID]:
			n.Type = models.NotifyMention
			n.Message = msg.SenderID + " mentioned you: " + preview(msg.Content)
		case parent != nil && parent.SenderID == p.UserID:
			n.Type = models.NotifyThreadReply
			n.Message = msg.SenderID + " replied to your message: " + preview(msg.Content)
		case parent == nil:
			n.Type = models.NotifyMessage
			n.Message = msg.SenderID + ": " + preview(msg.Content)
		default:
			continue
		}
		s.notify(ctx, n)
	}
}
