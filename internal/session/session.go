package session

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/metrics"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

// session is one authenticated connection. handle is only ever called from the
// connection's read pump, so events are processed one at a time and in order.
type session struct {
	*Manager
	ctx     context.Context
	client  *ws.Client
	actor   chat.Actor
	limiter *rate.Limiter
}

func (s *session) handle(raw []byte) {
	if !s.limiter.Allow() {
		metrics.CountEvent("unknown", metrics.ResultRejected)
		s.fail("", errors.Wrap(models.ErrRateLimited, "too many events, slow down"))
		return
	}

	in, requestID, err := protocol.Decode(raw)
	if err != nil {
		metrics.CountEvent("invalid", metrics.ResultRejected)
		s.fail(requestID, err)
		return
	}

	kind := string(in.Kind())
	if err := s.dispatch(in, requestID); err != nil {
		result := metrics.ResultRejected
		if models.Classify(err) == models.KindPersistence {
			result = metrics.ResultFailed
		}
		metrics.CountEvent(kind, result)
		s.fail(requestID, err)
		return
	}
	metrics.CountEvent(kind, metrics.ResultOK)
	s.client.Log().WithField("event", kind).Debug("handled event")
}

func (s *session) dispatch(in protocol.Inbound, requestID string) error {
	ctx, actor := s.ctx, s.actor

	switch e := in.(type) {
	case *protocol.Authenticate:
		return models.Invalidf("connection is already authenticated")

	case *protocol.JoinRoom:
		if _, err := s.chat.Guard().Conversation(ctx, actor.UserID, e.ConversationID); err != nil {
			return err
		}
		if err := s.hub.Join(s.client, e.ConversationID); err != nil {
			return err
		}
		_, err := s.chat.MarkRead(ctx, actor, e.ConversationID)
		return err

	case *protocol.LeaveRoom:
		return s.hub.Leave(s.client, e.ConversationID)

	case *protocol.SendMessage:
		msg, err := s.chat.SendMessage(ctx, actor, e)
		if err != nil {
			return err
		}
		s.reply(protocol.KindMessageDelivered, requestID, protocol.MessageDelivered{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
		})
		return nil

	case *protocol.Typing:
		return s.chat.SetTyping(ctx, actor, e.ConversationID, true)

	case *protocol.StopTyping:
		return s.chat.SetTyping(ctx, actor, e.ConversationID, false)

	case *protocol.MarkRead:
		_, err := s.chat.MarkRead(ctx, actor, e.ConversationID)
		return err

	case *protocol.CreateGroup:
		_, err := s.chat.CreateGroup(ctx, actor, e)
		return err

	case *protocol.AddMember:
		_, err := s.chat.AddMember(ctx, actor, e)
		return err

	case *protocol.RemoveMember:
		return s.chat.RemoveMember(ctx, actor, e)

	case *protocol.AddReaction:
		_, err := s.chat.ToggleReaction(ctx, actor, e.MessageID, e.Emoji)
		return err

	case *protocol.RemoveReaction:
		_, err := s.chat.RemoveReaction(ctx, actor, e.MessageID, e.Emoji)
		return err

	case *protocol.UpdateGroup:
		_, err := s.chat.UpdateGroup(ctx, actor, e)
		return err

	case *protocol.EditMessage:
		_, err := s.chat.EditMessage(ctx, actor, e)
		return err
	}
	return errors.Errorf("no handler for %s", in.Kind())
}

// reply sends an event to this connection only.
func (s *session) reply(kind protocol.Kind, requestID string, payload interface{}) {
	frame, err := protocol.Encode(kind, requestID, payload)
	if err != nil {
		s.client.Log().WithError(err).WithField("event", kind).Error("failed to encode reply")
		return
	}
	if err := s.hub.Send(s.client, frame); err != nil {
		s.client.Log().WithError(err).Debug("reply not sent")
	}
}

// fail reports err to this connection only. The connection stays open.
func (s *session) fail(requestID string, err error) {
	entry := s.client.Log().WithError(err).WithField("request", requestID)
	if models.Classify(err) == models.KindPersistence {
		entry.Error("event failed")
	} else {
		entry.Warn("event rejected")
	}
	if err := s.hub.Send(s.client, protocol.ErrorFrame(err, requestID)); err != nil {
		s.client.Log().WithError(err).Debug("error frame not sent")
	}
}

// close runs after the read pump returns. The offline announcement goes to
// every conversation the user belongs to, not only the rooms this connection
// still had joined.
func (s *session) close() {
	audience, err := s.chat.ConversationIDs(context.Background(), s.actor.UserID)
	if err != nil {
		log.WithError(err).WithField("user", s.actor.UserID).Warn("failed to load offline audience")
	}
	if err := s.hub.Unregister(s.client, audience); err != nil {
		s.client.Log().WithError(err).Debug("unregister after hub stop")
	}
	s.client.Log().Debug("connection closed")
}
