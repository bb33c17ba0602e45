package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

// Envelope is the frame carried by every socket message in both directions.
type Envelope struct {
	Event Kind            `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// roomScoped events may carry their conversation id as a bare JSON string.
type roomScoped interface {
	setConversationID(string)
}

func (e *JoinRoom) setConversationID(id string)   { e.ConversationID = id }
func (e *LeaveRoom) setConversationID(id string)  { e.ConversationID = id }
func (e *Typing) setConversationID(id string)     { e.ConversationID = id }
func (e *StopTyping) setConversationID(id string) { e.ConversationID = id }
func (e *MarkRead) setConversationID(id string)   { e.ConversationID = id }

func newInbound(kind Kind) Inbound {
	switch kind {
	case KindAuthenticate:
		return &Authenticate{}
	case KindJoinRoom:
		return &JoinRoom{}
	case KindLeaveRoom:
		return &LeaveRoom{}
	case KindSendMessage:
		return &SendMessage{}
	case KindTyping:
		return &Typing{}
	case KindStopTyping:
		return &StopTyping{}
	case KindMarkRead:
		return &MarkRead{}
	case KindCreateGroup:
		return &CreateGroup{}
	case KindAddMember:
		return &AddMember{}
	case KindRemoveMember:
		return &RemoveMember{}
	case KindAddReaction:
		return &AddReaction{}
	case KindRemoveReaction:
		return &RemoveReaction{}
	case KindUpdateGroup:
		return &UpdateGroup{}
	case KindEditMessage:
		return &EditMessage{}
	}
	return nil
}

// Decode parses one inbound frame into its typed payload. The request id is
// returned even when the payload is rejected so the error can be correlated.
func Decode(raw []byte) (Inbound, string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", models.Invalidf("malformed frame: %v", err)
	}
	if env.Event == "" {
		return nil, env.ID, models.Invalidf("frame has no event name")
	}
	in := newInbound(env.Event)
	if in == nil {
		return nil, env.ID, models.Invalidf("unknown event %q", env.Event)
	}

	data := bytes.TrimSpace(env.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '"':
		scoped, ok := in.(roomScoped)
		if !ok {
			return nil, env.ID, models.Invalidf("%s expects an object payload", env.Event)
		}
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, env.ID, models.Invalidf("malformed %s payload: %v", env.Event, err)
		}
		scoped.setConversationID(id)
	default:
		if err := json.Unmarshal(data, in); err != nil {
			return nil, env.ID, models.Invalidf("malformed %s payload: %v", env.Event, err)
		}
	}

	if err := in.Validate(); err != nil {
		return nil, env.ID, err
	}
	return in, env.ID, nil
}

// Encode builds an outbound frame.
func Encode(kind Kind, requestID string, payload interface{}) ([]byte, error) {
	env := Envelope{Event: kind, ID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeInbound builds a client to server frame. Used by the client controller.
func EncodeInbound(in Inbound, requestID string) ([]byte, error) {
	return Encode(in.Kind(), requestID, in)
}

// ErrorFrame encodes err for the connection that caused it.
func ErrorFrame(err error, requestID string) []byte {
	b, _ := Encode(KindError, requestID, ErrorPayload{
		Message:   models.PublicMessage(err),
		Code:      models.Classify(err),
		RequestID: requestID,
	})
	return b
}
