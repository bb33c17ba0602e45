package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		want      Inbound
		wantID    string
		wantError models.ErrorKind
	}{
		{
			name:   "join room with bare id",
			frame:  `{"event":"join_room","id":"r1","data":"c1"}`,
			want:   &JoinRoom{ConversationID: "c1"},
			wantID: "r1",
		},
		{
			name:  "join room with object",
			frame: `{"event":"join_room","data":{"conversationId":"c1"}}`,
			want:  &JoinRoom{ConversationID: "c1"},
		},
		{
			name:  "send reply",
			frame: `{"event":"send_message","data":{"conversationId":"c1","content":"ack","replyTo":"m1"}}`,
			want:  &SendMessage{ConversationID: "c1", Content: "ack", ReplyTo: "m1"},
		},
		{
			name:  "create group",
			frame: `{"event":"create_group","data":{"name":"Farmers","memberIds":["B","C"]}}`,
			want:  &CreateGroup{Name: "Farmers", MemberIDs: []string{"B", "C"}},
		},
		{
			name:      "unknown event",
			frame:     `{"event":"delete_everything","id":"x","data":{}}`,
			wantID:    "x",
			wantError: models.KindValidation,
		},
		{
			name:      "missing conversation",
			frame:     `{"event":"typing","data":{}}`,
			wantError: models.KindValidation,
		},
		{
			name:      "empty message",
			frame:     `{"event":"send_message","data":{"conversationId":"c1","content":"  "}}`,
			wantError: models.KindValidation,
		},
		{
			name:      "group without members",
			frame:     `{"event":"create_group","data":{"name":"Farmers","memberIds":[]}}`,
			wantError: models.KindValidation,
		},
		{
			name:      "bare string for object payload",
			frame:     `{"event":"add_reaction","data":"m1"}`,
			wantError: models.KindValidation,
		},
		{
			name:      "bad role",
			frame:     `{"event":"add_member","data":{"conversationId":"c1","userId":"D","role":"owner"}}`,
			wantError: models.KindValidation,
		},
		{
			name:      "not json",
			frame:     `hello`,
			wantError: models.KindValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, id, err := Decode([]byte(tc.frame))
			assert.Equal(t, tc.wantID, id)
			if tc.wantError != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantError, models.Classify(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeUpdateGroup(t *testing.T) {
	in, _, err := Decode([]byte(`{"event":"update_group","data":{"conversationId":"c1","name":"Growers"}}`))
	require.NoError(t, err)

	upd, ok := in.(*UpdateGroup)
	require.True(t, ok)
	require.NotNil(t, upd.Name)
	assert.Equal(t, "Growers", *upd.Name)
	assert.Nil(t, upd.Description)

	_, _, err = Decode([]byte(`{"event":"update_group","data":{"conversationId":"c1"}}`))
	assert.Equal(t, models.KindValidation, models.Classify(err))
}

func TestEncodeInboundRoundTrip(t *testing.T) {
	frame, err := EncodeInbound(&AddReaction{MessageID: "m1", Emoji: "👍"}, "req-7")
	require.NoError(t, err)

	in, id, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "req-7", id)
	assert.Equal(t, &AddReaction{MessageID: "m1", Emoji: "👍"}, in)
}

func TestErrorFrameHidesPersistenceDetails(t *testing.T) {
	frame := ErrorFrame(models.Persistence(assert.AnError, "append message"), "r9")

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, KindError, env.Event)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "internal error", payload.Message)
	assert.Equal(t, models.KindPersistence, payload.Code)
	assert.Equal(t, "r9", payload.RequestID)
}
