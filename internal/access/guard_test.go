package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
)

func TestCanAccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	g := NewGuard(store)

	direct, _, err := store.StartDirect(ctx, "buyer", "seller")
	require.NoError(t, err)
	group, _, err := store.CreateGroup(ctx, models.NewGroup{CreatorID: "A", Name: "Farmers", MemberIDs: []string{"B", "C"}})
	require.NoError(t, err)
	require.NoError(t, store.RemoveParticipant(ctx, group.ID, "C"))

	tests := []struct {
		name string
		user string
		conv *models.Conversation
		want bool
	}{
		{"direct buyer", "buyer", direct, true},
		{"direct seller", "seller", direct, true},
		{"direct stranger", "A", direct, false},
		{"group admin", "A", group, true},
		{"group member", "B", group, true},
		{"group member who left", "C", group, false},
		{"group stranger", "buyer", group, false},
		{"empty user", "", group, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.CanAccess(ctx, tc.user, tc.conv)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	g := NewGuard(store)
	group, _, err := store.CreateGroup(ctx, models.NewGroup{CreatorID: "A", Name: "Farmers", MemberIDs: []string{"B"}})
	require.NoError(t, err)

	admin, err := g.IsAdmin(ctx, "A", group.ID)
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = g.IsAdmin(ctx, "B", group.ID)
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, store.RemoveParticipant(ctx, group.ID, "A"))
	admin, err = g.IsAdmin(ctx, "A", group.ID)
	require.NoError(t, err)
	assert.False(t, admin, "an admin who left loses rights")
}

func TestErrorsByKind(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	g := NewGuard(store)
	direct, _, err := store.StartDirect(ctx, "buyer", "seller")
	require.NoError(t, err)
	group, _, err := store.CreateGroup(ctx, models.NewGroup{CreatorID: "A", Name: "Farmers", MemberIDs: []string{"B"}})
	require.NoError(t, err)
	msg, err := store.AppendMessage(ctx, models.NewMessage{ConversationID: direct.ID, SenderID: "buyer", Content: "hi"})
	require.NoError(t, err)

	_, err = g.Conversation(ctx, "A", "missing")
	assert.Equal(t, models.KindNotFound, models.Classify(err))

	_, err = g.Conversation(ctx, "A", direct.ID)
	assert.Equal(t, models.KindAuthorization, models.Classify(err))

	_, err = g.Admin(ctx, "B", group.ID)
	assert.Equal(t, models.KindAuthorization, models.Classify(err))

	_, err = g.Admin(ctx, "buyer", direct.ID)
	assert.Equal(t, models.KindValidation, models.Classify(err))

	_, _, err = g.Message(ctx, "A", msg.ID)
	assert.Equal(t, models.KindAuthorization, models.Classify(err))

	got, conv, err := g.Message(ctx, "seller", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, direct.ID, conv.ID)
}
