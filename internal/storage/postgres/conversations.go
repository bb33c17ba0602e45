package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-chat/internal/metrics"
	"github.com/Vasu1712/scenyx-chat/internal/models"
)

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	defer metrics.ObservePersistence("get_conversation", time.Now())
	conv, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("conversation %s", id)
	}
	return conv, models.Persistence(err, "get conversation")
}

func (s *Store) directByPair(ctx context.Context, low, high string) (*models.Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c
		WHERE c.direct_low_id = $1 AND c.direct_high_id = $2`, low, high))
}

// StartDirect finds the conversation between two users or creates it. The
// participant pair is sorted so the unique constraint matches either order.
func (s *Store) StartDirect(ctx context.Context, buyerID, sellerID string) (*models.Conversation, bool, error) {
	defer metrics.ObservePersistence("start_direct", time.Now())
	if buyerID == "" || sellerID == "" {
		return nil, false, models.Invalidf("both parties are required")
	}
	if buyerID == sellerID {
		return nil, false, models.Invalidf("cannot start a conversation with yourself")
	}
	low, high := buyerID, sellerID
	if low > high {
		low, high = high, low
	}

	conv, err := s.directByPair(ctx, low, high)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, models.Persistence(err, "get direct conversation")
	}

	created := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		id := uuid.NewString()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, is_group, buyer_id, seller_id, direct_low_id, direct_high_id)
			VALUES ($1, FALSE, $2, $3, $4, $5)
			ON CONFLICT (direct_low_id, direct_high_id) DO NOTHING`,
			id, buyerID, sellerID, low, high)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			// lost the race to a concurrent creator
			return err
		}
		for _, userID := range []string{buyerID, sellerID} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, role)
				VALUES ($1, $2, $3)`, id, userID, models.RoleMember); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, models.Persistence(err, "create direct conversation")
	}

	conv, err = s.directByPair(ctx, low, high)
	if err != nil {
		return nil, false, models.Persistence(err, "get direct conversation")
	}
	return conv, created, nil
}

func (s *Store) CreateGroup(ctx context.Context, g models.NewGroup) (*models.Conversation, []models.Participant, error) {
	defer metrics.ObservePersistence("create_group", time.Now())
	if strings.TrimSpace(g.Name) == "" {
		return nil, nil, models.Invalidf("group name is required")
	}
	if g.CreatorID == "" {
		return nil, nil, models.Invalidf("creator is required")
	}

	var conv *models.Conversation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		conv, err = scanConversation(tx.QueryRowContext(ctx, `
			INSERT INTO conversations AS c (id, name, description, icon_url, is_group, creator_id)
			VALUES ($1, $2, $3, $4, TRUE, $5)
			RETURNING `+conversationColumns,
			uuid.NewString(), g.Name, g.Description, g.IconURL, g.CreatorID))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, role)
			VALUES ($1, $2, $3)`, conv.ID, g.CreatorID, models.RoleAdmin); err != nil {
			return err
		}
		for _, userID := range g.MemberIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, role)
				VALUES ($1, $2, $3)
				ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv.ID, userID, models.RoleMember); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, models.Persistence(err, "create group")
	}

	participants, err := s.ListParticipants(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	// creator first
	for i, p := range participants {
		if p.UserID == g.CreatorID && i > 0 {
			participants[0], participants[i] = participants[i], participants[0]
		}
	}
	return conv, participants, nil
}

func (s *Store) UpdateGroup(ctx context.Context, convID string, u models.GroupUpdate) (*models.Conversation, error) {
	defer metrics.ObservePersistence("update_group", time.Now())
	conv, err := scanConversation(s.db.QueryRowContext(ctx, `
		UPDATE conversations AS c SET
			name = COALESCE($2, c.name),
			description = COALESCE($3, c.description),
			icon_url = COALESCE($4, c.icon_url)
		WHERE c.id = $1 AND c.is_group
		RETURNING `+conversationColumns, convID, u.Name, u.Description, u.IconURL))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetConversation(ctx, convID); getErr != nil {
			return nil, getErr
		}
		return nil, models.Invalidf("direct conversations cannot be renamed")
	}
	return conv, models.Persistence(err, "update group")
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	defer metrics.ObservePersistence("list_conversations", time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`, p.role, p.has_new_messages, p.is_pinned, p.is_archived,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id AND m.is_reply_to_id IS NULL AND m.sender_id <> p.user_id
			   AND m.created_at > COALESCE(
				(SELECT r.created_at FROM messages r WHERE r.id = p.last_read_message_id),
				'-infinity'::timestamptz)),
			ARRAY(SELECT q.user_id FROM conversation_participants q
			      WHERE q.conversation_id = c.id AND q.left_at IS NULL ORDER BY q.user_id)
		FROM conversation_participants p
		JOIN conversations c ON c.id = p.conversation_id
		WHERE p.user_id = $1 AND p.left_at IS NULL
		ORDER BY p.is_pinned DESC, COALESCE(c.last_message_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, models.Persistence(err, "list conversations")
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var sum models.ConversationSummary
		var pinned, archived bool
		conv, err := scanConversation(rows, &sum.Role, &sum.HasNewMessages, &pinned, &archived,
			&sum.UnreadCount, pq.Array(&sum.ParticipantIDs))
		if err != nil {
			return nil, models.Persistence(err, "scan conversation")
		}
		sum.Conversation = *conv
		sum.IsPinned = pinned
		sum.IsArchived = archived
		out = append(out, sum)
	}
	return out, models.Persistence(rows.Err(), "list conversations")
}

func (s *Store) ConversationIDs(ctx context.Context, userID string) ([]string, error) {
	defer metrics.ObservePersistence("conversation_ids", time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversation_participants
		WHERE user_id = $1 AND left_at IS NULL
		ORDER BY joined_at`, userID)
	if err != nil {
		return nil, models.Persistence(err, "list conversation ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, models.Persistence(err, "scan conversation id")
		}
		ids = append(ids, id)
	}
	return ids, models.Persistence(rows.Err(), "list conversation ids")
}

func (s *Store) setFlag(ctx context.Context, column, convID, userID string, value bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants SET `+column+` = $3
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL`, convID, userID, value)
	if err != nil {
		return models.Persistence(err, "update "+column)
	}
	return models.Persistence(mustAffect(res,
		models.NotFoundf("participant %s in conversation %s", userID, convID)), "update "+column)
}

func (s *Store) SetPinned(ctx context.Context, convID, userID string, pinned bool) error {
	defer metrics.ObservePersistence("set_pinned", time.Now())
	return s.setFlag(ctx, "is_pinned", convID, userID, pinned)
}

func (s *Store) SetArchived(ctx context.Context, convID, userID string, archived bool) error {
	defer metrics.ObservePersistence("set_archived", time.Now())
	return s.setFlag(ctx, "is_archived", convID, userID, archived)
}

func (s *Store) GetParticipant(ctx context.Context, convID, userID string) (*models.Participant, error) {
	defer metrics.ObservePersistence("get_participant", time.Now())
	p, err := scanParticipant(s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM conversation_participants p
		WHERE p.conversation_id = $1 AND p.user_id = $2`, convID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("participant %s in conversation %s", userID, convID)
	}
	return p, models.Persistence(err, "get participant")
}

func (s *Store) MemberRole(ctx context.Context, convID, userID string) (models.Role, error) {
	defer metrics.ObservePersistence("member_role", time.Now())
	var role models.Role
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL`, convID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.NotFoundf("participant %s in conversation %s", userID, convID)
	}
	return role, models.Persistence(err, "get member role")
}

func (s *Store) ListParticipants(ctx context.Context, convID string) ([]models.Participant, error) {
	defer metrics.ObservePersistence("list_participants", time.Now())
	if _, err := s.GetConversation(ctx, convID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+participantColumns+` FROM conversation_participants p
		WHERE p.conversation_id = $1 AND p.left_at IS NULL
		ORDER BY p.joined_at, p.user_id`, convID)
	if err != nil {
		return nil, models.Persistence(err, "list participants")
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, models.Persistence(err, "scan participant")
		}
		out = append(out, *p)
	}
	return out, models.Persistence(rows.Err(), "list participants")
}

// AddParticipant inserts the row or reactivates one that has left. An active
// row is left alone and reported as a validation error.
func (s *Store) AddParticipant(ctx context.Context, convID, userID string, role models.Role) (*models.Participant, error) {
	defer metrics.ObservePersistence("add_participant", time.Now())
	if role == "" {
		role = models.RoleMember
	}
	p, err := scanParticipant(s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_participants AS p (conversation_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
			SET role = EXCLUDED.role, joined_at = NOW(), left_at = NULL
			WHERE p.left_at IS NOT NULL
		RETURNING `+participantColumns, convID, userID, role))
	switch {
	case isForeignKeyViolation(err):
		return nil, models.NotFoundf("conversation %s", convID)
	case errors.Is(err, sql.ErrNoRows):
		return nil, models.Invalidf("%s is already a member", userID)
	}
	return p, models.Persistence(err, "add participant")
}

func (s *Store) RemoveParticipant(ctx context.Context, convID, userID string) error {
	defer metrics.ObservePersistence("remove_participant", time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants SET left_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL`, convID, userID)
	if err != nil {
		return models.Persistence(err, "remove participant")
	}
	return mustAffect(res, models.NotFoundf("participant %s in conversation %s", userID, convID))
}
