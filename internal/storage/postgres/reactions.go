package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-chat/internal/metrics"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

func (s *Store) messageExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFoundf("message %s", id)
	}
	return err
}

// ToggleReaction deletes the triple if present and inserts it otherwise. Two
// racing toggles settle on one row or none; the primary key rules out duplicates.
func (s *Store) ToggleReaction(ctx context.Context, r models.Reaction) (bool, error) {
	defer metrics.ObservePersistence("toggle_reaction", time.Now())
	added := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.messageExists(ctx, tx, r.MessageID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
			r.MessageID, r.UserID, r.Emoji)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`, r.MessageID, r.UserID, r.Emoji)
		added = err == nil
		return err
	})
	if err != nil {
		return false, models.Persistence(err, "toggle reaction")
	}
	return added, nil
}

func (s *Store) RemoveReaction(ctx context.Context, r models.Reaction) (bool, error) {
	defer metrics.ObservePersistence("remove_reaction", time.Now())
	if err := s.messageExists(ctx, s.db, r.MessageID); err != nil {
		return false, models.Persistence(err, "remove reaction")
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		r.MessageID, r.UserID, r.Emoji)
	if err != nil {
		return false, models.Persistence(err, "remove reaction")
	}
	n, err := res.RowsAffected()
	return n > 0, models.Persistence(err, "remove reaction")
}

func (s *Store) reactionsFor(ctx context.Context, q queryer, messageIDs []string) (map[string][]models.Reaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT message_id, user_id, emoji, created_at FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, user_id`, pq.Array(messageIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]models.Reaction)
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, err
		}
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, rows.Err()
}

func (s *Store) ListReactions(ctx context.Context, messageID string) ([]models.Reaction, error) {
	defer metrics.ObservePersistence("list_reactions", time.Now())
	if err := s.messageExists(ctx, s.db, messageID); err != nil {
		return nil, models.Persistence(err, "list reactions")
	}
	byMessage, err := s.reactionsFor(ctx, s.db, []string{messageID})
	if err != nil {
		return nil, models.Persistence(err, "list reactions")
	}
	return byMessage[messageID], nil
}

// Notification metadata is stored as JSONB.
func (s *Store) CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error) {
	defer metrics.ObservePersistence("create_notification", time.Now())
	if n.UserID == "" {
		return nil, models.Invalidf("notification recipient is required")
	}
	meta := pgtype.JSONB{Status: pgtype.Null}
	if len(n.Metadata) > 0 {
		if err := meta.Set(n.Metadata); err != nil {
			return nil, models.Invalidf("notification metadata: %v", err)
		}
	}

	n.ID = uuid.NewString()
	n.IsRead = false
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, n.ID, n.UserID, n.Type, n.Message, meta).Scan(&n.CreatedAt)
	if err != nil {
		return nil, models.Persistence(err, "create notification")
	}
	return &n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	defer metrics.ObservePersistence("list_notifications", time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, message, metadata, is_read, created_at FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3`, userID, unreadOnly, storage.PageLimit(limit))
	if err != nil {
		return nil, models.Persistence(err, "list notifications")
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var meta pgtype.JSONB
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &meta, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, models.Persistence(err, "scan notification")
		}
		if meta.Status == pgtype.Present {
			if err := meta.AssignTo(&n.Metadata); err != nil {
				return nil, models.Persistence(err, "decode notification metadata")
			}
		}
		out = append(out, n)
	}
	return out, models.Persistence(rows.Err(), "list notifications")
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	defer metrics.ObservePersistence("mark_notification_read", time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return models.Persistence(err, "mark notification read")
	}
	return mustAffect(res, models.NotFoundf("notification %s", id))
}
