package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-chat/internal/metrics"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// AppendMessage inserts the message in one transaction. For a reply the parent
// row is locked and its reply_count incremented before the insert, so a failure
// anywhere leaves both untouched.
func (s *Store) AppendMessage(ctx context.Context, nm models.NewMessage) (*models.Message, error) {
	defer metrics.ObservePersistence("append_message", time.Now())
	if err := nm.Validate(); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_at = NOW() WHERE id = $1`, nm.ConversationID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, models.NotFoundf("conversation %s", nm.ConversationID)); err != nil {
			return err
		}

		if nm.ReplyToID != "" {
			var convID, grandparent string
			err := tx.QueryRowContext(ctx, `
				SELECT conversation_id, COALESCE(is_reply_to_id, '') FROM messages
				WHERE id = $1 FOR UPDATE`, nm.ReplyToID).Scan(&convID, &grandparent)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && convID != nm.ConversationID) {
				return models.NotFoundf("parent message %s", nm.ReplyToID)
			}
			if err != nil {
				return err
			}
			if grandparent != "" {
				return models.Invalidf("replies cannot be replied to")
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE messages SET reply_count = reply_count + 1 WHERE id = $1`, nm.ReplyToID); err != nil {
				return err
			}
		}

		var replyTo interface{}
		if nm.ReplyToID != "" {
			replyTo = nm.ReplyToID
		}
		msg, err = scanMessage(tx.QueryRowContext(ctx, `
			INSERT INTO messages AS m (id, conversation_id, sender_id, content, is_reply_to_id, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+messageColumns,
			uuid.NewString(), nm.ConversationID, nm.SenderID, nm.Content, replyTo, models.StatusSent))
		if err != nil {
			return err
		}

		for i, a := range nm.Attachments {
			a.ID = uuid.NewString()
			a.MessageID = msg.ID
			if a.Status == "" {
				a.Status = "complete"
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO message_attachments (id, message_id, position, url, name, size, type, thumbnail_url, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				a.ID, a.MessageID, i, a.URL, a.Name, a.Size, a.Type, a.ThumbnailURL, a.Status); err != nil {
				return err
			}
			msg.Attachments = append(msg.Attachments, a)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversation_participants SET has_new_messages = TRUE
			WHERE conversation_id = $1 AND user_id <> $2 AND left_at IS NULL`,
			nm.ConversationID, nm.SenderID)
		return err
	})
	if err != nil {
		return nil, models.Persistence(err, "append message")
	}
	return msg, nil
}

// hydrate loads attachments and reactions for msgs in two queries.
func (s *Store) hydrate(ctx context.Context, q queryer, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		index[m.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, message_id, url, name, size, type, thumbnail_url, status
		FROM message_attachments WHERE message_id = ANY($1)
		ORDER BY message_id, position`, pq.Array(ids))
	if err != nil {
		return err
	}
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.URL, &a.Name, &a.Size, &a.Type, &a.ThumbnailURL, &a.Status); err != nil {
			rows.Close()
			return err
		}
		i := index[a.MessageID]
		msgs[i].Attachments = append(msgs[i].Attachments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	reactions, err := s.reactionsFor(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Reactions = models.CountReactions(reactions[msgs[i].ID])
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, op, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.Persistence(err, op)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, models.Persistence(err, op)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Persistence(err, op)
	}
	if err := s.hydrate(ctx, s.db, out); err != nil {
		return nil, models.Persistence(err, op)
	}
	return out, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	defer metrics.ObservePersistence("get_message", time.Now())
	msgs, err := s.queryMessages(ctx, "get message",
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, models.NotFoundf("message %s", id)
	}
	return &msgs[0], nil
}

// ListMessages returns one page of top-level messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, convID string, q storage.MessageQuery) ([]models.Message, error) {
	defer metrics.ObservePersistence("list_messages", time.Now())
	if _, err := s.GetConversation(ctx, convID); err != nil {
		return nil, err
	}
	before := sql.NullTime{Time: q.Before, Valid: !q.Before.IsZero()}
	msgs, err := s.queryMessages(ctx, "list messages", `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.conversation_id = $1 AND m.is_reply_to_id IS NULL
		  AND ($2::timestamptz IS NULL OR m.created_at < $2)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`, convID, before, storage.PageLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) ListReplies(ctx context.Context, parentID string) ([]models.Message, error) {
	defer metrics.ObservePersistence("list_replies", time.Now())
	if _, err := s.GetMessage(ctx, parentID); err != nil {
		return nil, err
	}
	return s.queryMessages(ctx, "list replies", `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.is_reply_to_id = $1
		ORDER BY m.created_at, m.id`, parentID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) SearchMessages(ctx context.Context, userID, query string, limit int) ([]models.Message, error) {
	defer metrics.ObservePersistence("search_messages", time.Now())
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.Invalidf("search query is required")
	}
	return s.queryMessages(ctx, "search messages", `
		SELECT `+messageColumns+` FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id AND p.user_id = $1 AND p.left_at IS NULL
		WHERE m.content ILIKE $2 ESCAPE '\'
		ORDER BY m.created_at DESC
		LIMIT $3`, userID, "%"+likeEscaper.Replace(query)+"%", storage.PageLimit(limit))
}

func (s *Store) MarkRead(ctx context.Context, convID, userID string) (models.ReadResult, error) {
	defer metrics.ObservePersistence("mark_read", time.Now())
	var res models.ReadResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var hadNew bool
		var watermark string
		err := tx.QueryRowContext(ctx, `
			SELECT has_new_messages, COALESCE(last_read_message_id, '') FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
			FOR UPDATE`, convID, userID).Scan(&hadNew, &watermark)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("participant %s in conversation %s", userID, convID)
		}
		if err != nil {
			return err
		}

		updated, err := tx.ExecContext(ctx, `
			UPDATE messages SET is_read = TRUE, read_at = NOW(), status = $3
			WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read AND is_reply_to_id IS NULL`,
			convID, userID, models.StatusRead)
		if err != nil {
			return err
		}
		n, err := updated.RowsAffected()
		if err != nil {
			return err
		}
		res.Count = int(n)

		var latest string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM messages
			WHERE conversation_id = $1 AND is_reply_to_id IS NULL
			ORDER BY created_at DESC, id DESC LIMIT 1`, convID).Scan(&latest)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if latest == "" {
			latest = watermark
		}

		res.Changed = res.Count > 0 || hadNew || latest != watermark
		res.LastReadMessageID = latest
		if !res.Changed {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE conversation_participants SET has_new_messages = FALSE, last_read_message_id = NULLIF($3, '')
			WHERE conversation_id = $1 AND user_id = $2`, convID, userID, latest)
		return err
	})
	if err != nil {
		return models.ReadResult{}, models.Persistence(err, "mark read")
	}
	return res, nil
}

func (s *Store) MarkThreadRead(ctx context.Context, parentID, userID string) (int, error) {
	defer metrics.ObservePersistence("mark_thread_read", time.Now())
	if _, err := s.GetMessage(ctx, parentID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = NOW(), status = $3
		WHERE is_reply_to_id = $1 AND sender_id <> $2 AND NOT is_read`,
		parentID, userID, models.StatusRead)
	if err != nil {
		return 0, models.Persistence(err, "mark thread read")
	}
	n, err := res.RowsAffected()
	return int(n), models.Persistence(err, "mark thread read")
}

func (s *Store) EditMessage(ctx context.Context, id, content string) (*models.Message, error) {
	defer metrics.ObservePersistence("edit_message", time.Now())
	if strings.TrimSpace(content) == "" {
		return nil, models.Invalidf("content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return nil, models.Invalidf("content exceeds %d characters", models.MaxContentLength)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = $2, is_edited = TRUE, edited_at = NOW()
		WHERE id = $1`, id, content)
	if err != nil {
		return nil, models.Persistence(err, "edit message")
	}
	if err := mustAffect(res, models.NotFoundf("message %s", id)); err != nil {
		return nil, models.Persistence(err, "edit message")
	}
	return s.GetMessage(ctx, id)
}
