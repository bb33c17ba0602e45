// Package postgres implements storage.Store on PostgreSQL through database/sql
// and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

//go:embed schema.sql
var schema string

var _ storage.Store = (*Store)(nil)

const fkViolation = "23503"

type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Debug("connected to postgres")
	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.WithError(rbErr).Error("error rolling back transaction")
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == fkViolation
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

const conversationColumns = `c.id, c.name, c.description, c.icon_url, c.is_group,
	COALESCE(c.buyer_id, ''), COALESCE(c.seller_id, ''), COALESCE(c.creator_id, ''),
	c.last_message_at, c.is_archived, c.is_pinned, c.created_at`

func scanConversation(row scanner, extra ...interface{}) (*models.Conversation, error) {
	var c models.Conversation
	var last sql.NullTime
	dest := []interface{}{
		&c.ID, &c.Name, &c.Description, &c.IconURL, &c.IsGroup,
		&c.BuyerID, &c.SellerID, &c.CreatorID,
		&last, &c.IsArchived, &c.IsPinned, &c.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.LastMessageAt = timePtr(last)
	return &c, nil
}

const participantColumns = `p.conversation_id, p.user_id, p.role, p.joined_at, p.left_at,
	p.has_new_messages, COALESCE(p.last_read_message_id, ''), p.notifications_enabled,
	p.is_pinned, p.is_archived`

func scanParticipant(row scanner) (*models.Participant, error) {
	var p models.Participant
	var left sql.NullTime
	err := row.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &left,
		&p.HasNewMessages, &p.LastReadMessageID, &p.NotificationsEnabled,
		&p.IsPinned, &p.IsArchived)
	if err != nil {
		return nil, err
	}
	p.LeftAt = timePtr(left)
	return &p, nil
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.is_read, m.read_at,
	COALESCE(m.is_reply_to_id, ''), m.reply_count, m.status, m.is_edited, m.edited_at, m.created_at`

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	var readAt, editedAt sql.NullTime
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsRead, &readAt,
		&m.IsReplyToID, &m.ReplyCount, &m.Status, &m.IsEdited, &editedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ReadAt = timePtr(readAt)
	m.EditedAt = timePtr(editedAt)
	return &m, nil
}
