// Package cached decorates a storage.Store with a cache of active membership
// roles, the lookup behind every authorization check.
package cached

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/cache"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

const DefaultTTL = 10 * time.Minute

type Store struct {
	storage.Store
	cache cache.Cache
	ttl   time.Duration
}

func New(inner storage.Store, c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Store: inner, cache: c, ttl: ttl}
}

func roleKey(convID, userID string) string {
	return "role:" + convID + ":" + userID
}

func epochKey(convID, userID string) string {
	return "role-epoch:" + convID + ":" + userID
}

// epoch returns the current membership epoch, starting a new one when none
// is cached. Every membership write replaces the epoch, which orphans any
// role cached under the previous one.
func (s *Store) epoch(ctx context.Context, convID, userID string) (string, error) {
	key := epochKey(convID, userID)
	b, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		return string(b), nil
	case !errors.Is(err, cache.ErrMiss):
		return "", err
	}
	fresh := uuid.NewString()
	if err := s.cache.Set(ctx, key, []byte(fresh), s.ttl); err != nil {
		return "", err
	}
	return fresh, nil
}

// MemberRole serves from the cache when possible. Only active memberships are
// cached, each tagged with the epoch read before the store lookup, so a
// lookup racing a removal can never republish the stale role. A cache failure
// falls through to the store.
func (s *Store) MemberRole(ctx context.Context, convID, userID string) (models.Role, error) {
	key := roleKey(convID, userID)
	logger := log.WithField("key", key)

	epoch, err := s.epoch(ctx, convID, userID)
	if err != nil {
		logger.WithError(err).Warn("membership cache read failed")
		return s.Store.MemberRole(ctx, convID, userID)
	}

	b, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		if tagged, role, ok := strings.Cut(string(b), "|"); ok && tagged == epoch {
			return models.Role(role), nil
		}
	case !errors.Is(err, cache.ErrMiss):
		logger.WithError(err).Warn("membership cache read failed")
	}

	role, err := s.Store.MemberRole(ctx, convID, userID)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, key, []byte(epoch+"|"+string(role)), s.ttl); err != nil {
		logger.WithError(err).Warn("membership cache write failed")
	}
	return role, nil
}

// invalidate runs after a membership write has committed.
func (s *Store) invalidate(ctx context.Context, convID, userID string) {
	entry := log.WithFields(log.Fields{
		"conversation": convID,
		"user":         userID,
	})
	if err := s.cache.Set(ctx, epochKey(convID, userID), []byte(uuid.NewString()), s.ttl); err != nil {
		entry.WithError(err).Error("failed to advance membership epoch")
	}
	if err := s.cache.Delete(ctx, roleKey(convID, userID)); err != nil {
		entry.WithError(err).Error("failed to invalidate membership cache")
	}
}

func (s *Store) AddParticipant(ctx context.Context, convID, userID string, role models.Role) (*models.Participant, error) {
	p, err := s.Store.AddParticipant(ctx, convID, userID, role)
	if err == nil {
		s.invalidate(ctx, convID, userID)
	}
	return p, err
}

func (s *Store) RemoveParticipant(ctx context.Context, convID, userID string) error {
	err := s.Store.RemoveParticipant(ctx, convID, userID)
	if err == nil {
		s.invalidate(ctx, convID, userID)
	}
	return err
}
