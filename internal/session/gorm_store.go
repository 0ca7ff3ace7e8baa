package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
)

// GormStore persists sessions in Postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) BySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) Create(ctx context.Context, sess *models.Session) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *GormStore) Save(ctx context.Context, sess *models.Session) error {
	return s.db.WithContext(ctx).Save(sess).Error
}

func (s *GormStore) OpenByCustomer(ctx context.Context, customerID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND closed = ?", customerID, false).
		Order("assign_time").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *GormStore) CloseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("closed = ? AND last_event_time < ?", false, cutoff).
		Updates(map[string]interface{}{
			"closed":          true,
			"terminate_cause": "Stale-Reclaim",
		})
	return res.RowsAffected, res.Error
}

func (s *GormStore) IsDuplicate(err error) bool {
	return database.IsUniqueViolation(err)
}
