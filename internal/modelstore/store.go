package modelstore

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// Store serves the active model per type. Reads hit a versioned
// in-process snapshot; activation flips status atomically in one
// transaction and invalidates the snapshot.
type Store struct {
	db     *database.DB
	logger *logrus.Entry

	mu     sync.RWMutex
	active map[string]*models.Model
}

func NewStore(db *database.DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.WithField("component", "modelstore"),
		active: make(map[string]*models.Model),
	}
}

// Active returns the active model of the given type, consulting the
// snapshot first and re-querying on a miss.
func (s *Store) Active(ctx context.Context, modelType string) (*models.Model, error) {
	s.mu.RLock()
	if m, ok := s.active[modelType]; ok {
		s.mu.RUnlock()
		return m, nil
	}
	s.mu.RUnlock()

	var m models.Model
	err := s.db.WithContext(ctx).
		Where("type = ? AND status = ?", modelType, models.ModelStatusActive).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeNoActiveModel, "no active %s model", modelType)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "querying active %s model", modelType)
	}

	s.mu.Lock()
	s.active[modelType] = &m
	s.mu.Unlock()
	return &m, nil
}

// Activate flips the given model to active and the previous active
// model of the same type to archived in a single transaction.
func (s *Store) Activate(ctx context.Context, modelID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Model
		if err := tx.First(&m, "id = ?", modelID).Error; err != nil {
			return err
		}
		if m.Status == models.ModelStatusActive {
			return nil
		}
		res := tx.Model(&models.Model{}).
			Where("type = ? AND status = ?", m.Type, models.ModelStatusActive).
			Update("status", models.ModelStatusArchived)
		if res.Error != nil {
			return res.Error
		}
		res = tx.Model(&models.Model{}).
			Where("id = ? AND status = ?", m.ID, models.ModelStatusTraining).
			Update("status", models.ModelStatusActive)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.CodeConflictActivation,
				"model %s is no longer in training state", modelID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Invalidate()
	s.logger.WithField("model_id", modelID).Info("Model activated")
	return nil
}

// Invalidate drops the in-process snapshot; the next read re-queries.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.active = make(map[string]*models.Model)
	s.mu.Unlock()
}
