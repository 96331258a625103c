package repositories

import (
	"context"
	"errors"
	"time"

	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"

	"gorm.io/gorm"
)

type StudyRepository interface {
	Create(ctx context.Context, study *models.Study) error
	FindByUID(ctx context.Context, uid string, forUpdate bool) (*models.Study, error)
	Save(ctx context.Context, study *models.Study) error
	WithTx(tx *gorm.DB) StudyRepository
}

type studyRepository struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

func NewStudyRepository(db *gorm.DB, m *metrics.Metrics) StudyRepository {
	return &studyRepository{db: db, metrics: m}
}

func (r *studyRepository) WithTx(tx *gorm.DB) StudyRepository {
	return &studyRepository{db: tx, metrics: r.metrics}
}

func (r *studyRepository) Create(ctx context.Context, study *models.Study) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uid, err := NextUID(tx, "Study")
		if err != nil {
			return err
		}
		study.UID = uid
		if study.Status == "" {
			study.Status = models.StudyStatusDraft
		}
		return tx.Create(study).Error
	})
}

func (r *studyRepository) FindByUID(ctx context.Context, uid string, forUpdate bool) (*models.Study, error) {
	var study models.Study
	err := lockingClause(r.db.WithContext(ctx), forUpdate).Where("uid = ?", uid).First(&study).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &study, nil
}

// Save writes the study's status and bumps its lock version. It fails with
// ErrorConflict when the row changed since it was read.
func (r *studyRepository) Save(ctx context.Context, study *models.Study) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Study{}).
		Where("id = ? AND lock_version = ?", study.ID, study.LockVersion).
		Updates(map[string]interface{}{
			"status":       study.Status,
			"acronym":      study.Acronym,
			"lock_version": gorm.Expr("lock_version + 1"),
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if r.metrics != nil {
			r.metrics.LockConflicts.WithLabelValues("Study").Inc()
		}
		return models.Conflictf("Study with uid (%s) was modified concurrently, reload and retry.", study.UID)
	}
	study.LockVersion++
	study.UpdatedAt = now
	return nil
}
