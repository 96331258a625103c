package repositories

import (
	"context"

	"clinical-mdr-api/models"

	"gorm.io/gorm"
)

type StudyEpochRepository interface {
	FindAll(ctx context.Context, studyUID string) ([]models.StudyEpoch, error)
	FindByUID(ctx context.Context, studyUID, uid string) (*models.StudyEpoch, error)
	Create(ctx context.Context, epoch *models.StudyEpoch, author string) error
	Update(ctx context.Context, before, after *models.StudyEpoch, author string) error
	Delete(ctx context.Context, epoch *models.StudyEpoch, author string) error
	History(ctx context.Context, studyUID, uid string) ([]AuditRow[models.StudyEpoch], error)
	WithTx(tx *gorm.DB) StudyEpochRepository
}

type studyEpochRepository struct {
	db *gorm.DB
}

func NewStudyEpochRepository(db *gorm.DB) StudyEpochRepository {
	return &studyEpochRepository{db: db}
}

func (r *studyEpochRepository) WithTx(tx *gorm.DB) StudyEpochRepository {
	return &studyEpochRepository{db: tx}
}

func (r *studyEpochRepository) store(ctx context.Context) selectionStore[models.StudyEpoch, *models.StudyEpoch] {
	return selectionStore[models.StudyEpoch, *models.StudyEpoch]{db: r.db.WithContext(ctx)}
}

func (r *studyEpochRepository) FindAll(ctx context.Context, studyUID string) ([]models.StudyEpoch, error) {
	return r.store(ctx).current(studyUID, "epoch_order")
}

func (r *studyEpochRepository) FindByUID(ctx context.Context, studyUID, uid string) (*models.StudyEpoch, error) {
	return r.store(ctx).find(studyUID, uid)
}

// Create assigns a uid when the epoch has none.
func (r *studyEpochRepository) Create(ctx context.Context, epoch *models.StudyEpoch, author string) error {
	if epoch.UID == "" {
		uid, err := NextUID(r.db.WithContext(ctx), models.ObjectStudyEpoch)
		if err != nil {
			return err
		}
		epoch.UID = uid
	}
	return r.store(ctx).insert(epoch.StudyUID, epoch, author)
}

func (r *studyEpochRepository) Update(ctx context.Context, before, after *models.StudyEpoch, author string) error {
	return r.store(ctx).replace(before.StudyUID, before, after, models.ActionEdit, author)
}

func (r *studyEpochRepository) Delete(ctx context.Context, epoch *models.StudyEpoch, author string) error {
	tombstone := *epoch
	return r.store(ctx).replace(epoch.StudyUID, epoch, &tombstone, models.ActionDelete, author)
}

func (r *studyEpochRepository) History(ctx context.Context, studyUID, uid string) ([]AuditRow[models.StudyEpoch], error) {
	return r.store(ctx).history(studyUID, uid)
}
