package repositories

import (
	"context"

	"clinical-mdr-api/models"

	"gorm.io/gorm"
)

type StudyVisitRepository interface {
	FindAll(ctx context.Context, studyUID string) ([]models.StudyVisit, error)
	FindByUID(ctx context.Context, studyUID, uid string) (*models.StudyVisit, error)
	Create(ctx context.Context, visit *models.StudyVisit, author string) error
	Update(ctx context.Context, before, after *models.StudyVisit, author string) error
	Delete(ctx context.Context, visit *models.StudyVisit, author string) error
	History(ctx context.Context, studyUID, uid string) ([]AuditRow[models.StudyVisit], error)
	WithTx(tx *gorm.DB) StudyVisitRepository
}

type studyVisitRepository struct {
	db *gorm.DB
}

func NewStudyVisitRepository(db *gorm.DB) StudyVisitRepository {
	return &studyVisitRepository{db: db}
}

func (r *studyVisitRepository) WithTx(tx *gorm.DB) StudyVisitRepository {
	return &studyVisitRepository{db: tx}
}

func (r *studyVisitRepository) store(ctx context.Context) selectionStore[models.StudyVisit, *models.StudyVisit] {
	return selectionStore[models.StudyVisit, *models.StudyVisit]{db: r.db.WithContext(ctx)}
}

func (r *studyVisitRepository) FindAll(ctx context.Context, studyUID string) ([]models.StudyVisit, error) {
	return r.store(ctx).current(studyUID, "visit_order, uid")
}

func (r *studyVisitRepository) FindByUID(ctx context.Context, studyUID, uid string) (*models.StudyVisit, error) {
	return r.store(ctx).find(studyUID, uid)
}

// Create assigns a uid when the visit has none.
func (r *studyVisitRepository) Create(ctx context.Context, visit *models.StudyVisit, author string) error {
	if visit.UID == "" {
		uid, err := NextUID(r.db.WithContext(ctx), models.ObjectStudyVisit)
		if err != nil {
			return err
		}
		visit.UID = uid
	}
	return r.store(ctx).insert(visit.StudyUID, visit, author)
}

func (r *studyVisitRepository) Update(ctx context.Context, before, after *models.StudyVisit, author string) error {
	return r.store(ctx).replace(before.StudyUID, before, after, models.ActionEdit, author)
}

func (r *studyVisitRepository) Delete(ctx context.Context, visit *models.StudyVisit, author string) error {
	tombstone := *visit
	return r.store(ctx).replace(visit.StudyUID, visit, &tombstone, models.ActionDelete, author)
}

func (r *studyVisitRepository) History(ctx context.Context, studyUID, uid string) ([]AuditRow[models.StudyVisit], error) {
	return r.store(ctx).history(studyUID, uid)
}
