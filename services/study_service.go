package services

import (
	"context"

	"clinical-mdr-api/logger"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"

	"gorm.io/gorm"
)

type StudyService interface {
	CreateStudy(ctx context.Context, req models.CreateStudyRequest) (*models.Study, error)
	GetStudy(ctx context.Context, uid string) (*models.Study, error)
	LockStudy(ctx context.Context, uid string) (*models.Study, error)
	UnlockStudy(ctx context.Context, uid string) (*models.Study, error)
}

// studyScope serialises writes below one study. Every write runs in a
// transaction that holds the study row and bumps its lock version.
type studyScope struct {
	db      *gorm.DB
	studies repositories.StudyRepository
	locks   *repositories.LockTable
}

func newStudyScope(db *gorm.DB, studies repositories.StudyRepository, locks *repositories.LockTable) studyScope {
	if locks == nil {
		locks = repositories.NewLockTable()
	}
	return studyScope{db: db, studies: studies, locks: locks}
}

func studyNotFound(uid string) error {
	return models.NotFoundf("Study with uid (%s) does not exist.", uid)
}

func (s studyScope) read(ctx context.Context, uid string) (*models.Study, error) {
	study, err := s.studies.FindByUID(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, studyNotFound(uid)
	}
	return study, nil
}

// update runs fn on the study row locked for update and saves the row.
func (s studyScope) update(ctx context.Context, uid string, fn func(tx *gorm.DB, study *models.Study) error) (*models.Study, error) {
	unlock := s.locks.Lock("Study:" + uid)
	defer unlock()

	var saved *models.Study
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		studies := s.studies.WithTx(tx)
		study, err := studies.FindByUID(ctx, uid, true)
		if err != nil {
			return err
		}
		if study == nil {
			return studyNotFound(uid)
		}
		if err := fn(tx, study); err != nil {
			return err
		}
		if err := studies.Save(ctx, study); err != nil {
			return err
		}
		saved = study
		return nil
	})
	return saved, err
}

// write is update restricted to draft studies.
func (s studyScope) write(ctx context.Context, uid string, fn func(tx *gorm.DB, study *models.Study) error) error {
	_, err := s.update(ctx, uid, func(tx *gorm.DB, study *models.Study) error {
		if study.Status != models.StudyStatusDraft {
			return models.BusinessLogicf("Study with uid (%s) is locked and cannot be modified.", uid)
		}
		return fn(tx, study)
	})
	return err
}

type studyService struct {
	scope studyScope
	log   *logger.Logger
}

func NewStudyService(db *gorm.DB, studyRepo repositories.StudyRepository, locks *repositories.LockTable, log *logger.Logger) StudyService {
	if log == nil {
		log = logger.Nop()
	}
	return &studyService{
		scope: newStudyScope(db, studyRepo, locks),
		log:   log.ServiceLogger("Study"),
	}
}

func (s *studyService) CreateStudy(ctx context.Context, req models.CreateStudyRequest) (*models.Study, error) {
	study := &models.Study{Number: req.Number, Acronym: req.Acronym}
	if err := s.scope.studies.Create(ctx, study); err != nil {
		return nil, err
	}
	s.log.Info().Str("uid", study.UID).Msg("study created")
	return study, nil
}

func (s *studyService) GetStudy(ctx context.Context, uid string) (*models.Study, error) {
	return s.scope.read(ctx, uid)
}

func (s *studyService) LockStudy(ctx context.Context, uid string) (*models.Study, error) {
	return s.setStatus(ctx, uid, models.StudyStatusDraft, models.StudyStatusLocked, "Study with uid (%s) is already locked.")
}

func (s *studyService) UnlockStudy(ctx context.Context, uid string) (*models.Study, error) {
	return s.setStatus(ctx, uid, models.StudyStatusLocked, models.StudyStatusDraft, "Study with uid (%s) is not locked.")
}

func (s *studyService) setStatus(ctx context.Context, uid, from, to, rejection string) (*models.Study, error) {
	study, err := s.scope.update(ctx, uid, func(_ *gorm.DB, study *models.Study) error {
		if study.Status != from {
			return models.BusinessLogicf(rejection, uid)
		}
		study.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("uid", uid).Str("status", to).Msg("study status changed")
	return study, nil
}
