package services

import (
	"context"

	"clinical-mdr-api/domain"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"

	"gorm.io/gorm"
)

type StudyEpochService interface {
	GetAll(ctx context.Context, studyUID string) ([]models.StudyEpochOutput, error)
	Get(ctx context.Context, studyUID, uid string) (*models.StudyEpochOutput, error)
	Create(ctx context.Context, studyUID string, input models.StudyEpochInput, author string) (*models.StudyEpochOutput, error)
	Edit(ctx context.Context, studyUID, uid string, input models.StudyEpochEditInput, author string) (*models.StudyEpochOutput, error)
	Delete(ctx context.Context, studyUID, uid, author string) error
	Reorder(ctx context.Context, studyUID, uid string, newOrder int, author string) (*models.StudyEpochOutput, error)
}

type studyEpochService struct {
	scope    studyScope
	epochs   repositories.StudyEpochRepository
	visits   repositories.StudyVisitRepository
	timeline *timelineBuilder
	log      *logger.Logger
}

func NewStudyEpochService(
	db *gorm.DB,
	studyRepo repositories.StudyRepository,
	epochRepo repositories.StudyEpochRepository,
	visitRepo repositories.StudyVisitRepository,
	unitRepo repositories.LibraryItemRepository[models.UnitDefinitionValue],
	locks *repositories.LockTable,
	m *metrics.Metrics,
	log *logger.Logger,
) StudyEpochService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.ServiceLogger(models.ObjectStudyEpoch)
	return &studyEpochService{
		scope:    newStudyScope(db, studyRepo, locks),
		epochs:   epochRepo,
		visits:   visitRepo,
		timeline: &timelineBuilder{units: unitRepo, metrics: m, log: log},
		log:      log,
	}
}

func epochNotFound(studyUID, uid string) error {
	return models.NotFoundf("Study epoch with uid (%s) does not exist in study (%s).", uid, studyUID)
}

// outputs derives the timing of every epoch from the current visits.
func (s *studyEpochService) outputs(ctx context.Context, tx *gorm.DB, study *models.Study) ([]models.StudyEpochOutput, error) {
	epochs, visits := s.epochs, s.visits
	if tx != nil {
		epochs, visits = epochs.WithTx(tx), visits.WithTx(tx)
	}
	rows, err := epochs.FindAll(ctx, study.UID)
	if err != nil {
		return nil, err
	}
	visitRows, err := visits.FindAll(ctx, study.UID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.timeline.build(ctx, tx, visitRows)
	if err != nil {
		return nil, err
	}

	byUID := make(map[string]models.StudyEpoch, len(rows))
	for _, row := range rows {
		byUID[row.UID] = row
	}
	collected, epochVisits := timeline.CollectVisitsToEpochs(epochsToDomain(rows))

	out := make([]models.StudyEpochOutput, 0, len(collected))
	for _, e := range collected {
		o := models.StudyEpochOutput{
			StudyEpoch:      byUID[e.UID],
			StartDay:        e.StartDay(),
			EndDay:          e.EndDay(),
			Duration:        e.CalculatedDuration(),
			VisitCount:      len(epochVisits[e.UID]),
			PossibleActions: e.PossibleActions(domain.StudyStatus(study.Status)),
		}
		if first := e.FirstVisit(); first != nil {
			o.FirstVisitUID = first.UID
		}
		if last := e.LastVisit(); last != nil {
			o.LastVisitUID = last.UID
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *studyEpochService) output(ctx context.Context, tx *gorm.DB, study *models.Study, uid string) (*models.StudyEpochOutput, error) {
	all, err := s.outputs(ctx, tx, study)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].UID == uid {
			return &all[i], nil
		}
	}
	return nil, epochNotFound(study.UID, uid)
}

func (s *studyEpochService) GetAll(ctx context.Context, studyUID string) ([]models.StudyEpochOutput, error) {
	study, err := s.scope.read(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	return s.outputs(ctx, nil, study)
}

func (s *studyEpochService) Get(ctx context.Context, studyUID, uid string) (*models.StudyEpochOutput, error) {
	study, err := s.scope.read(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	return s.output(ctx, nil, study, uid)
}

func (s *studyEpochService) Create(ctx context.Context, studyUID string, input models.StudyEpochInput, author string) (*models.StudyEpochOutput, error) {
	var out *models.StudyEpochOutput
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, study *models.Study) error {
		epochs := s.epochs.WithTx(tx)
		current, err := epochs.FindAll(ctx, studyUID)
		if err != nil {
			return err
		}
		order := 1
		for _, e := range current {
			if e.EpochOrder >= order {
				order = e.EpochOrder + 1
			}
		}

		epoch := &models.StudyEpoch{
			StudyUID:     studyUID,
			Epoch:        input.Epoch,
			EpochSubtype: input.EpochSubtype,
			EpochType:    input.EpochType,
			EpochOrder:   order,
			Description:  input.Description,
			StartRule:    input.StartRule,
			EndRule:      input.EndRule,
			ColorHash:    input.ColorHash,
		}
		if err := epochs.Create(ctx, epoch, author); err != nil {
			return err
		}
		out, err = s.output(ctx, tx, study, epoch.UID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("study_uid", studyUID).Str("uid", out.UID).Int("order", out.EpochOrder).Msg("epoch created")
	return out, nil
}

func (s *studyEpochService) Edit(ctx context.Context, studyUID, uid string, input models.StudyEpochEditInput, author string) (*models.StudyEpochOutput, error) {
	var out *models.StudyEpochOutput
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, study *models.Study) error {
		epochs := s.epochs.WithTx(tx)
		before, err := epochs.FindByUID(ctx, studyUID, uid)
		if err != nil {
			return err
		}
		if before == nil {
			return epochNotFound(studyUID, uid)
		}

		after := *before
		setIfPresent(&after.Epoch, input.Epoch)
		setIfPresent(&after.EpochSubtype, input.EpochSubtype)
		setIfPresent(&after.EpochType, input.EpochType)
		setIfPresent(&after.Description, input.Description)
		setIfPresent(&after.StartRule, input.StartRule)
		setIfPresent(&after.EndRule, input.EndRule)
		setIfPresent(&after.ColorHash, input.ColorHash)
		if after.Epoch == "" || after.EpochSubtype == "" {
			return models.Validationf("epoch and epoch_subtype cannot be empty.")
		}
		if after != *before {
			if err := epochs.Update(ctx, before, &after, author); err != nil {
				return err
			}
		}
		out, err = s.output(ctx, tx, study, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an epoch without visits and closes the gap in the order of
// the epochs behind it.
func (s *studyEpochService) Delete(ctx context.Context, studyUID, uid, author string) error {
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, _ *models.Study) error {
		epochs := s.epochs.WithTx(tx)
		target, err := epochs.FindByUID(ctx, studyUID, uid)
		if err != nil {
			return err
		}
		if target == nil {
			return epochNotFound(studyUID, uid)
		}
		if err := s.requireNoVisits(ctx, tx, target); err != nil {
			return err
		}
		if err := epochs.Delete(ctx, target, author); err != nil {
			return err
		}

		remaining, err := epochs.FindAll(ctx, studyUID)
		if err != nil {
			return err
		}
		return renumberEpochs(ctx, epochs, remaining, author)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("study_uid", studyUID).Str("uid", uid).Msg("epoch deleted")
	return nil
}

// Reorder moves an epoch to newOrder, shifting the epochs in between.
func (s *studyEpochService) Reorder(ctx context.Context, studyUID, uid string, newOrder int, author string) (*models.StudyEpochOutput, error) {
	var out *models.StudyEpochOutput
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, study *models.Study) error {
		epochs := s.epochs.WithTx(tx)
		current, err := epochs.FindAll(ctx, studyUID)
		if err != nil {
			return err
		}
		index := -1
		for i := range current {
			if current[i].UID == uid {
				index = i
			}
		}
		if index < 0 {
			return epochNotFound(studyUID, uid)
		}
		if newOrder < 1 || newOrder > len(current) {
			return models.Validationf("New order %d is out of range 1..%d.", newOrder, len(current))
		}
		if err := s.requireNoVisits(ctx, tx, &current[index]); err != nil {
			return err
		}

		moved := current[index]
		reordered := append(append([]models.StudyEpoch{}, current[:index]...), current[index+1:]...)
		reordered = append(reordered[:newOrder-1], append([]models.StudyEpoch{moved}, reordered[newOrder-1:]...)...)
		if err := renumberEpochs(ctx, epochs, reordered, author); err != nil {
			return err
		}
		out, err = s.output(ctx, tx, study, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *studyEpochService) requireNoVisits(ctx context.Context, tx *gorm.DB, epoch *models.StudyEpoch) error {
	visits, err := s.visits.WithTx(tx).FindAll(ctx, epoch.StudyUID)
	if err != nil {
		return err
	}
	for _, v := range visits {
		if v.StudyEpochUID == epoch.UID {
			return models.BusinessLogicf("Study epoch %s has visits assigned and cannot be deleted or reordered.", epoch.Epoch)
		}
	}
	return nil
}

// renumberEpochs stores 1..n as the order of epochs, writing only the rows
// whose order changes.
func renumberEpochs(ctx context.Context, epochs repositories.StudyEpochRepository, ordered []models.StudyEpoch, author string) error {
	for i := range ordered {
		before := ordered[i]
		if before.EpochOrder == i+1 {
			continue
		}
		after := before
		after.EpochOrder = i + 1
		if err := epochs.Update(ctx, &before, &after, author); err != nil {
			return err
		}
	}
	return nil
}

func setIfPresent(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
