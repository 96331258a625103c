package repositories

import (
	"context"
	"errors"
	"testing"

	"clinical-mdr-api/internal/testdb"
	"clinical-mdr-api/models"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type StudyRepositoryTestSuite struct {
	suite.Suite
	db      *gorm.DB
	ctx     context.Context
	studies StudyRepository
	epochs  StudyEpochRepository
	visits  StudyVisitRepository
	study   *models.Study
}

func (s *StudyRepositoryTestSuite) SetupTest() {
	s.db = testdb.Open(s.T())
	s.ctx = context.Background()
	s.studies = NewStudyRepository(s.db, nil)
	s.epochs = NewStudyEpochRepository(s.db)
	s.visits = NewStudyVisitRepository(s.db)

	s.study = &models.Study{Number: "0001", Acronym: "ABC"}
	s.Require().NoError(s.studies.Create(s.ctx, s.study))
}

func (s *StudyRepositoryTestSuite) TestCreateAndFind() {
	s.Equal("Study_000001", s.study.UID)
	s.Equal(models.StudyStatusDraft, s.study.Status)

	found, err := s.studies.FindByUID(s.ctx, s.study.UID, false)
	s.Require().NoError(err)
	s.Equal("ABC", found.Acronym)

	missing, err := s.studies.FindByUID(s.ctx, "Study_999999", false)
	s.NoError(err)
	s.Nil(missing)
}

func (s *StudyRepositoryTestSuite) TestSaveDetectsStaleCopy() {
	first, err := s.studies.FindByUID(s.ctx, s.study.UID, true)
	s.Require().NoError(err)
	second, err := s.studies.FindByUID(s.ctx, s.study.UID, true)
	s.Require().NoError(err)

	first.Status = models.StudyStatusLocked
	s.Require().NoError(s.studies.Save(s.ctx, first))
	s.Equal(1, first.LockVersion)

	second.Status = models.StudyStatusLocked
	err = s.studies.Save(s.ctx, second)
	var conflict models.ErrorConflict
	s.True(errors.As(err, &conflict))
}

func (s *StudyRepositoryTestSuite) TestEpochCopyOnWrite() {
	epoch := &models.StudyEpoch{StudyUID: s.study.UID, Epoch: "Screening", EpochSubtype: "Screening", EpochOrder: 1}
	s.Require().NoError(s.epochs.Create(s.ctx, epoch, "alice"))
	s.Equal("StudyEpoch_000001", epoch.UID)
	s.NotZero(epoch.CreatedByActionID)

	current, err := s.epochs.FindByUID(s.ctx, s.study.UID, epoch.UID)
	s.Require().NoError(err)
	edited := *current
	edited.Description = "Subjects are screened"
	s.Require().NoError(s.epochs.Update(s.ctx, current, &edited, "bob"))

	all, err := s.epochs.FindAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("Subjects are screened", all[0].Description)
	s.Equal("bob", all[0].Author)

	history, err := s.epochs.History(s.ctx, s.study.UID, epoch.UID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.ActionEdit, history[0].Action.ActionType)
	s.Equal(models.ActionCreate, history[1].Action.ActionType)
	s.NotNil(history[1].Row.EndDate)
	s.Require().NotNil(history[1].Row.SupersededByActionID)
	s.Equal(history[0].Action.ID, *history[1].Row.SupersededByActionID)
}

func (s *StudyRepositoryTestSuite) TestVisitDeleteLeavesTombstone() {
	visit := &models.StudyVisit{StudyUID: s.study.UID, StudyEpochUID: "StudyEpoch_000001", VisitType: "Screening"}
	s.Require().NoError(s.visits.Create(s.ctx, visit, "alice"))

	current, err := s.visits.FindByUID(s.ctx, s.study.UID, visit.UID)
	s.Require().NoError(err)
	s.Require().NoError(s.visits.Delete(s.ctx, current, "alice"))

	gone, err := s.visits.FindByUID(s.ctx, s.study.UID, visit.UID)
	s.NoError(err)
	s.Nil(gone)

	all, err := s.visits.FindAll(s.ctx, s.study.UID)
	s.NoError(err)
	s.Empty(all)

	history, err := s.visits.History(s.ctx, s.study.UID, "")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.ActionDelete, history[0].Action.ActionType)
	s.True(history[0].Row.IsDeleted)
}

func (s *StudyRepositoryTestSuite) TestWithTxRollsBack() {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		visits := s.visits.WithTx(tx)
		if err := visits.Create(s.ctx, &models.StudyVisit{StudyUID: s.study.UID, VisitType: "Baseline"}, "alice"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	all, err := s.visits.FindAll(s.ctx, s.study.UID)
	s.NoError(err)
	s.Empty(all)
}

func TestStudyRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(StudyRepositoryTestSuite))
}
