package services

import (
	"context"
	"testing"
	"time"

	"clinical-mdr-api/domain"
	"clinical-mdr-api/internal/testdb"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"

	"github.com/stretchr/testify/suite"
)

type StudyServicesTestSuite struct {
	suite.Suite
	ctx       context.Context
	studies   StudyService
	epochs    StudyEpochService
	visits    StudyVisitService
	study     *models.Study
	dayUID    string
	weekUID   string
	screening *models.StudyEpochOutput
	treatment *models.StudyEpochOutput
}

func (s *StudyServicesTestSuite) SetupTest() {
	db := testdb.Open(s.T())
	s.ctx = context.Background()
	m := metrics.NewMetrics()
	locks := repositories.NewLockTable()

	libraryRepo := repositories.NewLibraryRepository(db)
	s.Require().NoError(libraryRepo.Create(s.ctx, &models.Library{Name: "Sponsor", IsEditable: true}))
	unitRepo := repositories.NewLibraryItemRepository[models.UnitDefinitionValue](db, repositories.UnitDefinitionCapability{}, nil, locks, m, nil)
	s.dayUID = s.createUnit(unitRepo, "day", domain.SecondsPerDay)
	s.weekUID = s.createUnit(unitRepo, "week", domain.SecondsPerWeek)

	studyRepo := repositories.NewStudyRepository(db, m)
	epochRepo := repositories.NewStudyEpochRepository(db)
	visitRepo := repositories.NewStudyVisitRepository(db)
	s.studies = NewStudyService(db, studyRepo, locks, nil)
	s.epochs = NewStudyEpochService(db, studyRepo, epochRepo, visitRepo, unitRepo, locks, m, nil)
	s.visits = NewStudyVisitService(db, studyRepo, epochRepo, visitRepo, unitRepo, locks, m, nil)

	var err error
	s.study, err = s.studies.CreateStudy(s.ctx, models.CreateStudyRequest{Number: "0001", Acronym: "HEART"})
	s.Require().NoError(err)
	s.screening = s.createEpoch("Screening")
	s.treatment = s.createEpoch("Treatment")
}

func (s *StudyServicesTestSuite) createUnit(repo repositories.LibraryItemRepository[models.UnitDefinitionValue], name string, factor float64) string {
	value := models.UnitDefinitionValue{Name: name, ConversionFactorToMaster: &factor}
	item, err := domain.NewDraftItem(domain.LibraryVO{Name: "Sponsor", IsEditable: true}, value, "alice", time.Now().UTC())
	s.Require().NoError(err)
	saved, err := repo.Save(s.ctx, item)
	s.Require().NoError(err)
	return saved.UID
}

func (s *StudyServicesTestSuite) createEpoch(name string) *models.StudyEpochOutput {
	out, err := s.epochs.Create(s.ctx, s.study.UID, models.StudyEpochInput{Epoch: name, EpochSubtype: name}, "alice")
	s.Require().NoError(err)
	return out
}

func intPtr(n int) *int { return &n }

func (s *StudyServicesTestSuite) visitInput(epochUID, visitType, reference string, value int, unitUID string) models.StudyVisitInput {
	return models.StudyVisitInput{
		StudyEpochUID:    epochUID,
		VisitType:        visitType,
		VisitClass:       string(domain.VisitClassSingle),
		VisitContactMode: domain.ContactModeOnSite,
		TimeReference:    reference,
		TimeValue:        intPtr(value),
		TimeUnitUID:      unitUID,
		ShowVisit:        true,
	}
}

func (s *StudyServicesTestSuite) baselineInput() models.StudyVisitInput {
	in := s.visitInput(s.treatment.UID, "Baseline", domain.GlobalAnchorVisitName, 0, s.dayUID)
	in.IsGlobalAnchorVisit = true
	return in
}

func (s *StudyServicesTestSuite) createVisit(in models.StudyVisitInput) *models.StudyVisitOutput {
	out, err := s.visits.Create(s.ctx, s.study.UID, in, "alice")
	s.Require().NoError(err)
	return out
}

func (s *StudyServicesTestSuite) TestLockAndUnlock() {
	locked, err := s.studies.LockStudy(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Equal(models.StudyStatusLocked, locked.Status)

	var businessErr models.ErrorBusinessLogic
	_, err = s.studies.LockStudy(s.ctx, s.study.UID)
	s.ErrorAs(err, &businessErr)

	_, err = s.epochs.Create(s.ctx, s.study.UID, models.StudyEpochInput{Epoch: "Follow-up", EpochSubtype: "Follow-up"}, "alice")
	s.ErrorAs(err, &businessErr)

	epochs, err := s.epochs.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Empty(epochs[0].PossibleActions)

	unlocked, err := s.studies.UnlockStudy(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Equal(models.StudyStatusDraft, unlocked.Status)

	_, err = s.studies.UnlockStudy(s.ctx, s.study.UID)
	s.ErrorAs(err, &businessErr)

	_, err = s.studies.GetStudy(s.ctx, "Study_999999")
	var notFound models.ErrorNotFound
	s.ErrorAs(err, &notFound)
}

func (s *StudyServicesTestSuite) TestEpochOrdering() {
	followUp := s.createEpoch("Follow-up")
	s.Equal(1, s.screening.EpochOrder)
	s.Equal(3, followUp.EpochOrder)

	moved, err := s.epochs.Reorder(s.ctx, s.study.UID, followUp.UID, 1, "bob")
	s.Require().NoError(err)
	s.Equal(1, moved.EpochOrder)

	_, err = s.epochs.Reorder(s.ctx, s.study.UID, followUp.UID, 4, "bob")
	var validationErr models.ErrorValidation
	s.ErrorAs(err, &validationErr)

	s.Require().NoError(s.epochs.Delete(s.ctx, s.study.UID, followUp.UID, "bob"))
	epochs, err := s.epochs.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(epochs, 2)
	s.Equal("Screening", epochs[0].Epoch)
	s.Equal(1, epochs[0].EpochOrder)
	s.Equal(2, epochs[1].EpochOrder)

	description := "Dosing period"
	edited, err := s.epochs.Edit(s.ctx, s.study.UID, s.treatment.UID, models.StudyEpochEditInput{Description: &description}, "bob")
	s.Require().NoError(err)
	s.Equal("Dosing period", edited.Description)
	s.Equal("Treatment", edited.Epoch)
}

func (s *StudyServicesTestSuite) TestVisitCreationRenumbersTimeline() {
	baseline := s.createVisit(s.baselineInput())
	s.Equal(1, baseline.VisitNumber)

	screening := s.createVisit(s.visitInput(s.screening.UID, "Screening", domain.GlobalAnchorVisitName, -14, s.dayUID))
	s.Equal(1, screening.VisitNumber)
	s.Equal(-14, *screening.StudyDay)

	week2 := s.createVisit(s.visitInput(s.treatment.UID, "Week 2", "Baseline", 2, s.weekUID))

	visits, err := s.visits.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(visits, 3)
	s.Equal([]string{screening.UID, baseline.UID, week2.UID}, []string{visits[0].UID, visits[1].UID, visits[2].UID})
	s.Equal("Visit 2", visits[1].VisitName)
	s.Equal("V2", visits[1].VisitShortName)
	s.Equal(200, visits[1].UniqueVisitNumber)
	s.Equal("Treatment", visits[1].EpochName)
	s.Equal(15, *visits[2].StudyDay)
	s.Equal(3, *visits[2].StudyWeek)
	s.Equal(14, *visits[2].StudyDurationDays)

	stored, err := s.visits.Get(s.ctx, s.study.UID, baseline.UID)
	s.Require().NoError(err)
	s.Equal(2, stored.VisitNumber)

	trail, err := s.visits.AuditTrail(s.ctx, s.study.UID, baseline.UID)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.Equal(models.ActionEdit, trail[0].ChangeType)
	s.True(trail[0].Changes["visit_number"])
	s.False(trail[0].Changes["visit_type_name"])
	s.Empty(trail[1].Changes)

	studyTrail, err := s.visits.StudyAuditTrail(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Len(studyTrail, 4)
}

func (s *StudyServicesTestSuite) TestEpochTimingFromVisits() {
	s.createVisit(s.baselineInput())
	s.createVisit(s.visitInput(s.screening.UID, "Screening", domain.GlobalAnchorVisitName, -14, s.dayUID))
	s.createVisit(s.visitInput(s.treatment.UID, "Week 2", "Baseline", 2, s.weekUID))

	epochs, err := s.epochs.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(epochs, 2)

	s.Equal(-14, *epochs[0].StartDay)
	s.Equal(1, *epochs[0].EndDay)
	s.Equal(15, epochs[0].Duration)
	s.Equal(1, epochs[0].VisitCount)

	s.Equal(1, *epochs[1].StartDay)
	s.Equal(15, *epochs[1].EndDay)
	s.Equal(2, epochs[1].VisitCount)
	s.Equal([]string{"edit", "delete", "lock"}, epochs[1].PossibleActions)

	err = s.epochs.Delete(s.ctx, s.study.UID, s.treatment.UID, "alice")
	var businessErr models.ErrorBusinessLogic
	s.ErrorAs(err, &businessErr)
}

func (s *StudyServicesTestSuite) TestVisitValidation() {
	s.createVisit(s.baselineInput())

	cases := map[string]models.StudyVisitInput{
		"same timing":        s.visitInput(s.treatment.UID, "Day 1 call", "Baseline", 0, s.dayUID),
		"unknown reference":  s.visitInput(s.treatment.UID, "Week 1", "Randomisation", 7, s.dayUID),
		"earlier epoch":      s.visitInput(s.screening.UID, "Late screening", "Baseline", 7, s.dayUID),
		"unknown epoch":      s.visitInput("StudyEpoch_999999", "Week 1", "Baseline", 7, s.dayUID),
		"second anchor":      s.baselineInput(),
		"unknown time unit":  s.visitInput(s.treatment.UID, "Week 1", "Baseline", 7, "UnitDefinition_999999"),
		"unknown contact":    func() models.StudyVisitInput { in := s.visitInput(s.treatment.UID, "Week 1", "Baseline", 7, s.dayUID); in.VisitContactMode = "Pigeon"; return in }(),
		"timed non-visit":    func() models.StudyVisitInput { in := s.visitInput(s.treatment.UID, "Info", "Baseline", 7, s.dayUID); in.VisitClass = string(domain.VisitClassNonVisit); return in }(),
		"orphaned subvisit":  func() models.StudyVisitInput { in := s.visitInput(s.treatment.UID, "Day 3", "Baseline", 2, s.dayUID); in.VisitSubclass = string(domain.VisitSubclassAdditionalSubvisit); return in }(),
		"anchor not at zero": func() models.StudyVisitInput { in := s.visitInput(s.treatment.UID, "Week 1", "Baseline", 7, s.dayUID); in.IsGlobalAnchorVisit = true; return in }(),
	}
	for name, in := range cases {
		_, err := s.visits.Create(s.ctx, s.study.UID, in, "alice")
		var validationErr models.ErrorValidation
		s.ErrorAs(err, &validationErr, name)
	}

	visits, err := s.visits.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Len(visits, 1)
}

func (s *StudyServicesTestSuite) TestFirstVisitMustStartTheStudy() {
	_, err := s.visits.Create(s.ctx, s.study.UID, s.visitInput(s.treatment.UID, "Week 1", domain.PreviousVisitName, 7, s.dayUID), "alice")
	var validationErr models.ErrorValidation
	s.ErrorAs(err, &validationErr)
}

func (s *StudyServicesTestSuite) TestSubvisitGroup() {
	anchorInput := s.baselineInput()
	anchorInput.VisitSubclass = string(domain.VisitSubclassAnchorVisit)
	anchor := s.createVisit(anchorInput)

	subInput := s.visitInput(s.treatment.UID, "Day 3", "Baseline", 2, s.dayUID)
	subInput.VisitSubclass = string(domain.VisitSubclassAdditionalSubvisit)
	subInput.VisitSublabelReference = anchor.UID
	sub := s.createVisit(subInput)

	s.Equal(1, sub.VisitNumber)
	s.Require().NotNil(sub.SubvisitNumber)
	s.Equal(10, *sub.SubvisitNumber)
	s.Equal(110, sub.UniqueVisitNumber)
	s.Equal("V1D3", sub.VisitShortName)

	refreshed, err := s.visits.Get(s.ctx, s.study.UID, anchor.UID)
	s.Require().NoError(err)
	s.Equal("V1D1", refreshed.VisitShortName)
	s.Equal(100, refreshed.UniqueVisitNumber)

	err = s.visits.Delete(s.ctx, s.study.UID, anchor.UID, "alice")
	var businessErr models.ErrorBusinessLogic
	s.ErrorAs(err, &businessErr)
}

func (s *StudyServicesTestSuite) TestPreviewDoesNotStore() {
	s.createVisit(s.baselineInput())

	preview, err := s.visits.Preview(s.ctx, s.study.UID, s.visitInput(s.treatment.UID, "Week 1", "Baseline", 1, s.weekUID))
	s.Require().NoError(err)
	s.Empty(preview.UID)
	s.Equal(2, preview.VisitNumber)
	s.Equal(8, *preview.StudyDay)
	s.Equal("Treatment", preview.EpochName)

	visits, err := s.visits.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Len(visits, 1)
}

func (s *StudyServicesTestSuite) TestEditAndDeleteResynchronise() {
	baseline := s.createVisit(s.baselineInput())
	screening := s.createVisit(s.visitInput(s.screening.UID, "Screening", domain.GlobalAnchorVisitName, -14, s.dayUID))
	week2 := s.createVisit(s.visitInput(s.treatment.UID, "Week 2", "Baseline", 2, s.weekUID))

	in := s.visitInput(s.treatment.UID, "Week 2", "Baseline", 3, s.weekUID)
	edited, err := s.visits.Edit(s.ctx, s.study.UID, week2.UID, in, "bob")
	s.Require().NoError(err)
	s.Equal(22, *edited.StudyDay)
	s.Equal("bob", edited.Author)

	err = s.visits.Delete(s.ctx, s.study.UID, baseline.UID, "bob")
	var businessErr models.ErrorBusinessLogic
	s.ErrorAs(err, &businessErr)

	s.Require().NoError(s.visits.Delete(s.ctx, s.study.UID, screening.UID, "bob"))
	visits, err := s.visits.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(visits, 2)
	s.Equal(baseline.UID, visits[0].UID)
	s.Equal(1, visits[0].VisitNumber)
	s.Equal(2, visits[1].VisitNumber)

	_, err = s.visits.Get(s.ctx, s.study.UID, screening.UID)
	var notFound models.ErrorNotFound
	s.ErrorAs(err, &notFound)

	trail, err := s.visits.AuditTrail(s.ctx, s.study.UID, screening.UID)
	s.Require().NoError(err)
	s.Equal(models.ActionDelete, trail[0].ChangeType)
}

func (s *StudyServicesTestSuite) TestUnchangedEditKeepsPreviousVisitChain() {
	baseline := s.createVisit(s.baselineInput())
	doseInput := s.visitInput(s.treatment.UID, "Dose", domain.PreviousVisitName, 7, s.dayUID)
	dose := s.createVisit(doseInput)
	followUp := s.createVisit(s.visitInput(s.treatment.UID, "Follow-up", domain.PreviousVisitName, 7, s.dayUID))
	s.Equal(15, *followUp.StudyDay)

	edited, err := s.visits.Edit(s.ctx, s.study.UID, dose.UID, doseInput, "bob")
	s.Require().NoError(err)
	s.Equal(2, edited.VisitNumber)
	s.Equal(8, *edited.StudyDay)

	visits, err := s.visits.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(visits, 3)
	for i, want := range []struct {
		uid    string
		number int
		day    int
	}{
		{baseline.UID, 1, 1},
		{dose.UID, 2, 8},
		{followUp.UID, 3, 15},
	} {
		s.Equal(want.uid, visits[i].UID)
		s.Equal(want.number, visits[i].VisitNumber)
		s.Require().NotNil(visits[i].StudyDay)
		s.Equal(want.day, *visits[i].StudyDay)
	}

	trail, err := s.visits.AuditTrail(s.ctx, s.study.UID, followUp.UID)
	s.Require().NoError(err)
	s.Len(trail, 1)
}

func (s *StudyServicesTestSuite) TestCreateAfterUnscheduledVisit() {
	baseline := s.createVisit(s.baselineInput())
	unscheduled := s.createVisit(models.StudyVisitInput{
		StudyEpochUID: s.treatment.UID,
		VisitType:     "Unscheduled",
		VisitClass:    string(domain.VisitClassUnscheduled),
	})
	s.Equal(domain.UnscheduledVisitNumber, unscheduled.VisitNumber)

	dose := s.createVisit(s.visitInput(s.treatment.UID, "Dose", domain.PreviousVisitName, 7, s.dayUID))
	s.Equal(2, dose.VisitNumber)
	s.Require().NotNil(dose.StudyDay)
	s.Equal(8, *dose.StudyDay)

	stored, err := s.visits.Get(s.ctx, s.study.UID, dose.UID)
	s.Require().NoError(err)
	s.Equal(dose.VisitNumber, stored.VisitNumber)
	s.Equal(*dose.StudyDay, *stored.StudyDay)

	visits, err := s.visits.GetAll(s.ctx, s.study.UID)
	s.Require().NoError(err)
	s.Require().Len(visits, 3)
	s.Equal(baseline.UID, visits[0].UID)
	s.Equal(dose.UID, visits[1].UID)
	s.Equal(unscheduled.UID, visits[2].UID)
}

func (s *StudyServicesTestSuite) TestAnchorWithSubvisitsCannotLeaveGroup() {
	anchorInput := s.baselineInput()
	anchorInput.VisitSubclass = string(domain.VisitSubclassAnchorVisit)
	anchor := s.createVisit(anchorInput)

	subInput := s.visitInput(s.treatment.UID, "Day 3", "Baseline", 2, s.dayUID)
	subInput.VisitSubclass = string(domain.VisitSubclassAdditionalSubvisit)
	subInput.VisitSublabelReference = anchor.UID
	sub := s.createVisit(subInput)

	_, err := s.visits.Edit(s.ctx, s.study.UID, anchor.UID, s.baselineInput(), "bob")
	var businessErr models.ErrorBusinessLogic
	s.ErrorAs(err, &businessErr)

	stored, err := s.visits.Get(s.ctx, s.study.UID, sub.UID)
	s.Require().NoError(err)
	s.Equal(1, stored.VisitNumber)
	s.Require().NotNil(stored.SubvisitNumber)
	s.Equal(10, *stored.SubvisitNumber)

	anchorInput.Description = "First dose"
	edited, err := s.visits.Edit(s.ctx, s.study.UID, anchor.UID, anchorInput, "bob")
	s.Require().NoError(err)
	s.Equal(string(domain.VisitSubclassAnchorVisit), edited.VisitSubclass)
}

func TestStudyServicesTestSuite(t *testing.T) {
	suite.Run(t, new(StudyServicesTestSuite))
}
