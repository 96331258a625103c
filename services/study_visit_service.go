package services

import (
	"context"
	"encoding/json"
	"strings"

	"clinical-mdr-api/domain"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"

	"gorm.io/gorm"
)

// previewVisitUID stands in for the uid of a visit that is not stored yet.
const previewVisitUID = "StudyVisit_preview"

type StudyVisitService interface {
	GetAll(ctx context.Context, studyUID string) ([]models.StudyVisitOutput, error)
	Get(ctx context.Context, studyUID, uid string) (*models.StudyVisitOutput, error)
	Create(ctx context.Context, studyUID string, input models.StudyVisitInput, author string) (*models.StudyVisitOutput, error)
	Preview(ctx context.Context, studyUID string, input models.StudyVisitInput) (*models.StudyVisitOutput, error)
	Edit(ctx context.Context, studyUID, uid string, input models.StudyVisitInput, author string) (*models.StudyVisitOutput, error)
	Delete(ctx context.Context, studyUID, uid, author string) error
	AuditTrail(ctx context.Context, studyUID, uid string) ([]models.AuditTrailEntry, error)
	StudyAuditTrail(ctx context.Context, studyUID string) ([]models.AuditTrailEntry, error)
}

type studyVisitService struct {
	scope    studyScope
	epochs   repositories.StudyEpochRepository
	visits   repositories.StudyVisitRepository
	timeline *timelineBuilder
	log      *logger.Logger
}

func NewStudyVisitService(
	db *gorm.DB,
	studyRepo repositories.StudyRepository,
	epochRepo repositories.StudyEpochRepository,
	visitRepo repositories.StudyVisitRepository,
	unitRepo repositories.LibraryItemRepository[models.UnitDefinitionValue],
	locks *repositories.LockTable,
	m *metrics.Metrics,
	log *logger.Logger,
) StudyVisitService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.ServiceLogger(models.ObjectStudyVisit)
	return &studyVisitService{
		scope:    newStudyScope(db, studyRepo, locks),
		epochs:   epochRepo,
		visits:   visitRepo,
		timeline: &timelineBuilder{units: unitRepo, metrics: m, log: log},
		log:      log,
	}
}

func visitNotFound(studyUID, uid string) error {
	return models.NotFoundf("Study visit with uid (%s) does not exist in study (%s).", uid, studyUID)
}

func visitFromInput(studyUID string, in models.StudyVisitInput) models.StudyVisit {
	row := models.StudyVisit{
		StudyUID:               studyUID,
		StudyEpochUID:          in.StudyEpochUID,
		VisitType:              in.VisitType,
		VisitClass:             in.VisitClass,
		VisitSubclass:          in.VisitSubclass,
		VisitSublabelReference: in.VisitSublabelReference,
		VisitContactMode:       in.VisitContactMode,
		TimeReference:          in.TimeReference,
		TimeValue:              copyIntPtr(in.TimeValue),
		TimeUnitUID:            in.TimeUnitUID,
		IsGlobalAnchorVisit:    in.IsGlobalAnchorVisit,
		ShowVisit:              in.ShowVisit,
		Description:            in.Description,
		StartRule:              in.StartRule,
		EndRule:                in.EndRule,
		MinVisitWindowValue:    in.MinVisitWindowValue,
		MaxVisitWindowValue:    in.MaxVisitWindowValue,
	}
	if row.VisitSubclass == "" {
		row.VisitSubclass = string(domain.VisitSubclassSingle)
	}
	return row
}

func visitPossibleActions(study *models.Study) []string {
	if study.Status != models.StudyStatusDraft {
		return []string{}
	}
	return []string{"edit", "delete"}
}

func toVisitOutput(row models.StudyVisit, v *domain.StudyVisit, epochName string, actions []string) models.StudyVisitOutput {
	applyDerived(&row, v)
	return models.StudyVisitOutput{
		StudyVisit:         row,
		EpochName:          epochName,
		VisitName:          v.VisitName(),
		VisitShortName:     v.VisitShortName(),
		StudyDurationDays:  v.StudyDurationDays(),
		StudyDurationWeeks: v.StudyDurationWeeks(),
		PossibleActions:    actions,
	}
}

// outputs lists the current visits in timeline order.
func (s *studyVisitService) outputs(ctx context.Context, tx *gorm.DB, study *models.Study) ([]models.StudyVisitOutput, error) {
	epochs, visits := s.epochs, s.visits
	if tx != nil {
		epochs, visits = epochs.WithTx(tx), visits.WithTx(tx)
	}
	epochRows, err := epochs.FindAll(ctx, study.UID)
	if err != nil {
		return nil, err
	}
	rows, err := visits.FindAll(ctx, study.UID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.timeline.build(ctx, tx, rows)
	if err != nil {
		return nil, err
	}

	epochNames := make(map[string]string, len(epochRows))
	for _, e := range epochRows {
		epochNames[e.UID] = e.Epoch
	}
	byUID := make(map[string]models.StudyVisit, len(rows))
	for _, row := range rows {
		byUID[row.UID] = row
	}
	actions := visitPossibleActions(study)
	out := make([]models.StudyVisitOutput, 0, len(rows))
	for _, v := range timeline.OrderedStudyVisits() {
		out = append(out, toVisitOutput(byUID[v.UID], v, epochNames[v.EpochUID], actions))
	}
	return out, nil
}

func (s *studyVisitService) output(ctx context.Context, tx *gorm.DB, study *models.Study, uid string) (*models.StudyVisitOutput, error) {
	all, err := s.outputs(ctx, tx, study)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].UID == uid {
			return &all[i], nil
		}
	}
	return nil, visitNotFound(study.UID, uid)
}

func (s *studyVisitService) GetAll(ctx context.Context, studyUID string) ([]models.StudyVisitOutput, error) {
	study, err := s.scope.read(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	return s.outputs(ctx, nil, study)
}

func (s *studyVisitService) Get(ctx context.Context, studyUID, uid string) (*models.StudyVisitOutput, error) {
	study, err := s.scope.read(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	return s.output(ctx, nil, study, uid)
}

func (s *studyVisitService) Create(ctx context.Context, studyUID string, input models.StudyVisitInput, author string) (*models.StudyVisitOutput, error) {
	var out *models.StudyVisitOutput
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, study *models.Study) error {
		visits := s.visits.WithTx(tx)
		epochs, current, err := s.load(ctx, tx, studyUID)
		if err != nil {
			return err
		}
		candidate := visitFromInput(studyUID, input)
		candidate.UID = previewVisitUID
		timeline, err := s.validate(ctx, tx, candidate, current, epochs, true)
		if err != nil {
			return err
		}

		row := candidate
		applyDerived(&row, timeline.Find(previewVisitUID))
		row.UID = ""
		if err := visits.Create(ctx, &row, author); err != nil {
			return err
		}
		if err := s.settle(ctx, tx, studyUID, placeCandidate(current, row), author); err != nil {
			return err
		}
		out, err = s.output(ctx, tx, study, row.UID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("study_uid", studyUID).Str("uid", out.UID).Str("visit", out.VisitName).Msg("visit created")
	return out, nil
}

// Preview computes the derived fields a visit would get without storing it.
func (s *studyVisitService) Preview(ctx context.Context, studyUID string, input models.StudyVisitInput) (*models.StudyVisitOutput, error) {
	study, err := s.scope.read(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	epochs, current, err := s.load(ctx, nil, studyUID)
	if err != nil {
		return nil, err
	}
	candidate := visitFromInput(studyUID, input)
	candidate.UID = previewVisitUID
	timeline, err := s.validate(ctx, nil, candidate, current, epochs, false)
	if err != nil {
		return nil, err
	}

	epochName := ""
	for _, e := range epochs {
		if e.UID == candidate.StudyEpochUID {
			epochName = e.Epoch
		}
	}
	out := toVisitOutput(candidate, timeline.Find(previewVisitUID), epochName, visitPossibleActions(study))
	out.UID = ""
	return &out, nil
}

func (s *studyVisitService) Edit(ctx context.Context, studyUID, uid string, input models.StudyVisitInput, author string) (*models.StudyVisitOutput, error) {
	var out *models.StudyVisitOutput
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, study *models.Study) error {
		visits := s.visits.WithTx(tx)
		epochs, current, err := s.load(ctx, tx, studyUID)
		if err != nil {
			return err
		}
		before, others := splitVisit(current, uid)
		if before == nil {
			return visitNotFound(studyUID, uid)
		}

		candidate := visitFromInput(studyUID, input)
		candidate.UID = uid
		if err := requireReferencesHold(candidate, others); err != nil {
			return err
		}
		timeline, err := s.validate(ctx, tx, candidate, current, epochs, true)
		if err != nil {
			return err
		}
		after := candidate
		applyDerived(&after, timeline.Find(uid))
		if err := visits.Update(ctx, before, &after, author); err != nil {
			return err
		}
		if err := s.settle(ctx, tx, studyUID, placeCandidate(current, after), author); err != nil {
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

func (s *studyVisitService) Delete(ctx context.Context, studyUID, uid, author string) error {
	err := s.scope.write(ctx, studyUID, func(tx *gorm.DB, _ *models.Study) error {
		visits := s.visits.WithTx(tx)
		current, err := visits.FindAll(ctx, studyUID)
		if err != nil {
			return err
		}
		target, remaining := splitVisit(current, uid)
		if target == nil {
			return visitNotFound(studyUID, uid)
		}
		if err := requireUnreferenced(target, remaining); err != nil {
			return err
		}
		if err := visits.Delete(ctx, target, author); err != nil {
			return err
		}
		return s.settle(ctx, tx, studyUID, remaining, author)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("study_uid", studyUID).Str("uid", uid).Msg("visit deleted")
	return nil
}

func (s *studyVisitService) AuditTrail(ctx context.Context, studyUID, uid string) ([]models.AuditTrailEntry, error) {
	if _, err := s.scope.read(ctx, studyUID); err != nil {
		return nil, err
	}
	history, err := s.visits.History(ctx, studyUID, uid)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, visitNotFound(studyUID, uid)
	}
	return auditEntries(history)
}

func (s *studyVisitService) StudyAuditTrail(ctx context.Context, studyUID string) ([]models.AuditTrailEntry, error) {
	if _, err := s.scope.read(ctx, studyUID); err != nil {
		return nil, err
	}
	history, err := s.visits.History(ctx, studyUID, "")
	if err != nil {
		return nil, err
	}
	return auditEntries(history)
}

func (s *studyVisitService) load(ctx context.Context, tx *gorm.DB, studyUID string) ([]models.StudyEpoch, []models.StudyVisit, error) {
	epochs, visits := s.epochs, s.visits
	if tx != nil {
		epochs, visits = epochs.WithTx(tx), visits.WithTx(tx)
	}
	epochRows, err := epochs.FindAll(ctx, studyUID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := visits.FindAll(ctx, studyUID)
	if err != nil {
		return nil, nil, err
	}
	return epochRows, rows, nil
}

// synchronize stores the timeline fields of every row they changed for and
// reports whether any row was written.
func (s *studyVisitService) synchronize(ctx context.Context, visits repositories.StudyVisitRepository, rows []models.StudyVisit, timeline *domain.Timeline, author string) (bool, error) {
	written := false
	for i := range rows {
		v := timeline.Find(rows[i].UID)
		if v == nil {
			continue
		}
		before := rows[i]
		after := before
		if !applyDerived(&after, v) {
			continue
		}
		if err := visits.Update(ctx, &before, &after, author); err != nil {
			return written, err
		}
		written = true
		s.log.Debug().Str("uid", before.UID).Int("visit_number", after.VisitNumber).Msg("visit renumbered")
	}
	return written, nil
}

// maxSettlePasses bounds settle when stored order and derived order keep
// disagreeing through Previous Visit chains.
const maxSettlePasses = 4

// settle rebuilds the timeline from the stored visits and writes back
// changed derived fields until a rebuild changes nothing. The first pass
// reads the visits in the order the write placed them, later passes in
// their stored order.
func (s *studyVisitService) settle(ctx context.Context, tx *gorm.DB, studyUID string, placed []models.StudyVisit, author string) error {
	visits := s.visits.WithTx(tx)
	for pass := 0; pass < maxSettlePasses; pass++ {
		rows := placed
		if pass > 0 {
			var err error
			if rows, err = visits.FindAll(ctx, studyUID); err != nil {
				return err
			}
		}
		timeline, err := s.timeline.build(ctx, tx, rows)
		if err != nil {
			return err
		}
		written, err := s.synchronize(ctx, visits, rows, timeline, author)
		if err != nil {
			return err
		}
		if !written && pass > 0 {
			return nil
		}
	}
	s.log.Warn().Str("study_uid", studyUID).Msg("visit timeline did not settle")
	return nil
}

// placeCandidate returns the visits in the order a rebuild after storing
// candidate reads them: an edited visit keeps its position and a new one
// goes after the last scheduled visit.
func placeCandidate(current []models.StudyVisit, candidate models.StudyVisit) []models.StudyVisit {
	all := make([]models.StudyVisit, 0, len(current)+1)
	for i, v := range current {
		if v.UID == candidate.UID {
			all = append(all, current[:i]...)
			all = append(all, candidate)
			return append(all, current[i+1:]...)
		}
	}
	placed := false
	for _, v := range current {
		if !placed && isScheduled(candidate.VisitClass) && !isScheduled(v.VisitClass) {
			all = append(all, candidate)
			placed = true
		}
		all = append(all, v)
	}
	if !placed {
		all = append(all, candidate)
	}
	return all
}

func splitVisit(rows []models.StudyVisit, uid string) (*models.StudyVisit, []models.StudyVisit) {
	var target *models.StudyVisit
	rest := make([]models.StudyVisit, 0, len(rows))
	for i := range rows {
		if rows[i].UID == uid {
			row := rows[i]
			target = &row
			continue
		}
		rest = append(rest, rows[i])
	}
	return target, rest
}

func requireUnreferenced(target *models.StudyVisit, remaining []models.StudyVisit) error {
	typeKept := false
	for _, v := range remaining {
		if v.VisitType == target.VisitType {
			typeKept = true
		}
	}
	for _, v := range remaining {
		if v.VisitSublabelReference == target.UID {
			return models.BusinessLogicf("Visit %s is referenced by other visits and cannot be deleted.", target.UID)
		}
		if !typeKept && v.TimeReference == target.VisitType {
			return models.BusinessLogicf("Visit type '%s' is used as time reference by other visits.", target.VisitType)
		}
	}
	return nil
}

// requireReferencesHold rejects an edit that breaks the group or special
// visit links other visits hold to candidate.
func requireReferencesHold(candidate models.StudyVisit, others []models.StudyVisit) error {
	for _, v := range others {
		if v.VisitSublabelReference != candidate.UID {
			continue
		}
		switch {
		case v.VisitSubclass == string(domain.VisitSubclassAdditionalSubvisit) &&
			candidate.VisitSubclass != string(domain.VisitSubclassAnchorVisit):
			return models.BusinessLogicf("Visit %s is the anchor of a visit group with subvisits and must stay an anchor visit.", candidate.UID)
		case v.VisitClass == string(domain.VisitClassSpecial) &&
			candidate.VisitClass != string(domain.VisitClassSingle):
			return models.BusinessLogicf("Visit %s is referenced by special visit %s and must stay a scheduled visit.", candidate.UID, v.UID)
		}
	}
	return nil
}

func isScheduled(class string) bool {
	return class == string(domain.VisitClassSingle) || class == string(domain.VisitClassSpecial)
}

func isGlobalAnchor(v models.StudyVisit) bool {
	if v.IsGlobalAnchorVisit {
		return true
	}
	return strings.EqualFold(v.TimeReference, domain.GlobalAnchorVisitName) && v.TimeValue != nil && *v.TimeValue == 0
}

// validate checks candidate against the other stored visits of the study
// and returns the timeline of all of them. current may hold the stored
// state of candidate itself.
func (s *studyVisitService) validate(ctx context.Context, tx *gorm.DB, candidate models.StudyVisit, current []models.StudyVisit, epochs []models.StudyEpoch, checkEpochs bool) (*domain.Timeline, error) {
	epochOrder := make(map[string]int, len(epochs))
	for _, e := range epochs {
		epochOrder[e.UID] = e.EpochOrder
	}
	if _, ok := epochOrder[candidate.StudyEpochUID]; !ok {
		return nil, models.Validationf("Study epoch with uid (%s) does not exist in study (%s).", candidate.StudyEpochUID, candidate.StudyUID)
	}
	_, others := splitVisit(current, candidate.UID)
	if err := validateShape(candidate, others); err != nil {
		return nil, err
	}

	all := placeCandidate(current, candidate)
	if err := validateReferences(all); err != nil {
		return nil, err
	}

	timeline, err := s.timeline.build(ctx, tx, all)
	if err != nil {
		return nil, err
	}
	visit := timeline.Find(candidate.UID)
	duration := visit.AbsoluteDuration()
	if duration == nil || !isScheduled(candidate.VisitClass) {
		return timeline, nil
	}
	for _, other := range timeline.OrderedStudyVisits() {
		if other == visit {
			continue
		}
		otherDuration := other.AbsoluteDuration()
		if otherDuration == nil {
			continue
		}
		if *otherDuration == *duration && !mayShareTiming(visit, other) {
			return nil, models.Validationf("A visit with the same timing already exists (%s).", other.VisitType)
		}
		if !checkEpochs {
			continue
		}
		switch otherOrder, order := epochOrder[other.EpochUID], epochOrder[candidate.StudyEpochUID]; {
		case otherOrder < order && *otherDuration > *duration:
			return nil, models.Validationf("The visit cannot be scheduled before visit %s of an earlier epoch.", other.VisitType)
		case otherOrder > order && *otherDuration < *duration:
			return nil, models.Validationf("The visit cannot be scheduled after visit %s of a later epoch.", other.VisitType)
		}
	}
	return timeline, nil
}

func mayShareTiming(a, b *domain.StudyVisit) bool {
	if a.VisitClass == domain.VisitClassSpecial || b.VisitClass == domain.VisitClassSpecial {
		return true
	}
	anchorA, anchorB := a.SubvisitAnchor(), b.SubvisitAnchor()
	return anchorA == b || anchorB == a || (anchorA != nil && anchorA == anchorB)
}

// validateShape checks the fields of candidate that do not depend on the
// timeline.
func validateShape(candidate models.StudyVisit, others []models.StudyVisit) error {
	class, err := domain.ParseVisitClass(candidate.VisitClass)
	if err != nil {
		return translateError(err)
	}
	subclass, err := domain.ParseVisitSubclass(candidate.VisitSubclass)
	if err != nil {
		return translateError(err)
	}
	byUID := make(map[string]models.StudyVisit, len(others))
	for _, v := range others {
		byUID[v.UID] = v
	}

	if !isScheduled(candidate.VisitClass) {
		if candidate.TimeValue != nil || candidate.TimeReference != "" || candidate.TimeUnitUID != "" {
			return models.Validationf("Non-visits and unscheduled visits cannot have a timing.")
		}
		return nil
	}
	if !domain.ValidContactMode(candidate.VisitContactMode) {
		return models.Validationf("Unknown visit contact mode '%s'.", candidate.VisitContactMode)
	}

	switch class {
	case domain.VisitClassSingle:
		if candidate.TimeValue == nil || candidate.TimeUnitUID == "" || candidate.TimeReference == "" {
			return models.Validationf("time_reference_name, time_value and time_unit_uid are required for a scheduled visit.")
		}
	case domain.VisitClassSpecial:
		ref, ok := byUID[candidate.VisitSublabelReference]
		if !ok || ref.VisitClass != string(domain.VisitClassSingle) {
			return models.Validationf("A special visit must reference a scheduled visit in visit_sublabel_reference.")
		}
	}

	if subclass == domain.VisitSubclassAdditionalSubvisit {
		ref, ok := byUID[candidate.VisitSublabelReference]
		if !ok || ref.VisitSubclass != string(domain.VisitSubclassAnchorVisit) {
			return models.Validationf("An additional subvisit must reference the anchor visit of a visit group in visit_sublabel_reference.")
		}
	}

	if candidate.IsGlobalAnchorVisit && (candidate.TimeValue == nil || *candidate.TimeValue != 0) {
		return models.Validationf("The global anchor visit must have time value 0.")
	}

	timed := false
	for _, v := range others {
		if v.TimeValue != nil {
			timed = true
		}
	}
	if !timed && candidate.TimeValue != nil && *candidate.TimeValue != 0 &&
		!strings.EqualFold(candidate.TimeReference, domain.GlobalAnchorVisitName) {
		return models.Validationf("The first visit must have time value 0 or reference the global anchor visit.")
	}
	return nil
}

// validateReferences checks the time references across all visits of a
// study.
func validateReferences(all []models.StudyVisit) error {
	types := map[string]int{}
	anchors := 0
	for _, v := range all {
		types[v.VisitType]++
		if isGlobalAnchor(v) {
			anchors++
		}
	}
	if anchors > 1 {
		return models.Validationf("There can be only one global anchor visit in the study.")
	}

	for _, v := range all {
		reference := v.TimeReference
		if reference == "" ||
			reference == domain.PreviousVisitName ||
			strings.EqualFold(reference, domain.GlobalAnchorVisitName) {
			continue
		}
		switch types[reference] {
		case 0:
			return models.Validationf("Time reference '%s' is not the visit type of any visit in the study.", reference)
		case 1:
			if v.VisitType == reference {
				return models.Validationf("Visit type '%s' cannot be used as its own time reference.", reference)
			}
		default:
			return models.Validationf("Visit type '%s' is used as time reference and can belong to one visit only.", reference)
		}
	}
	return nil
}

// auditEntries renders a newest-first history, diffing each state against
// the previous state of the same visit.
func auditEntries[T any](history []repositories.AuditRow[T]) ([]models.AuditTrailEntry, error) {
	entries := make([]models.AuditTrailEntry, 0, len(history))
	byObject := map[string][]int{}
	snapshots := make([]domain.Snapshot, 0, len(history))
	for i, h := range history {
		raw, err := json.Marshal(h.Row)
		if err != nil {
			return nil, err
		}
		snapshot := domain.Snapshot{}
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return nil, err
		}
		delete(snapshot, "start_date")
		delete(snapshot, "end_date")
		delete(snapshot, "author_username")
		snapshots = append(snapshots, snapshot)
		byObject[h.Action.ObjectUID] = append(byObject[h.Action.ObjectUID], i)
		entries = append(entries, models.AuditTrailEntry{
			ObjectUID:  h.Action.ObjectUID,
			ChangeType: h.Action.ActionType,
			Author:     h.Action.Author,
			Date:       h.Action.Date,
			Value:      snapshot,
		})
	}
	for _, indexes := range byObject {
		states := make([]domain.Snapshot, 0, len(indexes))
		for _, i := range indexes {
			states = append(states, snapshots[i])
		}
		for j, changes := range domain.CalculateDiffs(states) {
			entries[indexes[j]].Changes = changes
		}
	}
	return entries, nil
}
