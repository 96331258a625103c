package services

import (
	"context"
	"time"

	"clinical-mdr-api/domain"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"

	"gorm.io/gorm"
)

// timelineBuilder turns stored visit rows into a generated timeline. Time
// units are resolved from the unit definition library.
type timelineBuilder struct {
	units   repositories.LibraryItemRepository[models.UnitDefinitionValue]
	metrics *metrics.Metrics
	log     *logger.Logger
}

// unitResolver memoises unit lookups for one timeline build. A non-nil tx
// keeps reads on the caller's transaction.
type unitResolver struct {
	ctx      context.Context
	units    repositories.LibraryItemRepository[models.UnitDefinitionValue]
	resolved map[string]domain.TimeUnit
}

func (b *timelineBuilder) resolver(ctx context.Context, tx *gorm.DB) *unitResolver {
	units := b.units
	if tx != nil {
		units = units.WithTx(tx)
	}
	return &unitResolver{ctx: ctx, units: units, resolved: map[string]domain.TimeUnit{}}
}

func (r *unitResolver) resolve(uid string) (domain.TimeUnit, error) {
	if unit, ok := r.resolved[uid]; ok {
		return unit, nil
	}
	item, err := r.units.FindByUID(r.ctx, uid, repositories.FindOptions{})
	if err != nil {
		return domain.TimeUnit{}, err
	}
	if item == nil {
		return domain.TimeUnit{}, models.Validationf("Time unit with uid (%s) does not exist.", uid)
	}
	if item.Value.ConversionFactorToMaster == nil {
		return domain.TimeUnit{}, models.Validationf("Time unit %s has no conversion factor to master.", item.Value.Name)
	}
	unit := domain.TimeUnit{
		UID:                      uid,
		Name:                     item.Value.Name,
		ConversionFactorToMaster: *item.Value.ConversionFactorToMaster,
	}
	r.resolved[uid] = unit
	return unit, nil
}

func (r *unitResolver) visit(row models.StudyVisit) (domain.StudyVisit, error) {
	class, err := domain.ParseVisitClass(row.VisitClass)
	if err != nil {
		return domain.StudyVisit{}, translateError(err)
	}
	subclass, err := domain.ParseVisitSubclass(row.VisitSubclass)
	if err != nil {
		return domain.StudyVisit{}, translateError(err)
	}
	visit := domain.StudyVisit{
		UID:                    row.UID,
		StudyUID:               row.StudyUID,
		EpochUID:               row.StudyEpochUID,
		VisitType:              row.VisitType,
		VisitClass:             class,
		VisitSubclass:          subclass,
		VisitSublabelReference: row.VisitSublabelReference,
		ContactMode:            row.VisitContactMode,
		IsGlobalAnchorVisit:    row.IsGlobalAnchorVisit,
		ShowVisit:              row.ShowVisit,
		Description:            row.Description,
		StartRule:              row.StartRule,
		EndRule:                row.EndRule,
		MinVisitWindowValue:    row.MinVisitWindowValue,
		MaxVisitWindowValue:    row.MaxVisitWindowValue,
	}
	if row.TimeValue != nil && row.TimeUnitUID != "" {
		unit, err := r.resolve(row.TimeUnitUID)
		if err != nil {
			return domain.StudyVisit{}, err
		}
		visit.Timepoint = &domain.Timepoint{
			TimeReference: row.TimeReference,
			VisitValue:    *row.TimeValue,
			Unit:          unit,
		}
	}
	return visit, nil
}

func (b *timelineBuilder) build(ctx context.Context, tx *gorm.DB, rows []models.StudyVisit) (*domain.Timeline, error) {
	resolver := b.resolver(ctx, tx)
	visits := make([]domain.StudyVisit, 0, len(rows))
	for _, row := range rows {
		visit, err := resolver.visit(row)
		if err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}

	start := time.Now()
	timeline := domain.NewTimeline(visits)
	elapsed := time.Since(start)
	b.metrics.ObserveTimeline(len(visits), elapsed)
	b.log.Debug().Int("visits", len(visits)).Dur("elapsed", elapsed).Msg("timeline generated")
	return timeline, nil
}

func epochsToDomain(rows []models.StudyEpoch) []domain.StudyEpoch {
	epochs := make([]domain.StudyEpoch, 0, len(rows))
	for _, row := range rows {
		epochs = append(epochs, domain.StudyEpoch{
			UID:          row.UID,
			StudyUID:     row.StudyUID,
			Epoch:        row.Epoch,
			EpochSubtype: row.EpochSubtype,
			EpochType:    row.EpochType,
			Order:        row.EpochOrder,
			Description:  row.Description,
			StartRule:    row.StartRule,
			EndRule:      row.EndRule,
			ColorHash:    row.ColorHash,
		})
	}
	return epochs
}

// applyDerived copies the timeline fields of v onto row and reports whether
// any of them changed.
func applyDerived(row *models.StudyVisit, v *domain.StudyVisit) bool {
	unique := v.UniqueVisitNumber()
	changed := row.VisitNumber != v.VisitNumber ||
		row.VisitOrder != v.VisitOrder ||
		row.UniqueVisitNumber != unique ||
		!equalIntPtr(row.SubvisitNumber, v.SubvisitNumber) ||
		!equalIntPtr(row.StudyDay, v.StudyDay) ||
		!equalIntPtr(row.StudyWeek, v.StudyWeek)

	row.VisitNumber = v.VisitNumber
	row.VisitOrder = v.VisitOrder
	row.UniqueVisitNumber = unique
	row.SubvisitNumber = copyIntPtr(v.SubvisitNumber)
	row.StudyDay = copyIntPtr(v.StudyDay)
	row.StudyWeek = copyIntPtr(v.StudyWeek)
	return changed
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}
