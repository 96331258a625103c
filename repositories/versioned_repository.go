package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinical-mdr-api/cache"
	"clinical-mdr-api/domain"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FindOptions selects which version of an item to read. With no selector
// the latest (open) version is returned.
type FindOptions struct {
	Version   string
	Status    domain.LibraryItemStatus
	AtDate    *time.Time
	ForUpdate bool
}

func (o FindOptions) variant() string {
	at := ""
	if o.AtDate != nil {
		at = o.AtDate.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("v=%s;s=%s;at=%s", o.Version, o.Status, at)
}

type ListFilter struct {
	LibraryName string
	Status      domain.LibraryItemStatus
	Offset      int
	Limit       int
}

type LibraryItemRepository[V domain.Value[V]] interface {
	Kind() models.EntityKind
	FindByUID(ctx context.Context, uid string, opts FindOptions) (*domain.VersionedItem[V], error)
	Save(ctx context.Context, item *domain.VersionedItem[V]) (*domain.VersionedItem[V], error)
	Update(ctx context.Context, uid string, fn func(item *domain.VersionedItem[V]) error) (*domain.VersionedItem[V], error)
	GetAllVersions(ctx context.Context, uid string) ([]*domain.VersionedItem[V], error)
	List(ctx context.Context, filter ListFilter) ([]*domain.VersionedItem[V], int64, error)
	WithTx(tx *gorm.DB) LibraryItemRepository[V]
}

type libraryItemRepository[V domain.Value[V]] struct {
	db         *gorm.DB
	capability ItemCapability[V]
	cache      *cache.ItemCache
	locks      *LockTable
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewLibraryItemRepository[V domain.Value[V]](db *gorm.DB, capability ItemCapability[V], itemCache *cache.ItemCache, locks *LockTable, m *metrics.Metrics, log *logger.Logger) LibraryItemRepository[V] {
	if locks == nil {
		locks = NewLockTable()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &libraryItemRepository[V]{
		db:         db,
		capability: capability,
		cache:      itemCache,
		locks:      locks,
		metrics:    m,
		log:        log.DbLogger(string(capability.Kind())),
	}
}

// WithTx binds reads to tx. Writes through the returned repository join tx
// instead of opening their own transaction.
func (r *libraryItemRepository[V]) WithTx(tx *gorm.DB) LibraryItemRepository[V] {
	bound := *r
	bound.db = tx
	return &bound
}

func (r *libraryItemRepository[V]) Kind() models.EntityKind {
	return r.capability.Kind()
}

func (r *libraryItemRepository[V]) FindByUID(ctx context.Context, uid string, opts FindOptions) (*domain.VersionedItem[V], error) {
	if !opts.ForUpdate {
		if cached, ok := r.cache.Get(uid, opts.variant()); ok {
			if item, ok := cached.(domain.VersionedItem[V]); ok {
				return &item, nil
			}
		}
	}
	item, err := r.find(r.db.WithContext(ctx), uid, opts)
	if err != nil || item == nil {
		return item, err
	}
	if !opts.ForUpdate {
		r.cache.Put(uid, opts.variant(), *item)
	}
	return item, nil
}

// Save persists a new item or the transition applied to a loaded one and
// returns the item as stored.
func (r *libraryItemRepository[V]) Save(ctx context.Context, item *domain.VersionedItem[V]) (*domain.VersionedItem[V], error) {
	var saved *domain.VersionedItem[V]
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.save(tx, item); err != nil {
			return err
		}
		if item.IsDeleted() {
			saved = item
			return nil
		}
		var err error
		saved, err = r.find(tx, item.UID, FindOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}
	r.cache.Invalidate(item.UID)
	return saved, nil
}

// Update loads uid for update, applies fn and saves the result, all in one
// transaction and under the per-item lock.
func (r *libraryItemRepository[V]) Update(ctx context.Context, uid string, fn func(item *domain.VersionedItem[V]) error) (*domain.VersionedItem[V], error) {
	unlock := r.locks.Lock(string(r.Kind()) + ":" + uid)
	defer unlock()

	var saved *domain.VersionedItem[V]
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := r.find(tx, uid, FindOptions{ForUpdate: true})
		if err != nil {
			return err
		}
		if item == nil {
			return models.NotFoundf("%s with uid (%s) does not exist.", r.Kind(), uid)
		}
		if err := fn(item); err != nil {
			return err
		}
		if err := r.save(tx, item); err != nil {
			return err
		}
		if item.IsDeleted() {
			saved = item
			return nil
		}
		saved, err = r.find(tx, uid, FindOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}
	r.cache.Invalidate(uid)
	return saved, nil
}

func (r *libraryItemRepository[V]) GetAllVersions(ctx context.Context, uid string) ([]*domain.VersionedItem[V], error) {
	db := r.db.WithContext(ctx)
	root, err := r.findRoot(db, uid, false)
	if err != nil || root == nil {
		return nil, err
	}
	var rels []models.VersionRelationship
	err = db.Where("root_id = ?", root.ID).
		Order("start_date desc").Order("id desc").
		Find(&rels).Error
	if err != nil {
		return nil, err
	}
	library, err := r.library(db, root.LibraryName)
	if err != nil {
		return nil, err
	}

	values := map[uint]V{}
	items := make([]*domain.VersionedItem[V], 0, len(rels))
	for _, rel := range rels {
		value, ok := values[rel.ValueID]
		if !ok {
			if value, err = r.loadValue(db, rel.ValueID); err != nil {
				return nil, err
			}
			values[rel.ValueID] = value
		}
		items = append(items, r.hydrate(*root, rel, library, value, false))
	}
	return items, nil
}

func (r *libraryItemRepository[V]) List(ctx context.Context, filter ListFilter) ([]*domain.VersionedItem[V], int64, error) {
	db := r.db.WithContext(ctx)
	query := func() *gorm.DB {
		q := db.Model(&models.VersionRoot{}).
			Joins("JOIN version_relationships vr ON vr.root_id = version_roots.id AND vr.end_date IS NULL").
			Where("version_roots.kind = ? AND version_roots.is_deleted = ?", r.Kind(), false)
		if filter.LibraryName != "" {
			q = q.Where("version_roots.library_name = ?", filter.LibraryName)
		}
		if filter.Status != "" {
			q = q.Where("vr.status = ?", filter.Status)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var uids []string
	q := query().Order("version_roots.uid")
	if filter.Limit > 0 {
		q = q.Offset(filter.Offset).Limit(filter.Limit)
	}
	if err := q.Pluck("version_roots.uid", &uids).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*domain.VersionedItem[V], 0, len(uids))
	for _, uid := range uids {
		item, err := r.find(db, uid, FindOptions{})
		if err != nil {
			return nil, 0, err
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, total, nil
}

func (r *libraryItemRepository[V]) findRoot(db *gorm.DB, uid string, forUpdate bool) (*models.VersionRoot, error) {
	var root models.VersionRoot
	err := lockingClause(db, forUpdate).
		Where("uid = ? AND kind = ?", uid, r.Kind()).
		First(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if root.IsDeleted {
		return nil, nil
	}
	return &root, nil
}

func (r *libraryItemRepository[V]) find(db *gorm.DB, uid string, opts FindOptions) (*domain.VersionedItem[V], error) {
	root, err := r.findRoot(db, uid, opts.ForUpdate)
	if err != nil || root == nil {
		return nil, err
	}

	q := db.Where("root_id = ?", root.ID)
	switch {
	case opts.Version != "":
		major, minor, err := domain.ParseVersion(opts.Version)
		if err != nil {
			return nil, err
		}
		q = q.Where("major_version = ? AND minor_version = ?", major, minor)
		if opts.Status != "" {
			q = q.Where("status = ?", opts.Status)
		}
	case opts.Status != "":
		q = q.Where("status = ?", opts.Status)
	case opts.AtDate != nil:
		q = q.Where("start_date <= ? AND (end_date IS NULL OR end_date > ?)", *opts.AtDate, *opts.AtDate)
	default:
		q = q.Where("end_date IS NULL")
	}

	var rel models.VersionRelationship
	err = q.Order("start_date desc").Order("id desc").First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	value, err := r.loadValue(db, rel.ValueID)
	if err != nil {
		return nil, err
	}
	library, err := r.library(db, root.LibraryName)
	if err != nil {
		return nil, err
	}
	return r.hydrate(*root, rel, library, value, opts.ForUpdate), nil
}

func (r *libraryItemRepository[V]) hydrate(root models.VersionRoot, rel models.VersionRelationship, library domain.LibraryVO, value V, forUpdate bool) *domain.VersionedItem[V] {
	meta := domain.ItemMetadata{
		Status:            domain.LibraryItemStatus(rel.Status),
		MajorVersion:      rel.MajorVersion,
		MinorVersion:      rel.MinorVersion,
		StartDate:         rel.StartDate,
		EndDate:           rel.EndDate,
		Author:            rel.Author,
		ChangeDescription: rel.ChangeDescription,
	}
	return domain.LoadItem(root.UID, library, value, meta, &domain.ClosureData{
		RootID:         root.ID,
		ValueID:        rel.ValueID,
		RelationshipID: rel.ID,
		LockVersion:    root.LockVersion,
		ForUpdate:      forUpdate,
		Metadata:       meta,
	})
}

func (r *libraryItemRepository[V]) library(db *gorm.DB, name string) (domain.LibraryVO, error) {
	library, err := findLibrary(db, name)
	if err != nil {
		return domain.LibraryVO{}, err
	}
	if library == nil {
		return domain.LibraryVO{Name: name}, nil
	}
	return domain.LibraryVO{Name: library.Name, IsEditable: library.IsEditable}, nil
}

func (r *libraryItemRepository[V]) loadValue(db *gorm.DB, valueID uint) (V, error) {
	var value V
	var row models.VersionValue
	if err := db.First(&row, valueID).Error; err != nil {
		return value, err
	}
	return r.decodeValue(db, row)
}

func (r *libraryItemRepository[V]) decodeValue(db *gorm.DB, row models.VersionValue) (V, error) {
	var content V
	if err := json.Unmarshal(row.Content, &content); err != nil {
		return content, fmt.Errorf("decode value %d: %w", row.ID, err)
	}
	var rels []models.ItemRelation
	if err := db.Where("value_id = ?", row.ID).Order("position").Find(&rels).Error; err != nil {
		return content, err
	}
	refs := make([]RelationRef, 0, len(rels))
	for _, rel := range rels {
		refs = append(refs, RelationRef{Kind: rel.Kind, TargetUID: rel.TargetUID, Position: rel.Position})
	}
	return r.capability.Build(content, refs), nil
}

func (r *libraryItemRepository[V]) save(tx *gorm.DB, item *domain.VersionedItem[V]) error {
	closure := item.Closure()
	if closure == nil {
		return r.create(tx, item)
	}
	if item.IsDeleted() {
		return r.softDelete(tx, item, closure)
	}

	valueChanged := !item.Value.Equal(item.LoadedValue())
	if !valueChanged && !item.MetadataChanged() {
		return nil
	}
	if err := r.compareAndSwap(tx, item.UID, closure); err != nil {
		return err
	}

	valueID := closure.ValueID
	if valueChanged {
		if err := r.validateRelations(tx, item.Value); err != nil {
			return err
		}
		id, err := r.getOrCreateValue(tx, closure.RootID, item.Value)
		if err != nil {
			return err
		}
		valueID = id
	}

	if err := r.closeOpenRelationship(tx, closure.RootID, item.Metadata.StartDate); err != nil {
		return err
	}
	rel := relationshipRow(closure.RootID, valueID, item.Metadata)
	if err := tx.Create(&rel).Error; err != nil {
		return err
	}
	r.log.Debug().Str("uid", item.UID).Str("version", item.Metadata.Version()).Msg("relationship created")
	return nil
}

func (r *libraryItemRepository[V]) create(tx *gorm.DB, item *domain.VersionedItem[V]) error {
	if err := r.validateRelations(tx, item.Value); err != nil {
		return err
	}
	uid := item.UID
	if uid == "" {
		var err error
		if uid, err = NextUID(tx, string(r.Kind())); err != nil {
			return err
		}
	}
	root := models.VersionRoot{UID: uid, Kind: r.Kind(), LibraryName: item.Library.Name}
	if err := tx.Create(&root).Error; err != nil {
		return err
	}
	valueID, err := r.getOrCreateValue(tx, root.ID, item.Value)
	if err != nil {
		return err
	}
	rel := relationshipRow(root.ID, valueID, item.Metadata)
	if err := tx.Create(&rel).Error; err != nil {
		return err
	}
	item.UID = uid
	return nil
}

func (r *libraryItemRepository[V]) softDelete(tx *gorm.DB, item *domain.VersionedItem[V], closure *domain.ClosureData) error {
	var referenced int64
	err := tx.Table("item_relations AS ir").
		Joins("JOIN version_relationships vr ON vr.value_id = ir.value_id AND vr.end_date IS NULL").
		Joins("JOIN version_roots vroot ON vroot.id = vr.root_id AND vroot.is_deleted = ?", false).
		Where("ir.target_uid = ? AND vr.status IN ?", item.UID, []string{string(domain.StatusFinal), string(domain.StatusRetired)}).
		Count(&referenced).Error
	if err != nil {
		return err
	}
	if referenced > 0 {
		return models.BusinessLogicf("Cannot delete %s with uid (%s) as it is used by approved items.", r.Kind(), item.UID)
	}
	if err := r.compareAndSwap(tx, item.UID, closure); err != nil {
		return err
	}
	if err := tx.Model(&models.VersionRoot{}).Where("id = ?", closure.RootID).Update("is_deleted", true).Error; err != nil {
		return err
	}
	return r.closeOpenRelationship(tx, closure.RootID, time.Now().UTC())
}

// compareAndSwap bumps the root's lock version if nobody else did since the
// item was read.
func (r *libraryItemRepository[V]) compareAndSwap(tx *gorm.DB, uid string, closure *domain.ClosureData) error {
	res := tx.Model(&models.VersionRoot{}).
		Where("id = ? AND lock_version = ?", closure.RootID, closure.LockVersion).
		Updates(map[string]interface{}{
			"lock_version": gorm.Expr("lock_version + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if r.metrics != nil {
			r.metrics.LockConflicts.WithLabelValues(string(r.Kind())).Inc()
		}
		r.log.Warn().Str("uid", uid).Int("lock_version", closure.LockVersion).Msg("optimistic lock conflict")
		return models.Conflictf("%s with uid (%s) was modified concurrently, reload and retry.", r.Kind(), uid)
	}
	return nil
}

func (r *libraryItemRepository[V]) closeOpenRelationship(tx *gorm.DB, rootID uint, at time.Time) error {
	return tx.Model(&models.VersionRelationship{}).
		Where("root_id = ? AND end_date IS NULL", rootID).
		Update("end_date", at).Error
}

// validateRelations checks every referenced uid is a live item of the kind
// the relation expects.
func (r *libraryItemRepository[V]) validateRelations(tx *gorm.DB, value V) error {
	for _, ref := range r.capability.Relations(value) {
		target, ok := RelationTarget(ref.Kind)
		if !ok {
			return fmt.Errorf("unknown relation kind %q", ref.Kind)
		}
		var count int64
		err := tx.Model(&models.VersionRoot{}).
			Where("uid = ? AND kind = ? AND is_deleted = ?", ref.TargetUID, target, false).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return models.BusinessLogicf("The object with uid (%s) does not exist.", ref.TargetUID)
		}
	}
	return nil
}

// getOrCreateValue reuses an equal value of the same root or stores a new one
// together with its relations.
func (r *libraryItemRepository[V]) getOrCreateValue(tx *gorm.DB, rootID uint, value V) (uint, error) {
	var rows []models.VersionValue
	if err := tx.Where("root_id = ?", rootID).Order("id").Find(&rows).Error; err != nil {
		return 0, err
	}
	for _, row := range rows {
		existing, err := r.decodeValue(tx, row)
		if err != nil {
			return 0, err
		}
		if existing.Equal(value) {
			return row.ID, nil
		}
	}

	content, err := json.Marshal(r.capability.Content(value))
	if err != nil {
		return 0, err
	}
	row := models.VersionValue{RootID: rootID, Content: datatypes.JSON(content)}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}

	refs := r.capability.Relations(value)
	if len(refs) == 0 {
		return row.ID, nil
	}
	relations := make([]models.ItemRelation, 0, len(refs))
	for _, ref := range refs {
		relations = append(relations, models.ItemRelation{
			RootID:    rootID,
			ValueID:   row.ID,
			Kind:      ref.Kind,
			TargetUID: ref.TargetUID,
			Position:  ref.Position,
		})
	}
	if err := tx.Create(&relations).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func relationshipRow(rootID, valueID uint, meta domain.ItemMetadata) models.VersionRelationship {
	return models.VersionRelationship{
		RootID:            rootID,
		ValueID:           valueID,
		Status:            string(meta.Status),
		MajorVersion:      meta.MajorVersion,
		MinorVersion:      meta.MinorVersion,
		StartDate:         meta.StartDate,
		EndDate:           meta.EndDate,
		Author:            meta.Author,
		ChangeDescription: meta.ChangeDescription,
	}
}
