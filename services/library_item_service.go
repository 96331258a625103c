package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"clinical-mdr-api/domain"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"
	"clinical-mdr-api/repositories"

	"github.com/gin-gonic/gin/binding"
)

// LibraryItemService is the lifecycle boundary shared by every versioned
// library entity.
type LibraryItemService[V domain.Value[V]] interface {
	Create(ctx context.Context, libraryName string, value V, author string) (*models.ItemOutput, error)
	Get(ctx context.Context, uid string, query models.ItemQueryParams) (*models.ItemOutput, error)
	List(ctx context.Context, params models.ItemListParams) (*models.ItemPage, error)
	Edit(ctx context.Context, uid string, patch []byte, author string) (*models.ItemOutput, error)
	Approve(ctx context.Context, uid, author string) (*models.ItemOutput, error)
	CreateNewVersion(ctx context.Context, uid string, patch []byte, author string) (*models.ItemOutput, error)
	Inactivate(ctx context.Context, uid, author string) (*models.ItemOutput, error)
	Reactivate(ctx context.Context, uid, author string) (*models.ItemOutput, error)
	SoftDelete(ctx context.Context, uid, author string) error
	GetVersions(ctx context.Context, uid string) ([]models.ItemOutput, error)
}

type libraryItemService[V domain.Value[V]] struct {
	repo      repositories.LibraryItemRepository[V]
	libraries repositories.LibraryRepository
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewLibraryItemService[V domain.Value[V]](repo repositories.LibraryItemRepository[V], libraries repositories.LibraryRepository, log *logger.Logger, m *metrics.Metrics) LibraryItemService[V] {
	if log == nil {
		log = logger.Nop()
	}
	return &libraryItemService[V]{
		repo:      repo,
		libraries: libraries,
		log:       log.ServiceLogger(string(repo.Kind())),
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// translateError maps domain failures onto the API error taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var versioning *domain.VersioningError
	if errors.As(err, &versioning) {
		return models.ErrorBusinessLogic{Message: versioning.Msg}
	}
	var value *domain.ValueError
	if errors.As(err, &value) {
		return models.ErrorValidation{Message: value.Msg}
	}
	return err
}

func validateValue(v interface{}) error {
	if err := binding.Validator.ValidateStruct(v); err != nil {
		return models.ErrorValidation{Message: err.Error()}
	}
	return nil
}

func (s *libraryItemService[V]) entity() string {
	return string(s.repo.Kind())
}

func (s *libraryItemService[V]) notFound(uid string) error {
	return models.NotFoundf("%s with uid (%s) does not exist.", s.entity(), uid)
}

func (s *libraryItemService[V]) Create(ctx context.Context, libraryName string, value V, author string) (*models.ItemOutput, error) {
	library, err := s.libraries.FindByName(ctx, libraryName)
	if err != nil {
		return nil, err
	}
	if library == nil {
		return nil, models.NotFoundf("Library with name (%s) does not exist.", libraryName)
	}
	if err := validateValue(value); err != nil {
		return nil, err
	}

	item, err := domain.NewDraftItem(domain.LibraryVO{Name: library.Name, IsEditable: library.IsEditable}, value, author, s.now())
	if err == nil {
		item, err = s.repo.Save(ctx, item)
	}
	err = translateError(err)
	s.record("create", item, "", err)
	if err != nil {
		return nil, err
	}
	out := toItemOutput(item)
	return &out, nil
}

func (s *libraryItemService[V]) Get(ctx context.Context, uid string, query models.ItemQueryParams) (*models.ItemOutput, error) {
	opts := repositories.FindOptions{Version: query.Version}
	if query.Status != "" {
		status, err := domain.ParseLibraryItemStatus(query.Status)
		if err != nil {
			return nil, translateError(err)
		}
		opts.Status = status
	}
	if query.AtDate != "" {
		at, err := time.Parse(time.RFC3339, query.AtDate)
		if err != nil {
			return nil, models.Validationf("Invalid at_date '%s', expected an RFC 3339 timestamp.", query.AtDate)
		}
		at = at.UTC()
		opts.AtDate = &at
	}

	item, err := s.repo.FindByUID(ctx, uid, opts)
	if err != nil {
		return nil, translateError(err)
	}
	if item == nil {
		return nil, s.notFound(uid)
	}
	out := toItemOutput(item)
	return &out, nil
}

func (s *libraryItemService[V]) List(ctx context.Context, params models.ItemListParams) (*models.ItemPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 10
	}
	filter := repositories.ListFilter{
		LibraryName: params.LibraryName,
		Offset:      (params.Page - 1) * params.PageSize,
		Limit:       params.PageSize,
	}
	if params.Status != "" {
		status, err := domain.ParseLibraryItemStatus(params.Status)
		if err != nil {
			return nil, translateError(err)
		}
		filter.Status = status
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := &models.ItemPage{
		Items:    make([]models.ItemOutput, 0, len(items)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, item := range items {
		page.Items = append(page.Items, toItemOutput(item))
	}
	return page, nil
}

// Edit fills the fields missing from patch with the current draft content
// before applying it.
func (s *libraryItemService[V]) Edit(ctx context.Context, uid string, patch []byte, author string) (*models.ItemOutput, error) {
	var req models.NewVersionRequest
	if err := json.Unmarshal(patch, &req); err != nil {
		return nil, models.Validationf("Invalid request body: %s", err.Error())
	}
	return s.transition(ctx, "edit", uid, func(item *domain.VersionedItem[V]) error {
		value, err := mergePatch(item.Value, patch)
		if err != nil {
			return err
		}
		if err := validateValue(value); err != nil {
			return err
		}
		_, err = item.EditDraft(author, req.ChangeDescription, value, s.now())
		return err
	})
}

func (s *libraryItemService[V]) Approve(ctx context.Context, uid, author string) (*models.ItemOutput, error) {
	return s.transition(ctx, "approve", uid, func(item *domain.VersionedItem[V]) error {
		return item.Approve(author, s.now())
	})
}

// CreateNewVersion opens a draft on a final item. Value fields present in
// patch replace the current ones.
func (s *libraryItemService[V]) CreateNewVersion(ctx context.Context, uid string, patch []byte, author string) (*models.ItemOutput, error) {
	var req models.NewVersionRequest
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, &req); err != nil {
			return nil, models.Validationf("Invalid request body: %s", err.Error())
		}
	}
	return s.transition(ctx, "new_version", uid, func(item *domain.VersionedItem[V]) error {
		var value *V
		if len(patch) > 0 {
			merged, err := mergePatch(item.Value, patch)
			if err != nil {
				return err
			}
			if err := validateValue(merged); err != nil {
				return err
			}
			value = &merged
		}
		return item.CreateNewVersion(author, req.ChangeDescription, value, s.now())
	})
}

func (s *libraryItemService[V]) Inactivate(ctx context.Context, uid, author string) (*models.ItemOutput, error) {
	return s.transition(ctx, "inactivate", uid, func(item *domain.VersionedItem[V]) error {
		return item.Inactivate(author, s.now())
	})
}

func (s *libraryItemService[V]) Reactivate(ctx context.Context, uid, author string) (*models.ItemOutput, error) {
	return s.transition(ctx, "reactivate", uid, func(item *domain.VersionedItem[V]) error {
		return item.Reactivate(author, s.now())
	})
}

func (s *libraryItemService[V]) SoftDelete(ctx context.Context, uid, author string) error {
	_, err := s.transition(ctx, "delete", uid, func(item *domain.VersionedItem[V]) error {
		return item.SoftDelete()
	})
	return err
}

// GetVersions lists every version newest first, each annotated with the
// fields that changed relative to the version before it.
func (s *libraryItemService[V]) GetVersions(ctx context.Context, uid string) ([]models.ItemOutput, error) {
	items, err := s.repo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, s.notFound(uid)
	}

	outputs := make([]models.ItemOutput, 0, len(items))
	snapshots := make([]domain.Snapshot, 0, len(items))
	for _, item := range items {
		out := toItemOutput(item)
		snapshot, err := versionSnapshot(out)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
		snapshots = append(snapshots, snapshot)
	}
	for i, changes := range domain.CalculateDiffs(snapshots) {
		outputs[i].Changes = changes
	}
	return outputs, nil
}

func (s *libraryItemService[V]) transition(ctx context.Context, operation, uid string, fn func(item *domain.VersionedItem[V]) error) (*models.ItemOutput, error) {
	item, err := s.repo.Update(ctx, uid, fn)
	err = translateError(err)
	s.record(operation, item, uid, err)
	if err != nil {
		return nil, err
	}
	out := toItemOutput(item)
	return &out, nil
}

func (s *libraryItemService[V]) record(operation string, item *domain.VersionedItem[V], uid string, err error) {
	s.metrics.RecordTransition(s.entity(), operation, err)
	version, status := "", ""
	if item != nil {
		uid = item.UID
		version, status = item.Metadata.Version(), string(item.Metadata.Status)
	}
	s.log.LogTransition(operation, uid, version, status, err)
}

// mergePatch overlays the JSON fields of patch on a copy of current.
func mergePatch[V any](current V, patch []byte) (V, error) {
	var merged V
	raw, err := json.Marshal(current)
	if err != nil {
		return merged, err
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return merged, err
	}
	if err := json.Unmarshal(patch, &merged); err != nil {
		return merged, models.Validationf("Invalid request body: %s", err.Error())
	}
	return merged, nil
}

func toItemOutput[V domain.Value[V]](item *domain.VersionedItem[V]) models.ItemOutput {
	return models.ItemOutput{
		UID:               item.UID,
		LibraryName:       item.Library.Name,
		Status:            string(item.Metadata.Status),
		Version:           item.Metadata.Version(),
		StartDate:         item.Metadata.StartDate,
		EndDate:           item.Metadata.EndDate,
		Author:            item.Metadata.Author,
		ChangeDescription: item.Metadata.ChangeDescription,
		PossibleActions:   item.PossibleActions(),
		Value:             item.Value,
	}
}

// versionSnapshot flattens an output for diffing. Dates and actions differ
// between every pair of versions and are left out.
func versionSnapshot(out models.ItemOutput) (domain.Snapshot, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	snapshot := domain.Snapshot{}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}
	delete(snapshot, "start_date")
	delete(snapshot, "end_date")
	delete(snapshot, "possible_actions")
	delete(snapshot, "changes")
	return snapshot, nil
}
