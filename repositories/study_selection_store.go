package repositories

import (
	"errors"
	"time"

	"clinical-mdr-api/models"

	"gorm.io/gorm"
)

// selectionRow is a copy-on-write study selection: every change inserts a
// new row and closes the previous one.
type selectionRow[T any] interface {
	*T
	Audit() *models.AuditTrailFields
	RowID() uint
	ClearRowID()
	ObjectUID() string
	SetDeleted()
	ObjectKind() string
}

// AuditRow is one stored state of a selection with the action that made it.
type AuditRow[T any] struct {
	Row    T
	Action models.StudyAction
}

type selectionStore[T any, P selectionRow[T]] struct {
	db *gorm.DB
}

func (s selectionStore[T, P]) current(studyUID, order string) ([]T, error) {
	var rows []T
	err := s.db.Where("study_uid = ? AND end_date IS NULL AND is_deleted = ?", studyUID, false).
		Order(order).Order("id").
		Find(&rows).Error
	return rows, err
}

func (s selectionStore[T, P]) find(studyUID, uid string) (*T, error) {
	var row T
	err := s.db.Where("study_uid = ? AND uid = ? AND end_date IS NULL AND is_deleted = ?", studyUID, uid, false).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s selectionStore[T, P]) insert(studyUID string, row P, author string) error {
	now := time.Now().UTC()
	stamp[T, P](row, author, now)
	if err := s.db.Create(row).Error; err != nil {
		return err
	}
	return s.record(studyUID, row, nil, models.ActionCreate, author, now)
}

// replace closes before and stores after as its successor. A Delete stores
// a tombstone copy.
func (s selectionStore[T, P]) replace(studyUID string, before, after P, actionType, author string) error {
	now := time.Now().UTC()
	stamp[T, P](after, author, now)
	if actionType == models.ActionDelete {
		after.SetDeleted()
	}
	if err := s.db.Create(after).Error; err != nil {
		return err
	}
	beforeID := before.RowID()
	if err := s.record(studyUID, after, &beforeID, actionType, author, now); err != nil {
		return err
	}
	actionID := after.Audit().CreatedByActionID
	return s.db.Model(P(new(T))).Where("id = ?", beforeID).Updates(map[string]interface{}{
		"end_date":                now,
		"superseded_by_action_id": actionID,
	}).Error
}

func (s selectionStore[T, P]) record(studyUID string, row P, beforeID *uint, actionType, author string, now time.Time) error {
	action := models.StudyAction{
		StudyUID:   studyUID,
		ObjectKind: row.ObjectKind(),
		ObjectUID:  row.ObjectUID(),
		ActionType: actionType,
		BeforeID:   beforeID,
		AfterID:    row.RowID(),
		Author:     author,
		Date:       now,
	}
	if err := s.db.Create(&action).Error; err != nil {
		return err
	}
	row.Audit().CreatedByActionID = action.ID
	return s.db.Model(P(new(T))).Where("id = ?", row.RowID()).Update("created_by_action_id", action.ID).Error
}

// history lists every state newest first; an empty uid selects the whole
// study.
func (s selectionStore[T, P]) history(studyUID, uid string) ([]AuditRow[T], error) {
	q := s.db.Where("study_uid = ?", studyUID)
	if uid != "" {
		q = q.Where("uid = ?", uid)
	}
	var rows []T
	if err := q.Order("start_date desc").Order("id desc").Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for i := range rows {
		ids = append(ids, P(&rows[i]).Audit().CreatedByActionID)
	}
	var actions []models.StudyAction
	if len(ids) > 0 {
		if err := s.db.Where("id IN ?", ids).Find(&actions).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[uint]models.StudyAction, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	out := make([]AuditRow[T], 0, len(rows))
	for i := range rows {
		out = append(out, AuditRow[T]{Row: rows[i], Action: byID[P(&rows[i]).Audit().CreatedByActionID]})
	}
	return out, nil
}

func stamp[T any, P selectionRow[T]](row P, author string, now time.Time) {
	row.ClearRowID()
	audit := row.Audit()
	audit.StartDate = now
	audit.EndDate = nil
	audit.Author = author
	audit.CreatedByActionID = 0
	audit.SupersededByActionID = nil
}
