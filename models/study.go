package models

import "time"

const (
	StudyStatusDraft  = "DRAFT"
	StudyStatusLocked = "LOCKED"
)

const (
	ActionCreate = "Create"
	ActionEdit   = "Edit"
	ActionDelete = "Delete"
)

const (
	ObjectStudyVisit = "StudyVisit"
	ObjectStudyEpoch = "StudyEpoch"
)

type Study struct {
	ID          uint      `json:"-" gorm:"primarykey"`
	UID         string    `json:"uid" gorm:"uniqueIndex;not null"`
	Number      string    `json:"study_number"`
	Acronym     string    `json:"study_acronym"`
	Status      string    `json:"status" gorm:"not null;default:'DRAFT'"`
	LockVersion int       `json:"-" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditTrailFields is embedded in every copy-on-write study selection row.
// A row is current while EndDate is nil; the action that replaced it is
// recorded in SupersededByActionID.
type AuditTrailFields struct {
	CreatedByActionID    uint       `json:"-" gorm:"index"`
	SupersededByActionID *uint      `json:"-" gorm:"index"`
	StartDate            time.Time  `json:"start_date" gorm:"not null"`
	EndDate              *time.Time `json:"end_date" gorm:"index"`
	Author               string     `json:"author_username"`
}

// StudyAction is one Create/Edit/Delete entry of a study audit trail.
type StudyAction struct {
	ID         uint      `json:"-" gorm:"primarykey"`
	StudyUID   string    `json:"study_uid" gorm:"index;not null"`
	ObjectKind string    `json:"object_kind" gorm:"index;not null"`
	ObjectUID  string    `json:"object_uid" gorm:"index;not null"`
	ActionType string    `json:"change_type" gorm:"not null"`
	BeforeID   *uint     `json:"-"`
	AfterID    uint      `json:"-"`
	Author     string    `json:"author_username"`
	Date       time.Time `json:"date" gorm:"index;not null"`
}

type StudyEpoch struct {
	ID           uint   `json:"-" gorm:"primarykey"`
	UID          string `json:"uid" gorm:"index;not null"`
	StudyUID     string `json:"study_uid" gorm:"index;not null"`
	Epoch        string `json:"epoch"`
	EpochSubtype string `json:"epoch_subtype"`
	EpochType    string `json:"epoch_type"`
	EpochOrder   int    `json:"order"`
	Description  string `json:"description"`
	StartRule    string `json:"start_rule"`
	EndRule      string `json:"end_rule"`
	ColorHash    string `json:"color_hash"`
	IsDeleted    bool   `json:"-" gorm:"not null;default:false"`
	AuditTrailFields
}

type StudyVisit struct {
	ID                     uint   `json:"-" gorm:"primarykey"`
	UID                    string `json:"uid" gorm:"index;not null"`
	StudyUID               string `json:"study_uid" gorm:"index;not null"`
	StudyEpochUID          string `json:"study_epoch_uid" gorm:"index;not null"`
	VisitType              string `json:"visit_type_name"`
	VisitClass             string `json:"visit_class"`
	VisitSubclass          string `json:"visit_subclass"`
	VisitSublabelReference string `json:"visit_sublabel_reference"`
	VisitContactMode       string `json:"visit_contact_mode"`
	TimeReference          string `json:"time_reference_name"`
	TimeValue              *int   `json:"time_value"`
	TimeUnitUID            string `json:"time_unit_uid"`
	IsGlobalAnchorVisit    bool   `json:"is_global_anchor_visit"`
	ShowVisit              bool   `json:"show_visit"`
	Description            string `json:"description"`
	StartRule              string `json:"start_rule"`
	EndRule                string `json:"end_rule"`
	MinVisitWindowValue    int    `json:"min_visit_window_value"`
	MaxVisitWindowValue    int    `json:"max_visit_window_value"`

	VisitNumber       int  `json:"visit_number"`
	UniqueVisitNumber int  `json:"unique_visit_number"`
	SubvisitNumber    *int `json:"visit_subnumber"`
	VisitOrder        int  `json:"order"`
	StudyDay          *int `json:"study_day_number"`
	StudyWeek         *int `json:"study_week_number"`

	IsDeleted bool `json:"-" gorm:"not null;default:false"`
	AuditTrailFields
}

func (a *AuditTrailFields) Audit() *AuditTrailFields {
	return a
}

func (e *StudyEpoch) RowID() uint { return e.ID }
func (e *StudyEpoch) ClearRowID() { e.ID = 0 }
func (e *StudyEpoch) ObjectUID() string { return e.UID }
func (e *StudyEpoch) SetDeleted() { e.IsDeleted = true }
func (e *StudyEpoch) ObjectKind() string { return ObjectStudyEpoch }

func (v *StudyVisit) RowID() uint { return v.ID }
func (v *StudyVisit) ClearRowID() { v.ID = 0 }
func (v *StudyVisit) ObjectUID() string { return v.UID }
func (v *StudyVisit) SetDeleted() { v.IsDeleted = true }
func (v *StudyVisit) ObjectKind() string { return ObjectStudyVisit }
