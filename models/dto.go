package models

import (
	"encoding/json"
	"time"
)

type RegisterRequest struct {
	Username string   `json:"username" binding:"required,min=3,max=50"`
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,min=6"`
	Role     UserRole `json:"role,omitempty" binding:"omitempty,oneof=author admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateLibraryRequest struct {
	Name       string `json:"name" binding:"required,min=1,max=255"`
	IsEditable bool   `json:"is_editable"`
}

type LibraryRef struct {
	LibraryName string `json:"library_name" binding:"required"`
}

type ChangeDescriptionRequest struct {
	ChangeDescription string `json:"change_description" binding:"required"`
}

type NewVersionRequest struct {
	ChangeDescription string `json:"change_description"`
}

type ItemListParams struct {
	LibraryName string `form:"library_name"`
	Status      string `form:"status"`
	Page        int    `form:"page,default=1" binding:"min=1"`
	PageSize    int    `form:"page_size,default=10" binding:"min=1,max=1000"`
}

type ItemQueryParams struct {
	Version string `form:"version"`
	Status  string `form:"status"`
	AtDate  string `form:"at_date"`
}

// ItemOutput renders a versioned item. The fields of Value are inlined next
// to the version metadata.
type ItemOutput struct {
	UID               string          `json:"uid"`
	LibraryName       string          `json:"library_name"`
	Status            string          `json:"status"`
	Version           string          `json:"version"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           *time.Time      `json:"end_date"`
	Author            string          `json:"author_username"`
	ChangeDescription string          `json:"change_description"`
	PossibleActions   []string        `json:"possible_actions"`
	Changes           map[string]bool `json:"changes,omitempty"`
	Value             interface{}     `json:"-"`
}

func (o ItemOutput) MarshalJSON() ([]byte, error) {
	type meta ItemOutput
	out := map[string]interface{}{}
	if o.Value != nil {
		raw, err := json.Marshal(o.Value)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(meta(o))
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

type ItemPage struct {
	Items    []ItemOutput `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"size"`
}

type CreateStudyRequest struct {
	Number  string `json:"study_number" binding:"required"`
	Acronym string `json:"study_acronym"`
}

type StudyEpochInput struct {
	Epoch        string `json:"epoch" binding:"required"`
	EpochSubtype string `json:"epoch_subtype" binding:"required"`
	EpochType    string `json:"epoch_type"`
	Description  string `json:"description"`
	StartRule    string `json:"start_rule"`
	EndRule      string `json:"end_rule"`
	ColorHash    string `json:"color_hash"`
}

type StudyEpochEditInput struct {
	Epoch        *string `json:"epoch"`
	EpochSubtype *string `json:"epoch_subtype"`
	EpochType    *string `json:"epoch_type"`
	Description  *string `json:"description"`
	StartRule    *string `json:"start_rule"`
	EndRule      *string `json:"end_rule"`
	ColorHash    *string `json:"color_hash"`
}

type StudyEpochOutput struct {
	StudyEpoch
	StartDay        *int     `json:"start_day"`
	EndDay          *int     `json:"end_day"`
	Duration        int      `json:"duration"`
	FirstVisitUID   string   `json:"first_visit_uid,omitempty"`
	LastVisitUID    string   `json:"last_visit_uid,omitempty"`
	VisitCount      int      `json:"study_visit_count"`
	PossibleActions []string `json:"possible_actions"`
}

type StudyVisitInput struct {
	StudyEpochUID          string `json:"study_epoch_uid" binding:"required"`
	VisitType              string `json:"visit_type_name" binding:"required"`
	VisitClass             string `json:"visit_class" binding:"required"`
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
}

type StudyVisitOutput struct {
	StudyVisit
	EpochName          string   `json:"study_epoch_name"`
	VisitName          string   `json:"visit_name"`
	VisitShortName     string   `json:"visit_short_name"`
	StudyDurationDays  *int     `json:"study_duration_days"`
	StudyDurationWeeks *int     `json:"study_duration_weeks"`
	PossibleActions    []string `json:"possible_actions"`
}

// AuditTrailEntry is one state of a study selection with the fields that
// changed relative to its predecessor.
type AuditTrailEntry struct {
	ObjectUID  string                 `json:"object_uid"`
	ChangeType string                 `json:"change_type"`
	Author     string                 `json:"author_username"`
	Date       time.Time              `json:"date"`
	Value      map[string]interface{} `json:"value"`
	Changes    map[string]bool        `json:"changes"`
}
