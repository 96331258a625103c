package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityKind names a versioned library item type. It doubles as uid label.
type EntityKind string

const (
	KindActivity         EntityKind = "Activity"
	KindActivitySubGroup EntityKind = "ActivitySubGroup"
	KindActivityGroup    EntityKind = "ActivityGroup"
	KindCompound         EntityKind = "Compound"
	KindUnitDefinition   EntityKind = "UnitDefinition"
	KindCTCodelist       EntityKind = "CTCodelist"
	KindCTTerm           EntityKind = "CTTerm"
)

// RelationKind tags a link from an item value to another item.
type RelationKind string

const (
	RelationTerm             RelationKind = "TERM"
	RelationUnitDefinition   RelationKind = "UNIT_DEFINITION"
	RelationActivityGroup    RelationKind = "ACTIVITY_GROUP"
	RelationActivitySubGroup RelationKind = "ACTIVITY_SUB_GROUP"
	RelationActivity         RelationKind = "ACTIVITY"
	RelationCodelist         RelationKind = "CODELIST"
)

// VersionRoot is the permanent identity of an item.
type VersionRoot struct {
	ID          uint       `json:"-" gorm:"primarykey"`
	UID         string     `json:"uid" gorm:"uniqueIndex;not null"`
	Kind        EntityKind `json:"kind" gorm:"index;not null"`
	LibraryName string     `json:"library_name" gorm:"index;not null"`
	LockVersion int        `json:"-" gorm:"not null;default:0"`
	IsDeleted   bool       `json:"is_deleted" gorm:"not null;default:false"`
	CreatedAt   time.Time  `json:"-"`
	UpdatedAt   time.Time  `json:"-"`
}

// VersionValue is an immutable content snapshot of an item.
type VersionValue struct {
	ID        uint           `json:"-" gorm:"primarykey"`
	RootID    uint           `json:"-" gorm:"index;not null"`
	Content   datatypes.JSON `json:"content" gorm:"not null"`
	CreatedAt time.Time      `json:"-"`
}

// VersionRelationship is one ItemMetadata row linking a root to a value.
type VersionRelationship struct {
	ID                uint       `json:"-" gorm:"primarykey"`
	RootID            uint       `json:"-" gorm:"index;not null"`
	ValueID           uint       `json:"-" gorm:"index;not null"`
	Status            string     `json:"status" gorm:"index;not null"`
	MajorVersion      int        `json:"major_version" gorm:"not null"`
	MinorVersion      int        `json:"minor_version" gorm:"not null"`
	StartDate         time.Time  `json:"start_date" gorm:"index;not null"`
	EndDate           *time.Time `json:"end_date" gorm:"index"`
	Author            string     `json:"author"`
	ChangeDescription string     `json:"change_description"`
}

// ItemRelation links a value to another root by uid.
type ItemRelation struct {
	ID        uint         `json:"-" gorm:"primarykey"`
	RootID    uint         `json:"-" gorm:"index;not null"`
	ValueID   uint         `json:"-" gorm:"index;not null"`
	Kind      RelationKind `json:"kind" gorm:"index;not null"`
	TargetUID string       `json:"target_uid" gorm:"index;not null"`
	Position  int          `json:"position"`
}

// UIDCounter hands out sequential uids per label.
type UIDCounter struct {
	Label   string `gorm:"primaryKey"`
	Counter int    `gorm:"not null;default:0"`
}
