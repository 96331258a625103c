package domain

import (
	"fmt"
	"time"
)

type LibraryItemStatus string

const (
	StatusDraft   LibraryItemStatus = "Draft"
	StatusFinal   LibraryItemStatus = "Final"
	StatusRetired LibraryItemStatus = "Retired"
)

// ParseLibraryItemStatus accepts the status names case-sensitively.
func ParseLibraryItemStatus(s string) (LibraryItemStatus, error) {
	switch LibraryItemStatus(s) {
	case StatusDraft, StatusFinal, StatusRetired:
		return LibraryItemStatus(s), nil
	}
	return "", newValueError("Unknown status '%s'.", s)
}

const (
	changeDescriptionInitial    = "Initial version"
	changeDescriptionApprove    = "Approved version"
	changeDescriptionNewVersion = "New version"
	changeDescriptionInactivate = "Inactivated version"
	changeDescriptionReactivate = "Reactivated version"
)

// LibraryVO is the namespace owning an item.
type LibraryVO struct {
	Name       string
	IsEditable bool
}

// ItemMetadata is one version relationship of an item. EndDate is nil while
// the row is open.
type ItemMetadata struct {
	Status            LibraryItemStatus
	MajorVersion      int
	MinorVersion      int
	StartDate         time.Time
	EndDate           *time.Time
	Author            string
	ChangeDescription string
}

func (m ItemMetadata) Version() string {
	return fmt.Sprintf("%d.%d", m.MajorVersion, m.MinorVersion)
}

func (m ItemMetadata) IsOpen() bool {
	return m.EndDate == nil
}

func newMetadata(status LibraryItemStatus, major, minor int, author, changeDescription string, now time.Time) ItemMetadata {
	return ItemMetadata{
		Status:            status,
		MajorVersion:      major,
		MinorVersion:      minor,
		StartDate:         now,
		Author:            author,
		ChangeDescription: changeDescription,
	}
}

// ParseVersion splits "major.minor".
func ParseVersion(version string) (major, minor int, err error) {
	if _, err = fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return 0, 0, newValueError("Invalid version '%s'.", version)
	}
	return major, minor, nil
}

// Value is the immutable content of a versioned item.
type Value[V any] interface {
	Equal(other V) bool
}

// ClosureData is the persisted state an item was loaded from. Repositories
// use it to tell create from update and to detect interleaved writes.
type ClosureData struct {
	RootID         uint
	ValueID        uint
	RelationshipID uint
	LockVersion    int
	ForUpdate      bool
	Metadata       ItemMetadata
}

// VersionedItem is the aggregate root of every library item.
type VersionedItem[V Value[V]] struct {
	UID      string
	Library  LibraryVO
	Value    V
	Metadata ItemMetadata

	deleted bool
	closure *ClosureData
	loaded  V
}

// NewDraftItem opens an item at Draft 0.1. The uid is assigned on save.
func NewDraftItem[V Value[V]](library LibraryVO, value V, author string, now time.Time) (*VersionedItem[V], error) {
	if !library.IsEditable {
		return nil, newVersioningError("Library %s is not editable.", library.Name)
	}
	return &VersionedItem[V]{
		Library: library,
		Value:   value,
		Metadata: ItemMetadata{
			Status:            StatusDraft,
			MajorVersion:      0,
			MinorVersion:      1,
			StartDate:         now,
			Author:            author,
			ChangeDescription: changeDescriptionInitial,
		},
	}, nil
}

// LoadItem rebuilds an item from persisted state.
func LoadItem[V Value[V]](uid string, library LibraryVO, value V, metadata ItemMetadata, closure *ClosureData) *VersionedItem[V] {
	return &VersionedItem[V]{
		UID:      uid,
		Library:  library,
		Value:    value,
		Metadata: metadata,
		closure:  closure,
		loaded:   value,
	}
}

func (i *VersionedItem[V]) Closure() *ClosureData {
	return i.closure
}

func (i *VersionedItem[V]) IsDeleted() bool {
	return i.deleted
}

// LoadedValue is the value the item carried when it was read.
func (i *VersionedItem[V]) LoadedValue() V {
	return i.loaded
}

// MetadataChanged reports whether a transition happened since load.
func (i *VersionedItem[V]) MetadataChanged() bool {
	if i.closure == nil {
		return true
	}
	prev := i.closure.Metadata
	return prev.Status != i.Metadata.Status ||
		prev.MajorVersion != i.Metadata.MajorVersion ||
		prev.MinorVersion != i.Metadata.MinorVersion ||
		!prev.StartDate.Equal(i.Metadata.StartDate)
}

func (i *VersionedItem[V]) requireEditable() error {
	if !i.Library.IsEditable {
		return newVersioningError("Library %s is not editable.", i.Library.Name)
	}
	return nil
}

// Approve moves a draft to Final with the major version bumped.
func (i *VersionedItem[V]) Approve(author string, now time.Time) error {
	if err := i.requireEditable(); err != nil {
		return err
	}
	if i.Metadata.Status != StatusDraft {
		return newVersioningError("The object isn't in draft status.")
	}
	i.Metadata = newMetadata(StatusFinal, i.Metadata.MajorVersion+1, 0, author, changeDescriptionApprove, now)
	return nil
}

// CreateNewVersion opens a draft on top of a final version. A nil value keeps
// the current content.
func (i *VersionedItem[V]) CreateNewVersion(author, changeDescription string, value *V, now time.Time) error {
	if err := i.requireEditable(); err != nil {
		return err
	}
	if i.Metadata.Status != StatusFinal {
		return newVersioningError("New draft version can be created only for FINAL versions.")
	}
	if changeDescription == "" {
		changeDescription = changeDescriptionNewVersion
	}
	if value != nil {
		i.Value = *value
	}
	i.Metadata = newMetadata(StatusDraft, i.Metadata.MajorVersion, i.Metadata.MinorVersion+1, author, changeDescription, now)
	return nil
}

// Inactivate retires a final version without changing its number.
func (i *VersionedItem[V]) Inactivate(author string, now time.Time) error {
	if err := i.requireEditable(); err != nil {
		return err
	}
	if i.Metadata.Status != StatusFinal {
		return newVersioningError("Cannot retire draft version.")
	}
	i.Metadata = newMetadata(StatusRetired, i.Metadata.MajorVersion, i.Metadata.MinorVersion, author, changeDescriptionInactivate, now)
	return nil
}

// Reactivate returns a retired version to Final.
func (i *VersionedItem[V]) Reactivate(author string, now time.Time) error {
	if err := i.requireEditable(); err != nil {
		return err
	}
	if i.Metadata.Status != StatusRetired {
		return newVersioningError("Only RETIRED version can be reactivated.")
	}
	i.Metadata = newMetadata(StatusFinal, i.Metadata.MajorVersion, i.Metadata.MinorVersion, author, changeDescriptionReactivate, now)
	return nil
}

// EditDraft replaces the draft content. It reports false and leaves the item
// untouched when the value is unchanged.
func (i *VersionedItem[V]) EditDraft(author, changeDescription string, value V, now time.Time) (bool, error) {
	if err := i.requireEditable(); err != nil {
		return false, err
	}
	if i.Metadata.Status != StatusDraft {
		return false, newVersioningError("The object isn't in draft status.")
	}
	if changeDescription == "" {
		return false, newValueError("change_description must be provided when editing a draft.")
	}
	if i.Value.Equal(value) {
		return false, nil
	}
	i.Value = value
	i.Metadata = newMetadata(StatusDraft, i.Metadata.MajorVersion, i.Metadata.MinorVersion+1, author, changeDescription, now)
	return true, nil
}

// SoftDelete marks an item that was never approved as deleted.
func (i *VersionedItem[V]) SoftDelete() error {
	if err := i.requireEditable(); err != nil {
		return err
	}
	if i.Metadata.MajorVersion != 0 || i.Metadata.Status != StatusDraft {
		return newVersioningError("Object has been accepted")
	}
	i.deleted = true
	return nil
}

// PossibleActions lists the transitions legal from the current state.
func (i *VersionedItem[V]) PossibleActions() []string {
	switch i.Metadata.Status {
	case StatusDraft:
		if i.Metadata.MajorVersion == 0 {
			return []string{"approve", "delete", "edit"}
		}
		return []string{"approve", "edit"}
	case StatusFinal:
		return []string{"inactivate", "new_version"}
	case StatusRetired:
		return []string{"reactivate"}
	}
	return []string{}
}
