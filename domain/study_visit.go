package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type VisitClass string

const (
	VisitClassSingle      VisitClass = "SINGLE_VISIT"
	VisitClassSpecial     VisitClass = "SPECIAL_VISIT"
	VisitClassNonVisit    VisitClass = "NON_VISIT"
	VisitClassUnscheduled VisitClass = "UNSCHEDULED_VISIT"
)

type VisitSubclass string

const (
	VisitSubclassSingle             VisitSubclass = "SINGLE_VISIT"
	VisitSubclassAdditionalSubvisit VisitSubclass = "ADDITIONAL_SUBVISIT_IN_A_GROUP_OF_SUBV"
	VisitSubclassAnchorVisit        VisitSubclass = "ANCHOR_VISIT_IN_GROUP_OF_SUBV"
)

const (
	ContactModeOnSite  = "On Site Visit"
	ContactModePhone   = "Phone Contact"
	ContactModeVirtual = "Virtual Visit"
)

func ParseVisitClass(s string) (VisitClass, error) {
	switch VisitClass(s) {
	case VisitClassSingle, VisitClassSpecial, VisitClassNonVisit, VisitClassUnscheduled:
		return VisitClass(s), nil
	}
	return "", newValueError("Unknown visit class '%s'.", s)
}

func ParseVisitSubclass(s string) (VisitSubclass, error) {
	switch VisitSubclass(s) {
	case "":
		return VisitSubclassSingle, nil
	case VisitSubclassSingle, VisitSubclassAdditionalSubvisit, VisitSubclassAnchorVisit:
		return VisitSubclass(s), nil
	}
	return "", newValueError("Unknown visit subclass '%s'.", s)
}

// TimeUnit is a resolved time unit definition.
type TimeUnit struct {
	UID                      string
	Name                     string
	ConversionFactorToMaster float64
}

// Timepoint places a visit relative to a time reference.
type Timepoint struct {
	TimeReference string
	VisitValue    int
	Unit          TimeUnit
}

// StudyVisit is one visit of a study timeline. The number, order and day
// fields are derived by GenerateTimeline.
type StudyVisit struct {
	UID                    string
	StudyUID               string
	EpochUID               string
	VisitType              string
	VisitClass             VisitClass
	VisitSubclass          VisitSubclass
	VisitSublabelReference string
	ContactMode            string
	Timepoint              *Timepoint
	IsGlobalAnchorVisit    bool
	ShowVisit              bool
	Description            string
	StartRule              string
	EndRule                string
	MinVisitWindowValue    int
	MaxVisitWindowValue    int

	VisitNumber    int
	VisitOrder     int
	SubvisitNumber *int
	StudyDay       *int
	StudyWeek      *int

	anchorVisit    *StudyVisit
	subvisitAnchor *StudyVisit
}

func (v *StudyVisit) AnchorVisit() *StudyVisit {
	return v.anchorVisit
}

func (v *StudyVisit) SubvisitAnchor() *StudyVisit {
	return v.subvisitAnchor
}

func (v *StudyVisit) setOrderAndNumber(order, number int) {
	v.VisitOrder = order
	v.VisitNumber = number
}

func (v *StudyVisit) setSubvisitNumber(n int) {
	v.SubvisitNumber = &n
}

func (v *StudyVisit) resetDerived() {
	v.VisitNumber = 0
	v.VisitOrder = 0
	v.SubvisitNumber = nil
	v.StudyDay = nil
	v.StudyWeek = nil
	v.anchorVisit = nil
	v.subvisitAnchor = nil
}

// UnifiedDuration is the timepoint offset in seconds.
func (v *StudyVisit) UnifiedDuration() *float64 {
	if v.Timepoint == nil {
		return nil
	}
	d := float64(v.Timepoint.VisitValue) * v.Timepoint.Unit.ConversionFactorToMaster
	return &d
}

// AbsoluteDuration resolves the visit offset from the study start through its
// anchor chain. A cycle in the chain yields nil.
func (v *StudyVisit) AbsoluteDuration() *float64 {
	return v.absoluteDuration(map[*StudyVisit]bool{})
}

func (v *StudyVisit) absoluteDuration(seen map[*StudyVisit]bool) *float64 {
	if seen[v] {
		return nil
	}
	seen[v] = true
	defer delete(seen, v)

	if v.VisitClass == VisitClassSpecial && v.subvisitAnchor != nil {
		return v.subvisitAnchor.absoluteDuration(seen)
	}
	if v.Timepoint == nil {
		return nil
	}
	if v.Timepoint.VisitValue == 0 {
		zero := 0.0
		return &zero
	}
	unified := v.UnifiedDuration()
	if v.anchorVisit != nil {
		if strings.EqualFold(v.Timepoint.TimeReference, GlobalAnchorVisitName) {
			return unified
		}
		return addDuration(unified, v.anchorVisit.absoluteDuration(seen))
	}
	if v.subvisitAnchor != nil {
		return addDuration(unified, v.subvisitAnchor.absoluteDuration(seen))
	}
	return unified
}

func addDuration(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	sum := *a + *b
	return &sum
}

func durationToNumber(duration *float64, factor float64) *int {
	if duration == nil {
		return nil
	}
	n := int(*duration / factor)
	if n >= 0 {
		n++
	}
	return &n
}

// DeriveStudyDay is the 1-based study day; negative offsets are kept as is.
// With relative set the offset to the visit's own time reference is used.
func (v *StudyVisit) DeriveStudyDay(relative bool) *int {
	if relative {
		return durationToNumber(v.UnifiedDuration(), SecondsPerDay)
	}
	return durationToNumber(v.AbsoluteDuration(), SecondsPerDay)
}

func (v *StudyVisit) DeriveStudyWeek() *int {
	return durationToNumber(v.AbsoluteDuration(), SecondsPerWeek)
}

func (v *StudyVisit) StudyDurationDays() *int {
	if v.StudyDay == nil {
		return nil
	}
	d := *v.StudyDay - 1
	return &d
}

func (v *StudyVisit) StudyDurationWeeks() *int {
	if v.StudyWeek == nil {
		return nil
	}
	w := *v.StudyWeek - 1
	return &w
}

func (v *StudyVisit) UniqueVisitNumber() int {
	if v.SubvisitNumber != nil {
		n, err := strconv.Atoi(fmt.Sprintf("%d%02d", v.VisitNumber, *v.SubvisitNumber))
		if err == nil {
			return n
		}
	}
	if v.VisitSubclass == VisitSubclassAnchorVisit {
		return v.VisitNumber * 100
	}
	if v.VisitClass == VisitClassNonVisit || v.VisitClass == VisitClassUnscheduled {
		return v.VisitNumber
	}
	return v.VisitNumber * 100
}

func (v *StudyVisit) VisitName() string {
	return fmt.Sprintf("Visit %d", v.VisitNumber)
}

func contactModePrefix(mode string) (string, bool) {
	lower := strings.ToLower(mode)
	switch {
	case strings.Contains(lower, "on site visit"):
		return "V", true
	case strings.Contains(lower, "phone contact"):
		return "P", true
	case strings.Contains(lower, "virtual visit"):
		return "O", true
	}
	return "", false
}

// ValidContactMode reports whether a short name can be derived for mode.
func ValidContactMode(mode string) bool {
	_, ok := contactModePrefix(mode)
	return ok
}

func (v *StudyVisit) VisitShortName() string {
	if v.VisitClass == VisitClassNonVisit || v.VisitClass == VisitClassUnscheduled {
		return strconv.Itoa(v.VisitNumber)
	}
	prefix, _ := contactModePrefix(v.ContactMode)
	name := fmt.Sprintf("%s%d", prefix, v.VisitNumber)
	switch {
	case v.VisitSubclass == VisitSubclassAdditionalSubvisit:
		if day := v.DeriveStudyDay(true); day != nil {
			return fmt.Sprintf("%sD%d", name, *day)
		}
		return name
	case v.VisitSubclass == VisitSubclassAnchorVisit:
		return name + "D1"
	case v.VisitClass == VisitClassSpecial:
		return name + "A"
	}
	return name
}
