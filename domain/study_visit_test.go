package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueVisitNumber(t *testing.T) {
	sub := 5
	wide := 120
	tests := []struct {
		name  string
		visit StudyVisit
		want  int
	}{
		{"single", StudyVisit{VisitNumber: 3, VisitClass: VisitClassSingle}, 300},
		{"anchor of group", StudyVisit{VisitNumber: 4, VisitSubclass: VisitSubclassAnchorVisit}, 400},
		{"subvisit", StudyVisit{VisitNumber: 4, SubvisitNumber: &sub}, 405},
		{"wide subvisit number", StudyVisit{VisitNumber: 4, SubvisitNumber: &wide}, 4120},
		{"unscheduled", StudyVisit{VisitNumber: UnscheduledVisitNumber, VisitClass: VisitClassUnscheduled}, UnscheduledVisitNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.visit.UniqueVisitNumber())
		})
	}
}

func TestVisitShortName(t *testing.T) {
	assert.Equal(t, "O2", (&StudyVisit{VisitNumber: 2, ContactMode: ContactModeVirtual, VisitClass: VisitClassSingle}).VisitShortName())
	assert.Equal(t, "V2", (&StudyVisit{VisitNumber: 2, ContactMode: "on site visit", VisitClass: VisitClassSingle}).VisitShortName())
	assert.Equal(t, "29500", (&StudyVisit{VisitNumber: NonVisitNumber, VisitClass: VisitClassNonVisit}).VisitShortName())
	assert.Equal(t, "Visit 2", (&StudyVisit{VisitNumber: 2}).VisitName())
}

func TestValidContactMode(t *testing.T) {
	assert.True(t, ValidContactMode(ContactModePhone))
	assert.False(t, ValidContactMode("Carrier pigeon"))
}

func TestParseVisitEnums(t *testing.T) {
	class, err := ParseVisitClass("NON_VISIT")
	assert.NoError(t, err)
	assert.Equal(t, VisitClassNonVisit, class)
	_, err = ParseVisitClass("SOMETIMES")
	assert.Error(t, err)

	subclass, err := ParseVisitSubclass("")
	assert.NoError(t, err)
	assert.Equal(t, VisitSubclassSingle, subclass)
}

func TestDeriveStudyDayWithoutTimepoint(t *testing.T) {
	v := &StudyVisit{}
	assert.Nil(t, v.DeriveStudyDay(false))
	assert.Nil(t, v.DeriveStudyWeek())
	assert.Nil(t, v.StudyDurationDays())
}
