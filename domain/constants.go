package domain

const (
	NonVisitNumber         = 29500
	UnscheduledVisitNumber = 29999
	FixedWeekPeriod        = 7

	BasicEpochName        = "Basic"
	PreviousVisitName     = "Previous Visit"
	GlobalAnchorVisitName = "Global anchor visit"

	DayUnitName  = "day"
	WeekUnitName = "week"

	// Conversion factors to the master time unit (second).
	SecondsPerDay  = 86400
	SecondsPerWeek = 604800
)
