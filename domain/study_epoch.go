package domain

import "sort"

type StudyStatus string

const (
	StudyStatusDraft  StudyStatus = "DRAFT"
	StudyStatusLocked StudyStatus = "LOCKED"
)

// StudyEpoch groups the visits of one study period. Visit pointers and the
// derived timing are filled by CollectVisitsToEpochs.
type StudyEpoch struct {
	UID          string
	StudyUID     string
	Epoch        string
	EpochSubtype string
	EpochType    string
	Order        int
	Description  string
	StartRule    string
	EndRule      string
	ColorHash    string

	visits                  []*StudyVisit
	nextVisit               *StudyVisit
	previousVisit           *StudyVisit
	nextInNextEpoch         bool
	previousInPreviousEpoch bool
}

func (e *StudyEpoch) IsBasic() bool {
	return e.EpochSubtype == BasicEpochName
}

func (e *StudyEpoch) Visits() []*StudyVisit {
	return e.visits
}

func (e *StudyEpoch) FirstVisit() *StudyVisit {
	if len(e.visits) == 0 {
		return nil
	}
	return e.visits[0]
}

func (e *StudyEpoch) LastVisit() *StudyVisit {
	if len(e.visits) == 0 {
		return nil
	}
	return e.visits[len(e.visits)-1]
}

// NextVisit is the first visit after this epoch and whether it lies in the
// immediately following epoch.
func (e *StudyEpoch) NextVisit() (*StudyVisit, bool) {
	return e.nextVisit, e.nextInNextEpoch
}

// PreviousVisit is the last visit before this epoch and whether it lies in the
// immediately preceding epoch.
func (e *StudyEpoch) PreviousVisit() (*StudyVisit, bool) {
	return e.previousVisit, e.previousInPreviousEpoch
}

func (e *StudyEpoch) StartDay() *int {
	if len(e.visits) == 0 {
		if e.nextVisit != nil && e.previousVisit != nil {
			return e.previousVisit.StudyDay
		}
		return nil
	}
	return e.FirstVisit().StudyDay
}

func (e *StudyEpoch) EndDay() *int {
	if len(e.visits) == 0 {
		if e.nextVisit != nil {
			return e.nextVisit.StudyDay
		}
		return nil
	}
	if e.nextVisit != nil {
		if e.nextInNextEpoch {
			return e.nextVisit.StudyDay
		}
		return e.LastVisit().StudyDay
	}
	// a terminal epoch with one visit is padded by a week for display
	if len(e.visits) == 1 {
		start := e.StartDay()
		if start == nil {
			return nil
		}
		end := *start + FixedWeekPeriod
		return &end
	}
	return e.LastVisit().StudyDay
}

func (e *StudyEpoch) CalculatedDuration() int {
	start, end := e.StartDay(), e.EndDay()
	if start != nil && end != nil && *start != 0 && *end != 0 {
		return *end - *start
	}
	return 0
}

func (e *StudyEpoch) PossibleActions(status StudyStatus) []string {
	if status != StudyStatusDraft {
		return []string{}
	}
	if len(e.visits) == 0 {
		return []string{"edit", "delete", "lock", "reorder"}
	}
	return []string{"edit", "delete", "lock"}
}

func nextEpochWithVisits(epochs []*StudyEpoch) *StudyEpoch {
	for _, e := range epochs {
		if len(e.visits) > 0 {
			return e
		}
	}
	return nil
}

func previousEpochWithVisits(epochs []*StudyEpoch) *StudyEpoch {
	for i := len(epochs) - 1; i >= 0; i-- {
		if len(epochs[i].visits) > 0 {
			return epochs[i]
		}
	}
	return nil
}

// CollectVisitsToEpochs buckets the ordered visits into copies of epochs,
// sorted by order, and links every non-basic epoch to its neighbouring
// visits. The flag on a neighbour is set only when the epoch holds visits
// itself and the neighbour sits in the directly adjacent epoch.
func (t *Timeline) CollectVisitsToEpochs(input []StudyEpoch) ([]*StudyEpoch, map[string][]*StudyVisit) {
	epochs := make([]*StudyEpoch, len(input))
	for i := range input {
		e := input[i]
		e.visits, e.nextVisit, e.previousVisit = nil, nil, nil
		e.nextInNextEpoch, e.previousInPreviousEpoch = false, false
		epochs[i] = &e
	}
	sort.SliceStable(epochs, func(i, j int) bool { return epochs[i].Order < epochs[j].Order })

	epochVisits := make(map[string][]*StudyVisit, len(epochs))
	for _, e := range epochs {
		epochVisits[e.UID] = []*StudyVisit{}
	}
	for _, v := range t.visits {
		if _, ok := epochVisits[v.EpochUID]; ok {
			epochVisits[v.EpochUID] = append(epochVisits[v.EpochUID], v)
		}
	}

	timed := make([]*StudyEpoch, 0, len(epochs))
	for _, e := range epochs {
		if !e.IsBasic() {
			e.visits = epochVisits[e.UID]
			timed = append(timed, e)
		}
	}

	for i := 0; i < len(timed)-1; i++ {
		e := timed[i]
		if first := timed[i+1].FirstVisit(); first != nil {
			e.nextVisit, e.nextInNextEpoch = first, len(e.visits) > 0
		} else if next := nextEpochWithVisits(timed[i+1:]); next != nil {
			e.nextVisit = next.FirstVisit()
		}
	}
	for i := 1; i < len(timed); i++ {
		e := timed[i]
		if last := timed[i-1].LastVisit(); last != nil {
			e.previousVisit, e.previousInPreviousEpoch = last, len(e.visits) > 0
		} else if previous := previousEpochWithVisits(timed[:i-1]); previous != nil {
			e.previousVisit = previous.LastVisit()
		}
	}
	return epochs, epochVisits
}
