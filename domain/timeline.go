package domain

import "sort"

type subvisit struct {
	visit  *StudyVisit
	number int
}

// Timeline is the ordered visit schedule of one study.
type Timeline struct {
	visits []*StudyVisit
}

// NewTimeline builds the timeline of visits. The input slice is not modified.
func NewTimeline(visits []StudyVisit) *Timeline {
	return &Timeline{visits: GenerateTimeline(visits)}
}

// OrderedStudyVisits returns visits sorted by absolute duration.
func (t *Timeline) OrderedStudyVisits() []*StudyVisit {
	return t.visits
}

// Find returns the timeline copy of the visit with uid.
func (t *Timeline) Find(uid string) *StudyVisit {
	for _, v := range t.visits {
		if v.UID == uid {
			return v
		}
	}
	return nil
}

func subvisitIncrement(amount int) int {
	switch {
	case amount < 10:
		return 10
	case amount < 20:
		return 5
	}
	return 1
}

func durationGreater(a, b *float64) bool {
	if a == nil || b == nil {
		return false
	}
	return *a > *b
}

func orderByDuration(visits []*StudyVisit) []*StudyVisit {
	durations := make(map[*StudyVisit]*float64, len(visits))
	for _, v := range visits {
		durations[v] = v.AbsoluteDuration()
	}
	ordered := make([]*StudyVisit, len(visits))
	copy(ordered, visits)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := durations[ordered[i]], durations[ordered[j]]
		if di == nil {
			return false
		}
		if dj == nil {
			return true
		}
		return *di < *dj
	})
	return ordered
}

// GenerateTimeline resolves anchors, orders the visits by absolute duration,
// assigns visit numbers and subvisit numbers and derives study days and weeks.
// It works on copies and returns them in timeline order.
func GenerateTimeline(input []StudyVisit) []*StudyVisit {
	visits := make([]*StudyVisit, len(input))
	for i := range input {
		v := input[i]
		v.resetDerived()
		visits[i] = &v
	}

	anchors := map[string]*StudyVisit{}
	byUID := map[string]*StudyVisit{}
	for _, v := range visits {
		anchors[v.VisitType] = v
		if v.UID != "" {
			byUID[v.UID] = v
		}
	}

	subvisitSets := map[string][]subvisit{}
	for _, v := range visits {
		if v.VisitSubclass == VisitSubclassAnchorVisit && v.UID != "" {
			subvisitSets[v.UID] = []subvisit{{visit: v, number: 0}}
		}
	}

	for idx, v := range visits {
		reference := ""
		if v.Timepoint != nil {
			reference = v.Timepoint.TimeReference
		}
		if reference == PreviousVisitName {
			if len(visits) > 1 && idx > 0 {
				v.anchorVisit = visits[idx-1]
			}
		} else if anchor, ok := anchors[reference]; ok && reference != "" && anchor != v {
			v.anchorVisit = anchor
		}

		switch {
		case v.VisitSubclass == VisitSubclassAdditionalSubvisit:
			if set, ok := subvisitSets[v.VisitSublabelReference]; ok {
				v.subvisitAnchor = set[0].visit
			}
		case v.VisitClass == VisitClassSpecial && v.VisitSublabelReference != "":
			if anchor, ok := byUID[v.VisitSublabelReference]; ok && anchor != v {
				v.subvisitAnchor = anchor
			}
		}
	}

	grouped := func(v *StudyVisit) bool {
		return v.VisitSubclass == VisitSubclassAdditionalSubvisit && v.subvisitAnchor != nil
	}

	ordered := orderByDuration(visits)

	order, lastVisitNum := 1, 1
	amountOfSubvisits := map[string]int{}
	for _, v := range ordered {
		switch {
		case v.VisitClass == VisitClassNonVisit:
			v.setOrderAndNumber(NonVisitNumber, NonVisitNumber)
		case v.VisitClass == VisitClassUnscheduled:
			v.setOrderAndNumber(UnscheduledVisitNumber, UnscheduledVisitNumber)
		case !grouped(v):
			v.setOrderAndNumber(order, lastVisitNum)
		}
		if grouped(v) {
			amountOfSubvisits[v.VisitSublabelReference]++
		} else {
			order++
			lastVisitNum++
		}
	}

	for _, v := range ordered {
		if grouped(v) {
			// subvisits are numbered after their anchors because some of them may
			// take place before the anchor visit of the group
			v.setOrderAndNumber(v.subvisitAnchor.VisitOrder, v.subvisitAnchor.VisitNumber)
			set := subvisitSets[v.VisitSublabelReference]
			step := subvisitIncrement(amountOfSubvisits[v.VisitSublabelReference])
			last := set[len(set)-1]
			num := last.number + step
			if durationGreater(last.visit.AbsoluteDuration(), v.AbsoluteDuration()) {
				// the visit takes the number of the last one and is placed before it,
				// the last one moves on to the newly computed number
				v.setSubvisitNumber(last.number)
				set = append(set[:len(set)-1], subvisit{visit: v, number: last.number}, subvisit{visit: last.visit, number: num})
				last.visit.setSubvisitNumber(num)
			} else {
				v.setSubvisitNumber(num)
				set = append(set, subvisit{visit: v, number: num})
			}
			subvisitSets[v.VisitSublabelReference] = set
		}

		if v.Timepoint != nil {
			v.StudyDay = v.DeriveStudyDay(false)
			v.StudyWeek = v.DeriveStudyWeek()
		}
	}

	return orderByDuration(visits)
}
