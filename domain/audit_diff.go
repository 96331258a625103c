package domain

import "reflect"

// Snapshot is one historical state flattened to field name -> value.
type Snapshot map[string]interface{}

// ObjectDiff compares every field of current with previous. A nil previous
// yields an empty diff.
func ObjectDiff(current, previous Snapshot) map[string]bool {
	changes := map[string]bool{}
	if previous == nil {
		return changes
	}
	for name, value := range current {
		before, ok := previous[name]
		changes[name] = !ok || !reflect.DeepEqual(value, before)
	}
	return changes
}

// CalculateDiffs annotates a newest-first history. Entry i is compared with
// entry i+1, its chronological predecessor; the oldest entry has no diff.
func CalculateDiffs(history []Snapshot) []map[string]bool {
	diffs := make([]map[string]bool, len(history))
	for i := range history {
		if i == len(history)-1 {
			diffs[i] = map[string]bool{}
			continue
		}
		diffs[i] = ObjectDiff(history[i], history[i+1])
	}
	return diffs
}
