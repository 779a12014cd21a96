package service

import "github.com/noah-isme/sma-merit-api/internal/models"

// scopeChanges is the minimal set of writes that makes one scope match its
// desired list.
type scopeChanges struct {
	Updates []*models.Event
	Creates []*resolvedEvent
	Deletes []string
}

// reconcile diffs the existing rows of a scope, in insertion order, against
// the desired list. Rows sharing a bucket key are paired by position: the
// i-th existing row takes the values of the i-th desired entry, surplus
// desired entries are created and surplus existing rows are deleted.
//
// Pairing is by position, not identity. When a client reorders entries that
// share a key, values move between rows instead of following the row.
func reconcile(existing []models.Event, desired []*resolvedEvent) scopeChanges {
	var order []bucketKey
	want := make(map[bucketKey][]*resolvedEvent)
	have := make(map[bucketKey][]*models.Event)

	for _, d := range desired {
		key := desiredBucket(d)
		if _, seen := want[key]; !seen {
			order = append(order, key)
		}
		want[key] = append(want[key], d)
	}
	for i := range existing {
		row := &existing[i]
		key := existingBucket(row)
		if _, seen := want[key]; !seen {
			if _, listed := have[key]; !listed {
				order = append(order, key)
			}
		}
		have[key] = append(have[key], row)
	}

	var changes scopeChanges
	for _, key := range order {
		rows, items := have[key], want[key]
		matched := min(len(rows), len(items))
		for i := 0; i < matched; i++ {
			updated := *rows[i]
			updated.Points = items[i].Points
			updated.Description = items[i].Description
			changes.Updates = append(changes.Updates, &updated)
		}
		changes.Creates = append(changes.Creates, items[matched:]...)
		for _, row := range rows[matched:] {
			changes.Deletes = append(changes.Deletes, row.ID)
		}
	}
	return changes
}
