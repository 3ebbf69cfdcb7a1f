package notification

import (
	"cmp"
	"slices"

	"github.com/dukerupert/conea/internal/model"
)

// Matches reports whether n satisfies every set field of f. Date range
// bounds are inclusive and a zero bound is open.
func Matches(n model.Notification, f model.Filters) bool {
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if f.Type != nil && n.Type != *f.Type {
		return false
	}
	if f.Category != nil && n.Category != *f.Category {
		return false
	}
	if f.Priority != nil && n.Priority != *f.Priority {
		return false
	}
	if r := f.DateRange; r != nil {
		if !r.Start.IsZero() && n.Timestamp.Before(r.Start) {
			return false
		}
		if !r.End.IsZero() && n.Timestamp.After(r.End) {
			return false
		}
	}
	return true
}

// SortNotifications sorts list in place by opts. Ties on priority or type
// fall back to newest first; timestamp ties fall back to higher priority.
// An empty field sorts by timestamp and an empty direction is descending.
func SortNotifications(list []model.Notification, opts model.SortOptions) {
	desc := opts.Direction != model.SortAsc

	byTimestamp := func(a, b model.Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	}
	byPriority := func(a, b model.Notification) int {
		return cmp.Compare(b.Priority.Rank(), a.Priority.Rank())
	}

	slices.SortStableFunc(list, func(a, b model.Notification) int {
		var primary, tie int
		switch opts.Field {
		case model.SortByPriority:
			primary, tie = byPriority(a, b), byTimestamp(a, b)
		case model.SortByType:
			primary, tie = -cmp.Compare(a.Type, b.Type), byTimestamp(a, b)
		default:
			primary, tie = byTimestamp(a, b), byPriority(a, b)
		}
		if !desc {
			primary = -primary
		}
		if primary != 0 {
			return primary
		}
		return tie
	})
}
