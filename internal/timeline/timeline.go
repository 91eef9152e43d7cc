// Package timeline provides ordering and reshaping helpers for occurrences
// marked on a media timeline.
package timeline

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/verte-zerg/clipmark/internal/model"
)

// newID mints identifiers for occurrences created by Split.
var newID = uuid.NewString

func compareOccurrences(a, b model.Occurrence) int {
	return cmp.Or(
		cmp.Compare(a.StartTimestamp, b.StartTimestamp),
		cmp.Compare(a.End(), b.End()),
		cmp.Compare(a.EventTypeID, b.EventTypeID),
	)
}

// Sort orders occurrences by start, then end (absent counts as 0), then
// event type id. The input is not modified.
func Sort(occs []model.Occurrence) []model.Occurrence {
	out := slices.Clone(occs)
	slices.SortStableFunc(out, compareOccurrences)
	return out
}

// Group buckets occurrences by event type, each bucket ordered by start.
func Group(occs []model.Occurrence) map[int64][]model.Occurrence {
	groups := map[int64][]model.Occurrence{}
	for _, o := range occs {
		groups[o.EventTypeID] = append(groups[o.EventTypeID], o)
	}
	for id, group := range groups {
		slices.SortStableFunc(group, func(a, b model.Occurrence) int {
			return cmp.Compare(a.StartTimestamp, b.StartTimestamp)
		})
		groups[id] = group
	}
	return groups
}

func flatten(groups map[int64][]model.Occurrence) []model.Occurrence {
	var out []model.Occurrence
	for _, group := range groups {
		out = append(out, group...)
	}
	slices.SortStableFunc(out, compareOccurrences)
	return out
}

// InsertInOrder returns a new slice holding occs and o, sorted.
func InsertInOrder(occs []model.Occurrence, o model.Occurrence) []model.Occurrence {
	return Sort(append(slices.Clone(occs), o))
}

// Remove returns occs without the occurrence identified by eventID.
func Remove(occs []model.Occurrence, eventID string) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if o.EventID != eventID {
			out = append(out, o)
		}
	}
	return out
}

// Overlapping returns the occurrences that collide with o. A single
// occurrence collides with anything starting at the same instant; a range
// collides with any occurrence whose span touches it.
func Overlapping(o model.Occurrence, occs []model.Occurrence, category model.Category) []model.Occurrence {
	var out []model.Occurrence
	for _, other := range occs {
		if category == model.CategorySingle {
			if other.StartTimestamp == o.StartTimestamp {
				out = append(out, other)
			}
			continue
		}
		containsOther := o.StartTimestamp <= other.StartTimestamp && o.End() >= other.StartTimestamp
		containsStart := other.StartTimestamp <= o.StartTimestamp && other.End() >= o.StartTimestamp
		containsEnd := other.StartTimestamp <= o.End() && other.End() >= o.End()
		if containsOther || containsStart || containsEnd {
			out = append(out, other)
		}
	}
	return out
}

// DropOverlapping replays occurrences in order and keeps only those that do
// not collide with an already kept occurrence of the same event type. The
// result is sorted.
func DropOverlapping(occs []model.Occurrence, categories map[int64]model.Category) []model.Occurrence {
	var kept []model.Occurrence
	byType := map[int64][]model.Occurrence{}
	for _, o := range Sort(occs) {
		if len(Overlapping(o, byType[o.EventTypeID], categories[o.EventTypeID])) > 0 {
			continue
		}
		byType[o.EventTypeID] = append(byType[o.EventTypeID], o)
		kept = InsertInOrder(kept, o)
	}
	return kept
}

func dedupeStarts(group []model.Occurrence) []model.Occurrence {
	seen := map[float64]struct{}{}
	out := make([]model.Occurrence, 0, len(group))
	for _, o := range group {
		if _, ok := seen[o.StartTimestamp]; ok {
			continue
		}
		seen[o.StartTimestamp] = struct{}{}
		out = append(out, o)
	}
	return out
}

// Merge collapses each event type's occurrences. Single types lose
// duplicate starts; range types become one occurrence spanning the earliest
// start to the latest end.
func Merge(occs []model.Occurrence, categories map[int64]model.Category) []model.Occurrence {
	groups := Group(occs)
	for id, group := range groups {
		if len(group) <= 1 {
			continue
		}
		if categories[id] == model.CategorySingle {
			groups[id] = dedupeStarts(group)
			continue
		}
		merged := group[0]
		for _, o := range group[1:] {
			if o.StartTimestamp < merged.StartTimestamp {
				merged.StartTimestamp = o.StartTimestamp
			}
			if o.EndTimestamp != nil && (merged.EndTimestamp == nil || *o.EndTimestamp > *merged.EndTimestamp) {
				end := *o.EndTimestamp
				merged.EndTimestamp = &end
			}
		}
		groups[id] = []model.Occurrence{merged}
	}
	return flatten(groups)
}

// Split cuts each range type's occurrences at every start and end so the
// result is a sequence of non-overlapping segments. Segments keep the
// original event ids first; extra segments get fresh ids. Single types lose
// duplicate starts.
func Split(occs []model.Occurrence, categories map[int64]model.Category) []model.Occurrence {
	groups := Group(occs)
	for id, group := range groups {
		if len(group) <= 1 {
			continue
		}
		if categories[id] == model.CategorySingle {
			groups[id] = dedupeStarts(group)
			continue
		}

		bounds := make([]float64, 0, len(group)*2)
		for _, o := range group {
			bounds = append(bounds, o.StartTimestamp, o.End())
		}
		slices.Sort(bounds)

		var segments []model.Occurrence
		for i := 0; i+1 < len(bounds); i++ {
			start, end := bounds[i], bounds[i+1]
			if start == end {
				continue
			}
			seg := group[0]
			seg.StartTimestamp = start
			seg.EndTimestamp = &end
			segments = append(segments, seg)
		}
		for i := range segments {
			if i < len(group) {
				segments[i].EventID = group[i].EventID
			} else {
				segments[i].EventID = newID()
			}
		}
		groups[id] = segments
	}
	return flatten(groups)
}

// FormatSeconds renders a media position as "12.5s" or "2m 3.0s".
func FormatSeconds(seconds float64) string {
	minutes := math.Floor(seconds / 60)
	remaining := math.Mod(seconds, 60)
	if minutes == 0 {
		return fmt.Sprintf("%.1fs", remaining)
	}
	return fmt.Sprintf("%dm %.1fs", int64(minutes), remaining)
}
