package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/clipmark/internal/model"
)

func ptr(v float64) *float64 {
	return &v
}

func occ(id string, typeID int64, start float64, end *float64) model.Occurrence {
	return model.Occurrence{EventID: id, EventTypeID: typeID, StartTimestamp: start, EndTimestamp: end}
}

type span struct {
	start float64
	end   float64
}

func spans(occs []model.Occurrence) []span {
	out := make([]span, len(occs))
	for i, o := range occs {
		out[i] = span{start: o.StartTimestamp, end: o.End()}
	}
	return out
}

func eventIDs(occs []model.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.EventID
	}
	return out
}

func TestSortOrdersByStartEndType(t *testing.T) {
	in := []model.Occurrence{
		occ("a", 2, 5, nil),
		occ("b", 1, 1, ptr(4)),
		occ("c", 1, 1, ptr(2)),
		occ("d", 1, 5, nil),
	}
	assert.Equal(t, []string{"c", "b", "d", "a"}, eventIDs(Sort(in)))
	assert.Equal(t, "a", in[0].EventID, "input must stay unmodified")
}

func TestGroupSortsEachBucket(t *testing.T) {
	groups := Group([]model.Occurrence{
		occ("a", 1, 3, nil),
		occ("b", 2, 1, nil),
		occ("c", 1, 1, nil),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"c", "a"}, eventIDs(groups[1]))
	assert.Equal(t, []string{"b"}, eventIDs(groups[2]))
}

func TestInsertInOrderAndRemove(t *testing.T) {
	occs := []model.Occurrence{occ("a", 1, 1, nil), occ("c", 1, 3, nil)}
	occs = InsertInOrder(occs, occ("b", 1, 2, nil))
	assert.Equal(t, []string{"a", "b", "c"}, eventIDs(occs))

	occs = Remove(occs, "a")
	assert.Equal(t, []string{"b", "c"}, eventIDs(occs))

	assert.Len(t, Remove(occs, "missing"), 2)
}

func TestOverlapping(t *testing.T) {
	existing := []model.Occurrence{
		occ("a", 1, 1, ptr(3)),
		occ("b", 1, 5, ptr(8)),
		occ("c", 1, 10, ptr(12)),
	}
	got := Overlapping(occ("n", 1, 2, ptr(6)), existing, model.CategoryRange)
	assert.Equal(t, []string{"a", "b"}, eventIDs(got))

	assert.Empty(t, Overlapping(occ("n", 1, 4, ptr(4.5)), existing, model.CategoryRange))

	singles := []model.Occurrence{occ("a", 2, 1, nil), occ("b", 2, 2, nil)}
	got = Overlapping(occ("n", 2, 2, nil), singles, model.CategorySingle)
	assert.Equal(t, []string{"b"}, eventIDs(got))
}

func TestDropOverlapping(t *testing.T) {
	categories := map[int64]model.Category{1: model.CategoryRange, 2: model.CategorySingle}
	in := []model.Occurrence{
		occ("c", 1, 6, ptr(8)),
		occ("b", 1, 2, ptr(5)),
		occ("a", 1, 1, ptr(3)),
		occ("s1", 2, 2, nil),
		occ("s2", 2, 2, nil),
		occ("s3", 2, 4, nil),
	}
	got := DropOverlapping(in, categories)
	assert.Equal(t, []string{"a", "s1", "s3", "c"}, eventIDs(got))
	assert.Len(t, in, 6, "input must stay unmodified")
}

func TestDropOverlappingKeepsOtherTypes(t *testing.T) {
	categories := map[int64]model.Category{1: model.CategoryRange, 2: model.CategoryRange}
	got := DropOverlapping([]model.Occurrence{
		occ("a", 1, 0, ptr(10)),
		occ("b", 2, 2, ptr(4)),
	}, categories)
	assert.Equal(t, []string{"a", "b"}, eventIDs(got))
}

func TestMerge(t *testing.T) {
	categories := map[int64]model.Category{1: model.CategoryRange, 2: model.CategorySingle}
	got := Merge([]model.Occurrence{
		occ("r1", 1, 4, ptr(6)),
		occ("r2", 1, 1, ptr(3)),
		occ("s1", 2, 2, nil),
		occ("s2", 2, 2, nil),
		occ("s3", 2, 7, nil),
	}, categories)

	assert.Equal(t, []span{{1, 6}, {2, 0}, {7, 0}}, spans(got))
	assert.Equal(t, "r2", got[0].EventID, "merged range keeps the earliest id")
}

func TestSplit(t *testing.T) {
	prev := newID
	t.Cleanup(func() { newID = prev })
	counter := 0
	newID = func() string {
		counter++
		return "new"
	}

	categories := map[int64]model.Category{1: model.CategoryRange}
	got := Split([]model.Occurrence{
		occ("a", 1, 0, ptr(10)),
		occ("b", 1, 5, ptr(15)),
	}, categories)

	assert.Equal(t, []span{{0, 5}, {5, 10}, {10, 15}}, spans(got))
	assert.Equal(t, []string{"a", "b", "new"}, eventIDs(got))
	assert.Equal(t, 1, counter)
}

func TestSplitKeepsSingleOccurrence(t *testing.T) {
	got := Split([]model.Occurrence{occ("a", 1, 0, ptr(10))}, map[int64]model.Category{1: model.CategoryRange})
	assert.Equal(t, []string{"a"}, eventIDs(got))
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0s"},
		{12.5, "12.5s"},
		{60, "1m 0.0s"},
		{123.04, "2m 3.0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.in), "FormatSeconds(%v)", tt.in)
	}
}
