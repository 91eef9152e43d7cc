// Package export encodes recorded occurrences for use outside the application.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/verte-zerg/clipmark/internal/apperrors"
	"github.com/verte-zerg/clipmark/internal/model"
)

var header = []string{"Event Type", "Start Time", "End Time"}

// UnknownEventTypeError reports an occurrence whose type is not among the
// supplied event types.
type UnknownEventTypeError struct {
	Index       int
	EventTypeID int64
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("occurrence %d: event type %d not found", e.Index, e.EventTypeID)
}

func (e *UnknownEventTypeError) Is(target error) bool {
	return target == apperrors.ErrUnknownEventType
}

// InconsistentOccurrenceError reports a range occurrence without an end, or a
// single occurrence with one.
type InconsistentOccurrenceError struct {
	Index     int
	EventType string
	Category  model.Category
}

func (e *InconsistentOccurrenceError) Error() string {
	if e.Category == model.CategoryRange {
		return fmt.Sprintf("occurrence %d: range event %q has no end time", e.Index, e.EventType)
	}
	return fmt.Sprintf("occurrence %d: single event %q must not have an end time", e.Index, e.EventType)
}

func (e *InconsistentOccurrenceError) Is(target error) bool {
	return target == apperrors.ErrInconsistentOccurrence
}

// EncodingError reports a failure of the CSV writer itself.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%v: %v", apperrors.ErrEncoding, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

func (e *EncodingError) Is(target error) bool {
	return target == apperrors.ErrEncoding
}

// CSV renders occurrences as a three-column document: event type name,
// start time and end time. The buffer is returned only if every occurrence
// encoded; on error nothing is returned.
func CSV(eventTypes []model.EventType, occurrences []model.Occurrence) ([]byte, error) {
	if len(eventTypes) == 0 {
		return nil, apperrors.ErrEmptyEventTypes
	}
	byID := make(map[int64]model.EventType, len(eventTypes))
	for _, et := range eventTypes {
		byID[et.ID] = et
	}

	rows := make([][]string, 0, len(occurrences)+1)
	rows = append(rows, header)
	for i, occ := range occurrences {
		et, ok := byID[occ.EventTypeID]
		if !ok {
			return nil, &UnknownEventTypeError{Index: i, EventTypeID: occ.EventTypeID}
		}
		if err := checkCategory(i, et, occ); err != nil {
			return nil, err
		}
		end := ""
		if occ.EndTimestamp != nil {
			end = formatSeconds(*occ.EndTimestamp)
		}
		rows = append(rows, []string{et.Name, formatSeconds(occ.StartTimestamp), end})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, &EncodingError{Err: err}
	}
	return buf.Bytes(), nil
}

func checkCategory(index int, et model.EventType, occ model.Occurrence) error {
	switch et.Category {
	case model.CategoryRange:
		if occ.EndTimestamp == nil {
			return &InconsistentOccurrenceError{Index: index, EventType: et.Name, Category: et.Category}
		}
	case model.CategorySingle:
		if occ.EndTimestamp != nil {
			return &InconsistentOccurrenceError{Index: index, EventType: et.Name, Category: et.Category}
		}
	}
	return nil
}

// formatSeconds uses the shortest decimal form: 1 -> "1", 0.5 -> "0.5".
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
