// Package apperrors defines sentinel errors shared across packages. Match
// them with errors.Is.
package apperrors

import "errors"

var (
	// ErrNotFound is returned when a requested analysis does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyEventTypes is returned when an export targets an analysis
	// without event types.
	ErrEmptyEventTypes = errors.New("no event types found for the given analysis")
	// ErrUnknownEventType matches occurrences referring to an event type the
	// analysis does not define.
	ErrUnknownEventType = errors.New("event type not found")
	// ErrInconsistentOccurrence matches a range occurrence without an end or
	// a single occurrence with one.
	ErrInconsistentOccurrence = errors.New("occurrence does not match its event category")
	// ErrEncoding matches failures of the CSV writer.
	ErrEncoding = errors.New("failed to encode csv")
	// ErrNoDestination is returned when an export has nowhere to go.
	ErrNoDestination = errors.New("file path not selected")
)
