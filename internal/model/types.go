// Package model defines shared data structures.
package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Category distinguishes instantaneous events from duration-bearing ones.
type Category string

// Supported event categories. Values match their storage representation.
const (
	CategorySingle Category = "single"
	CategoryRange  Category = "range"
)

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategorySingle:
		return CategorySingle, nil
	case CategoryRange:
		return CategoryRange, nil
	default:
		return "", fmt.Errorf("invalid event category %q (want single or range)", s)
	}
}

// Valid reports whether c is one of the defined variants.
func (c Category) Valid() bool {
	return c == CategorySingle || c == CategoryRange
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid event category %q", string(c))
	}
	return []byte(c), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer. Unknown variants never reach a row.
func (c Category) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid event category %q", string(c))
	}
	return string(c), nil
}

// Scan implements sql.Scanner. The stored text must be an exact lowercase
// variant; anything else is a decode error.
func (c *Category) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot decode event category from %T", src)
	}
	switch Category(raw) {
	case CategorySingle, CategoryRange:
		*c = Category(raw)
		return nil
	default:
		return fmt.Errorf("cannot decode event category %q", raw)
	}
}

// Analysis is a study session over a media file.
type Analysis struct {
	ID           int64     `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Path         string    `json:"path" yaml:"path"`
	Duration     float64   `json:"duration" yaml:"duration"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	LastOpenedAt time.Time `json:"last_opened_at" yaml:"last_opened_at"`
}

// EventType is a named, keyed kind of occurrence within an analysis.
type EventType struct {
	ID          int64    `json:"id" yaml:"id" db:"id"`
	AnalysisID  int64    `json:"analysis_id" yaml:"analysis_id" db:"analysis_id"`
	Name        string   `json:"name" yaml:"name" db:"name"`
	KeyboardKey string   `json:"keyboard_key" yaml:"keyboard_key" db:"keyboard_key"`
	Category    Category `json:"category" yaml:"category" db:"category"`
}

// EventTypeSpec describes an event type to create alongside an analysis.
type EventTypeSpec struct {
	Name        string   `json:"name" yaml:"name"`
	KeyboardKey string   `json:"keyboard_key" yaml:"keyboard_key"`
	Category    Category `json:"category" yaml:"category"`
}

// NewAnalysis holds the input for creating an analysis.
type NewAnalysis struct {
	Name       string          `json:"name" yaml:"name"`
	Path       string          `json:"path" yaml:"path"`
	Duration   float64         `json:"duration" yaml:"duration"`
	EventTypes []EventTypeSpec `json:"event_types" yaml:"event_types"`
}

// AnalysisWithEventTypes pairs an analysis with its event types.
type AnalysisWithEventTypes struct {
	Analysis   Analysis    `json:"analysis_data" yaml:"analysis_data"`
	EventTypes []EventType `json:"event_types" yaml:"event_types"`
}

// Occurrence is one marked instance of an event type. It is supplied by the
// caller and never persisted here.
type Occurrence struct {
	EventID        string   `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	EventTypeID    int64    `json:"event_type_id" yaml:"event_type_id"`
	StartTimestamp float64  `json:"start_timestamp" yaml:"start_timestamp"`
	EndTimestamp   *float64 `json:"end_timestamp,omitempty" yaml:"end_timestamp,omitempty"`
}

// End returns the end timestamp, or 0 when absent.
func (o Occurrence) End() float64 {
	if o.EndTimestamp == nil {
		return 0
	}
	return *o.EndTimestamp
}
