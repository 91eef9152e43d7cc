// Package repository implements the analysis access patterns on top of the store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/clipmark/internal/apperrors"
	"github.com/verte-zerg/clipmark/internal/model"
	"github.com/verte-zerg/clipmark/internal/store"
)

// eventTypeBatch bounds one multi-row insert to 4*500 bound variables.
const eventTypeBatch = 500

const timestampNow = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// AnalysisRepository reads and writes analyses and their event types.
type AnalysisRepository struct {
	store  *store.Store
	logger *zap.Logger
}

// New returns a repository backed by st.
func New(st *store.Store, logger *zap.Logger) *AnalysisRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisRepository{store: st, logger: logger}
}

type analysisRow struct {
	ID           int64   `db:"id"`
	Name         string  `db:"name"`
	Path         string  `db:"path"`
	Duration     float64 `db:"duration"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
	LastOpenedAt string  `db:"last_opened_at"`
}

func (r analysisRow) toModel() (model.Analysis, error) {
	a := model.Analysis{
		ID:       r.ID,
		Name:     r.Name,
		Path:     r.Path,
		Duration: r.Duration,
	}
	var err error
	if a.CreatedAt, err = parseTimestamp(r.CreatedAt); err != nil {
		return model.Analysis{}, err
	}
	if a.UpdatedAt, err = parseTimestamp(r.UpdatedAt); err != nil {
		return model.Analysis{}, err
	}
	if a.LastOpenedAt, err = parseTimestamp(r.LastOpenedAt); err != nil {
		return model.Analysis{}, err
	}
	return a, nil
}

func parseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &store.PersistenceError{Op: "decode timestamp", Err: err}
	}
	return parsed, nil
}

// CreateAnalysis stores an analysis and all of its event types in one
// transaction and returns the new analysis id. Either every row commits or
// none does.
func (r *AnalysisRepository) CreateAnalysis(ctx context.Context, in model.NewAnalysis) (int64, error) {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil {
			r.logger.Warn("Failed to roll back analysis insert", zap.Error(rerr))
		}
	}()

	res, err := tx.Exec(ctx,
		`INSERT INTO analyses (name, path, duration) VALUES (?, ?, ?)`,
		in.Name, in.Path, in.Duration)
	if err != nil {
		return 0, err
	}
	if err := expectRows(res, 1, "insert analysis"); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &store.PersistenceError{Op: "insert analysis", Err: err}
	}

	for start := 0; start < len(in.EventTypes); start += eventTypeBatch {
		end := min(start+eventTypeBatch, len(in.EventTypes))
		if err := insertEventTypes(ctx, tx, id, in.EventTypes[start:end]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.logger.Debug("Created analysis",
		zap.Int64("analysis_id", id),
		zap.Int("event_types", len(in.EventTypes)))
	return id, nil
}

func insertEventTypes(ctx context.Context, tx *store.Tx, analysisID int64, eventTypes []model.EventTypeSpec) error {
	placeholders := make([]string, len(eventTypes))
	args := make([]any, 0, len(eventTypes)*4)
	for i, et := range eventTypes {
		placeholders[i] = "(?, ?, ?, ?)"
		args = append(args, analysisID, et.Name, et.KeyboardKey, et.Category)
	}
	query := fmt.Sprintf(`INSERT INTO analysis_event_types (analysis_id, name, keyboard_key, category)
		VALUES %s`, strings.Join(placeholders, ", "))
	res, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectRows(res, int64(len(eventTypes)), "insert event types")
}

func expectRows(res sql.Result, want int64, op string) error {
	got, err := res.RowsAffected()
	if err != nil {
		return &store.PersistenceError{Op: op, Err: err}
	}
	if got != want {
		return &store.PersistenceError{Op: op, Err: fmt.Errorf("affected %d rows, want %d", got, want)}
	}
	return nil
}

// ListAnalyses returns every stored analysis. Callers must not rely on the order.
func (r *AnalysisRepository) ListAnalyses(ctx context.Context) ([]model.Analysis, error) {
	var rows []analysisRow
	if err := r.store.Select(ctx, &rows,
		`SELECT id, name, path, duration, created_at, updated_at, last_opened_at
		FROM analyses
		ORDER BY id`); err != nil {
		return nil, err
	}
	analyses := make([]model.Analysis, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, nil
}

// GetAnalysis returns an analysis with its event types. A missing analysis
// yields an error wrapping apperrors.ErrNotFound.
func (r *AnalysisRepository) GetAnalysis(ctx context.Context, id int64) (model.AnalysisWithEventTypes, error) {
	var row analysisRow
	err := r.store.Get(ctx, &row,
		`SELECT id, name, path, duration, created_at, updated_at, last_opened_at
		FROM analyses
		WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnalysisWithEventTypes{}, fmt.Errorf("analysis %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return model.AnalysisWithEventTypes{}, err
	}
	analysis, err := row.toModel()
	if err != nil {
		return model.AnalysisWithEventTypes{}, err
	}

	eventTypes, err := r.ListEventTypes(ctx, id)
	if err != nil {
		return model.AnalysisWithEventTypes{}, err
	}
	return model.AnalysisWithEventTypes{Analysis: analysis, EventTypes: eventTypes}, nil
}

// ListEventTypes returns the event types of one analysis. An analysis with
// no event types, or no analysis at all, yields an empty slice.
func (r *AnalysisRepository) ListEventTypes(ctx context.Context, analysisID int64) ([]model.EventType, error) {
	eventTypes := []model.EventType{}
	if err := r.store.Select(ctx, &eventTypes,
		`SELECT id, analysis_id, name, keyboard_key, category
		FROM analysis_event_types
		WHERE analysis_id = ?
		ORDER BY id`, analysisID); err != nil {
		return nil, err
	}
	return eventTypes, nil
}

// MarkOpened records that the analysis was just opened.
func (r *AnalysisRepository) MarkOpened(ctx context.Context, id int64) error {
	n, err := r.store.Exec(ctx,
		`UPDATE analyses SET last_opened_at = `+timestampNow+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("analysis %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
