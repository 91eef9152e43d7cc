// Package commands exposes the operations the user interface invokes.
// Errors returned from this package carry only a human-readable message.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/verte-zerg/clipmark/internal/apperrors"
	"github.com/verte-zerg/clipmark/internal/export"
	"github.com/verte-zerg/clipmark/internal/model"
)

// Repository is the storage the commands need.
type Repository interface {
	CreateAnalysis(ctx context.Context, in model.NewAnalysis) (int64, error)
	ListAnalyses(ctx context.Context) ([]model.Analysis, error)
	GetAnalysis(ctx context.Context, id int64) (model.AnalysisWithEventTypes, error)
	ListEventTypes(ctx context.Context, analysisID int64) ([]model.EventType, error)
	MarkOpened(ctx context.Context, id int64) error
}

// Destination receives an encoded export.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Error is the plain-text error handed to callers.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// MarshalJSON renders the error as a bare JSON string.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message)
}

func toError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Message: err.Error()}
}

// AddAnalysisParams is the input of AddAnalysis.
type AddAnalysisParams = model.NewAnalysis

// Service implements the command surface on top of a Repository.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New returns a Service.
func New(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// AddAnalysis creates an analysis with its event types and returns its id.
func (s *Service) AddAnalysis(ctx context.Context, params AddAnalysisParams) (int64, error) {
	id, err := s.repo.CreateAnalysis(ctx, params)
	if err != nil {
		s.logger.Error("Failed to add analysis", zap.String("name", params.Name), zap.Error(err))
		return 0, toError(err)
	}
	return id, nil
}

// GetAllAnalyses lists every analysis.
func (s *Service) GetAllAnalyses(ctx context.Context) ([]model.Analysis, error) {
	analyses, err := s.repo.ListAnalyses(ctx)
	if err != nil {
		s.logger.Error("Failed to list analyses", zap.Error(err))
		return nil, toError(err)
	}
	return analyses, nil
}

// GetAnalysisByID returns one analysis with its event types and records
// that it was opened.
func (s *Service) GetAnalysisByID(ctx context.Context, id int64) (model.AnalysisWithEventTypes, error) {
	analysis, err := s.repo.GetAnalysis(ctx, id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Error("Failed to get analysis", zap.Int64("analysis_id", id), zap.Error(err))
		}
		return model.AnalysisWithEventTypes{}, toError(err)
	}
	if err := s.repo.MarkOpened(ctx, id); err != nil {
		s.logger.Warn("Failed to record analysis open", zap.Int64("analysis_id", id), zap.Error(err))
	}
	return analysis, nil
}

// EventCategories maps each event type id of the analysis to its category.
// Unlike GetAnalysisByID it does not count as opening the analysis.
func (s *Service) EventCategories(ctx context.Context, analysisID int64) (map[int64]model.Category, error) {
	eventTypes, err := s.repo.ListEventTypes(ctx, analysisID)
	if err != nil {
		s.logger.Error("Failed to load event types", zap.Int64("analysis_id", analysisID), zap.Error(err))
		return nil, toError(err)
	}
	categories := make(map[int64]model.Category, len(eventTypes))
	for _, et := range eventTypes {
		categories[et.ID] = et.Category
	}
	return categories, nil
}

// SaveEventsToCSV encodes events against the analysis' event types and
// hands the complete document to dest. Nothing reaches dest on error.
func (s *Service) SaveEventsToCSV(ctx context.Context, analysisID int64, events []model.Occurrence, dest Destination) error {
	if dest == nil {
		return toError(apperrors.ErrNoDestination)
	}
	eventTypes, err := s.repo.ListEventTypes(ctx, analysisID)
	if err != nil {
		s.logger.Error("Failed to load event types", zap.Int64("analysis_id", analysisID), zap.Error(err))
		return toError(err)
	}
	data, err := export.CSV(eventTypes, events)
	if err != nil {
		return toError(err)
	}
	if err := dest.Write(ctx, data); err != nil {
		s.logger.Error("Failed to write export", zap.Int64("analysis_id", analysisID), zap.Error(err))
		return toError(err)
	}
	s.logger.Debug("Exported events",
		zap.Int64("analysis_id", analysisID),
		zap.Int("events", len(events)),
		zap.Int("bytes", len(data)))
	return nil
}

// FileDestination writes an export to a file, replacing it atomically.
type FileDestination struct {
	Path string
}

// Write implements Destination.
func (d FileDestination) Write(_ context.Context, data []byte) error {
	if d.Path == "" {
		return apperrors.ErrNoDestination
	}
	dir := filepath.Dir(d.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp export: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync export: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set export permissions: %w", err)
	}
	if err := os.Rename(tmpPath, d.Path); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
