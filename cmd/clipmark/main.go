// Package main provides the CLI entrypoint for clipmark.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/clipmark/internal/commands"
	"github.com/verte-zerg/clipmark/internal/config"
	"github.com/verte-zerg/clipmark/internal/logging"
	"github.com/verte-zerg/clipmark/internal/model"
	"github.com/verte-zerg/clipmark/internal/report"
	"github.com/verte-zerg/clipmark/internal/repository"
	"github.com/verte-zerg/clipmark/internal/store"
	"github.com/verte-zerg/clipmark/internal/timeline"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
)

var (
	dbPathFlag   string
	logLevelFlag string

	addName       string
	addPath       string
	addDuration   float64
	addEventTypes []string
	addFrom       string

	outputFormat string

	exportEvents  string
	exportOut     string
	exportExclude []string
	exportMerge   bool
	exportSplit   bool
	exportDedupe  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clipmark",
		Short:         "Mark and export time-coded events in media files",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database file (default: $XDG_DATA_HOME/clipmark/app_data.sqlite)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

type app struct {
	settings config.Settings
	logger   *zap.Logger
	store    *store.Store
	service  *commands.Service
}

func openApp(cmd *cobra.Command) (*app, error) {
	settings, err := config.Resolve(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringFlag(cmd, "db", &settings.DBPath, dbPathFlag)
	applyStringFlag(cmd, "log-level", &settings.LogLevel, logLevelFlag)

	logger, err := logging.New(settings.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(settings.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	repo := repository.New(st, logger)
	return &app{
		settings: settings,
		logger:   logger,
		store:    st,
		service:  commands.New(repo, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
	_ = a.logger.Sync()
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an analysis with its event types",
		Args:  cobra.NoArgs,
		RunE:  runAddCmd,
	}
	cmd.Flags().StringVar(&addName, "name", "", "analysis name")
	cmd.Flags().StringVar(&addPath, "path", "", "media file the analysis refers to")
	cmd.Flags().Float64Var(&addDuration, "duration", 0, "media duration in seconds")
	cmd.Flags().StringArrayVar(&addEventTypes, "event-type", nil, "event type as name:key:category (repeatable)")
	cmd.Flags().StringVar(&addFrom, "from", "", "YAML or JSON file describing the analysis")
	return cmd
}

func runAddCmd(cmd *cobra.Command, _ []string) error {
	var params model.NewAnalysis
	if addFrom != "" {
		if err := decodeFile(addFrom, &params); err != nil {
			return err
		}
	}
	applyStringFlag(cmd, "name", &params.Name, addName)
	applyStringFlag(cmd, "path", &params.Path, addPath)
	if cmd.Flags().Changed("duration") {
		params.Duration = addDuration
	}
	for _, raw := range addEventTypes {
		et, err := parseEventTypeFlag(raw)
		if err != nil {
			return err
		}
		params.EventTypes = append(params.EventTypes, et)
	}
	if err := validateNewAnalysis(params); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.service.AddAnalysis(cmd.Context(), params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
	return err
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analyses",
		Args:  cobra.NoArgs,
		RunE:  runListCmd,
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "output format (table, yaml)")
	return cmd
}

func runListCmd(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(outputFormat); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	analyses, err := a.service.GetAllAnalyses(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputFormat == outputYAML {
		return writeYAML(out, analyses)
	}
	return report.Analyses(out, analyses, report.ShouldUseColor(out))
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show an analysis and its event types",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "output format (table, yaml)")
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	if err := validateOutput(outputFormat); err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	analysis, err := a.service.GetAnalysisByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputFormat == outputYAML {
		return writeYAML(out, analysis)
	}
	return report.Analysis(out, analysis, report.ShouldUseColor(out))
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export recorded events of an analysis to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&exportEvents, "events", "", "YAML or JSON file with recorded events")
	cmd.Flags().StringVar(&exportOut, "out", "", "CSV destination (default: analysis-<id>-events.csv in the export dir)")
	cmd.Flags().BoolVar(&exportMerge, "merge", false, "merge overlapping events of each type before export")
	cmd.Flags().BoolVar(&exportSplit, "split", false, "split overlapping events of each type into segments before export")
	cmd.Flags().BoolVar(&exportDedupe, "dedupe", false, "drop events that collide with an earlier event of the same type")
	cmd.Flags().StringArrayVar(&exportExclude, "exclude", nil, "event id to leave out (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("merge", "split", "dedupe")
	_ = cmd.MarkFlagRequired("events")
	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	var events []model.Occurrence
	if err := decodeFile(exportEvents, &events); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var categories map[int64]model.Category
	if exportMerge || exportSplit || exportDedupe {
		categories, err = a.service.EventCategories(cmd.Context(), id)
		if err != nil {
			return err
		}
	}
	events = reshapeEvents(events, categories)

	path := exportOut
	if path == "" {
		dir := a.settings.ExportDir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, fmt.Sprintf("analysis-%d-events.csv", id))
	}
	if err := a.service.SaveEventsToCSV(cmd.Context(), id, events, commands.FileDestination{Path: path}); err != nil {
		return err
	}
	logErrf("Wrote %d events to %s\n", len(events), path)
	return nil
}

// reshapeEvents drops excluded event ids and then applies at most one of
// the merge, split or dedupe passes selected by flags.
func reshapeEvents(events []model.Occurrence, categories map[int64]model.Category) []model.Occurrence {
	for _, eventID := range exportExclude {
		events = timeline.Remove(events, eventID)
	}
	switch {
	case exportMerge:
		return timeline.Merge(events, categories)
	case exportSplit:
		return timeline.Split(events, categories)
	case exportDedupe:
		return timeline.DropOverlapping(events, categories)
	default:
		return events
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# clipmark configuration
# Uncomment a value to enable it. Environment variables (CLIPMARK_DB_PATH,
# CLIPMARK_LOG_LEVEL, CLIPMARK_EXPORT_DIR) override this file; CLI flags
# override both.

[storage]
# path = %q

[log]
# level = %q              # debug, info, warn or error

[export]
# dir = "."               # Default directory for CSV exports
`,
		config.DefaultDBPath(),
		config.DefaultLogLevel,
	)
}

// parseEventTypeFlag parses "name:key:category". The name may itself
// contain colons.
func parseEventTypeFlag(raw string) (model.EventTypeSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return model.EventTypeSpec{}, fmt.Errorf("invalid --event-type %q (want name:key:category)", raw)
	}
	n := len(parts)
	category, err := model.ParseCategory(parts[n-1])
	if err != nil {
		return model.EventTypeSpec{}, fmt.Errorf("invalid --event-type %q: %w", raw, err)
	}
	et := model.EventTypeSpec{
		Name:        strings.TrimSpace(strings.Join(parts[:n-2], ":")),
		KeyboardKey: strings.TrimSpace(parts[n-2]),
		Category:    category,
	}
	if et.Name == "" {
		return model.EventTypeSpec{}, fmt.Errorf("invalid --event-type %q: name is empty", raw)
	}
	return et, nil
}

func validateNewAnalysis(params model.NewAnalysis) error {
	if strings.TrimSpace(params.Name) == "" {
		return fmt.Errorf("--name must not be empty")
	}
	if strings.TrimSpace(params.Path) == "" {
		return fmt.Errorf("--path must not be empty")
	}
	if params.Duration < 0 {
		return fmt.Errorf("--duration must be >= 0")
	}
	seen := make(map[string]struct{}, len(params.EventTypes))
	for _, et := range params.EventTypes {
		if _, ok := seen[et.Name]; ok {
			return fmt.Errorf("duplicate event type %q", et.Name)
		}
		seen[et.Name] = struct{}{}
	}
	return nil
}

func validateOutput(format string) error {
	switch format {
	case outputTable, outputYAML:
		return nil
	default:
		return fmt.Errorf("--output must be %q or %q", outputTable, outputYAML)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid analysis id %q", raw)
	}
	return id, nil
}

// decodeFile reads YAML, or JSON as a YAML subset, into dest.
func decodeFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return enc.Close()
}

func applyStringFlag(cmd *cobra.Command, name string, target *string, value string) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
