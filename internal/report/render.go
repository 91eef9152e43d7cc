package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/verte-zerg/clipmark/internal/model"
	"github.com/verte-zerg/clipmark/internal/timeline"
)

const timeLayout = "2006-01-02 15:04"

// ShouldUseColor reports whether w is a terminal and NO_COLOR is unset.
func ShouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// Analyses writes one row per analysis.
func Analyses(w io.Writer, analyses []model.Analysis, color bool) error {
	if len(analyses) == 0 {
		_, err := fmt.Fprintln(w, "No analyses yet. Create one with: clipmark add")
		return err
	}
	rows := make([][]string, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.Name,
			timeline.FormatSeconds(a.Duration),
			formatTime(a.LastOpenedAt),
			a.Path,
		})
	}
	lines := formatTable([]string{"ID", "Name", "Duration", "Last Opened", "Path"}, rows, map[int]bool{0: true, 2: true})
	return writeLines(w, styleHeader(lines, color))
}

// Analysis writes an analysis summary followed by its event types.
func Analysis(w io.Writer, a model.AnalysisWithEventTypes, color bool) error {
	summary := [][]string{
		{"Name", a.Analysis.Name},
		{"Path", a.Analysis.Path},
		{"Duration", timeline.FormatSeconds(a.Analysis.Duration)},
		{"Created", formatTime(a.Analysis.CreatedAt)},
		{"Updated", formatTime(a.Analysis.UpdatedAt)},
		{"Last Opened", formatTime(a.Analysis.LastOpenedAt)},
	}
	if err := writeLines(w, formatTable(nil, summary, nil)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	if len(a.EventTypes) == 0 {
		_, err := fmt.Fprintln(w, "No event types.")
		return err
	}
	rows := make([][]string, 0, len(a.EventTypes))
	for _, et := range a.EventTypes {
		rows = append(rows, []string{strconv.FormatInt(et.ID, 10), et.Name, et.KeyboardKey, et.Category.String()})
	}
	lines := formatTable([]string{"ID", "Event Type", "Key", "Category"}, rows, map[int]bool{0: true})
	return writeLines(w, styleHeader(lines, color))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func writeLines(w io.Writer, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
