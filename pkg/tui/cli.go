// Package tui provides CourseDB's CLI output styling: plain prompts
// and tables, no full-screen TUI.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/coursedb/pkg/facade"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

// PrintHeader prints the CLI banner.
func PrintHeader() {
	fmt.Println()
	fmt.Println(titleStyle.Render("  COURSEDB") + mutedStyle.Render(" v0.1.0"))
	fmt.Println(mutedStyle.Render("  Course sections and campus rooms, queryable over HTTP"))
	fmt.Println()
}

// ShowArchiveProgress creates a progress bar counting up to total; the
// ingest command passes the archive's size in bytes.
func ShowArchiveProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// IngestSummary reports the outcome of one add-dataset call.
type IngestSummary struct {
	DatasetID string
	Kind      string
	NumRows   int
	Duration  time.Duration
}

// PrintIngestSummary prints the result of a completed ingest.
func PrintIngestSummary(s IngestSummary) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ INGEST COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Dataset:"), titleStyle.Render(s.DatasetID))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Kind:"), codeStyle.Render(s.Kind))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Rows:"), titleStyle.Render(formatNumber(int64(s.NumRows))))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	fmt.Println()
}

// PrintDatasetTable prints the current catalog of loaded datasets.
func PrintDatasetTable(infos []facade.DatasetInfo) {
	fmt.Println()
	if len(infos) == 0 {
		fmt.Println(mutedStyle.Render("  (no datasets loaded)"))
		fmt.Println()
		return
	}
	fmt.Println(accentStyle.Render("  ▸ DATASETS"))
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	for _, info := range infos {
		fmt.Printf("  %-24s %-10s %s\n",
			titleStyle.Render(info.ID),
			codeStyle.Render(info.Kind),
			mutedStyle.Render(fmt.Sprintf("%d rows", info.NumRows)))
	}
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Println()
}

// PrintQueryResultTable prints a query result as a column-aligned table.
func PrintQueryResultTable(rows []map[string]interface{}) {
	fmt.Println()
	if len(rows) == 0 {
		fmt.Println(mutedStyle.Render("  (0 rows)"))
		fmt.Println()
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	widths := make(map[string]int, len(columns))
	for _, c := range columns {
		widths[c] = len(c)
	}
	cells := make([]map[string]string, len(rows))
	for i, row := range rows {
		cells[i] = make(map[string]string, len(columns))
		for _, c := range columns {
			s := fmt.Sprintf("%v", row[c])
			cells[i][c] = s
			if len(s) > widths[c] {
				widths[c] = len(s)
			}
		}
	}

	var header strings.Builder
	for _, c := range columns {
		fmt.Fprintf(&header, "%-*s  ", widths[c], c)
	}
	fmt.Println(accentStyle.Render("  " + header.String()))
	fmt.Println(mutedStyle.Render("  " + strings.Repeat("─", header.Len())))

	for _, row := range cells {
		var line strings.Builder
		for _, c := range columns {
			fmt.Fprintf(&line, "%-*s  ", widths[c], row[c])
		}
		fmt.Println("  " + line.String())
	}
	fmt.Printf("  %s\n", mutedStyle.Render(fmt.Sprintf("(%d rows)", len(rows))))
	fmt.Println()
}

// ClearLine clears the current terminal line.
func ClearLine() {
	fmt.Print("\r\033[K")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// Spinner shows a simple loading indicator until done is signaled.
func Spinner(message string, done chan bool) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			fmt.Printf("\r%s %s\n", successStyle.Render("✓"), message)
			return
		default:
			fmt.Printf("\r%s %s", accentStyle.Render(frames[i]), message)
			i = (i + 1) % len(frames)
			time.Sleep(80 * time.Millisecond)
		}
	}
}
