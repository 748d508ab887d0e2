package main

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gridflow/internal/api"
)

var displayCaser = cases.Title(language.English)

func renderStatus(w io.Writer, status api.DaemonStatus, colorize bool) {
	daemonRows := []table.Row{
		{"State", runningLabel(status.Running, colorize)},
		{"PID", status.PID},
		{"Gallery DB", status.GalleryDB},
		{"Lock file", status.LockFilePath},
		{"Providers", strings.Join(status.Providers, ", ")},
	}
	renderTable(w, "Daemon", nil, daemonRows)

	renderPipeline(w, status.Pipeline, colorize)
	renderBatch(w, status.Batch, colorize)
	renderChain(w, status.Chain, colorize)
}

func renderPipeline(w io.Writer, pipeline api.PipelineStatus, colorize bool) {
	rows := []table.Row{
		{"Phase", displayPhase(pipeline.Phase)},
		{"Frames", aggregateSummary(pipeline.FrameAggregate)},
		{"Transitions", aggregateSummary(pipeline.TransitionAggregate)},
	}
	if pipeline.LastError != "" {
		rows = append(rows, table.Row{"Last error", errorLabel(pipeline.LastError, colorize)})
	}
	renderTable(w, "Pipeline", nil, rows)

	if len(pipeline.Transitions) > 0 {
		renderUnits(w, "Transitions", pipeline.Transitions, colorize)
	}
}

func renderBatch(w io.Writer, batch api.BatchStatus, colorize bool) {
	rows := []table.Row{
		{"Running", yesNo(batch.Running)},
		{"Items", aggregateSummary(batch.Aggregate)},
	}
	renderTable(w, "Batch", nil, rows)

	if len(batch.Items) > 0 {
		renderUnits(w, "Batch items", batch.Items, colorize)
	}
}

func renderChain(w io.Writer, chain api.ChainStatus, colorize bool) {
	rows := []table.Row{
		{"Running", yesNo(chain.Running)},
		{"Segments", len(chain.Segments)},
	}
	if chain.Anchor != "" {
		rows = append(rows, table.Row{"Next anchor", chain.Anchor})
	}
	if chain.StitchedRef != "" {
		rows = append(rows, table.Row{"Stitched", chain.StitchedRef})
	}
	if chain.LastError != "" {
		rows = append(rows, table.Row{"Last error", errorLabel(chain.LastError, colorize)})
	}
	renderTable(w, "Chain", nil, rows)
}

func renderUnits(w io.Writer, title string, units []api.Unit, colorize bool) {
	rows := make([]table.Row, 0, len(units))
	for _, u := range units {
		detail := u.OutputRef
		if u.ErrorDetail != "" {
			detail = u.ErrorDetail
		}
		rows = append(rows, table.Row{u.ID, statusLabel(u.Status, colorize), u.InputRef, detail})
	}
	renderTable(w, title, table.Row{"ID", "Status", "Input", "Result"}, rows)
}

func aggregateSummary(agg api.Aggregate) string {
	if agg.Total == 0 {
		return "none"
	}
	return fmt.Sprintf("%d/%d done (%.0f%%), %d active, %d failed",
		agg.Completed, agg.Total, agg.Percent, agg.Processing, agg.Error)
}

func statusLabel(status string, colorize bool) string {
	label := displayCaser.String(status)
	if !colorize {
		return label
	}
	switch status {
	case "completed":
		return text.FgGreen.Sprint(label)
	case "processing":
		return text.FgYellow.Sprint(label)
	case "error":
		return text.FgRed.Sprint(label)
	default:
		return label
	}
}

func runningLabel(running, colorize bool) string {
	if running {
		if colorize {
			return text.FgGreen.Sprint("Running")
		}
		return "Running"
	}
	if colorize {
		return text.FgRed.Sprint("Stopped")
	}
	return "Stopped"
}

func errorLabel(detail string, colorize bool) string {
	if colorize {
		return text.FgRed.Sprint(detail)
	}
	return detail
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// displayPhase turns a camelCase phase name into spaced title case, so
// "generatingVideos" renders as "Generating Videos".
func displayPhase(phase string) string {
	if phase == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range phase {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return displayCaser.String(b.String())
}
