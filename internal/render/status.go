// Package render formats pipeline state for human-readable output.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/forgeci/forge/internal/matrix"
)

// Placeholder for absent optional cells.
const emptyCell = "-"

// StatusRow holds the display fields for one pipeline step.
type StatusRow struct {
	Step        string
	Status      string
	Artifact    string
	LastSuccess string
	Upstream    string
	Downstream  string
}

// StatusRows converts a matrix document into display rows, one per step
// in the given order. Steps missing from the document are skipped.
func StatusRows(doc matrix.Document, order []string) []StatusRow {
	rows := make([]StatusRow, 0, len(order))
	for _, id := range order {
		e, ok := doc.Entries[id]
		if !ok {
			continue
		}
		rows = append(rows, StatusRow{
			Step:        e.StepID,
			Status:      string(e.Status),
			Artifact:    orDash(e.Artifact),
			LastSuccess: orDash(e.LastSuccess),
			Upstream:    joinOrDash(e.Upstream),
			Downstream:  joinOrDash(e.Downstream),
		})
	}
	return rows
}

// WriteStatus writes the step status table. Columns are padded to the
// widest cell so the output scans as aligned columns.
func WriteStatus(w io.Writer, rows []StatusRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no steps in matrix (run update-matrix first)")
		return err
	}

	widths := statusWidths(rows)

	header := formatStatusRow(
		"STEP", widths.step,
		"STATUS", widths.status,
		"ARTIFACT", widths.artifact,
		"LAST_SUCCESS", widths.lastSuccess,
		"UPSTREAM", widths.upstream,
		"DOWNSTREAM",
	)
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	for _, row := range rows {
		line := formatStatusRow(
			row.Step, widths.step,
			row.Status, widths.status,
			row.Artifact, widths.artifact,
			row.LastSuccess, widths.lastSuccess,
			row.Upstream, widths.upstream,
			row.Downstream,
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

// WriteStatusSummary writes the trailing lock/strike counts line.
func WriteStatusSummary(w io.Writer, locked, total, strikes int) error {
	_, err := fmt.Fprintf(w, "\n%d/%d steps locked, %d archived failures\n", locked, total, strikes)
	return err
}

type statusColWidths struct {
	step        int
	status      int
	artifact    int
	lastSuccess int
	upstream    int
}

func statusWidths(rows []StatusRow) statusColWidths {
	widths := statusColWidths{
		step:        len("STEP"),
		status:      len("STATUS"),
		artifact:    len("ARTIFACT"),
		lastSuccess: len("LAST_SUCCESS"),
		upstream:    len("UPSTREAM"),
	}

	for _, row := range rows {
		if len(row.Step) > widths.step {
			widths.step = len(row.Step)
		}
		if len(row.Status) > widths.status {
			widths.status = len(row.Status)
		}
		if len(row.Artifact) > widths.artifact {
			widths.artifact = len(row.Artifact)
		}
		if len(row.LastSuccess) > widths.lastSuccess {
			widths.lastSuccess = len(row.LastSuccess)
		}
		if len(row.Upstream) > widths.upstream {
			widths.upstream = len(row.Upstream)
		}
	}

	return widths
}

func formatStatusRow(step string, stepW int, status string, statusW int, artifact string, artifactW int, last string, lastW int, upstream string, upstreamW int, downstream string) string {
	return fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %s",
		stepW, step,
		statusW, status,
		artifactW, artifact,
		lastW, last,
		upstreamW, upstream,
		downstream,
	)
}

func orDash(s string) string {
	if s == "" {
		return emptyCell
	}
	return s
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return emptyCell
	}
	return strings.Join(items, ",")
}
