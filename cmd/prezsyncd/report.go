package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/sync"
)

var (
	upColor   = color.New(color.FgGreen).SprintFunc()
	downColor = color.New(color.FgYellow).SprintFunc()
	addColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimColor  = color.New(color.Faint).SprintFunc()
	errColor  = color.New(color.FgRed, color.Bold).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
)

// printReport writes one line per report entry
func printReport(w io.Writer, report sync.Report) {
	for _, key := range report.Keys() {
		st := report[key]
		dir := fmt.Sprintf("%-12s", st.Direction)
		switch {
		case !st.Sync:
			dir = dimColor(fmt.Sprintf("%-12s", "skipped"))
		case st.Direction == sync.DirectionUpload:
			dir = upColor(dir)
		case st.Direction == sync.DirectionDownload:
			dir = downColor(dir)
		case st.Direction == sync.DirectionAddRemotely, st.Direction == sync.DirectionAddLocally:
			dir = addColor(dir)
		default:
			dir = dimColor(dir)
		}
		if st.MainEntity != "" && st.MainEntity != key {
			_, _ = fmt.Fprintf(w, "%s %s %s\n", dir, key, dimColor(st.MainEntity))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", dir, key)
	}
}

// printDiagnostics writes validation findings and a summary line
func printDiagnostics(w io.Writer, path string, rep manifest.Report) {
	for _, d := range rep.Diagnostics {
		sev := warnColor(string(d.Severity))
		if d.Severity == manifest.SeverityViolation {
			sev = errColor(string(d.Severity))
		}
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", sev, d.Focus, d.Message)
	}
	if rep.Conforms() {
		_, _ = fmt.Fprintf(w, "%s %s\n", upColor("ok"), path)
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", errColor("invalid"), path)
}
