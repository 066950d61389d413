package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/pkg/types"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	changeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func printReport(w io.Writer, report *types.Report) {
	title := "Reconciliation"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render(title), dimStyle.Render(report.ID))

	if report.Desired != "" {
		fmt.Fprintf(w, "  interpreter  %s\n", mark(report.InterpreterChanged, report.Desired))
	}
	fmt.Fprintf(w, "  launcher     %s\n", mark(report.LauncherChanged, "registration file"))
	for _, file := range report.ScenesChanged {
		fmt.Fprintf(w, "  scene        %s\n", mark(true, filepath.Base(file)))
	}
	for _, file := range report.ScenesFailed {
		fmt.Fprintf(w, "  scene        %s\n", errorStyle.Render("failed "+filepath.Base(file)))
	}

	if lc := report.Lifecycle; lc != nil {
		state := lc.FinalState
		if lc.Relaunched {
			state += ", relaunched"
		}
		fmt.Fprintf(w, "  OBS          %s\n", state)
		if lc.Launch != nil {
			fmt.Fprintf(w, "               %s\n", dimStyle.Render(process.FormatCommand(lc.Launch.Command)))
		}
	}

	for _, msg := range report.Errors {
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render("error"), msg)
	}
	if report.Time.Finished > 0 {
		took := time.Duration(report.Time.Finished-report.Time.Started) * time.Millisecond
		fmt.Fprintf(w, "  %s\n", dimStyle.Render("took "+took.String()))
	}
}

func mark(changed bool, what string) string {
	if changed {
		return changeStyle.Render("updated " + what)
	}
	return okStyle.Render("ok") + " " + what
}
