package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ochairo/distill/internal/domain/entities"
)

// RunReport is the machine-readable outcome of a release
type RunReport struct {
	Crate     string                  `json:"crate"`
	Revision  string                  `json:"revision"`
	Store     string                  `json:"store"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Duration  string                  `json:"duration"`
	Runs      []*entities.PipelineRun `json:"runs"`
}

func newRunReport(env entities.Environment, runs []*entities.PipelineRun, elapsed time.Duration) *RunReport {
	report := &RunReport{
		Crate:    env.Crate.Name,
		Revision: env.Revision,
		Store:    env.Store,
		Duration: elapsed.Round(time.Millisecond).String(),
		Runs:     runs,
	}
	for _, run := range runs {
		if run.Status == entities.RunSucceeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

func writeJSONReport(path string, report *RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// printSummary writes one block per run: its stages, its artifacts, and
// for a failed run the diagnostics of the failing stage.
func printSummary(w io.Writer, report *RunReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "\n📦 %s @ %s\n", report.Crate, shortHash(report.Revision))
	for _, run := range report.Runs {
		if run.Status == entities.RunSucceeded {
			fmt.Fprintf(w, "\n%s %s\n", green("✅ SUCCEEDED:"), run.Instance)
		} else {
			fmt.Fprintf(w, "\n%s %s\n", red("❌ FAILED:"), run.Instance)
		}
		for _, r := range run.StageResults {
			mark := green("✓")
			if r.Outcome == entities.OutcomeFail {
				mark = red("✗")
			}
			fmt.Fprintf(w, "   %s %-18s %s\n", mark, r.Stage, r.Duration.Round(time.Millisecond))
		}
		for _, a := range run.Artifacts {
			fmt.Fprintf(w, "   → %s\n", a.Name)
		}
		if failed := run.FailedStage(); failed != nil {
			fmt.Fprintf(w, "   %s %s\n", yellow(string(failed.ErrorKind)), failed.Stage)
			for _, line := range strings.Split(strings.TrimSpace(failed.Diagnostics), "\n") {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}

	fmt.Fprintf(w, "\n%d succeeded, %d failed in %s\n", report.Succeeded, report.Failed, report.Duration)
}

func shortHash(revision string) string {
	if len(revision) > 7 {
		return revision[:7]
	}
	return revision
}
