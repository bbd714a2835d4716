package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/imamik/nexus/internal/runstore"
	"github.com/imamik/nexus/internal/ui/tui"
)

// DefaultHistoryLimit is the number of runs listed when no limit is given.
const DefaultHistoryLimit = 20

// History lists recent runs, newest first.
func History(ctx context.Context, configPath string, limit int) error {
	store, err := openConfiguredHistory(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded yet.")
		return nil
	}
	return renderHistory(stdout, runs)
}

// ShowRun prints the recorded vendor tasks of one run.
func ShowRun(ctx context.Context, configPath, runID string) error {
	store, err := openConfiguredHistory(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	summary, tasks, err := store.GetRun(ctx, runID)
	if errors.Is(err, runstore.ErrNotFound) {
		return fmt.Errorf("run %s not found in history", runID)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	user := summary.UserName
	if user == "" {
		user = summary.UserEmail
	}
	fmt.Fprint(stdout, tui.RenderOnce(summary.ID, user, tasks))
	if summary.ReportPath != "" {
		fmt.Fprintf(stdout, "\nReport: %s\n", summary.ReportPath)
	}
	return nil
}

func openConfiguredHistory(configPath string) (historyStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.History.Disabled {
		return nil, fmt.Errorf("run history is disabled in the config")
	}
	store, err := openHistory(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

func renderHistory(w io.Writer, runs []runstore.RunSummary) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(listDimStyle).
		Headers("RUN", "USER", "STARTED", "STATE", "OK", "FAILED", "SKIPPED")
	for _, r := range runs {
		user := r.UserEmail
		if user == "" {
			user = r.UserName
		}
		t.Row(r.ID, user, r.StartedAt.Local().Format(time.DateTime), r.State,
			strconv.Itoa(r.Succeeded), strconv.Itoa(r.Failed), strconv.Itoa(r.Skipped))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
