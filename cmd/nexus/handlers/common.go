// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"
	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/credentials"
	"github.com/imamik/nexus/internal/logging"
	"github.com/imamik/nexus/internal/platform/s3"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/portal/simulated"
	"github.com/imamik/nexus/internal/profile"
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
	"github.com/imamik/nexus/internal/runstore"
)

// objectStore is the part of the S3 client the handlers use.
type objectStore interface {
	report.ObjectPutter
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// historyStore is the part of the run store the handlers use.
type historyStore interface {
	BeginRun(ctx context.Context, runID string, user provisioning.UserProfile, startedAt time.Time, snaps []provisioning.Snapshot) error
	RecordSnapshot(ctx context.Context, snap provisioning.Snapshot) error
	FinishRun(ctx context.Context, rep report.RunReport, reportPath string, finishedAt time.Time) error
	ListRuns(ctx context.Context, limit int) ([]runstore.RunSummary, error)
	GetRun(ctx context.Context, runID string) (runstore.RunSummary, []provisioning.Snapshot, error)
	Close() error
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// findConfigFile locates nexus.yaml when no path is given.
	findConfigFile = config.FindConfigFile

	// loadConfigFile loads config from file (for testing injection).
	loadConfigFile = config.Load

	// newLogger builds the process logger.
	newLogger = logging.New

	// newProfileProvider opens the user directory export.
	newProfileProvider = func(path string) profile.Provider {
		return profile.NewDirectory(path)
	}

	// newCredentialProvider selects the vendor secret source.
	newCredentialProvider = credentials.New

	// newObjectStore creates the S3 client.
	newObjectStore = func(ctx context.Context, cfg config.S3Config) (objectStore, error) {
		return s3.NewClient(ctx, cfg)
	}

	// openHistory opens the run history database.
	openHistory = func(path string) (historyStore, error) {
		return runstore.New(path)
	}

	// newRegistry returns the available vendor drivers.
	newRegistry = defaultRegistry

	// isInteractive reports whether stdout is a terminal.
	isInteractive = isInteractiveTTY

	// isInputTerminal reports whether stdin is a terminal.
	isInputTerminal = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

// defaultRegistry registers every built-in driver.
func defaultRegistry() (*portal.Registry, error) {
	r := portal.NewRegistry()
	if err := simulated.Register(r, clock.RealClock{}); err != nil {
		return nil, err
	}
	return r, nil
}

// SetupLogging builds the process logger from flags and the environment and
// stores it in the returned context.
func SetupLogging(ctx context.Context, level, format string) (context.Context, error) {
	log, err := newLogger(logging.FromEnv(logging.Options{Level: level, Format: format}))
	if err != nil {
		return ctx, err
	}
	return logr.NewContext(ctx, log), nil
}

// loadConfig loads and validates the configuration.
// If configPath is empty, it looks for nexus.yaml in the current directory and its parents.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		path, err := findConfigFile()
		if err != nil {
			return nil, fmt.Errorf("no config file found: %w\nCreate %s or pass --config", err, config.DefaultConfigFilename)
		}
		configPath = path
	}

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func isInteractiveTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
