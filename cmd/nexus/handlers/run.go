package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/conflict"
	"github.com/imamik/nexus/internal/logging"
	"github.com/imamik/nexus/internal/metrics"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/portal/simulated"
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
	"github.com/imamik/nexus/internal/provisioning/run"
	"github.com/imamik/nexus/internal/ui/prompt"
	"github.com/imamik/nexus/internal/ui/tui"
	"github.com/imamik/nexus/internal/util/async"
)

const (
	// dashboardLogFile receives logs while the dashboard owns the terminal.
	dashboardLogFile = "nexus.log"

	archiveTimeout = 2 * time.Minute
)

// ErrVendorsFailed is returned when a run finished with failed vendors.
var ErrVendorsFailed = errors.New("run finished with failed vendors")

// runDashboard shows the live dashboard (for testing injection).
var runDashboard = tui.RunDashboard

// RunOptions holds the flags of the run command.
type RunOptions struct {
	ConfigPath  string
	User        string
	Vendors     []string
	DryRun      bool
	NoTUI       bool
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// Run provisions one user across the selected vendors.
//
// The workflow:
//  1. Loads nexus.yaml and resolves the vendor list, keeping the given order
//  2. Looks up the user profile and selects the credential source
//  3. Starts the run coordinator with logging and metrics observers
//  4. Shows the dashboard on a terminal, or plain progress lines otherwise
//  5. Archives the report locally, optionally to S3, and in the run history
//
// With DryRun every vendor uses the simulated driver and placeholder admin
// credentials, so the whole orchestration runs without touching a portal.
func Run(ctx context.Context, opts RunOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	vendors, err := selectVendors(cfg, opts)
	if err != nil {
		return err
	}

	registry, err := newRegistry()
	if err != nil {
		return fmt.Errorf("failed to register drivers: %w", err)
	}
	for _, v := range vendors {
		if !registry.Has(v.Driver) {
			return fmt.Errorf("vendor %s: driver %q is not available (have: %v)", v.ID, v.Driver, registry.Names())
		}
	}

	user, err := lookupUser(ctx, cfg, opts.User)
	if err != nil {
		return err
	}

	creds, err := credentialSource(ctx, cfg, opts.DryRun)
	if err != nil {
		return err
	}

	dashboard := !opts.NoTUI && isInteractive()
	log := logr.FromContextOrDiscard(ctx)
	if dashboard {
		fileLog, closeLog, err := dashboardLogger(cfg, opts)
		if err != nil {
			return err
		}
		defer closeLog()
		log = fileLog
		ctx = logr.NewContext(ctx, log)
	}

	recorder := metrics.NewRecorder()
	if opts.MetricsAddr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := recorder.Serve(metricsCtx, opts.MetricsAddr); err != nil {
				log.Error(err, "metrics endpoint stopped", "addr", opts.MetricsAddr)
			}
		}()
	}
	observer := provisioning.NewMultiObserver(
		provisioning.NewLogObserver(log).WithFields(map[string]string{"user": displayName(user)}),
		recorder,
	)

	history, err := openRunHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		store := history
		defer func() { _ = store.Close() }()
	}

	var coord *run.Coordinator
	coordOpts := []run.Option{run.WithObserver(observer)}

	var resolver *prompt.Resolver
	if !dashboard {
		resolver = prompt.NewResolver(conflictAsker(log), func(id string, d conflict.Decision) (bool, error) {
			return coord.ResolveConflict(id, d)
		}, log, prompt.WithOpenCheck(func(id string) bool {
			for _, req := range coord.PendingConflicts() {
				if req.ID == id {
					return true
				}
			}
			return false
		}))
		coordOpts = append(coordOpts, run.WithConflictPublisher(resolver.Publish))
	}

	coord = run.New(cfg, registry.Open, creds, coordOpts...)
	updates, err := coord.Start(ctx, provisioning.NewRunRequest(user, vendors))
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	if history != nil {
		if err := history.BeginRun(ctx, coord.RunID(), user, time.Now(), coord.Snapshots()); err != nil {
			log.Error(err, "failed to record run start; history disabled for this run")
			history = nil
		}
	}
	updates = recordSnapshots(ctx, updates, history, log)

	var rep report.RunReport
	if dashboard {
		rep, err = runDashboard(ctx, coord, updates, coord.RunID(), displayName(user))
	} else {
		promptCtx, stopPrompts := context.WithCancel(ctx)
		defer stopPrompts()
		go resolver.Run(promptCtx)

		stopSignals := cancelOnInterrupt(ctx, coord, log)
		defer stopSignals()

		fmt.Fprintf(stdout, "Run %s: provisioning %s on %d vendor(s)\n", coord.RunID(), displayName(user), len(vendors))
		printProgress(stdout, updates)
		rep, err = coord.Wait(ctx)
	}
	if err != nil {
		return err
	}

	path, archiveErr := archive(ctx, cfg, rep, history, log)

	fmt.Fprintln(stdout)
	if err := report.WriteSummary(stdout, rep); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nReport: %s\n", path)

	if archiveErr != nil {
		return fmt.Errorf("failed to archive report: %w", archiveErr)
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrVendorsFailed, rep.Failed, rep.Total())
	}
	return nil
}

// selectVendors resolves the vendor list, switching every vendor to the
// simulated driver for a dry run.
func selectVendors(cfg *config.Config, opts RunOptions) ([]config.VendorConfig, error) {
	vendors, err := cfg.SelectVendors(opts.Vendors)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		for i := range vendors {
			vendors[i].Driver = simulated.DriverName
		}
	}
	return vendors, nil
}

// lookupUser loads the profile of the user being provisioned.
func lookupUser(ctx context.Context, cfg *config.Config, identity string) (provisioning.UserProfile, error) {
	if identity == "" {
		return provisioning.UserProfile{}, fmt.Errorf("--user is required")
	}
	if cfg.Profiles.File == "" {
		return provisioning.UserProfile{}, fmt.Errorf("profiles.file is not configured")
	}
	user, err := newProfileProvider(cfg.Profiles.File).Profile(ctx, identity)
	if err != nil {
		return provisioning.UserProfile{}, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// credentialSource returns the admin secret provider. Dry runs use
// placeholder secrets and never read the configured source.
func credentialSource(ctx context.Context, cfg *config.Config, dryRun bool) (portal.CredentialProvider, error) {
	if dryRun {
		return portal.CredentialProviderFunc(func(_ context.Context, vendorID string) (portal.Credentials, error) {
			return portal.Credentials{
				LoginEmail:    "dry-run@" + vendorID + ".invalid",
				LoginPassword: "dry-run",
			}, nil
		}), nil
	}
	creds, err := newCredentialProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up credentials: %w", err)
	}
	return creds, nil
}

func openRunHistory(cfg *config.Config) (historyStore, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.History.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	store, err := openHistory(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

// dashboardLogger writes logs to a file while the dashboard owns the terminal.
func dashboardLogger(cfg *config.Config, opts RunOptions) (logr.Logger, func(), error) {
	if err := os.MkdirAll(cfg.Report.Dir, 0o750); err != nil {
		return logr.Discard(), nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	// #nosec G304
	f, err := os.OpenFile(filepath.Join(cfg.Report.Dir, dashboardLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log, err := newLogger(logging.FromEnv(logging.Options{Level: opts.LogLevel, Format: opts.LogFormat, Output: f}))
	if err != nil {
		_ = f.Close()
		return logr.Discard(), nil, err
	}
	return log, func() { _ = f.Close() }, nil
}

// conflictAsker prompts on the terminal, or skips the vendor when there is
// no terminal to ask on.
func conflictAsker(log logr.Logger) prompt.AskFunc {
	if isInputTerminal() {
		return prompt.Ask
	}
	return func(_ context.Context, req conflict.Request) (conflict.Decision, error) {
		log.Info("no terminal to ask on, skipping vendor", "vendor", req.Vendor, "conflict", string(req.Kind))
		return conflict.Skip(), nil
	}
}

// cancelOnInterrupt cancels the run on SIGINT or SIGTERM.
func cancelOnInterrupt(ctx context.Context, coord *run.Coordinator, log logr.Logger) func() {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil && coord.State() != run.StateCompleted {
				log.Info("interrupt received, cancelling run")
				_ = coord.Cancel()
			}
		case <-coord.Done():
		}
	}()
	return stop
}

// recordSnapshots persists each snapshot before passing it on.
func recordSnapshots(ctx context.Context, in <-chan provisioning.Snapshot, history historyStore, log logr.Logger) <-chan provisioning.Snapshot {
	if history == nil {
		return in
	}
	out := make(chan provisioning.Snapshot)
	go func() {
		defer close(out)
		for snap := range in {
			if err := history.RecordSnapshot(context.WithoutCancel(ctx), snap); err != nil {
				log.Error(err, "failed to record snapshot", "vendor", snap.VendorID)
			}
			out <- snap
		}
	}()
	return out
}

// printProgress writes one line per visible change of a task until updates
// is closed.
func printProgress(w io.Writer, updates <-chan provisioning.Snapshot) {
	last := make(map[string]string)
	for snap := range updates {
		line := progressLine(snap)
		if last[snap.VendorID] == line {
			continue
		}
		last[snap.VendorID] = line
		fmt.Fprintf(w, "%s  %s\n", time.Now().Format("15:04:05"), line)
	}
}

func progressLine(s provisioning.Snapshot) string {
	name := s.DisplayName
	if name == "" {
		name = s.VendorID
	}
	line := fmt.Sprintf("%-20s %s", name, s.Status)

	switch {
	case s.Pending != nil && s.Pending.Kind == provisioning.PendingConflict:
		line += fmt.Sprintf(": %s already exists: %s", s.Pending.Conflict, s.Pending.ProposedValue)
	case s.Pending != nil:
		line += fmt.Sprintf(": complete the %s challenge in the portal", s.Pending.Challenge)
	case s.Status == provisioning.StatusSkipped:
		line += fmt.Sprintf(" (%s)", s.Reason)
	case s.Status == provisioning.StatusFailed && len(s.Errors) > 0:
		line += ": " + s.Errors[len(s.Errors)-1]
	case s.Status == provisioning.StatusRunning && s.Step != "":
		line += " " + s.Step
	}
	return line
}

// archive saves, uploads and records the report in parallel and returns
// the local report path.
func archive(ctx context.Context, cfg *config.Config, rep report.RunReport, history historyStore, log logr.Logger) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	localPath := filepath.Join(cfg.Report.Dir, report.FileName(rep))

	tasks := []async.Task{{
		Name: "save report",
		Func: func(context.Context) error {
			_, err := report.Save(cfg.Report.Dir, rep)
			return err
		},
	}}

	if cfg.Report.Upload {
		tasks = append(tasks, async.Task{
			Name: "upload report",
			Func: func(ctx context.Context) error {
				store, err := newObjectStore(ctx, cfg.S3)
				if err != nil {
					return err
				}
				key, err := report.Upload(ctx, store, cfg.S3.Bucket, cfg.Report.Prefix, rep)
				if err != nil {
					return err
				}
				log.Info("report uploaded", "bucket", cfg.S3.Bucket, "key", key)
				return nil
			},
		})
	}

	if history != nil {
		tasks = append(tasks, async.Task{
			Name: "record history",
			Func: func(ctx context.Context) error {
				return history.FinishRun(ctx, rep, localPath, time.Now())
			},
		})
	}

	return localPath, async.RunParallel(ctx, tasks, false)
}

func displayName(u provisioning.UserProfile) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
