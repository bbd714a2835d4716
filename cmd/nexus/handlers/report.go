package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/imamik/nexus/internal/provisioning/report"
)

// ReportOptions selects the report to print.
type ReportOptions struct {
	ConfigPath string
	// Path is a local report file, or an object key with Remote.
	Path   string
	Remote bool
	List   bool
}

// Report prints a saved run report, or lists the archived reports in the
// bucket.
func Report(ctx context.Context, opts ReportOptions) error {
	if !opts.Remote && !opts.List {
		if opts.Path == "" {
			return fmt.Errorf("report path is required")
		}
		// #nosec G304
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}
		return printReport(data)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if !cfg.S3.Enabled() {
		return fmt.Errorf("s3.bucket is required for remote reports")
	}
	store, err := newObjectStore(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	if opts.List {
		keys, err := store.ListObjects(ctx, cfg.S3.Bucket, cfg.Report.Prefix)
		if err != nil {
			return fmt.Errorf("failed to list reports: %w", err)
		}
		if len(keys) == 0 {
			fmt.Fprintf(stdout, "No reports under s3://%s/%s\n", cfg.S3.Bucket, cfg.Report.Prefix)
			return nil
		}
		for _, key := range keys {
			fmt.Fprintln(stdout, key)
		}
		return nil
	}

	key := opts.Path
	if key == "" {
		return fmt.Errorf("report key is required")
	}
	if !strings.Contains(key, "/") {
		key = path.Join(strings.TrimSuffix(cfg.Report.Prefix, "/"), key)
	}
	data, err := store.GetObject(ctx, cfg.S3.Bucket, key)
	if err != nil {
		return fmt.Errorf("failed to download report: %w", err)
	}
	return printReport(data)
}

func printReport(data []byte) error {
	var rep report.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return fmt.Errorf("failed to parse report: %w", err)
	}
	return report.WriteSummary(stdout, rep)
}
