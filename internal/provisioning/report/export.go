package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
)

// ObjectPutter stores an object in a bucket.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
}

// FileName is the base name a report is saved under.
func FileName(r RunReport) string {
	ts := "unstarted"
	if r.StartedAt != nil {
		ts = r.StartedAt.UTC().Format("20060102T150405Z")
	}
	return fmt.Sprintf("nexus-%s-%s.json", ts, r.RunID)
}

// Marshal renders r as indented JSON.
func Marshal(r RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes r into dir and returns the file path.
func Save(dir string, r RunReport) (string, error) {
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	p := filepath.Join(dir, FileName(r))
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return p, nil
}

// Upload stores r under prefix in bucket and returns the object key.
func Upload(ctx context.Context, store ObjectPutter, bucket, prefix string, r RunReport) (string, error) {
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}
	key := path.Join(strings.TrimSuffix(prefix, "/"), FileName(r))
	if err := store.PutObject(ctx, bucket, key, data); err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	return key, nil
}

// WriteSummary prints a human-readable table of r.
func WriteSummary(w io.Writer, r RunReport) error {
	fmt.Fprintf(w, "Run %s for %s\n", r.RunID, displayUser(r))
	fmt.Fprintf(w, "Succeeded: %d  Failed: %d  Skipped: %d  (total %d, %s)\n\n",
		r.Succeeded, r.Failed, r.Skipped, r.Total(), r.Duration().Round(time.Second))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tSTATUS\tIDENTITY\tDURATION\tDETAIL")
	for _, t := range r.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.VendorID, t.Status, dash(t.Identity), dash(t.Duration), detail(t))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, t := range r.Tasks {
		for _, warn := range t.Warnings {
			fmt.Fprintf(w, "warning: %s: %s\n", t.VendorID, warn)
		}
	}
	return nil
}

func displayUser(r RunReport) string {
	switch {
	case r.User.DisplayName != "" && r.User.Email != "":
		return fmt.Sprintf("%s <%s>", r.User.DisplayName, r.User.Email)
	case r.User.Email != "":
		return r.User.Email
	default:
		return r.User.DisplayName
	}
}

func detail(t TaskResult) string {
	switch {
	case t.Reason != "":
		return string(t.Reason)
	case len(t.Errors) > 0:
		return fmt.Sprintf("%s: %s", t.ErrorKind, t.Errors[len(t.Errors)-1])
	default:
		return "-"
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
