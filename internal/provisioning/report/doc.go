// Package report folds the final task snapshots of a run into a RunReport and
// exports it as JSON, to disk and to an object store.
package report
