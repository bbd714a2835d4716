// Package s3 provides a client for S3-compatible object storage.
//
// Run reports are archived as JSON objects and the s3 credential source reads
// its secrets document from a bucket. Any S3-compatible endpoint works; set
// path_style for stores that do not support virtual-hosted buckets.
package s3
