// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] executes independent operations concurrently and returns
// all of their errors joined. nexus uses it to archive a finished run:
// writing the local report, uploading it and closing the history record.
package async
