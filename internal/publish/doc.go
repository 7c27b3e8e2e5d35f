// Package publish moves finished artifacts into the import directory and,
// when configured, mirrors them to an S3-compatible bucket.
//
// The import directory is the contract with downstream consumers: a file
// appears there only once it is complete. The bucket mirror is best effort
// and never fails a publish.
package publish
