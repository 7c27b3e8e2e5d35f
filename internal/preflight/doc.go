// Package preflight provides readiness checks for the directories and
// external tools the importer depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to start streams when
//     a required directory is unusable.
//   - The CLI "gncimport status" command renders the same results.
//
// The source root is only checked for read access since it belongs to the
// receiver; every other directory must be writable.
package preflight
