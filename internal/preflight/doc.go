// Package preflight provides readiness checks for the directories and
// services Parallel Camera depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure as a warning.
//     A failed check never stops the daemon; the HTTP surface reports the
//     same failures per request.
//   - The CLI "parallelcam status" command renders the results.
//
// Checks that depend on optional configuration are skipped when it is unset.
package preflight
