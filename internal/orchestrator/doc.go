// Package orchestrator drives scans across tabs.
//
// The Orchestrator owns a StatusStore keyed by tab id. Host navigation
// triggers start and cancel scans: a finished navigation starts a scan
// unless one is in progress or the same URL was scanned moments ago, and a
// navigation away cancels the running scan and marks its remaining progress
// as stale. Progress reported by tabs is recorded, shown as a badge and
// rebroadcast to every controller.
//
// Design decision: The tab status lives in an explicit StatusStore rather
// than in fields of the Orchestrator because:
//  1. Every read and write goes through one lock, so host triggers (called
//     directly) and bus messages (called from the mailbox goroutine) can
//     not interleave halfway through an update
//  2. Status is a value that is copied out, so callers never hold a pointer
//     the orchestrator keeps mutating
//
// A cancelled run is not trusted to stop reporting. Instead each tab keeps
// a stale floor: the lowest run id whose progress is still accepted. A run
// abandoned before it reported anything is covered by the id its RUN_SCAN
// asked for (RunScan.MinRunID), because the tab cannot number a later run
// below it.
package orchestrator
