// Package executor is the page side of a tab.
//
// An Executor owns one page document together with its cloak manager and
// scan engine. It answers the orchestrator's RUN_SCAN and CANCEL_SCAN
// messages, reports engine progress as SCAN_PROGRESS, moves the focus
// through the cloaked matches and rescans the page when new content is
// appended to it.
package executor
