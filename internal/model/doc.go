// Package model defines the data structures shared by the scan engine, the
// orchestrator, the controllers and the report writers.
//
// This package contains the following main types:
//   - RunState: the lifecycle of one scan run
//   - Verdict: the classifier decision for one fragment
//   - Progress: a snapshot emitted while a run advances
//   - Status: the orchestrator's per-tab view
//   - ScanSummary: the finished result used by reports
//
// The types are serializable to JSON because they travel through the message
// bus and the websocket bridge.
package model
