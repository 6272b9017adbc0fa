package transport

import (
	"github.com/nao1215/toxguard/internal/model"
)

// Kind is the value of the "type" field of a message envelope.
type Kind string

// Message kinds.
const (
	KindHello                 Kind = "CS_HELLO"
	KindHelloReply            Kind = "CS_HELLO_REPLY"
	KindRunScan               Kind = "RUN_SCAN"
	KindCancelScan            Kind = "CANCEL_SCAN"
	KindScanProgress          Kind = "SCAN_PROGRESS"
	KindScanProgressBroadcast Kind = "SCAN_PROGRESS_BROADCAST"
	KindRunScanActiveTab      Kind = "RUN_SCAN_ACTIVE_TAB"
	KindCancelActiveScan      Kind = "CANCEL_ACTIVE_SCAN"
	KindGetStatusForActiveTab Kind = "GET_STATUS_FOR_ACTIVE_TAB"
	KindStatusReply           Kind = "STATUS_REPLY"
	KindGotoToxic             Kind = "GOTO_TOXIC"
	KindNextToxic             Kind = "NEXT_TOXIC"
	KindPrevToxic             Kind = "PREV_TOXIC"
	KindEnsureToxicList       Kind = "ENSURE_TOXIC_LIST"
	KindToxicListReply        Kind = "TOXIC_LIST_REPLY"
	KindRevealToxic           Kind = "REVEAL_TOXIC"
	KindAck                   Kind = "ACK"
)

// Message is one of the concrete message types below.
type Message interface {
	Kind() Kind
}

// Hello is sent by a page executor when it attaches, to learn its tab id.
type Hello struct{}

// HelloReply answers Hello.
type HelloReply struct {
	TabID int `json:"tabId"`
}

// RunScan asks a page executor to start a full scan. The run gets an id of
// at least MinRunID.
type RunScan struct {
	MinRunID uint64 `json:"minRunId,omitempty"`
}

// CancelScan asks a page executor to cancel run RunID.
type CancelScan struct {
	RunID uint64 `json:"runId"`
}

// ScanProgress carries one progress snapshot from a tab to the orchestrator.
type ScanProgress struct {
	TabID int `json:"tabId"`
	model.Progress
}

// ScanProgressBroadcast is the orchestrator's rebroadcast of a progress
// snapshot to every controller.
type ScanProgressBroadcast struct {
	TabID int            `json:"tabId"`
	Data  model.Progress `json:"data"`
}

// RunScanActiveTab is a manual start request from a controller.
type RunScanActiveTab struct{}

// CancelActiveScan is a manual cancel request from a controller.
type CancelActiveScan struct{}

// GetStatusForActiveTab asks for the status of the active tab.
type GetStatusForActiveTab struct{}

// StatusReply answers GetStatusForActiveTab. Status is nil when the tab has
// not been scanned yet.
type StatusReply struct {
	OK     bool          `json:"ok"`
	TabID  int           `json:"tabId"`
	Status *model.Status `json:"status"`
}

// GotoToxic focuses match Index.
type GotoToxic struct {
	Index int `json:"index"`
}

// NextToxic focuses the next match, wrapping around.
type NextToxic struct{}

// PrevToxic focuses the previous match, wrapping around.
type PrevToxic struct{}

// EnsureToxicList rebuilds the match list without moving the focus.
type EnsureToxicList struct{}

// ToxicListReply answers the navigation messages. Index is -1 when the list
// is empty.
type ToxicListReply struct {
	OK    bool `json:"ok"`
	Index int  `json:"index"`
	Total int  `json:"total"`
}

// RevealToxic reveals the wrapper with the given id.
type RevealToxic struct {
	ID string `json:"id"`
}

// Ack is the generic reply.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (Hello) Kind() Kind                 { return KindHello }
func (HelloReply) Kind() Kind            { return KindHelloReply }
func (RunScan) Kind() Kind               { return KindRunScan }
func (CancelScan) Kind() Kind            { return KindCancelScan }
func (ScanProgress) Kind() Kind          { return KindScanProgress }
func (ScanProgressBroadcast) Kind() Kind { return KindScanProgressBroadcast }
func (RunScanActiveTab) Kind() Kind      { return KindRunScanActiveTab }
func (CancelActiveScan) Kind() Kind      { return KindCancelActiveScan }
func (GetStatusForActiveTab) Kind() Kind { return KindGetStatusForActiveTab }
func (StatusReply) Kind() Kind           { return KindStatusReply }
func (GotoToxic) Kind() Kind             { return KindGotoToxic }
func (NextToxic) Kind() Kind             { return KindNextToxic }
func (PrevToxic) Kind() Kind             { return KindPrevToxic }
func (EnsureToxicList) Kind() Kind       { return KindEnsureToxicList }
func (ToxicListReply) Kind() Kind        { return KindToxicListReply }
func (RevealToxic) Kind() Kind           { return KindRevealToxic }
func (Ack) Kind() Kind                   { return KindAck }
