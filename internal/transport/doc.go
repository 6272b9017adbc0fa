// Package transport carries messages between the scanner's contexts.
//
// Messages form a closed set of kinds encoded as flat JSON envelopes
// ({"type": KIND, ...payload}). A Bus connects in-process endpoints, each
// with a FIFO mailbox drained by one goroutine, so every context handles
// its messages sequentially. Server and Client extend the bus over a
// websocket so controllers can run in another process.
//
// Design decision: Messages are a closed set of Go types behind the
// Message interface, not a map of fields, because:
//  1. A type switch over the set is checked by the compiler, and an unknown
//     kind fails in Decode instead of deep in a handler
//  2. The same codec serves the bus tests and the websocket, so anything a
//     test sends in-process also round-trips over the wire
//  3. The JSON envelope keeps the wire kinds (RUN_SCAN, SCAN_PROGRESS, ...)
//     readable for controllers written in other languages
package transport
