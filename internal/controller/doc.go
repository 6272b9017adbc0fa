// Package controller is the popup of toxguard.
//
// A Controller never talks to pages directly. It asks the orchestrator for
// the status of the active tab, requests scans and cancellations, and asks
// it to relay match navigation to the page. The same Controller works
// in-process over a bus endpoint and out of process over the websocket
// bridge, since both satisfy transport.Conn.
//
// Model wraps a Controller in a bubbletea program that re-renders on every
// progress broadcast.
package controller
