// Package browser hosts pages the way a browser does for the extension.
//
// A Host owns numbered tabs. Each tab holds one loaded document and its
// page executor attached to the message bus at the tab's address. Loading,
// navigating, switching and closing tabs fire the matching orchestrator
// triggers, and the badge the orchestrator sets is kept per tab.
//
// ScanAll drives many tabs at once for the command line scanner.
package browser
