// Package settings persists the user's scanner settings in a small SQLite
// key-value table.
//
// The scanner reads two keys: threshold, a float in [0, 1] defaulting to
// 0.5, and keywordList, the words used by keyword matching. Values are
// JSON encoded so they round-trip with their types.
package settings
