// Package report writes the results of `toxguard scan`.
//
// A Report collects one model.ScanSummary per target. Writers render it as
// plain text (SimpleWriter), Markdown (MarkdownWriter), Markdown rendered
// for the terminal (PrettyWriter) or JSON (JSONWriter). All of them
// implement Writer, so they can be combined with MultiWriter.
//
// Fragment excerpts contain the text that was cloaked. They are only
// written when asked for with WithMatches or WithMarkdownMatches.
package report
