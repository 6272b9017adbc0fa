// Package pipeline runs toxicity scans over a page.
//
// The Engine owns the run lifecycle of one page: it enumerates fragments
// with the locator, feeds them to the classifier in small batches, cloaks
// toxic fragments through the cloak manager and reports progress after
// every batch. Each run carries an id; cancellation, late classifier
// results and queued starts are all resolved by comparing run ids, so a
// page never has two runs mutating it at once.
//
// Design decision: We identify runs by a monotonic id instead of keeping
// "scanning" and "cancelled" flags because:
//  1. A flag cannot tell a late classifier result of a cancelled run from
//     a result of the run that replaced it; an id comparison can
//  2. The orchestrator in another context can name the run it cancels, and
//     a cancel for any other run is a no-op
//  3. Ids shared through a RunCounter stay monotonic across page loads of
//     the same tab, so progress from a previous page is recognisably old
//
// The BatchProcessor scans several pages concurrently using errgroup.
package pipeline
