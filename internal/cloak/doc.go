// Package cloak hides toxic text fragments behind a reveal banner and
// restores them on request.
//
// A cloaked fragment becomes
//
//	<span class="toxic-wrapper" data-tg-processed="1" data-tg-id="tg-1">
//	  <span class="toxic-banner" role="button" tabindex="0">toxic content – click to reveal</span>
//	  <span class="toxic-hidden">original text</span>
//	</span>
//
// The data-tg-processed marker keeps the locator from enumerating the
// text again.
//
// Design decision: The Manager is the only part of the scanner that
// mutates the page document because:
//  1. Cloak, Reveal and ClearAll must agree on the wrapper structure, so it
//     is built and torn down in one place
//  2. Every mutation happens inside Document.Edit, and the locator and the
//     engine only read
//  3. Wrappers are tracked by id, so navigation and reveal requests coming
//     over the bus never hold node pointers
package cloak
