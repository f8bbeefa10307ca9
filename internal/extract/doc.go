// Package extract drives a rendered browser page through a fixed protocol
// and returns every anchor it could collect.
//
// # Protocol
//
// Phases run strictly in order on one browser session:
//
//  1. Load-more: click known "load more" controls while each click grows the page.
//  2. Infinite scroll: scroll to the bottom, collect anchors and prune the DOM,
//     until the document height stops growing or the scroll budget is spent.
//  3. Click pagination: follow numbered or "next" controls while each page
//     contributes enough new anchors.
//  4. URL pagination: when clicking never advanced past page one, synthesize
//     page URLs from a pagination link template and visit them.
//
// Every phase is best effort. A failing phase is logged and the engine moves
// on with what it has collected. Extraction only reports failure when the
// page cannot be opened or measured at all.
//
// # Rules
//
// Selectors, pagination vocabularies and not-found markers are data (Rules),
// so supporting another site convention is a configuration change.
//
// # Browser
//
// The engine only depends on the Session and Launcher interfaces. The browser
// package provides the go-rod implementation.
package extract
