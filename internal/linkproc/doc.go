// Package linkproc turns anchors captured from a rendered page into frontier
// rows and discovery edges.
//
// A link is accepted when it resolves to an http(s) URL on the parent's host
// (a leading "www." is ignored on both sides), its path carries no pagination
// marker, and its anchor text is not empty. Each accepted link is
// canonicalized before its fingerprint is taken, inserted as a new row at the
// parent's depth plus one, and connected to the parent by an edge pointing at
// the earliest row recorded for its fingerprint.
//
// Failures are local to one anchor: they are logged, counted in the Result
// and processing moves on to the next anchor.
package linkproc
