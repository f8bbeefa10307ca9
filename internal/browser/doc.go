// Package browser drives a Chromium instance through the DevTools protocol
// using go-rod.
//
// A Browser is either launched locally or attached to a running instance by
// its control URL. It implements extract.Launcher: each session is a fresh
// tab that is closed when the extraction of one URL finishes.
package browser
