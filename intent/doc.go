// Package intent classifies free-text task descriptions into a typed
// intent plus extracted entities.
//
// Classification matches the text against weighted keyword sets per intent
// category; entity extraction is an independent set of regex and vocabulary
// scans. Both are pure functions of the input text and the static
// vocabularies, so the package has no side effects and analyzing the same
// text twice yields identical results.
package intent
