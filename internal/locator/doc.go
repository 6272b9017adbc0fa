// Package locator enumerates the text fragments of a page that are
// eligible for classification.
package locator
