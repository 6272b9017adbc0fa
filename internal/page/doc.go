// Package page holds the mutable HTML document a page executor works on.
//
// The document is parsed with golang.org/x/net/html and guarded by a lock;
// node helpers cover the small DOM surface the locator and the cloak
// manager need (attributes, classes, ancestry and tree walks), and
// Presentation computes whether a node is rendered from inline styles,
// the hidden attribute, user agent defaults and simple <style> rules.
package page
