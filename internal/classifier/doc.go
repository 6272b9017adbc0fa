// Package classifier turns text fragments into toxicity verdicts.
//
// An Adapter wraps one Backend and applies the configured threshold: a
// fragment is toxic when any of its label scores reaches the threshold,
// and its score is the highest label score. Backends are interchangeable:
//
//   - Keyword: case folded word and phrase matching
//   - HTTP: a remote text-classification endpoint
//   - Bayes: a naive Bayes model trained from a local dataset
//   - GenAI: embedding similarity against toxic anchor phrases
//
// Remote backends sit behind a circuit Breaker and every backend except
// Keyword behind a Cache.
package classifier
