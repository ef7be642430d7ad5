// Package registry holds the in-memory sets of outstanding payment intents.
//
// Both registries are keyed by (reference, network). Mutation is expected to
// come from a single writer (the reconciler on the feed goroutine, plus intent
// producers), while any goroutine may read. All access is guarded by an
// RWMutex and snapshots return copies, so readers never observe a partially
// applied update.
//
// The registries store the pointers they are given. An intent must not be
// mutated by its producer after it has been added.
package registry
