// Package cas implements a content-addressable file cache (CAFC) for a
// Bazel remote execution worker. Blobs are stored under a single root
// directory, keyed by digest, and input trees are materialized on
// demand by hard-linking into that root. A global size budget is
// enforced through reference-counted LRU eviction, optionally
// cascading writes and reads to a slower delegate store.
package cas
