// Package syncengine implements the bidirectional sync engine (§4.2): given
// a component with an existing split repository, it finds how far each side
// has already been synchronized, replays unsynced commits across the
// boundary in the requested direction with origin trailers to prevent
// replay loops, resolves overlapping edits through a pluggable three-way
// merge policy, and diverts monorepo-side writes away from protected
// branches toward a PR branch.
//
// It is grounded on the same replay shape the projector uses for its
// one-time history walk (materialize, transform, commit-tree, record
// mapping), generalized to an incremental, bidirectional, batched
// operation over whichever commits the mapping store has not seen yet.
package syncengine
