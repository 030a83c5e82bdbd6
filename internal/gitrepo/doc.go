// Package gitrepo provides a uniform adapter over a local git repository:
// commit lookup, bulk tree and blob reads, path-filtered history queries,
// low-level deterministic commit construction, remote push/fetch, and
// notes-ref transport.
//
// Reads go through go-git where practical; writes and anything shaped like
// plumbing (tree construction, commit construction with explicit identity
// and timestamps, notes) shell out to the real git binary. This mirrors how
// the rest of the ecosystem treats go-git as a read index and the git CLI as
// the authority for mutation: go-git's porcelain commit path has no way to
// pin author and committer timestamps independently of "now," which is fatal
// to deterministic projection.
package gitrepo
