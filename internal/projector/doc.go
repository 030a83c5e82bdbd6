// Package projector implements the history projector (§4.1): the one-time,
// deterministic extraction of a component's full history out of the
// monorepo into a fresh split repository, preserving author identity and
// timestamps so re-running the projector against identical input reproduces
// identical commit SHAs.
//
// The algorithm is grounded directly on the Splitter type this was
// distilled from: walk filtered history oldest-first, recreate each commit
// in the target repository by collecting its tree, applying the manifest
// transform, writing a new tree, and constructing a commit with
// git commit-tree using the original author/committer identity and
// timestamp; record each mono->split mapping as it's made; close with one
// commit carrying workspace-level auxiliary files, if any changed; persist
// mappings on both sides and push if the target is a non-local remote.
package projector
