// Package manifest defines the pluggable manifest-transformer contract
// (§4.4): a pure function pair, mono->split and split->mono, that the
// projector and sync engine treat polymorphically. The repository ships one
// concrete implementation, for the Cargo packaging ecosystem, in the cargo
// subpackage, which the CLI constructs directly; no detection of which
// manifest file a component's path root contains is performed.
package manifest

// Context carries the information a transformer needs beyond the manifest
// bytes themselves: which component is being projected, and where the
// workspace root is so the transformer can resolve sibling versions/paths.
type Context struct {
	ComponentName string
	WorkspaceRoot string
}

// Transform is the pair of pure functions every manifest transformer must
// implement. Implementations must not mutate shared state across calls and
// must satisfy the round-trip property: transforming to split and back to
// mono preserves the manifest's semantic content (declared dependencies,
// declared metadata), though not necessarily its exact formatting.
type Transform interface {
	// ToSplit rewrites a manifest as it appears in the monorepo into the form
	// it should take in the split repository: workspace-inheritance
	// indirection flattened to concrete values, intra-workspace path
	// dependencies rewritten to version dependencies, workspace-level
	// declarations that no longer apply removed.
	ToSplit(content []byte, ctx Context) ([]byte, error)
	// ToMono is the reverse: version dependencies on intra-workspace
	// components rewritten back to path dependencies, workspace-inheritance
	// placeholders reintroduced where appropriate.
	ToMono(content []byte, ctx Context) ([]byte, error)
}

// ManifestFileName returns the conventional file name this transformer
// recognizes within a component's path root, used to decide which entries
// of a projected tree get passed through the transform.
type ManifestFileName interface {
	ManifestFile() string
}
