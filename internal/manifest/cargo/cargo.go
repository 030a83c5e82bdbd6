package cargo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/railsplit/rail/internal/manifest"
)

// inheritablePackageFields lists the [package] fields that may be declared
// as `field = { workspace = true }` and resolved from the workspace root's
// [workspace.package] table.
var inheritablePackageFields = []string{
	"version", "authors", "edition", "rust-version", "license",
	"repository", "homepage", "documentation", "description",
	"keywords", "categories",
}

// dependencySections lists the manifest tables that hold dependency entries.
var dependencySections = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// CargoTransform implements manifest.Transform for Cargo.toml manifests.
type CargoTransform struct {
	meta *WorkspaceMetadata
}

// New constructs a CargoTransform backed by wm.
func New(wm *WorkspaceMetadata) *CargoTransform {
	return &CargoTransform{meta: wm}
}

var _ manifest.Transform = (*CargoTransform)(nil)

func (c *CargoTransform) ManifestFile() string { return "Cargo.toml" }

// ToSplit flattens workspace-inheritance and rewrites intra-workspace path
// dependencies into version dependencies, then drops the `[workspace]`
// table, producing a manifest buildable standalone in a split repository.
func (c *CargoTransform) ToSplit(content []byte, ctx manifest.Context) ([]byte, error) {
	doc, err := decodeManifest(content)
	if err != nil {
		return nil, err
	}

	if err := c.flattenWorkspaceInheritance(doc, ctx); err != nil {
		return nil, err
	}
	if err := c.rewritePathsToVersions(doc); err != nil {
		return nil, err
	}
	delete(doc, "workspace")

	return encodeManifest(doc)
}

// ToMono reverses ToSplit: version dependencies on known workspace members
// are rewritten back to path dependencies, and a rewritten [package].version
// is restored to its workspace-inheritance placeholder.
func (c *CargoTransform) ToMono(content []byte, ctx manifest.Context) ([]byte, error) {
	doc, err := decodeManifest(content)
	if err != nil {
		return nil, err
	}

	c.rewriteVersionsToPaths(doc)
	c.restoreWorkspaceInheritance(doc)

	return encodeManifest(doc)
}

func decodeManifest(content []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if _, err := toml.Decode(string(content), &doc); err != nil {
		return nil, fmt.Errorf("parse Cargo.toml: %w", err)
	}
	return doc, nil
}

func encodeManifest(doc map[string]interface{}) ([]byte, error) {
	var sb strings.Builder
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode Cargo.toml: %w", err)
	}
	return []byte(sb.String()), nil
}

// asTable reports whether v is a TOML table (map[string]interface{}) and
// returns it.
func asTable(v interface{}) (map[string]interface{}, bool) {
	t, ok := v.(map[string]interface{})
	return t, ok
}

// isWorkspaceInheritanceMarker reports whether v is the shape
// `{ workspace = true }`.
func isWorkspaceInheritanceMarker(v interface{}) bool {
	t, ok := asTable(v)
	if !ok {
		return false
	}
	flag, ok := t["workspace"].(bool)
	return ok && flag
}

// flattenWorkspaceInheritance resolves `field = { workspace = true }` in
// [package] and `dep = { workspace = true }` in the dependency sections
// against the workspace root's [workspace.package] and
// [workspace.dependencies] tables.
func (c *CargoTransform) flattenWorkspaceInheritance(doc map[string]interface{}, ctx manifest.Context) error {
	root, err := readWorkspaceRootManifest(ctx.WorkspaceRoot)
	if err != nil {
		// No workspace root manifest to inherit from: nothing to flatten.
		return nil //nolint:nilerr
	}
	wsSection, _ := asTable(root["workspace"])
	wsPackage, _ := asTable(wsSection["package"])
	wsDependencies, _ := asTable(wsSection["dependencies"])

	if pkg, ok := asTable(doc["package"]); ok {
		for _, field := range inheritablePackageFields {
			val, present := pkg[field]
			if !present || !isWorkspaceInheritanceMarker(val) {
				continue
			}
			if resolved, ok := wsPackage[field]; ok {
				pkg[field] = resolved
			}
		}
	}

	for _, section := range dependencySections {
		deps, ok := asTable(doc[section])
		if !ok {
			continue
		}
		for name, val := range deps {
			if !isWorkspaceInheritanceMarker(val) {
				continue
			}
			if resolved, ok := wsDependencies[name]; ok {
				deps[name] = resolved
			}
		}
	}
	return nil
}

// rewritePathsToVersions replaces every `dep = { path = "...", ... }` entry
// whose crate is a known workspace member with a version dependency,
// dropping the path. A path dependency on a crate that is not a configured
// workspace member cannot be split, since the split repository would have no
// way to resolve it.
func (c *CargoTransform) rewritePathsToVersions(doc map[string]interface{}) error {
	for _, section := range dependencySections {
		deps, ok := asTable(doc[section])
		if !ok {
			continue
		}
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			table, ok := asTable(deps[name])
			if !ok {
				continue
			}
			if _, hasPath := table["path"]; !hasPath {
				continue
			}
			version, ok := c.meta.Version(name)
			if !ok {
				return fmt.Errorf("cannot split: dependency %q has a path to a crate outside the configured workspace", name)
			}
			delete(table, "path")
			table["version"] = version
			if len(table) == 1 {
				deps[name] = table["version"]
			}
		}
	}
	return nil
}

// rewriteVersionsToPaths is the reverse of rewritePathsToVersions: a
// dependency whose name matches a known workspace member is rewritten from a
// version requirement to a relative path dependency.
func (c *CargoTransform) rewriteVersionsToPaths(doc map[string]interface{}) {
	for _, section := range dependencySections {
		deps, ok := asTable(doc[section])
		if !ok {
			continue
		}
		for name, val := range deps {
			path, ok := c.meta.Path(name)
			if !ok {
				continue
			}
			switch v := val.(type) {
			case string:
				deps[name] = map[string]interface{}{
					"version": v,
					"path":    "../" + path,
				}
			case map[string]interface{}:
				if _, hasVersion := v["version"]; hasVersion {
					v["path"] = "../" + path
				}
			}
		}
	}
}

// restoreWorkspaceInheritance reinstates the `version = { workspace = true }`
// placeholder for [package].version, mirroring the flattening ToSplit
// performed. Other inheritable fields are left as their concrete values: the
// monorepo copy only needs to be buildable as a workspace member again, and
// cargo resolves a concrete version field identically to the mono original.
func (c *CargoTransform) restoreWorkspaceInheritance(doc map[string]interface{}) {
	pkg, ok := asTable(doc["package"])
	if !ok {
		return
	}
	if _, hasVersion := pkg["version"]; hasVersion {
		pkg["version"] = map[string]interface{}{"workspace": true}
	}
}
