// Package cargo implements the manifest.Transform contract for Cargo.toml
// manifests, grounded on the path/version rewriting performed by the
// cargo-rail crate's transform module: workspace-inheritance flattening on
// the way out to a split repository, and path/version rewriting in both
// directions so a split repository's Cargo.toml is buildable standalone
// while the monorepo's stays buildable as a workspace member.
package cargo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/railsplit/rail/internal/railconfig"
)

// WorkspaceMetadata indexes every configured split's member crates by name,
// resolving each to the version declared in its Cargo.toml and its path
// relative to the workspace root. Transformers consult this to rewrite path
// dependencies to version dependencies (and back) without needing a full
// cargo-metadata invocation.
type WorkspaceMetadata struct {
	versions map[string]string // crate name -> version
	paths    map[string]string // crate name -> path relative to workspace root
}

// LoadWorkspaceMetadata reads the Cargo.toml at the root of every path of
// every configured split and builds the name->version and name->path
// indices used by CargoTransform. A crate whose manifest cannot be read or
// lacks a [package] name is skipped rather than failing the whole load: the
// workspace may legitimately contain non-Cargo components.
func LoadWorkspaceMetadata(workspaceRoot string, splits []railconfig.Split) (*WorkspaceMetadata, error) {
	wm := &WorkspaceMetadata{
		versions: make(map[string]string),
		paths:    make(map[string]string),
	}
	for _, split := range splits {
		for _, relPath := range split.PathStrings() {
			manifestPath := filepath.Join(workspaceRoot, relPath, "Cargo.toml")
			raw, err := os.ReadFile(manifestPath)
			if err != nil {
				continue
			}
			var doc struct {
				Package struct {
					Name    string `toml:"name"`
					Version string `toml:"version"`
				} `toml:"package"`
			}
			if _, err := toml.Decode(string(raw), &doc); err != nil {
				continue
			}
			if doc.Package.Name == "" {
				continue
			}
			wm.paths[doc.Package.Name] = relPath
			if doc.Package.Version != "" {
				wm.versions[doc.Package.Name] = doc.Package.Version
			}
		}
	}
	return wm, nil
}

// Version returns the workspace-declared version of crate, if known.
func (wm *WorkspaceMetadata) Version(crate string) (string, bool) {
	v, ok := wm.versions[crate]
	return v, ok
}

// Path returns the workspace-relative path of crate, if known.
func (wm *WorkspaceMetadata) Path(crate string) (string, bool) {
	p, ok := wm.paths[crate]
	return p, ok
}

func readWorkspaceRootManifest(workspaceRoot string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(filepath.Join(workspaceRoot, "Cargo.toml"))
	if err != nil {
		return nil, fmt.Errorf("read workspace root Cargo.toml: %w", err)
	}
	var doc map[string]interface{}
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse workspace root Cargo.toml: %w", err)
	}
	return doc, nil
}
