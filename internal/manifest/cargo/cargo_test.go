package cargo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railsplit/rail/internal/manifest"
	"github.com/railsplit/rail/internal/railconfig"
)

// writeWorkspace lays out a minimal two-crate workspace under a temp
// directory: a root Cargo.toml declaring [workspace.package]/
// [workspace.dependencies], and member crates "alpha" and "beta" where beta
// depends on alpha by path.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte(`
[workspace]
members = ["alpha", "beta"]

[workspace.package]
version = "1.2.3"
edition = "2021"
license = "MIT"

[workspace.dependencies]
serde = { version = "1.0", features = ["derive"] }
`), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "alpha"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha", "Cargo.toml"), []byte(`
[package]
name = "alpha"
version = "1.2.3"
edition = "2021"
`), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "beta"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "beta", "Cargo.toml"), []byte(`
[package]
name = "beta"
version = { workspace = true }
edition = { workspace = true }
license = { workspace = true }

[dependencies]
alpha = { path = "../alpha" }
serde = { workspace = true }
`), 0o644))

	return root
}

func testSplits() []railconfig.Split {
	return []railconfig.Split{
		{Name: "alpha", Paths: []railconfig.CratePath{{Crate: "alpha"}}},
		{Name: "beta", Paths: []railconfig.CratePath{{Crate: "beta"}}},
	}
}

func TestTransformPathToVersion(t *testing.T) {
	root := writeWorkspace(t)
	wm, err := LoadWorkspaceMetadata(root, testSplits())
	require.NoError(t, err)
	ct := New(wm)

	content, err := os.ReadFile(filepath.Join(root, "beta", "Cargo.toml"))
	require.NoError(t, err)

	out, err := ct.ToSplit(content, manifestContext(root, "beta"))
	require.NoError(t, err)

	assert.Contains(t, string(out), `version = "1.2.3"`)
	assert.NotContains(t, string(out), `path = "../alpha"`)
}

func TestRemoveWorkspaceSection(t *testing.T) {
	root := writeWorkspace(t)
	wm, err := LoadWorkspaceMetadata(root, testSplits())
	require.NoError(t, err)
	ct := New(wm)

	content, err := os.ReadFile(filepath.Join(root, "beta", "Cargo.toml"))
	require.NoError(t, err)

	out, err := ct.ToSplit(content, manifestContext(root, "beta"))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(out), "[workspace]"))
}

func TestErrorOnNonWorkspacePathDep(t *testing.T) {
	root := writeWorkspace(t)
	wm, err := LoadWorkspaceMetadata(root, testSplits())
	require.NoError(t, err)
	ct := New(wm)

	content := []byte(`
[package]
name = "gamma"
version = "0.1.0"

[dependencies]
outside = { path = "../../not-a-workspace-member" }
`)
	_, err = ct.ToSplit(content, manifestContext(root, "gamma"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
}

func TestTransformPreservesOtherFields(t *testing.T) {
	root := writeWorkspace(t)
	wm, err := LoadWorkspaceMetadata(root, testSplits())
	require.NoError(t, err)
	ct := New(wm)

	content, err := os.ReadFile(filepath.Join(root, "beta", "Cargo.toml"))
	require.NoError(t, err)

	out, err := ct.ToSplit(content, manifestContext(root, "beta"))
	require.NoError(t, err)
	assert.Contains(t, string(out), `name = "beta"`)
}

func TestRoundtripSimpleManifest(t *testing.T) {
	root := writeWorkspace(t)
	wm, err := LoadWorkspaceMetadata(root, testSplits())
	require.NoError(t, err)
	ct := New(wm)

	content, err := os.ReadFile(filepath.Join(root, "beta", "Cargo.toml"))
	require.NoError(t, err)

	split, err := ct.ToSplit(content, manifestContext(root, "beta"))
	require.NoError(t, err)

	back, err := ct.ToMono(split, manifestContext(root, "beta"))
	require.NoError(t, err)

	assert.Contains(t, string(back), `path = "../alpha"`)
	assert.Contains(t, string(back), "workspace = true")
}

func manifestContext(workspaceRoot, component string) manifest.Context {
	return manifest.Context{ComponentName: component, WorkspaceRoot: workspaceRoot}
}
