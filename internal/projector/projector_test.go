package projector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/manifest"
	"github.com/railsplit/rail/internal/railconfig"
	"github.com/railsplit/rail/internal/railog"
	"github.com/railsplit/rail/internal/security"
	"github.com/railsplit/rail/testhelpers"
)

// passthroughTransform is a manifest.Transform that returns its input
// unchanged; Cargo.toml rewriting itself is covered in the cargo package.
type passthroughTransform struct{}

func (passthroughTransform) ToSplit(content []byte, _ manifest.Context) ([]byte, error) {
	return content, nil
}

func (passthroughTransform) ToMono(content []byte, _ manifest.Context) ([]byte, error) {
	return content, nil
}

func newMonoFixture(t *testing.T) *gitrepo.Repo {
	t.Helper()
	root := t.TempDir()
	_, err := testhelpers.NewGitRepo(root)
	require.NoError(t, err)
	repo, err := gitrepo.Open(root)
	require.NoError(t, err)
	return repo
}

func writeAndCommit(t *testing.T, dir, relPath, content, message string) {
	t.Helper()
	full := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	cmd := testhelpers.GitRepo{Dir: dir}
	require.NoError(t, cmd.CommitAll(message))
}

func TestProjectorSplitsSingleCrateSingleMode(t *testing.T) {
	ctx := context.Background()
	gate := security.NewGate(railconfig.Security{ProtectedBranches: []string{"main"}}, railog.New())
	mono := newMonoFixture(t)

	writeAndCommit(t, mono.Root(), "README.md", "root readme", "unrelated root change")
	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "pub fn foo() {}", "add foo crate")

	p := New(mono, passthroughTransform{}, gate, railog.New(), nil)
	store := mapping.New("foo")
	targetDir := filepath.Join(t.TempDir(), "foo-split")

	result, err := p.Run(ctx, Config{
		ComponentName:  "foo",
		CratePaths:     []string{"crates/foo"},
		Mode:           railconfig.ModeSingle,
		TargetRepoPath: targetDir,
		Branch:         "main",
	}, store)
	require.NoError(t, err)
	require.Equal(t, 1, result.CommitsProjected)
	require.Equal(t, StateLocalOnly, result.FinalState)
	require.NotEmpty(t, result.TargetHeadSHA)

	content, err := os.ReadFile(filepath.Join(targetDir, "src/lib.rs"))
	require.NoError(t, err)
	require.Equal(t, "pub fn foo() {}", string(content))

	require.Equal(t, 1, store.Len())
	monoRepo := testhelpers.GitRepo{Dir: mono.Root()}
	monoHeadSHA, err := monoRepo.HeadSHA()
	require.NoError(t, err)
	splitSHA, ok := store.GetMapping(monoHeadSHA)
	require.True(t, ok)
	require.Equal(t, result.TargetHeadSHA, splitSHA)
}

func TestProjectorCombinedModeKeepsCratePrefix(t *testing.T) {
	ctx := context.Background()
	gate := security.NewGate(railconfig.Security{ProtectedBranches: []string{"main"}}, railog.New())
	mono := newMonoFixture(t)

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "pub fn foo() {}", "add foo crate")

	p := New(mono, passthroughTransform{}, gate, railog.New(), nil)
	store := mapping.New("foo")
	targetDir := filepath.Join(t.TempDir(), "workspace-split")

	_, err := p.Run(ctx, Config{
		ComponentName:  "foo",
		CratePaths:     []string{"crates/foo"},
		Mode:           railconfig.ModeCombined,
		TargetRepoPath: targetDir,
		Branch:         "main",
	}, store)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(targetDir, "crates/foo/src/lib.rs"))
	require.NoError(t, err)
	require.Equal(t, "pub fn foo() {}", string(content))
}

func TestProjectorIgnoresCommitsOutsideCratePaths(t *testing.T) {
	ctx := context.Background()
	gate := security.NewGate(railconfig.Security{ProtectedBranches: []string{"main"}}, railog.New())
	mono := newMonoFixture(t)

	writeAndCommit(t, mono.Root(), "crates/bar/src/lib.rs", "pub fn bar() {}", "add bar crate")

	p := New(mono, passthroughTransform{}, gate, railog.New(), nil)
	store := mapping.New("foo")
	targetDir := filepath.Join(t.TempDir(), "foo-split")

	result, err := p.Run(ctx, Config{
		ComponentName:  "foo",
		CratePaths:     []string{"crates/foo"},
		Mode:           railconfig.ModeSingle,
		TargetRepoPath: targetDir,
		Branch:         "main",
	}, store)
	require.NoError(t, err)
	require.Equal(t, 0, result.CommitsProjected)
	require.Equal(t, 0, store.Len())
}

func TestProjectorBuildsLinearHistoryAcrossCommits(t *testing.T) {
	ctx := context.Background()
	gate := security.NewGate(railconfig.Security{ProtectedBranches: []string{"main"}}, railog.New())
	mono := newMonoFixture(t)

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "v1", "add foo crate")
	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "v2", "update foo crate")

	p := New(mono, passthroughTransform{}, gate, railog.New(), nil)
	store := mapping.New("foo")
	targetDir := filepath.Join(t.TempDir(), "foo-split")

	result, err := p.Run(ctx, Config{
		ComponentName:  "foo",
		CratePaths:     []string{"crates/foo"},
		Mode:           railconfig.ModeSingle,
		TargetRepoPath: targetDir,
		Branch:         "main",
	}, store)
	require.NoError(t, err)
	require.Equal(t, 2, result.CommitsProjected)

	messages, err := (&testhelpers.GitRepo{Dir: targetDir}).ListCurrentBranchCommitMessages()
	require.NoError(t, err)
	require.Equal(t, []string{"update foo crate", "add foo crate"}, messages)
}

func TestProjectorClosesWithAuxiliaryFiles(t *testing.T) {
	ctx := context.Background()
	gate := security.NewGate(railconfig.Security{ProtectedBranches: []string{"main"}}, railog.New())
	mono := newMonoFixture(t)

	writeAndCommit(t, mono.Root(), "README.md", "workspace readme", "add workspace readme")
	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "pub fn foo() {}", "add foo crate")

	p := New(mono, passthroughTransform{}, gate, railog.New(), nil)
	store := mapping.New("foo")
	targetDir := filepath.Join(t.TempDir(), "foo-split")

	result, err := p.Run(ctx, Config{
		ComponentName:  "foo",
		CratePaths:     []string{"crates/foo"},
		Mode:           railconfig.ModeSingle,
		TargetRepoPath: targetDir,
		Branch:         "main",
		WorkspaceRoot:  mono.Root(),
	}, store)
	require.NoError(t, err)
	require.Equal(t, 1, result.CommitsProjected, "the closing commit is not counted as a projected mono commit")

	content, err := os.ReadFile(filepath.Join(targetDir, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "workspace readme", string(content))

	messages, err := (&testhelpers.GitRepo{Dir: targetDir}).ListCurrentBranchCommitMessages()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "Add workspace configs and project files", messages[0])
}

func TestProjectorLocalRemoteSkipsPopulatedCheckAndPush(t *testing.T) {
	// A local path remote (file-based, used in tests/offline setups) is
	// exempt from both the already-populated guard and the auto-push step,
	// which only apply to SSH/HTTPS remotes.
	ctx := context.Background()
	gate := security.NewGate(railconfig.Security{ProtectedBranches: []string{"main"}}, railog.New())
	mono := newMonoFixture(t)
	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "pub fn foo() {}", "add foo crate")

	bareDir := filepath.Join(t.TempDir(), "foo-remote.git")
	require.NoError(t, os.MkdirAll(bareDir, 0o755))
	bare := testhelpers.GitRepo{Dir: bareDir}
	require.NoError(t, bare.RunGitCommand("init", "--bare", "--initial-branch=main", bareDir))

	p := New(mono, passthroughTransform{}, gate, railog.New(), nil)
	store := mapping.New("foo")
	targetDir := filepath.Join(t.TempDir(), "foo-split")

	result, err := p.Run(ctx, Config{
		ComponentName:  "foo",
		CratePaths:     []string{"crates/foo"},
		Mode:           railconfig.ModeSingle,
		TargetRepoPath: targetDir,
		Branch:         "main",
		RemoteURL:      bareDir,
	}, store)
	require.NoError(t, err)
	require.Equal(t, StateLocalOnly, result.FinalState)

	target, err := gitrepo.Open(targetDir)
	require.NoError(t, err)
	require.False(t, target.HasRemote(ctx, "origin"), "a local remote URL must not trigger AddRemote/push")
}
