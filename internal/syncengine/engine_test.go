package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railsplit/rail/internal/conflict"
	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/manifest"
	"github.com/railsplit/rail/internal/railconfig"
	"github.com/railsplit/rail/internal/railog"
	"github.com/railsplit/rail/internal/security"
	"github.com/railsplit/rail/testhelpers"
)

// passthroughTransform is a manifest.Transform that returns its input
// unchanged, used by tests that exercise replay mechanics rather than the
// Cargo.toml transform itself (covered separately in the cargo package).
type passthroughTransform struct{}

func (passthroughTransform) ToSplit(content []byte, _ manifest.Context) ([]byte, error) {
	return content, nil
}

func (passthroughTransform) ToMono(content []byte, _ manifest.Context) ([]byte, error) {
	return content, nil
}

func newTestRepo(t *testing.T, root string) *gitrepo.Repo {
	t.Helper()
	_, err := testhelpers.NewGitRepo(root)
	require.NoError(t, err)
	repo, err := gitrepo.Open(root)
	require.NoError(t, err)
	return repo
}

func newEngineFixture(t *testing.T) (mono, split *gitrepo.Repo, gate *security.Gate) {
	t.Helper()
	mono = newTestRepo(t, t.TempDir())
	split = newTestRepo(t, t.TempDir())
	securityCfg := railconfig.Security{
		PRBranchPattern:   "rail/sync/{crate}/{timestamp}",
		ProtectedBranches: []string{"main", "master"},
	}
	gate = security.NewGate(securityCfg, railog.New())
	return mono, split, gate
}

func writeAndCommit(t *testing.T, dir, relPath, content, message string) {
	t.Helper()
	full := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	cmd := testhelpers.GitRepo{Dir: dir}
	require.NoError(t, cmd.CommitAll(message))
}

func baseOptions(componentName string, cratePaths []string) Options {
	return Options{
		ComponentName: componentName,
		CratePaths:    cratePaths,
		Mode:          railconfig.ModeSingle,
		SplitBranch:   "main",
		Direction:     DirectionMonoToSplit,
		Policy:        conflict.PolicyEmitMarkers,
	}
}

func TestReplayMonoToSplitBasic(t *testing.T) {
	mono, split, gate := newEngineFixture(t)
	ctx := context.Background()

	writeAndCommit(t, mono.Root(), "README.md", "root readme", "unrelated root change")
	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "pub fn foo() {}", "add foo crate")

	eng := New(mono, split, passthroughTransform{}, gate, railog.New())
	store := mapping.New("foo")
	opts := baseOptions("foo", []string{"crates/foo"})

	result, err := eng.Run(ctx, opts, store)
	require.NoError(t, err)
	require.Equal(t, 1, result.MonoToSplitCommits)

	content, err := os.ReadFile(filepath.Join(split.Root(), "src/lib.rs"))
	require.NoError(t, err)
	require.Equal(t, "pub fn foo() {}", string(content))

	messages, err := (&testhelpers.GitRepo{Dir: split.Root()}).ListCurrentBranchCommitMessages()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Contains(t, messages[0], originMonoPrefix)

	require.Equal(t, 1, store.Len())
}

func TestReplayMonoToSplitIgnoresUnrelatedPaths(t *testing.T) {
	mono, split, gate := newEngineFixture(t)
	ctx := context.Background()

	writeAndCommit(t, mono.Root(), "README.md", "root readme", "unrelated root change")

	eng := New(mono, split, passthroughTransform{}, gate, railog.New())
	store := mapping.New("foo")
	opts := baseOptions("foo", []string{"crates/foo"})

	result, err := eng.Run(ctx, opts, store)
	require.NoError(t, err)
	require.Equal(t, 0, result.MonoToSplitCommits)
	require.Equal(t, 0, store.Len())
}

func TestSyncDedupIdempotence(t *testing.T) {
	mono, split, gate := newEngineFixture(t)
	ctx := context.Background()

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "v1", "add foo crate")

	eng := New(mono, split, passthroughTransform{}, gate, railog.New())
	store := mapping.New("foo")
	opts := baseOptions("foo", []string{"crates/foo"})

	first, err := eng.Run(ctx, opts, store)
	require.NoError(t, err)
	require.Equal(t, 1, first.MonoToSplitCommits)

	second, err := eng.Run(ctx, opts, store)
	require.NoError(t, err)
	require.Equal(t, 0, second.MonoToSplitCommits, "re-running sync with no new commits must not duplicate work")

	messages, err := (&testhelpers.GitRepo{Dir: split.Root()}).ListCurrentBranchCommitMessages()
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestReplaySplitToManualPolicyLeavesConflictMarkers(t *testing.T) {
	mono, split, gate := newEngineFixture(t)
	ctx := context.Background()

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "line one\nline two\nline three\n", "add foo crate")

	eng := New(mono, split, passthroughTransform{}, gate, railog.New())
	store := mapping.New("foo")
	monoToSplit := baseOptions("foo", []string{"crates/foo"})

	_, err := eng.Run(ctx, monoToSplit, store)
	require.NoError(t, err)

	// Mono edits line one; split independently edits the same line.
	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "mono edit\nline two\nline three\n", "mono edits line one")
	writeAndCommit(t, split.Root(), "src/lib.rs", "split edit\nline two\nline three\n", "split edits line one")

	splitToMono := monoToSplit
	splitToMono.Direction = DirectionSplitToMono
	splitToMono.Policy = conflict.PolicyEmitMarkers

	result, err := eng.Run(ctx, splitToMono, store)
	require.NoError(t, err)
	require.Equal(t, 0, result.SplitToMonoCommits, "an unresolved conflict must not produce a mono commit")
	require.Len(t, result.UnresolvedConflicts, 1)

	merged, err := os.ReadFile(filepath.Join(mono.Root(), "crates/foo/src/lib.rs"))
	require.NoError(t, err)
	require.Contains(t, string(merged), "<<<<<<< ours")
	require.Contains(t, string(merged), ">>>>>>> theirs")
}

func TestReplaySplitToMonoOursPolicyResolvesCleanly(t *testing.T) {
	mono, split, gate := newEngineFixture(t)
	ctx := context.Background()

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "line one\nline two\nline three\n", "add foo crate")

	eng := New(mono, split, passthroughTransform{}, gate, railog.New())
	store := mapping.New("foo")
	monoToSplit := baseOptions("foo", []string{"crates/foo"})

	_, err := eng.Run(ctx, monoToSplit, store)
	require.NoError(t, err)

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "mono edit\nline two\nline three\n", "mono edits line one")
	writeAndCommit(t, split.Root(), "src/lib.rs", "split edit\nline two\nline three\n", "split edits line one")

	splitToMono := monoToSplit
	splitToMono.Direction = DirectionSplitToMono
	splitToMono.Policy = conflict.PolicyPreferOurs

	result, err := eng.Run(ctx, splitToMono, store)
	require.NoError(t, err)
	require.Equal(t, 1, result.SplitToMonoCommits)
	require.Empty(t, result.UnresolvedConflicts)

	merged, err := os.ReadFile(filepath.Join(mono.Root(), "crates/foo/src/lib.rs"))
	require.NoError(t, err)
	require.Equal(t, "mono edit\nline two\nline three\n", string(merged), "prefer-ours must keep the monorepo's content")
}

func TestReplaySplitToMonoDivertsProtectedBranch(t *testing.T) {
	mono, split, gate := newEngineFixture(t)
	ctx := context.Background()

	writeAndCommit(t, mono.Root(), "crates/foo/src/lib.rs", "v1", "add foo crate")

	eng := New(mono, split, passthroughTransform{}, gate, railog.New())
	store := mapping.New("foo")
	monoToSplit := baseOptions("foo", []string{"crates/foo"})

	_, err := eng.Run(ctx, monoToSplit, store)
	require.NoError(t, err)

	writeAndCommit(t, split.Root(), "src/lib.rs", "v2", "split updates foo")

	branch, err := mono.CurrentBranch()
	require.NoError(t, err)
	require.Equal(t, "main", branch, "fixture default branch must be the protected one for this test")

	splitToMono := monoToSplit
	splitToMono.Direction = DirectionSplitToMono

	result, err := eng.Run(ctx, splitToMono, store)
	require.NoError(t, err)
	require.Equal(t, 1, result.SplitToMonoCommits)
	require.NotEmpty(t, result.DivertedBranch)
	require.True(t, strings.HasPrefix(result.DivertedBranch, "rail/sync/foo/"))

	currentBranch, err := mono.CurrentBranch()
	require.NoError(t, err)
	require.Equal(t, result.DivertedBranch, currentBranch)

	repo := testhelpers.GitRepo{Dir: mono.Root()}
	messages, err := repo.ListCurrentBranchCommitMessages()
	require.NoError(t, err)
	require.Len(t, messages, 2, "the PR branch must carry exactly the original commit plus the one replayed commit")
}
