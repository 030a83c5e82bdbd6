package projector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/manifest"
	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/railconfig"
	"github.com/railsplit/rail/internal/railerr"
	"github.com/railsplit/rail/internal/railog"
	"github.com/railsplit/rail/internal/security"
)

// Config describes one component's split operation.
type Config struct {
	ComponentName  string
	CratePaths     []string
	Mode           railconfig.SplitMode
	TargetRepoPath string
	Branch         string
	RemoteURL      string
	WorkspaceRoot  string
}

// State names a point in the projector's state machine, surfaced for
// progress reporting.
type State string

const (
	StateOpening    State = "opening"
	StateFiltering  State = "filtering"
	StateProjecting State = "projecting"
	StateClosing    State = "closing"
	StatePersisting State = "persisting"
	StatePushed     State = "pushed"
	StateLocalOnly  State = "local-only"
	StateFailed     State = "failed"
)

// ProgressFunc is called as the projector advances; i and n are 1-based and
// total when state is StateProjecting, zero otherwise.
type ProgressFunc func(state State, i, n int)

// Projector runs the history-projection algorithm against one monorepo
// repository.
type Projector struct {
	mono      *gitrepo.Repo
	transform manifest.Transform
	gate      *security.Gate
	log       *railog.Logger
	onProgress ProgressFunc
}

// New constructs a Projector.
func New(mono *gitrepo.Repo, transform manifest.Transform, gate *security.Gate, log *railog.Logger, onProgress ProgressFunc) *Projector {
	if onProgress == nil {
		onProgress = func(State, int, int) {}
	}
	return &Projector{mono: mono, transform: transform, gate: gate, log: log, onProgress: onProgress}
}

// Result summarizes a completed projection.
type Result struct {
	CommitsProjected int
	FinalState       State
	TargetHeadSHA    string
}

// Run executes the projector end to end: preflight, history filter,
// per-commit iteration, aux close, and persist.
func (p *Projector) Run(ctx context.Context, cfg Config, store *mapping.Store) (Result, error) {
	p.onProgress(StateOpening, 0, 0)

	if k := security.ClassifyRemote(cfg.RemoteURL); k == security.RemoteSSH || k == security.RemoteHTTPS {
		populated, err := p.mono.RemoteHasBranches(ctx, cfg.RemoteURL)
		if err != nil {
			return Result{FinalState: StateFailed}, err
		}
		if populated {
			return Result{FinalState: StateFailed}, railerr.Wrap(railerr.KindValidation,
				fmt.Sprintf("remote %s already has branches", cfg.RemoteURL), railerr.ErrRemoteAlreadyPopulated).
				WithSuggestion("split is a one-time operation; once a remote is populated, use sync to bring in new commits")
		}
	}

	target, err := gitrepo.Init(cfg.TargetRepoPath, cfg.Branch)
	if err != nil {
		return Result{FinalState: StateFailed}, fmt.Errorf("create target repository: %w", err)
	}

	p.onProgress(StateFiltering, 0, 0)
	commits, err := p.mono.CommitsTouchingPaths(ctx, cfg.CratePaths, "", "HEAD")
	if err != nil {
		return Result{FinalState: StateFailed}, fmt.Errorf("walk filtered history: %w", err)
	}

	var lastSplitSHA string
	previousFiles := map[string]bool{}

	for i, commit := range commits {
		p.onProgress(StateProjecting, i+1, len(commits))

		destFiles, err := p.materializeCommit(ctx, commit, cfg)
		if err != nil {
			return Result{FinalState: StateFailed}, fmt.Errorf("materialize commit %s: %w", commit.SHA, err)
		}
		if err := p.syncWorkingTree(cfg.TargetRepoPath, destFiles, previousFiles); err != nil {
			return Result{FinalState: StateFailed}, err
		}
		previousFiles = destFileSet(destFiles)

		parents := resolveParents(commit.ParentSHAs, store, lastSplitSHA)

		sha, err := target.CreateCommitWithMetadata(ctx, commit.Message, commit.AuthorName, commit.AuthorEmail, commit.AuthorTimestamp, parents)
		if err != nil {
			return Result{FinalState: StateFailed}, fmt.Errorf("construct commit for %s: %w", commit.SHA, err)
		}
		if err := target.UpdateRef(ctx, "HEAD", sha); err != nil {
			return Result{FinalState: StateFailed}, fmt.Errorf("update HEAD to %s: %w", sha, err)
		}

		store.RecordMapping(commit.SHA, sha)
		lastSplitSHA = sha
	}

	p.onProgress(StateClosing, 0, 0)
	if err := p.closeAuxiliaryFiles(ctx, cfg, target); err != nil {
		return Result{FinalState: StateFailed}, fmt.Errorf("close auxiliary files: %w", err)
	}

	p.onProgress(StatePersisting, 0, 0)
	if err := store.Save(ctx, p.mono); err != nil {
		return Result{FinalState: StateFailed}, fmt.Errorf("save mapping in monorepo: %w", err)
	}
	if err := store.FetchNotes(ctx, target, p.mono.Root()); err != nil {
		return Result{FinalState: StateFailed}, fmt.Errorf("save mapping in target: %w", err)
	}

	finalState := StateLocalOnly
	if k := security.ClassifyRemote(cfg.RemoteURL); k == security.RemoteSSH || k == security.RemoteHTTPS {
		if _, err := p.gate.ValidateSSHKey(); err != nil {
			return Result{FinalState: StateFailed}, err
		}
		if _, err := p.gate.ValidateSigningKey(); err != nil {
			return Result{FinalState: StateFailed}, err
		}
		if err := target.AddRemote(ctx, "origin", cfg.RemoteURL); err != nil {
			return Result{FinalState: StateFailed}, fmt.Errorf("configure origin: %w", err)
		}
		if err := target.PushToRemote(ctx, "origin", cfg.Branch, ""); err != nil {
			return Result{FinalState: StateFailed}, fmt.Errorf("push %s: %w", cfg.Branch, err)
		}
		if err := store.PushNotes(ctx, target, "origin"); err != nil {
			return Result{FinalState: StateFailed}, fmt.Errorf("push mapping notes: %w", err)
		}
		finalState = StatePushed
	}

	headSHA, _ := target.HeadCommit()
	return Result{CommitsProjected: len(commits), FinalState: finalState, TargetHeadSHA: headSHA}, nil
}

// materializeCommit collects every file under cfg.CratePaths at commit,
// rehoming each path per cfg.Mode and running it through the manifest
// transform when it is the component's manifest file.
func (p *Projector) materializeCommit(ctx context.Context, commit gitrepo.CommitRecord, cfg Config) (map[string][]byte, error) {
	dest := make(map[string][]byte)
	manifestName := "Cargo.toml"
	if mf, ok := p.transform.(manifest.ManifestFileName); ok {
		manifestName = mf.ManifestFile()
	}
	for _, cratePath := range cfg.CratePaths {
		files, err := p.mono.CollectTreeFiles(ctx, commit.SHA, cratePath)
		if err != nil {
			return nil, err
		}
		for relPath, content := range files {
			destPath := rehome(cfg.Mode, cratePath, relPath)
			if filepath.Base(destPath) == manifestName {
				transformed, err := p.transform.ToSplit(content, manifest.Context{
					ComponentName: cfg.ComponentName,
					WorkspaceRoot: cfg.WorkspaceRoot,
				})
				if err != nil {
					return nil, fmt.Errorf("transform %s: %w", destPath, err)
				}
				content = transformed
			}
			dest[destPath] = content
		}
	}
	return dest, nil
}

// rehome maps a file's path within a crate's source tree onto its
// destination path in the split repository: single mode strips the crate
// path prefix so the crate's own root becomes the split repository's root;
// combined mode preserves the crate-relative path so multiple crates can
// coexist in one split repository.
func rehome(mode railconfig.SplitMode, cratePath, relPath string) string {
	if mode == railconfig.ModeCombined {
		return filepath.Join(cratePath, relPath)
	}
	return relPath
}

func destFileSet(files map[string][]byte) map[string]bool {
	set := make(map[string]bool, len(files))
	for path := range files {
		set[path] = true
	}
	return set
}

// syncWorkingTree writes every file in files to root, and removes any file
// that was present after the previous commit's materialization but is
// absent now.
func (p *Projector) syncWorkingTree(root string, files map[string][]byte, previous map[string]bool) error {
	for path := range previous {
		if _, ok := files[path]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(root, path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale %s: %w", path, err)
		}
	}
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// resolveParents maps a mono commit's parent SHAs onto their split-side
// images via store. If none of the parents have a recorded mapping (the
// usual case for a root commit, or one whose only parents predate the
// component's presence), the most recently projected commit is used instead
// so history stays linear rather than forking.
func resolveParents(monoParents []string, store *mapping.Store, lastSplitSHA string) []string {
	var parents []string
	for _, monoParent := range monoParents {
		if splitSHA, ok := store.GetMapping(monoParent); ok {
			parents = append(parents, splitSHA)
		}
	}
	if len(parents) == 0 && lastSplitSHA != "" {
		parents = append(parents, lastSplitSHA)
	}
	return parents
}

// closeAuxiliaryFiles copies workspace-level files (those not under any
// configured crate path, e.g. rust-toolchain.toml, README, LICENSE) into the
// target repository's root and, if this changed anything, commits them as a
// single closing commit.
func (p *Projector) closeAuxiliaryFiles(ctx context.Context, cfg Config, target *gitrepo.Repo) error {
	auxFiles, err := discoverAuxiliaryFiles(cfg.WorkspaceRoot, cfg.CratePaths)
	if err != nil {
		return err
	}
	if len(auxFiles) == 0 {
		return nil
	}
	for relPath, srcPath := range auxFiles {
		content, err := os.ReadFile(srcPath)
		if err != nil {
			continue
		}
		destPath := filepath.Join(cfg.TargetRepoPath, relPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(destPath, content, 0o644); err != nil {
			return err
		}
	}

	changed, err := target.HasStagedDiff(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	name, email, _ := target.Identity(ctx)
	if name == "" {
		name = "rail"
	}
	if email == "" {
		email = "rail@localhost"
	}
	head, err := target.HeadCommit()
	var parents []string
	if err == nil && head != "" {
		parents = []string{head}
	}
	sha, err := target.CreateCommitWithMetadata(ctx, "Add workspace configs and project files", name, email, closeCommitTimestamp(), parents)
	if err != nil {
		return err
	}
	return target.UpdateRef(ctx, "HEAD", sha)
}

// auxiliaryFileNames lists the workspace-level files the closing commit
// carries across when present at the workspace root: toolchain pins and
// formatting config that every split member should inherit, plus top-level
// project documentation carried through as a fallback when a crate doesn't
// have its own copy.
var auxiliaryFileNames = []string{
	"rust-toolchain.toml", "rust-toolchain", ".rustfmt.toml", "rustfmt.toml",
	"README.md", "LICENSE", "LICENSE-MIT", "LICENSE-APACHE",
}

func discoverAuxiliaryFiles(workspaceRoot string, cratePaths []string) (map[string]string, error) {
	found := make(map[string]string)
	for _, name := range auxiliaryFileNames {
		candidate := filepath.Join(workspaceRoot, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			found[name] = candidate
		}
	}
	if len(cratePaths) > 0 {
		for _, name := range []string{"README.md", "LICENSE", "LICENSE-MIT", "LICENSE-APACHE"} {
			candidate := filepath.Join(workspaceRoot, cratePaths[0], name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				found[name] = candidate
			}
		}
	}
	return found, nil
}

// closeCommitTimestamp is the fixed timestamp used for the aux-close commit.
// It does not depend on wall-clock time or on any preceding commit's
// timestamp, keeping the closing commit's SHA stable across re-projections
// of identical history.
func closeCommitTimestamp() time.Time { return time.Unix(0, 0).UTC() }
