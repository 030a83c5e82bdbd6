package syncengine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/railsplit/rail/internal/conflict"
	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/manifest"
	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/railconfig"
	"github.com/railsplit/rail/internal/railog"
	"github.com/railsplit/rail/internal/security"
)

// anchorWindow bounds how far back the anchor search walks recent history
// before giving up and treating the component as unsynchronized.
const anchorWindow = 100

const (
	originMonoPrefix   = "Rail-Origin: mono@"
	originRemotePrefix = "Rail-Origin: remote@"
)

// Direction selects which way a Run call propagates commits.
type Direction string

const (
	DirectionMonoToSplit   Direction = "mono-to-split"
	DirectionSplitToMono   Direction = "split-to-mono"
	DirectionBidirectional Direction = "bidirectional"
)

// Options describes one sync invocation against a single component.
type Options struct {
	ComponentName string
	CratePaths    []string
	Mode          railconfig.SplitMode
	WorkspaceRoot string // monorepo root, passed through to the manifest transform

	SplitBranch    string // branch on the split side new commits land on
	MonoRemoteURL  string // configured remote for the monorepo, "" if none
	SplitRemoteURL string // configured remote for the split repo, "" if none

	Direction Direction
	Policy    conflict.Policy

	// DryRun performs anchor-finding and conflict detection but skips
	// writing files, constructing commits, recording mappings, and
	// pushing. Counts in Result still reflect what would have happened.
	DryRun bool

	// Thorough gates the deferred checks §9 mentions (remote
	// accessibility, signing-configuration validation). The engine itself
	// does not interpret it; callers that wire it run those checks before
	// calling Run.
	Thorough bool
}

// UnresolvedConflict names a file a replay could not cleanly merge under
// the configured policy.
type UnresolvedConflict struct {
	Path         string
	SourceCommit string
}

// Result summarizes one Run call.
type Result struct {
	MonoToSplitCommits  int
	SplitToMonoCommits  int
	UnresolvedConflicts []UnresolvedConflict
	DivertedBranch      string // non-empty if split→mono wrote to a PR branch instead of the protected one
	PRGuidance          *security.PullRequestGuidance
}

// Engine runs incremental sync between one monorepo and one split
// repository for a single component.
type Engine struct {
	mono      *gitrepo.Repo
	split     *gitrepo.Repo
	transform manifest.Transform
	gate      *security.Gate
	log       *railog.Logger
}

// New constructs an Engine.
func New(mono, split *gitrepo.Repo, transform manifest.Transform, gate *security.Gate, log *railog.Logger) *Engine {
	return &Engine{mono: mono, split: split, transform: transform, gate: gate, log: log}
}

// Run loads the mapping store from both sides, propagates commits in the
// requested direction, and persists the updated store.
func (e *Engine) Run(ctx context.Context, opts Options, store *mapping.Store) (Result, error) {
	if !opts.DryRun {
		if err := e.validateCredentials(opts); err != nil {
			return Result{}, err
		}
	}

	if e.split.HasRemote(ctx, "origin") && opts.SplitRemoteURL != "" && !security.IsLocal(opts.SplitRemoteURL) {
		if err := store.FetchNotes(ctx, e.split, "origin"); err != nil {
			return Result{}, fmt.Errorf("fetch split mapping notes: %w", err)
		}
	}
	if e.mono.HasRemote(ctx, "origin") && opts.MonoRemoteURL != "" && !security.IsLocal(opts.MonoRemoteURL) {
		if err := store.FetchNotes(ctx, e.mono, "origin"); err != nil {
			return Result{}, fmt.Errorf("fetch mono mapping notes: %w", err)
		}
	}

	if err := store.Load(ctx, e.mono); err != nil {
		return Result{}, fmt.Errorf("load mono mapping: %w", err)
	}
	if err := store.Load(ctx, e.split); err != nil {
		return Result{}, fmt.Errorf("load split mapping: %w", err)
	}

	var result Result
	switch opts.Direction {
	case DirectionMonoToSplit:
		n, err := e.replayMonoToSplit(ctx, opts, store)
		result.MonoToSplitCommits = n
		if err != nil {
			return result, err
		}
	case DirectionSplitToMono:
		n, conflicts, divertedBranch, guidance, err := e.replaySplitToMono(ctx, opts, store)
		result.SplitToMonoCommits = n
		result.UnresolvedConflicts = conflicts
		result.DivertedBranch = divertedBranch
		result.PRGuidance = guidance
		if err != nil {
			return result, err
		}
	default:
		monoNew, err := e.hasNewMonoCommits(ctx, opts, store)
		if err != nil {
			return result, err
		}
		splitNew, err := e.hasNewSplitCommits(ctx, opts, store)
		if err != nil {
			return result, err
		}
		if monoNew {
			n, err := e.replayMonoToSplit(ctx, opts, store)
			result.MonoToSplitCommits = n
			if err != nil {
				return result, err
			}
		}
		if splitNew {
			n, conflicts, divertedBranch, guidance, err := e.replaySplitToMono(ctx, opts, store)
			result.SplitToMonoCommits = n
			result.UnresolvedConflicts = conflicts
			result.DivertedBranch = divertedBranch
			result.PRGuidance = guidance
			if err != nil {
				return result, err
			}
		}
	}

	if opts.DryRun {
		return result, nil
	}
	if err := store.Save(ctx, e.mono); err != nil {
		return result, fmt.Errorf("save mono mapping: %w", err)
	}
	if err := store.FetchNotes(ctx, e.split, e.mono.Root()); err != nil {
		return result, fmt.Errorf("save split mapping: %w", err)
	}
	if e.split.HasRemote(ctx, "origin") && opts.SplitRemoteURL != "" && !security.IsLocal(opts.SplitRemoteURL) {
		if err := store.PushNotes(ctx, e.split, "origin"); err != nil {
			e.log.Warn("push split mapping notes failed; mappings remain local: %v", err)
		}
	}
	if e.mono.HasRemote(ctx, "origin") && opts.MonoRemoteURL != "" && !security.IsLocal(opts.MonoRemoteURL) {
		if err := store.PushNotes(ctx, e.mono, "origin"); err != nil {
			e.log.Warn("push mono mapping notes failed; mappings remain local: %v", err)
		}
	}
	return result, nil
}

// validateCredentials runs the security gate's SSH-identity and
// signing-key checks before any write, per §4.2.3: signing is validated
// whenever it is required regardless of remote locality, while the SSH
// identity is only needed when a non-local remote is actually in play for
// either side.
func (e *Engine) validateCredentials(opts Options) error {
	if _, err := e.gate.ValidateSigningKey(); err != nil {
		return err
	}
	needsSSH := (opts.MonoRemoteURL != "" && !security.IsLocal(opts.MonoRemoteURL)) ||
		(opts.SplitRemoteURL != "" && !security.IsLocal(opts.SplitRemoteURL))
	if needsSSH {
		if _, err := e.gate.ValidateSSHKey(); err != nil {
			return err
		}
	}
	return nil
}

// findMonoAnchor walks the monorepo's recent history, most-recent-first,
// bounded to anchorWindow, and returns the first commit already recorded
// as a forward-map key.
func (e *Engine) findMonoAnchor(ctx context.Context, store *mapping.Store) (sha string, found bool, err error) {
	history, err := e.mono.CommitHistory(ctx, "HEAD", anchorWindow)
	if err != nil {
		return "", false, fmt.Errorf("walk mono history: %w", err)
	}
	for _, c := range history {
		if store.HasMapping(c.SHA) {
			return c.SHA, true, nil
		}
	}
	return "", false, nil
}

// findSplitAnchor is the symmetric reverse-map lookup over the split side.
func (e *Engine) findSplitAnchor(ctx context.Context, store *mapping.Store) (sha string, found bool, err error) {
	history, err := e.split.CommitHistory(ctx, "HEAD", anchorWindow)
	if err != nil {
		return "", false, fmt.Errorf("walk split history: %w", err)
	}
	for _, c := range history {
		if store.HasReverseMapping(c.SHA) {
			return c.SHA, true, nil
		}
	}
	return "", false, nil
}

func (e *Engine) hasNewMonoCommits(ctx context.Context, opts Options, store *mapping.Store) (bool, error) {
	anchor, found, err := e.findMonoAnchor(ctx, store)
	if err != nil {
		return false, err
	}
	since := ""
	if found {
		since = anchor
	}
	commits, err := e.mono.CommitsTouchingPaths(ctx, opts.CratePaths, since, "HEAD")
	if err != nil {
		return false, fmt.Errorf("probe mono history: %w", err)
	}
	for _, c := range commits {
		if strings.Contains(c.Message, originRemotePrefix) || store.HasMapping(c.SHA) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (e *Engine) hasNewSplitCommits(ctx context.Context, opts Options, store *mapping.Store) (bool, error) {
	anchor, found, err := e.findSplitAnchor(ctx, store)
	if err != nil {
		return false, err
	}
	since := ""
	if found {
		since = anchor
	}
	commits, err := e.split.CommitsTouchingPaths(ctx, nil, since, "HEAD")
	if err != nil {
		return false, fmt.Errorf("probe split history: %w", err)
	}
	for _, c := range commits {
		if strings.Contains(c.Message, originMonoPrefix) || store.HasReverseMapping(c.SHA) {
			continue
		}
		return true, nil
	}
	return false, nil
}

// replayMonoToSplit filters mono commits touching the component's path set
// since the forward anchor and recreates each, in order, as a new split
// commit carrying a mono origin trailer.
func (e *Engine) replayMonoToSplit(ctx context.Context, opts Options, store *mapping.Store) (int, error) {
	anchor, found, err := e.findMonoAnchor(ctx, store)
	if err != nil {
		return 0, err
	}
	since := ""
	if found {
		since = anchor
	}
	commits, err := e.mono.CommitsTouchingPaths(ctx, opts.CratePaths, since, "HEAD")
	if err != nil {
		return 0, fmt.Errorf("walk mono commits touching %v: %w", opts.CratePaths, err)
	}

	count := 0
	for _, c := range commits {
		if strings.Contains(c.Message, originRemotePrefix) || store.HasMapping(c.SHA) {
			continue
		}

		changes, err := e.mono.ChangedFiles(ctx, c.SHA)
		if err != nil {
			return count, fmt.Errorf("changed files for %s: %w", c.SHA, err)
		}

		writes := make(map[string][]byte)
		var deletes []string
		var reqs []gitrepo.BlobRequest
		var destPaths []string
		for _, ch := range changes {
			cratePath, relPath, ok := matchCratePath(opts.CratePaths, ch.Path)
			if !ok {
				continue
			}
			destPath := splitDestPath(opts.Mode, cratePath, relPath)
			if ch.Status == gitrepo.Deleted {
				deletes = append(deletes, destPath)
				continue
			}
			reqs = append(reqs, gitrepo.BlobRequest{SHA: c.SHA, Path: ch.Path})
			destPaths = append(destPaths, destPath)
		}
		if len(reqs) > 0 {
			blobs, err := e.mono.ReadFilesBulk(ctx, reqs)
			if err != nil {
				return count, fmt.Errorf("read blobs for %s: %w", c.SHA, err)
			}
			manifestName := manifestFileName(e.transform)
			for i, req := range reqs {
				content, ok := blobs[req]
				if !ok {
					continue
				}
				destPath := destPaths[i]
				if filepath.Base(destPath) == manifestName {
					transformed, err := e.transform.ToSplit(content, manifest.Context{
						ComponentName: opts.ComponentName,
						WorkspaceRoot: opts.WorkspaceRoot,
					})
					if err != nil {
						return count, fmt.Errorf("transform %s mono to split: %w", destPath, err)
					}
					content = transformed
				}
				writes[destPath] = content
			}
		}

		if len(writes) == 0 && len(deletes) == 0 {
			continue
		}

		if opts.DryRun {
			count++
			continue
		}

		if err := applyToWorkingTree(e.split.Root(), writes, deletes); err != nil {
			return count, fmt.Errorf("apply commit %s to split working tree: %w", c.SHA, err)
		}

		headSHA, _ := e.split.HeadCommit()
		var parents []string
		if headSHA != "" {
			parents = []string{headSHA}
		}
		message := appendTrailer(c.Message, originMonoPrefix+c.SHA)
		sha, err := e.split.CreateCommitWithMetadata(ctx, message, c.AuthorName, c.AuthorEmail, c.AuthorTimestamp, parents)
		if err != nil {
			return count, fmt.Errorf("construct split commit for %s: %w", c.SHA, err)
		}
		if err := e.split.UpdateRef(ctx, "HEAD", sha); err != nil {
			return count, fmt.Errorf("update split HEAD: %w", err)
		}
		store.RecordMapping(c.SHA, sha)
		count++
	}

	if count > 0 && !opts.DryRun && e.split.HasRemote(ctx, "origin") && opts.SplitRemoteURL != "" && !security.IsLocal(opts.SplitRemoteURL) {
		if err := e.split.PushToRemote(ctx, "origin", opts.SplitBranch, ""); err != nil {
			e.log.Warn("push split branch %s failed; commits and mappings remain local: %v", opts.SplitBranch, err)
		}
	}
	return count, nil
}

// replaySplitToMono filters split commits since the reverse anchor and
// recreates each, in order, as a new mono commit carrying a remote origin
// trailer, diverting to a PR branch first if the monorepo's current branch
// is protected.
func (e *Engine) replaySplitToMono(ctx context.Context, opts Options, store *mapping.Store) (count int, conflicts []UnresolvedConflict, divertedBranch string, guidance *security.PullRequestGuidance, err error) {
	anchor, found, err := e.findSplitAnchor(ctx, store)
	if err != nil {
		return 0, nil, "", nil, err
	}
	since := ""
	if found {
		since = anchor
	}
	commits, err := e.split.CommitsTouchingPaths(ctx, nil, since, "HEAD")
	if err != nil {
		return 0, nil, "", nil, fmt.Errorf("walk split commits: %w", err)
	}

	var pending []gitrepo.CommitRecord
	for _, c := range commits {
		if strings.Contains(c.Message, originMonoPrefix) || store.HasReverseMapping(c.SHA) {
			continue
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return 0, nil, "", nil, nil
	}

	originalBranch, _ := e.mono.CurrentBranch()
	if e.gate.IsProtectedBranch(originalBranch) {
		divertedBranch = e.gate.GeneratePRBranch(opts.ComponentName, time.Now())
		if !opts.DryRun {
			if err := e.mono.CreateAndCheckoutBranch(ctx, divertedBranch); err != nil {
				return 0, nil, "", nil, fmt.Errorf("check out PR branch %s: %w", divertedBranch, err)
			}
		}
	}

	monoAnchorSHA, haveMonoAnchor, err := e.findMonoAnchor(ctx, store)
	if err != nil {
		return 0, nil, divertedBranch, nil, err
	}

	for _, c := range pending {
		changes, err := e.split.ChangedFiles(ctx, c.SHA)
		if err != nil {
			return count, conflicts, divertedBranch, nil, fmt.Errorf("changed files for %s: %w", c.SHA, err)
		}

		writes := make(map[string][]byte)
		var deletes []string
		unresolvedHere := false

		for _, ch := range changes {
			monoRelPath := toMonoPath(opts.Mode, opts.CratePaths, ch.Path)
			if ch.Status == gitrepo.Deleted {
				deletes = append(deletes, monoRelPath)
				continue
			}

			blobs, err := e.split.ReadFilesBulk(ctx, []gitrepo.BlobRequest{{SHA: c.SHA, Path: ch.Path}})
			if err != nil {
				return count, conflicts, divertedBranch, nil, fmt.Errorf("read split blob %s@%s: %w", ch.Path, c.SHA, err)
			}
			theirs, ok := blobs[gitrepo.BlobRequest{SHA: c.SHA, Path: ch.Path}]
			if !ok {
				continue
			}
			if filepath.Base(monoRelPath) == manifestFileName(e.transform) {
				transformed, err := e.transform.ToMono(theirs, manifest.Context{
					ComponentName: opts.ComponentName,
					WorkspaceRoot: opts.WorkspaceRoot,
				})
				if err != nil {
					return count, conflicts, divertedBranch, nil, fmt.Errorf("transform %s split to mono: %w", monoRelPath, err)
				}
				theirs = transformed
			}

			fullMonoPath := filepath.Join(e.mono.Root(), monoRelPath)
			ours, existsInMono := readIfExists(fullMonoPath)
			modifiedSinceAnchor := false
			var base []byte
			if existsInMono && haveMonoAnchor {
				baseBlobs, err := e.mono.ReadFilesBulk(ctx, []gitrepo.BlobRequest{{SHA: monoAnchorSHA, Path: monoRelPath}})
				if err != nil {
					return count, conflicts, divertedBranch, nil, fmt.Errorf("read mono anchor blob %s: %w", monoRelPath, err)
				}
				var baseOK bool
				base, baseOK = baseBlobs[gitrepo.BlobRequest{SHA: monoAnchorSHA, Path: monoRelPath}]
				modifiedSinceAnchor = baseOK && !bytes.Equal(base, ours)
			}

			if existsInMono && modifiedSinceAnchor {
				res, err := conflict.Resolve(base, ours, theirs, opts.Policy)
				if err != nil {
					return count, conflicts, divertedBranch, nil, fmt.Errorf("resolve conflict in %s: %w", monoRelPath, err)
				}
				writes[monoRelPath] = res.Merged
				if res.Unresolved {
					unresolvedHere = true
					conflicts = append(conflicts, UnresolvedConflict{Path: monoRelPath, SourceCommit: c.SHA})
				}
				continue
			}
			writes[monoRelPath] = theirs
		}

		if opts.DryRun {
			if !unresolvedHere {
				count++
			}
			continue
		}

		if unresolvedHere {
			// Per §4.2.3: the commit is not applied, but merged/marker
			// content is still written so the user can hand-resolve and
			// re-run. Subsequent commits in the batch still proceed.
			if err := applyToWorkingTree(e.mono.Root(), writes, deletes); err != nil {
				return count, conflicts, divertedBranch, nil, fmt.Errorf("write conflicted files for %s: %w", c.SHA, err)
			}
			continue
		}

		if err := applyToWorkingTree(e.mono.Root(), writes, deletes); err != nil {
			return count, conflicts, divertedBranch, nil, fmt.Errorf("apply commit %s to mono working tree: %w", c.SHA, err)
		}

		headSHA, _ := e.mono.HeadCommit()
		var parents []string
		if headSHA != "" {
			parents = []string{headSHA}
		}
		message := appendTrailer(c.Message, originRemotePrefix+c.SHA)
		sha, err := e.mono.CreateCommitWithMetadata(ctx, message, c.AuthorName, c.AuthorEmail, c.AuthorTimestamp, parents)
		if err != nil {
			return count, conflicts, divertedBranch, nil, fmt.Errorf("construct mono commit for %s: %w", c.SHA, err)
		}
		if err := e.gate.VerifyCommitSignature(ctx, e.mono)(sha); err != nil {
			return count, conflicts, divertedBranch, nil, err
		}
		if err := e.mono.UpdateRef(ctx, "HEAD", sha); err != nil {
			return count, conflicts, divertedBranch, nil, fmt.Errorf("update mono HEAD: %w", err)
		}
		store.RecordMapping(sha, c.SHA)
		count++
	}

	if count == 0 || opts.DryRun {
		return count, conflicts, divertedBranch, nil, nil
	}

	branch := originalBranch
	if divertedBranch != "" {
		branch = divertedBranch
	}
	if e.mono.HasRemote(ctx, "origin") && opts.MonoRemoteURL != "" && !security.IsLocal(opts.MonoRemoteURL) {
		if err := e.mono.PushToRemote(ctx, "origin", branch, ""); err != nil {
			e.log.Warn("push %s failed; commits and mappings remain local: %v", branch, err)
		} else if divertedBranch != "" {
			if owner, repoName, ok := security.ParseOwnerRepo(opts.MonoRemoteURL); ok {
				g := e.gate.OfferPullRequest(ctx, owner, repoName, divertedBranch, originalBranch, opts.ComponentName, count)
				guidance = &g
			}
		}
	}
	return count, conflicts, divertedBranch, guidance, nil
}

// matchCratePath returns the configured path entry a mono-relative file
// path falls under, and that file's path relative to it.
func matchCratePath(paths []string, path string) (cratePath, relPath string, ok bool) {
	for _, cp := range paths {
		cp = filepath.Clean(cp)
		prefix := cp + "/"
		if strings.HasPrefix(path, prefix) {
			return cp, strings.TrimPrefix(path, prefix), true
		}
	}
	return "", "", false
}

// splitDestPath rehomes a mono-relative crate path onto its split-side
// destination, mirroring the projector's rehome rule.
func splitDestPath(mode railconfig.SplitMode, cratePath, relPath string) string {
	if mode == railconfig.ModeCombined {
		return filepath.Join(cratePath, relPath)
	}
	return relPath
}

// toMonoPath is the reverse of splitDestPath: combined mode preserves the
// crate-relative path (which is already mono-relative), single mode
// reintroduces the sole crate path's prefix.
func toMonoPath(mode railconfig.SplitMode, cratePaths []string, splitPath string) string {
	if mode == railconfig.ModeCombined {
		return splitPath
	}
	if len(cratePaths) == 0 {
		return splitPath
	}
	return filepath.Join(cratePaths[0], splitPath)
}

func manifestFileName(t manifest.Transform) string {
	if mf, ok := t.(manifest.ManifestFileName); ok {
		return mf.ManifestFile()
	}
	return "Cargo.toml"
}

func appendTrailer(message, trailer string) string {
	return strings.TrimRight(message, "\n") + "\n\n" + trailer
}

func readIfExists(path string) ([]byte, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return content, true
}

// applyToWorkingTree writes every entry of writes and removes every path in
// deletes, both relative to root. Callers stage and commit separately.
func applyToWorkingTree(root string, writes map[string][]byte, deletes []string) error {
	for _, relPath := range deletes {
		full := filepath.Join(root, relPath)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", relPath, err)
		}
	}
	for relPath, content := range writes {
		full := filepath.Join(root, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", relPath, err)
		}
	}
	return nil
}
