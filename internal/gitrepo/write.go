package gitrepo

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CreateCommitWithMetadata stages the current working tree, writes a tree
// object, and constructs a commit object with an explicit parent list and
// explicit author/committer identity and timestamp. Committer identity and
// timestamp are always set equal to the author's: this is the determinism
// discipline the projector depends on — a "now" committer timestamp would
// make re-projecting identical history produce different SHAs every run.
//
// The caller is responsible for materializing the desired file set in the
// working tree before calling this (write files, delete removed ones); this
// method only stages, snapshots, and constructs the commit object. It does
// not move any ref — callers update HEAD or a branch ref themselves.
func (r *Repo) CreateCommitWithMetadata(ctx context.Context, message, authorName, authorEmail string, authorTS time.Time, parents []string) (string, error) {
	if _, err := r.runner.Run(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("stage working tree: %w", err)
	}

	tree, err := r.runner.Run(ctx, "write-tree")
	if err != nil {
		return "", fmt.Errorf("write tree: %w", err)
	}

	dateStr := fmt.Sprintf("%d +0000", authorTS.Unix())
	env := []string{
		"GIT_AUTHOR_NAME=" + authorName,
		"GIT_AUTHOR_EMAIL=" + authorEmail,
		"GIT_AUTHOR_DATE=" + dateStr,
		"GIT_COMMITTER_NAME=" + authorName,
		"GIT_COMMITTER_EMAIL=" + authorEmail,
		"GIT_COMMITTER_DATE=" + dateStr,
	}

	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)

	sha, err := r.runner.RunWithEnv(ctx, env, args...)
	if err != nil {
		return "", fmt.Errorf("commit-tree: %w", err)
	}
	return sha, nil
}

// HasStagedDiff reports whether `git diff --cached` would show any change —
// used by the aux-close step to decide whether a closing commit is needed at
// all, rather than always emitting one.
func (r *Repo) HasStagedDiff(ctx context.Context) (bool, error) {
	if _, err := r.runner.Run(ctx, "add", "-A"); err != nil {
		return false, fmt.Errorf("stage working tree: %w", err)
	}
	out, err := r.runner.Run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("diff --cached: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}
