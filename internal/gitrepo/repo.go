package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
)

// Repo is a handle onto a single local git repository. It pairs a read-heavy
// go-git handle with a CommandRunner used for writes and notes plumbing.
type Repo struct {
	*gogit.Repository
	path   string
	runner *CommandRunner
}

// Open opens an existing repository rooted at or above path.
func Open(path string) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", absPath, err)
	}
	return &Repo{Repository: repo, path: absPath, runner: NewCommandRunner(absPath)}, nil
}

// Init creates a new repository at path if one does not already exist, with
// the given initial branch name, and returns a handle to it either way.
func Init(path, initialBranch string) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create target directory: %w", err)
	}
	if _, err := os.Stat(filepath.Join(absPath, ".git")); os.IsNotExist(err) {
		runner := NewCommandRunner(absPath)
		if _, err := runner.Run(context.Background(), "init", "--initial-branch="+initialBranch, "."); err != nil {
			return nil, fmt.Errorf("init target repository: %w", err)
		}
	}
	return Open(absPath)
}

// Root returns the repository's working-tree root.
func (r *Repo) Root() string { return r.path }

// Runner exposes the underlying command runner for callers (notes, security
// gate SSH probing) that need to shell out directly.
func (r *Repo) Runner() *CommandRunner { return r.runner }

// ConfigureIdentity sets user.name/user.email on this repository, used when a
// split target repository is created fresh and needs an identity before its
// first commit.
func (r *Repo) ConfigureIdentity(ctx context.Context, name, email string) error {
	if _, err := r.runner.Run(ctx, "config", "user.name", name); err != nil {
		return fmt.Errorf("set user.name: %w", err)
	}
	if _, err := r.runner.Run(ctx, "config", "user.email", email); err != nil {
		return fmt.Errorf("set user.email: %w", err)
	}
	return nil
}

// Identity reads user.name/user.email from this repository's config,
// returning ("", "", nil) if unset (the caller supplies a fallback).
func (r *Repo) Identity(ctx context.Context) (name, email string, err error) {
	name, _ = r.runner.Run(ctx, "config", "user.name")
	email, _ = r.runner.Run(ctx, "config", "user.email")
	return name, email, nil
}

// HeadCommit returns the SHA that HEAD currently points at.
func (r *Repo) HeadCommit() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the short name of the branch HEAD points at.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is not on a branch")
	}
	return head.Name().Short(), nil
}

// UpdateRef points name at sha (used for HEAD after committing and for
// advancing branch refs directly).
func (r *Repo) UpdateRef(ctx context.Context, name, sha string) error {
	_, err := r.runner.Run(ctx, "update-ref", name, sha)
	return err
}

// RefExists reports whether name resolves to an object.
func (r *Repo) RefExists(ctx context.Context, name string) bool {
	_, err := r.runner.Run(ctx, "rev-parse", "--verify", name)
	return err == nil
}

// CreateAndCheckoutBranch creates branch (from the current HEAD, or checks it
// out if it already exists) and switches to it.
func (r *Repo) CreateAndCheckoutBranch(ctx context.Context, branch string) error {
	if r.RefExists(ctx, "refs/heads/"+branch) {
		_, err := r.runner.Run(ctx, "checkout", branch)
		return err
	}
	_, err := r.runner.Run(ctx, "checkout", "-b", branch)
	return err
}
