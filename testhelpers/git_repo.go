// Package testhelpers provides shared test fixtures for rail's packages:
// a throwaway Git repository builder and a handful of GitHub API mocks.
package testhelpers

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const textFileName = "test.txt"

// GitRepo is a disposable Git repository rooted at Dir, driven entirely
// through the git CLI so tests exercise the same plumbing rail's own
// gitrepo package shells out to.
type GitRepo struct {
	Dir string
}

// NewGitRepo initializes a new repository in dir with a committable identity
// already configured. If opts.repoURL is set, it clones instead of
// initializing.
func NewGitRepo(dir string, opts ...GitRepoOption) (*GitRepo, error) {
	repo := &GitRepo{Dir: dir}

	options := &gitRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.existingRepo {
		return repo, nil
	}

	if options.repoURL != "" {
		cmd := exec.Command("git", "clone", options.repoURL, dir)
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("failed to clone repo: %w", err)
		}
	} else {
		cmd := exec.Command("git", "init", dir, "-b", "main")
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("failed to init repo: %w", err)
		}
	}

	if err := repo.runGitCommand("config", "user.name", "Test User"); err != nil {
		return nil, err
	}
	if err := repo.runGitCommand("config", "user.email", "test@example.com"); err != nil {
		return nil, err
	}

	return repo, nil
}

// NewGitRepoFromTemplate clones templateDir into dir and rewrites its
// identity, giving each test its own independent history without redoing an
// init from scratch.
func NewGitRepoFromTemplate(dir, templateDir string) (*GitRepo, error) {
	return NewGitRepo(dir, WithRepoURL(templateDir))
}

type gitRepoOptions struct {
	existingRepo bool
	repoURL      string
}

// GitRepoOption configures GitRepo construction.
type GitRepoOption func(*gitRepoOptions)

// WithExistingRepo indicates the repository at dir already exists.
func WithExistingRepo() GitRepoOption {
	return func(opts *gitRepoOptions) { opts.existingRepo = true }
}

// WithRepoURL clones from url instead of running git init.
func WithRepoURL(url string) GitRepoOption {
	return func(opts *gitRepoOptions) { opts.repoURL = url }
}

func (r *GitRepo) runGitCommand(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	if os.Getenv("DEBUG") != "" {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// RunGitCommand runs a git command in the repository's working directory.
func (r *GitRepo) RunGitCommand(args ...string) error {
	return r.runGitCommand(args...)
}

func (r *GitRepo) runGitCommandAndGetOutput(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// RunGitCommandAndGetOutput runs a git command and returns its trimmed stdout.
func (r *GitRepo) RunGitCommandAndGetOutput(args ...string) (string, error) {
	return r.runGitCommandAndGetOutput(args...)
}

// CreateChange writes textValue to a file named prefix_test.txt, staging it
// unless unstaged is set.
func (r *GitRepo) CreateChange(textValue, prefix string, unstaged bool) error {
	fileName := textFileName
	if prefix != "" {
		fileName = prefix + "_" + fileName
	}
	filePath := filepath.Join(r.Dir, fileName)

	if err := os.WriteFile(filePath, []byte(textValue), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if unstaged {
		return nil
	}
	return r.runGitCommand("add", filePath)
}

// WriteFile writes content to relPath (relative to the repo root), creating
// parent directories as needed, without staging it.
func (r *GitRepo) WriteFile(relPath string, content []byte) error {
	full := filepath.Join(r.Dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", relPath, err)
	}
	return os.WriteFile(full, content, 0o644)
}

// CreateChangeAndCommit creates a file change and commits it with textValue
// as the message.
func (r *GitRepo) CreateChangeAndCommit(textValue, prefix string) error {
	if err := r.CreateChange(textValue, prefix, false); err != nil {
		return err
	}
	if err := r.runGitCommand("add", "."); err != nil {
		return err
	}
	return r.runGitCommand("commit", "-m", textValue)
}

// CommitAll stages every pending change and commits it with message.
func (r *GitRepo) CommitAll(message string) error {
	if err := r.runGitCommand("add", "."); err != nil {
		return err
	}
	return r.runGitCommand("commit", "-m", message)
}

// CreateChangeAndAmend creates a file change and amends it into HEAD.
func (r *GitRepo) CreateChangeAndAmend(textValue, prefix string) error {
	if err := r.CreateChange(textValue, prefix, false); err != nil {
		return err
	}
	if err := r.runGitCommand("add", "."); err != nil {
		return err
	}
	return r.runGitCommand("commit", "--amend", "--no-edit")
}

// DeleteBranch force-deletes a branch.
func (r *GitRepo) DeleteBranch(name string) error {
	return r.runGitCommand("branch", "-D", name)
}

// CreateAndCheckoutBranch creates and checks out a new branch.
func (r *GitRepo) CreateAndCheckoutBranch(name string) error {
	return r.runGitCommand("checkout", "-b", name)
}

// CheckoutBranch checks out an existing branch.
func (r *GitRepo) CheckoutBranch(name string) error {
	return r.runGitCommand("checkout", name)
}

// RebaseInProgress reports whether a rebase is currently mid-flight.
func (r *GitRepo) RebaseInProgress() bool {
	_, err := os.Stat(filepath.Join(r.Dir, ".git", "rebase-merge"))
	return err == nil
}

// CurrentBranchName returns the checked-out branch's name.
func (r *GitRepo) CurrentBranchName() (string, error) {
	return r.runGitCommandAndGetOutput("branch", "--show-current")
}

// GetRef returns the SHA a ref currently points at.
func (r *GitRepo) GetRef(refName string) (string, error) {
	return r.runGitCommandAndGetOutput("show-ref", "-s", refName)
}

// HeadSHA returns the SHA of HEAD.
func (r *GitRepo) HeadSHA() (string, error) {
	return r.runGitCommandAndGetOutput("rev-parse", "HEAD")
}

// ListCurrentBranchCommitMessages returns every commit message (subject and
// body) reachable from the current branch, most recent first.
func (r *GitRepo) ListCurrentBranchCommitMessages() ([]string, error) {
	output, err := r.runGitCommandAndGetOutput("log", "--format=%B%x00")
	if err != nil {
		return nil, err
	}
	var messages []string
	for _, m := range strings.Split(output, "\x00") {
		m = strings.TrimSpace(m)
		if m != "" {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// MergeBranch checks out branch and merges mergeIn into it.
func (r *GitRepo) MergeBranch(branch, mergeIn string) error {
	if err := r.CheckoutBranch(branch); err != nil {
		return err
	}
	return r.runGitCommand("merge", mergeIn)
}

// AddRemote configures a remote named name pointing at url.
func (r *GitRepo) AddRemote(name, url string) error {
	return r.runGitCommand("remote", "add", name, url)
}

// NotesOn lists the notes recorded on the given notes ref, one
// "<note object SHA> <annotated object SHA>" pair per line.
func (r *GitRepo) NotesOn(notesRef string) (string, error) {
	return r.runGitCommandAndGetOutput("notes", "--ref="+notesRef, "list")
}
