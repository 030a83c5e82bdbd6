package gitrepo

import (
	"context"
	"fmt"
	"strings"
)

// HasRemote reports whether a remote named name is configured.
func (r *Repo) HasRemote(ctx context.Context, name string) bool {
	_, err := r.runner.Run(ctx, "remote", "get-url", name)
	return err == nil
}

// RemoteURL returns the URL configured for remote name, or "" if no such
// remote is configured.
func (r *Repo) RemoteURL(ctx context.Context, name string) string {
	url, err := r.runner.Run(ctx, "remote", "get-url", name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(url)
}

// AddRemote adds or, if one already exists under name, updates its URL.
func (r *Repo) AddRemote(ctx context.Context, name, url string) error {
	if r.HasRemote(ctx, name) {
		_, err := r.runner.Run(ctx, "remote", "set-url", name, url)
		return err
	}
	_, err := r.runner.Run(ctx, "remote", "add", name, url)
	return err
}

// RemoteHasBranches reports whether url already has any branch heads. It is
// used by the projector's preflight check: if the target remote is already
// populated, projection must refuse (this is not the repair tool).
func (r *Repo) RemoteHasBranches(ctx context.Context, url string) (bool, error) {
	out, err := r.runner.Run(ctx, "ls-remote", "--heads", url)
	if err != nil {
		return false, fmt.Errorf("ls-remote %s: %w", url, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// FetchFromRemote fetches branch (and its notes ref, if notesRef is
// non-empty) from remote.
func (r *Repo) FetchFromRemote(ctx context.Context, remote, branch, notesRef string) error {
	if branch != "" {
		if _, err := r.runner.Run(ctx, "fetch", remote, branch); err != nil {
			return fmt.Errorf("fetch %s %s: %w", remote, branch, err)
		}
	}
	if notesRef != "" {
		refspec := notesRef + ":" + notesRef
		if _, err := r.runner.Run(ctx, "fetch", remote, refspec); err != nil {
			// A first sync against a remote that has never had notes pushed
			// is expected to fail here; the caller treats this as "no
			// remote mappings yet," not fatal.
			return errNoRemoteNotes
		}
	}
	return nil
}

var errNoRemoteNotes = fmt.Errorf("remote notes ref not found")

// IsNoRemoteNotes reports whether err is the sentinel returned when a remote
// has no notes ref to fetch yet.
func IsNoRemoteNotes(err error) bool {
	return err == errNoRemoteNotes
}

// PushToRemote pushes branch (and, if notesRef is non-empty, the notes ref)
// to remote.
func (r *Repo) PushToRemote(ctx context.Context, remote, branch, notesRef string) error {
	if branch != "" {
		if _, err := r.runner.Run(ctx, "push", remote, branch); err != nil {
			return fmt.Errorf("push %s %s: %w", remote, branch, err)
		}
	}
	if notesRef != "" {
		if _, err := r.runner.Run(ctx, "push", remote, notesRef); err != nil {
			return fmt.Errorf("push notes %s: %w", notesRef, err)
		}
	}
	return nil
}
