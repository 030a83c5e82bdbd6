// Package mapping implements the commit-identity mapping store (§4.3): a
// bidirectional, persisted index between monorepo commit SHAs and
// split-repository commit SHAs for one named component, backed by a git
// notes ref `refs/notes/<component>` in each side's repository.
package mapping

import (
	"context"
	"fmt"
	"sync"

	"github.com/railsplit/rail/internal/gitrepo"
)

// RefPrefix is the namespace under which every component's notes ref lives.
const RefPrefix = "refs/notes/"

// RefName returns the notes ref name for a component.
func RefName(component string) string {
	return RefPrefix + component
}

// Store is the bidirectional mono_sha <-> split_sha index for one
// component. The forward and reverse maps are always updated together:
// record_mapping is the only mutator, by design (per the design note that
// neither subsystem should be able to write one side without the other).
type Store struct {
	mu        sync.RWMutex
	component string
	forward   map[string]string // mono_sha -> split_sha
	reverse   map[string]string // split_sha -> mono_sha
	pending   map[string]string // mono_sha -> split_sha, queued since last Save
	loaded    map[string]bool   // repo roots already loaded into this store
}

// New creates an empty Store for component.
func New(component string) *Store {
	return &Store{
		component: component,
		forward:   make(map[string]string),
		reverse:   make(map[string]string),
		pending:   make(map[string]string),
		loaded:    make(map[string]bool),
	}
}

// Component returns the component name this store is keyed by.
func (s *Store) Component() string { return s.component }

// HasMapping reports whether monoSHA has a recorded split-side image.
func (s *Store) HasMapping(monoSHA string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.forward[monoSHA]
	return ok
}

// HasReverseMapping reports whether splitSHA has a recorded mono-side image.
func (s *Store) HasReverseMapping(splitSHA string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reverse[splitSHA]
	return ok
}

// GetMapping returns the split SHA mapped to monoSHA, if any.
func (s *Store) GetMapping(monoSHA string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.forward[monoSHA]
	return v, ok
}

// GetReverseMapping returns the mono SHA mapped to splitSHA, if any.
func (s *Store) GetReverseMapping(splitSHA string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.reverse[splitSHA]
	return v, ok
}

// RecordMapping inserts (monoSHA, splitSHA) into both indices and queues a
// note write for the next Save. This is the only mutator: callers cannot
// update one index without the other.
func (s *Store) RecordMapping(monoSHA, splitSHA string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forward[monoSHA] = splitSHA
	s.reverse[splitSHA] = monoSHA
	s.pending[monoSHA] = splitSHA
}

// Len returns the number of forward entries, for test assertions and
// progress reporting.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forward)
}

// Load reads every note under this component's ref in repo and merges it
// into the store's indices. It is idempotent per repo root: a second Load
// against the same root is a no-op, avoiding redundant subprocess traffic
// when both the projector and sync engine touch the same repository within
// one operation.
func (s *Store) Load(ctx context.Context, repo *gitrepo.Repo) error {
	s.mu.Lock()
	root := repo.Root()
	if s.loaded[root] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	notes, err := repo.ListNotes(ctx, RefName(s.component))
	if err != nil {
		return fmt.Errorf("load mapping notes for %s: %w", s.component, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for monoSHA, splitSHA := range notes {
		s.forward[monoSHA] = splitSHA
		s.reverse[splitSHA] = monoSHA
	}
	s.loaded[root] = true
	return nil
}

// ForgetRepo clears the idempotency marker for root, forcing the next Load
// against it to re-read notes. Used after a fetch updates the remote's
// notes ref out from under an already-loaded store.
func (s *Store) ForgetRepo(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loaded, root)
}

// Save materializes every mapping queued since the last Save as a note in
// repo, under this component's ref.
func (s *Store) Save(ctx context.Context, repo *gitrepo.Repo) error {
	s.mu.Lock()
	pending := make(map[string]string, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	s.pending = make(map[string]string)
	s.mu.Unlock()

	ref := RefName(s.component)
	for monoSHA, splitSHA := range pending {
		if err := repo.WriteNote(ctx, ref, monoSHA, splitSHA); err != nil {
			return fmt.Errorf("write mapping note for %s: %w", monoSHA, err)
		}
	}
	return nil
}

// PushNotes pushes this component's notes ref to remote.
func (s *Store) PushNotes(ctx context.Context, repo *gitrepo.Repo, remote string) error {
	return repo.PushToRemote(ctx, remote, "", RefName(s.component))
}

// FetchNotes fetches this component's notes ref from remote. It is not an
// error for the ref to not exist yet on a freshly created remote.
func (s *Store) FetchNotes(ctx context.Context, repo *gitrepo.Repo, remote string) error {
	err := repo.FetchFromRemote(ctx, remote, "", RefName(s.component))
	if err != nil && !gitrepo.IsNoRemoteNotes(err) {
		return err
	}
	return nil
}
