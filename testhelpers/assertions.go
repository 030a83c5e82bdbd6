package testhelpers

import (
	"os/exec"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Must panics if err is non-nil, otherwise returns val. Useful in test
// fixture setup where the error path is not under test.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// ExpectBranches asserts that repo has exactly the given branches, order
// notwithstanding.
func ExpectBranches(t *testing.T, repo *GitRepo, expected []string) {
	t.Helper()

	cmd := exec.Command("git", "-C", repo.Dir, "for-each-ref", "refs/heads/", "--format=%(refname:short)")
	output, err := cmd.Output()
	require.NoError(t, err, "failed to list branches")

	var branches []string
	for _, b := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if b = strings.TrimSpace(b); b != "" {
			branches = append(branches, b)
		}
	}

	sort.Strings(branches)
	sort.Strings(expected)
	require.Equal(t, expected, branches, "branches do not match")
}

// ExpectCommits asserts that the first len(expected) commits on branch,
// most-recent-first, have the given subjects.
func ExpectCommits(t *testing.T, repo *GitRepo, branch string, expected []string) {
	t.Helper()

	cmd := exec.Command("git", "-C", repo.Dir, "log", "--format=%s", branch)
	output, err := cmd.Output()
	require.NoError(t, err, "failed to list commits")

	var subjects []string
	for _, c := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if c = strings.TrimSpace(c); c != "" {
			subjects = append(subjects, c)
		}
	}

	require.GreaterOrEqual(t, len(subjects), len(expected), "not enough commits on %s", branch)
	require.Equal(t, expected, subjects[:len(expected)], "commits do not match")
}
