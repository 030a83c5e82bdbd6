package security

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// PullRequestGuidance is what the security gate surfaces to the caller after
// a protected-branch diversion has pushed commits to a PR branch: always a
// human-readable message, and, if a GitHub token is configured, the URL of a
// pull request actually opened on the caller's behalf.
type PullRequestGuidance struct {
	Message string
	URL     string
}

// PullRequestOpener abstracts the GitHub API surface the gate needs to open
// a pull request, so tests can substitute a mock server.
type PullRequestOpener interface {
	Create(ctx context.Context, owner, repo string, newPR *github.NewPullRequest) (*github.PullRequest, error)
}

type realOpener struct{ client *github.Client }

func (o *realOpener) Create(ctx context.Context, owner, repo string, newPR *github.NewPullRequest) (*github.PullRequest, error) {
	pr, _, err := o.client.PullRequests.Create(ctx, owner, repo, newPR)
	return pr, err
}

// OfferPullRequest implements §4.2.2's "emit human-readable guidance about
// opening a pull request": it always returns a message describing the PR
// branch that was pushed, and additionally opens the pull request via the
// GitHub API when the GITHUB_TOKEN environment variable is set. Opening
// the PR is best-effort: any failure degrades to the guidance message alone,
// since the sync already succeeded locally and the user can always open the
// PR by hand.
func (g *Gate) OfferPullRequest(ctx context.Context, owner, repo, prBranch, baseBranch, componentName string, commitCount int) PullRequestGuidance {
	guidance := PullRequestGuidance{
		Message: fmt.Sprintf(
			"pushed %d commit(s) to %s; %s is a protected branch, open a pull request from %s into %s to merge them",
			commitCount, prBranch, baseBranch, prBranch, baseBranch,
		),
	}

	if owner == "" || repo == "" {
		return guidance
	}
	opener, err := g.githubOpener(ctx)
	if err != nil {
		g.log.Debug("skipping automatic pull request: %v", err)
		return guidance
	}

	pr, err := opener.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(fmt.Sprintf("rail sync: %s", componentName)),
		Head:  github.String(prBranch),
		Base:  github.String(baseBranch),
		Body:  github.String(fmt.Sprintf("Automated sync of %d commit(s) for component %q.", commitCount, componentName)),
	})
	if err != nil {
		g.log.Warn("could not open pull request automatically: %v", err)
		return guidance
	}
	if pr != nil && pr.HTMLURL != nil {
		guidance.URL = *pr.HTMLURL
		guidance.Message = fmt.Sprintf("opened pull request %s", *pr.HTMLURL)
	}
	return guidance
}

// githubOpenerFactory is overridden in tests to point at a mock server
// instead of api.github.com.
var githubOpenerFactory = func(ctx context.Context, token string) PullRequestOpener {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &realOpener{client: github.NewClient(tc)}
}

func (g *Gate) githubOpener(ctx context.Context) (PullRequestOpener, error) {
	token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("no GITHUB_TOKEN configured")
	}
	return githubOpenerFactory(ctx, token), nil
}

// ParseOwnerRepo extracts an "owner", "repo" pair from a GitHub remote URL
// in either https://github.com/owner/repo(.git) or git@github.com:owner/repo(.git)
// form. Returns ("", "", false) for any other shape (including local paths),
// matching the teacher's getRepoInfo parsing.
func ParseOwnerRepo(remoteURL string) (owner, repo string, ok bool) {
	if remoteURL == "" {
		return "", "", false
	}
	trimmed := strings.TrimSuffix(remoteURL, ".git")
	var pathPart string
	switch {
	case strings.Contains(trimmed, "@") && strings.Contains(trimmed, ":") && !strings.Contains(trimmed, "://"):
		idx := strings.Index(trimmed, ":")
		pathPart = trimmed[idx+1:]
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"), strings.HasPrefix(trimmed, "ssh://"):
		idx := strings.Index(trimmed, "://")
		rest := trimmed[idx+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return "", "", false
		}
		pathPart = rest[slash+1:]
	default:
		return "", "", false
	}
	parts := strings.Split(strings.Trim(pathPart, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[len(parts)-2], parts[len(parts)-1], true
}
