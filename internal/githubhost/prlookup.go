package githubhost

import (
	"context"

	"github.com/google/go-github/v66/github"
)

// PRInfo is the subset of a pull request's state the policy engine
// needs, mirroring spec.md §3's cached PR record minus the cache
// timestamp (the cache layer stamps that itself).
type PRInfo struct {
	Number      int
	AuthorLogin string
	State       string
	HeadBranch  string
}

// Lookup is the narrow surface the policy engine depends on, so tests
// can supply a fake without touching the network.
type Lookup interface {
	GetPR(ctx context.Context, owner, repo string, number int) (PRInfo, error)
	ListOpenPRsForBranch(ctx context.Context, owner, repo, branch string) ([]PRInfo, error)
	IsPrivate(ctx context.Context, owner, repo string) (bool, error)
}

// ghLookup is the production Lookup, backed by an installation-scoped
// go-github client, the same client shape
// apps/ReleaseParty/backend/internal/githubops uses for ListReleases,
// GetRef, and CompareCommits.
type ghLookup struct {
	client *github.Client
}

func NewLookup(app *App) (Lookup, error) {
	client, err := app.InstallationClient()
	if err != nil {
		return nil, err
	}
	return &ghLookup{client: client}, nil
}

func (l *ghLookup) GetPR(ctx context.Context, owner, repo string, number int) (PRInfo, error) {
	pr, _, err := l.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PRInfo{}, err
	}
	return toPRInfo(pr), nil
}

func (l *ghLookup) ListOpenPRsForBranch(ctx context.Context, owner, repo, branch string) ([]PRInfo, error) {
	opts := &github.PullRequestListOptions{
		State: "open",
		Base:  branch,
		ListOptions: github.ListOptions{PerPage: 50},
	}
	prs, _, err := l.client.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, err
	}
	out := make([]PRInfo, 0, len(prs))
	for _, pr := range prs {
		out = append(out, toPRInfo(pr))
	}
	return out, nil
}

func (l *ghLookup) IsPrivate(ctx context.Context, owner, repo string) (bool, error) {
	r, _, err := l.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	return r.GetPrivate(), nil
}

func toPRInfo(pr *github.PullRequest) PRInfo {
	info := PRInfo{
		Number: pr.GetNumber(),
		State:  pr.GetState(),
	}
	if pr.GetUser() != nil {
		info.AuthorLogin = pr.GetUser().GetLogin()
	}
	if pr.GetHead() != nil {
		info.HeadBranch = pr.GetHead().GetRef()
	}
	return info
}
