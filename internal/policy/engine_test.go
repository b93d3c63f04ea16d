package policy

import (
	"context"
	"testing"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/githubhost"
)

type fakeLookup struct {
	prs       map[int]githubhost.PRInfo
	branchPRs map[string][]githubhost.PRInfo
	private   map[string]bool
	err       error
}

func (f *fakeLookup) GetPR(_ context.Context, _, _ string, number int) (githubhost.PRInfo, error) {
	if f.err != nil {
		return githubhost.PRInfo{}, f.err
	}
	info, ok := f.prs[number]
	if !ok {
		return githubhost.PRInfo{}, context.DeadlineExceeded
	}
	return info, nil
}

func (f *fakeLookup) ListOpenPRsForBranch(_ context.Context, _, _, branch string) ([]githubhost.PRInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.branchPRs[branch], nil
}

func (f *fakeLookup) IsPrivate(_ context.Context, owner, repo string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.private[owner+"/"+repo], nil
}

func newTestEngine(t *testing.T, lookup githubhost.Lookup, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(lookup, cfg, "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestBranchOwnershipAllowsAgentPrefix(t *testing.T) {
	e := newTestEngine(t, &fakeLookup{}, Config{AgentBranchPrefixes: []string{"agent-"}})
	if err := e.CheckBranchOwnership(context.Background(), "o/r", "agent-fix-1", AuthModeBot); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestBranchOwnershipDeniedWithNoMatchingPR(t *testing.T) {
	lookup := &fakeLookup{branchPRs: map[string][]githubhost.PRInfo{
		"feature-x": {{Number: 1, AuthorLogin: "someone-else"}},
	}}
	e := newTestEngine(t, lookup, Config{})

	err := e.CheckBranchOwnership(context.Background(), "o/r", "feature-x", AuthModeBot)
	if gatewayerr.KindOf(err) != gatewayerr.PolicyDenied {
		t.Fatalf("expected policy-denied, got %v", err)
	}
}

func TestBranchOwnershipAllowedForTrustedOwner(t *testing.T) {
	lookup := &fakeLookup{branchPRs: map[string][]githubhost.PRInfo{
		"feature-x": {{Number: 1, AuthorLogin: "Trusted-Human"}},
	}}
	e := newTestEngine(t, lookup, Config{TrustedOwners: map[string]struct{}{"trusted-human": {}}})

	if err := e.CheckBranchOwnership(context.Background(), "o/r", "feature-x", AuthModeBot); err != nil {
		t.Fatalf("expected allow for trusted owner, got %v", err)
	}
}

func TestPROwnershipDeniedForUnrelatedAuthor(t *testing.T) {
	lookup := &fakeLookup{prs: map[int]githubhost.PRInfo{
		42: {Number: 42, AuthorLogin: "someone-else"},
	}}
	e := newTestEngine(t, lookup, Config{})

	err := e.CheckPROwnership(context.Background(), "o/r", 42, AuthModeBot)
	if gatewayerr.KindOf(err) != gatewayerr.PolicyDenied {
		t.Fatalf("expected policy-denied, got %v", err)
	}
}

func TestPROwnershipAllowedForIncognitoUser(t *testing.T) {
	lookup := &fakeLookup{prs: map[int]githubhost.PRInfo{
		42: {Number: 42, AuthorLogin: "human-user"},
	}}
	e := newTestEngine(t, lookup, Config{IncognitoUser: "human-user"})

	if err := e.CheckPROwnership(context.Background(), "o/r", 42, AuthModeIncognito); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestMergeIsAlwaysDenied(t *testing.T) {
	e := newTestEngine(t, &fakeLookup{}, Config{})
	err := e.CheckMergeAllowed(context.Background(), "o/r", 1)
	if gatewayerr.KindOf(err) != gatewayerr.OperationNotAllowed {
		t.Fatalf("expected operation-not-permitted, got %v", err)
	}
}

func TestPRCommentAllowedOnAnyExistingPR(t *testing.T) {
	lookup := &fakeLookup{prs: map[int]githubhost.PRInfo{
		7: {Number: 7, AuthorLogin: "anyone"},
	}}
	e := newTestEngine(t, lookup, Config{})

	if err := e.CheckPRCommentAllowed(context.Background(), "o/r", 7); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestPRCommentDeniedWhenPRCannotBeFetched(t *testing.T) {
	lookup := &fakeLookup{}
	e := newTestEngine(t, lookup, Config{})

	err := e.CheckPRCommentAllowed(context.Background(), "o/r", 999)
	if gatewayerr.KindOf(err) != gatewayerr.Unavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRepoVisibilityMismatchDenied(t *testing.T) {
	lookup := &fakeLookup{private: map[string]bool{"o/r": true}}
	e := newTestEngine(t, lookup, Config{})

	err := e.CheckRepoVisibilityMatches(context.Background(), "o/r", false)
	if gatewayerr.KindOf(err) != gatewayerr.PolicyDenied {
		t.Fatalf("expected policy-denied, got %v", err)
	}
}

func TestRepoVisibilityMatchAllowed(t *testing.T) {
	lookup := &fakeLookup{private: map[string]bool{"o/r": true}}
	e := newTestEngine(t, lookup, Config{})

	if err := e.CheckRepoVisibilityMatches(context.Background(), "o/r", true); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}
