/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package hosting adapts the GitHub REST API to the handful of pull-request
// operations the rollout engine needs. The repository identity (owner, repo,
// base branch) is fixed at construction and applied to every call.
package hosting

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Client performs pull-request operations against one repository.
type Client struct {
	gh         *github.Client
	owner      string
	repo       string
	baseBranch string
}

// NewClient wraps an authenticated go-github client for the given repository
// and base branch.
func NewClient(gh *github.Client, owner, repo, baseBranch string) (*Client, error) {
	switch {
	case gh == nil:
		return nil, errors.New("github client cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	case baseBranch == "":
		return nil, errors.New("base branch cannot be empty")
	}

	return &Client{gh: gh, owner: owner, repo: repo, baseBranch: baseBranch}, nil
}

// FindOpenPullRequest returns the number of the open pull request whose head
// is the given branch, if one exists. Branch identity is the idempotency key:
// at most one open PR per branch is ever expected.
func (c *Client) FindOpenPullRequest(ctx context.Context, branch string) (int, bool, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		State:       "open",
		Head:        c.owner + ":" + branch,
		Base:        c.baseBranch,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0, false, fmt.Errorf("listing pull requests for %s: %w", branch, err)
	}
	if len(prs) == 0 {
		return 0, false, nil
	}
	return prs[0].GetNumber(), true, nil
}

// CreatePullRequest opens a pull request from branch into the base branch and
// returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, branch, title, body string) (int, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(branch),
		Base:  github.Ptr(c.baseBranch),
	})
	if err != nil {
		return 0, fmt.Errorf("creating pull request for %s: %w", branch, err)
	}

	clog.FromContext(ctx).Infof("Created PR #%d: %s", pr.GetNumber(), pr.GetHTMLURL())
	return pr.GetNumber(), nil
}

// ReplaceLabels replaces the pull request's label set with exactly the given
// labels.
func (c *Client) ReplaceLabels(ctx context.Context, number int, labels []string) error {
	if _, _, err := c.gh.Issues.ReplaceLabelsForIssue(ctx, c.owner, c.repo, number, labels); err != nil {
		return fmt.Errorf("replacing labels on PR #%d: %w", number, err)
	}
	return nil
}

// RequestReviewers asks the given users for review. A nil or empty reviewer
// list is a no-op.
func (c *Client) RequestReviewers(ctx context.Context, number int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}

	if _, _, err := c.gh.PullRequests.RequestReviewers(ctx, c.owner, c.repo, number, github.ReviewersRequest{
		Reviewers: reviewers,
	}); err != nil {
		return fmt.Errorf("requesting reviewers on PR #%d: %w", number, err)
	}
	return nil
}

// MergePullRequest merges the pull request into the base branch.
func (c *Client) MergePullRequest(ctx context.Context, number int) error {
	result, _, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, "", &github.PullRequestOptions{
		MergeMethod: "merge",
	})
	if err != nil {
		return fmt.Errorf("merging PR #%d: %w", number, err)
	}
	if !result.GetMerged() {
		return fmt.Errorf("merging PR #%d: %s", number, result.GetMessage())
	}

	clog.FromContext(ctx).Infof("Merged PR #%d", number)
	return nil
}
