/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/tenantops/rollout/coordinate"
	"github.com/tenantops/rollout/manifest"
	"github.com/tenantops/rollout/policy"
)

// Worktree is the leased working tree one coordinate is processed in.
// *workspace.Lease implements it.
type Worktree interface {
	// Root returns the absolute path of the working tree.
	Root() string
	// MaterializeBranch points the coordinate's branch at the source tip
	// and checks it out, discarding any prior branch state.
	MaterializeBranch(ctx context.Context, branch string) error
	// CommitAndPush stages the given paths, commits, and force pushes the
	// materialized branch.
	CommitAndPush(ctx context.Context, paths []string, message string) error
}

// Host performs pull-request operations against the hosting platform.
// *hosting.Client implements it.
type Host interface {
	FindOpenPullRequest(ctx context.Context, branch string) (int, bool, error)
	CreatePullRequest(ctx context.Context, branch, title, body string) (int, error)
	ReplaceLabels(ctx context.Context, number int, labels []string) error
	RequestReviewers(ctx context.Context, number int, reviewers []string) error
	MergePullRequest(ctx context.Context, number int) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDryRun stops every coordinate after the manifest mutation: the branch
// and the rewritten manifest exist only in the local working tree, and
// nothing is pushed, opened, or merged.
func WithDryRun() Option {
	return func(c *Coordinator) {
		c.dryRun = true
	}
}

// Coordinator drives the per-coordinate state machine.
type Coordinator struct {
	host   Host
	dryRun bool
}

// NewCoordinator returns a Coordinator publishing through the given host.
func NewCoordinator(host Host, opts ...Option) *Coordinator {
	c := &Coordinator{host: host}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs one update request to its terminal outcome. The stages run
// strictly in order with early exit on skip or unrecoverable failure; no
// stage is ever re-entered. Panics are converted into a failed outcome so a
// single coordinate can never take down the batch.
func (c *Coordinator) Process(ctx context.Context, wt Worktree, req coordinate.UpdateRequest) (out Outcome) {
	log := clog.FromContext(ctx).With("coordinate", req.Coordinate.String())
	ctx = clog.WithLogger(ctx, log)

	stage := StageValidate
	defer func() {
		if r := recover(); r != nil {
			out = failed(req, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := req.Validate(); err != nil {
		return failed(req, StageValidate, fmt.Errorf("invalid request: %w", err))
	}

	branch := req.BranchName()
	log.Infof("Processing update to %s on branch %s", req.NewImage, branch)

	// MaterializeBranch.
	stage = StageMaterializeBranch
	if err := wt.MaterializeBranch(ctx, branch); err != nil {
		return failed(req, StageMaterializeBranch, err)
	}

	// MutateManifest.
	stage = StageMutateManifest
	store := manifest.NewStore(wt.Root())
	oldImage, err := store.SetImage(req.Coordinate, req.Service, req.NewImage)
	if err != nil {
		return failed(req, StageMutateManifest, err)
	}
	if oldImage == req.NewImage {
		// Exact string comparison, deliberately: without this guard
		// every re-run would push and open an empty-diff PR.
		log.Infof("Image already at %s, skipping", req.NewImage)
		return skipped(req, ReasonNoImageChange)
	}

	if c.dryRun {
		log.Infof("Dry run: would update %s -> %s on branch %s", oldImage, req.NewImage, branch)
		return skipped(req, ReasonDryRun)
	}

	// PublishChanges. A commit failure is a warning, not an abort: an
	// already-open PR on a previously pushed branch may still be
	// actionable.
	stage = StagePublishChanges
	message := fmt.Sprintf("Update %s to %s", req.Coordinate, req.NewImage)
	if err := wt.CommitAndPush(ctx, []string{req.ManifestPath()}, message); err != nil {
		log.Warnf("Publishing changes failed, continuing: %v", err)
	}

	// EnsureOpenPullRequest.
	stage = StageEnsurePullRequest
	prNumber, err := c.ensurePullRequest(ctx, req, branch, oldImage)
	if err != nil {
		return failed(req, StageEnsurePullRequest, err)
	}

	// Annotate. Label and reviewer failures degrade to warnings; a PR
	// without them is still a valid, reportable outcome.
	stage = StageAnnotate
	if err := c.host.ReplaceLabels(ctx, prNumber, req.Labels()); err != nil {
		log.Warnf("Replacing labels failed, continuing: %v", err)
	}
	if err := c.host.RequestReviewers(ctx, prNumber, req.Reviewers); err != nil {
		log.Warnf("Requesting reviewers failed, continuing: %v", err)
	}

	// MergeDecision. Any resolver failure means "do not merge": ambiguity
	// about merge policy must never result in an unintended merge.
	stage = StageMergeDecision
	autoMerge, err := policy.NewResolver(wt.Root()).DetermineAutoMerge(req.Coordinate)
	if err != nil {
		log.Warnf("Auto-merge policy unresolved, leaving PR #%d open: %v", prNumber, err)
		autoMerge = false
	}

	if !autoMerge {
		log.Infof("Auto-merge disabled for %s, PR #%d left open", req.Environment, prNumber)
		return opened(req, prNumber)
	}

	if err := c.host.MergePullRequest(ctx, prNumber); err != nil {
		log.Warnf("Merge failed, PR #%d left open: %v", prNumber, err)
		return opened(req, prNumber)
	}
	return merged(req, prNumber)
}

// ensurePullRequest reuses the open PR for the branch when one exists and
// creates one otherwise. At most one open PR per branch identity.
func (c *Coordinator) ensurePullRequest(ctx context.Context, req coordinate.UpdateRequest, branch, oldImage string) (int, error) {
	log := clog.FromContext(ctx)

	number, found, err := c.host.FindOpenPullRequest(ctx, branch)
	if err != nil {
		return 0, fmt.Errorf("finding open pull request: %w", err)
	}
	if found {
		log.Infof("Reusing open PR #%d for branch %s", number, branch)
		return number, nil
	}

	title := fmt.Sprintf("Update %s to %s", req.Coordinate, req.NewImage)
	body := fmt.Sprintf(
		"Automated image rollout.\n\n"+
			"| | |\n|---|---|\n"+
			"| Tenant | %s |\n| Application | %s |\n| Environment | %s |\n| Service | %s |\n"+
			"| Image | `%s` → `%s` |\n",
		req.Tenant, req.Application, req.Environment, req.Service,
		oldImage, req.NewImage,
	)

	number, err = c.host.CreatePullRequest(ctx, branch, title, body)
	if err != nil {
		return 0, fmt.Errorf("creating pull request: %w", err)
	}
	return number, nil
}
