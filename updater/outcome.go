/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"fmt"

	"github.com/tenantops/rollout/coordinate"
)

// Status is the terminal state of one coordinate's processing.
type Status string

const (
	// StatusMerged means the pull request was created (or reused) and
	// merged into the base branch.
	StatusMerged Status = "merged"
	// StatusOpened means the pull request exists and was left open,
	// either by policy or because the merge attempt failed.
	StatusOpened Status = "opened"
	// StatusSkipped means the workflow stopped deliberately before
	// publishing anything.
	StatusSkipped Status = "skipped"
	// StatusFailed means an unrecoverable stage error aborted the
	// coordinate.
	StatusFailed Status = "failed"
)

// Stage names the state-machine step an outcome refers to.
type Stage string

const (
	StageValidate          Stage = "validate"
	StageMaterializeBranch Stage = "materialize-branch"
	StageMutateManifest    Stage = "mutate-manifest"
	StagePublishChanges    Stage = "publish-changes"
	StageEnsurePullRequest Stage = "ensure-pull-request"
	StageAnnotate          Stage = "annotate"
	StageMergeDecision     Stage = "merge-decision"
)

// Skip reasons.
const (
	ReasonNoImageChange = "manifest already at target image"
	ReasonDryRun        = "dry-run"
)

// Outcome is the result of processing one update request. Constructed once
// at the end of the coordinate's run and never mutated afterwards.
type Outcome struct {
	Request coordinate.UpdateRequest
	Status  Status

	// PRNumber is set for merged and opened outcomes.
	PRNumber int
	// Reason is set for skipped outcomes.
	Reason string
	// Stage and Err are set for failed outcomes.
	Stage Stage
	Err   error
}

func merged(req coordinate.UpdateRequest, pr int) Outcome {
	return Outcome{Request: req, Status: StatusMerged, PRNumber: pr}
}

func opened(req coordinate.UpdateRequest, pr int) Outcome {
	return Outcome{Request: req, Status: StatusOpened, PRNumber: pr}
}

func skipped(req coordinate.UpdateRequest, reason string) Outcome {
	return Outcome{Request: req, Status: StatusSkipped, Reason: reason}
}

func failed(req coordinate.UpdateRequest, stage Stage, err error) Outcome {
	return Outcome{Request: req, Status: StatusFailed, Stage: stage, Err: err}
}

// String renders the outcome for narration: coordinate, status, and the
// detail a human needs to diagnose it without re-running.
func (o Outcome) String() string {
	switch o.Status {
	case StatusMerged, StatusOpened:
		return fmt.Sprintf("%s: %s (PR #%d)", o.Request.Coordinate, o.Status, o.PRNumber)
	case StatusSkipped:
		return fmt.Sprintf("%s: %s (%s)", o.Request.Coordinate, o.Status, o.Reason)
	case StatusFailed:
		return fmt.Sprintf("%s: %s at %s: %v", o.Request.Coordinate, o.Status, o.Stage, o.Err)
	default:
		return fmt.Sprintf("%s: %s", o.Request.Coordinate, o.Status)
	}
}

// AnyFailed reports whether any outcome in the batch failed. The process
// exit status is derived from this.
func AnyFailed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			return true
		}
	}
	return false
}
