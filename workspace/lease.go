/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNothingToCommit reports a commit attempt with no staged changes. The
// orchestrator guards against this with its no-op check; when it happens
// anyway it is treated as a warning, not a workflow abort, because an
// already-open PR on a previously pushed branch may still be actionable.
var ErrNothingToCommit = errors.New("nothing to commit")

// Lease is a clone acquired from a Manager, checked out at the base branch
// tip. A lease serves exactly one coordinate at a time.
type Lease struct {
	manager *Manager
	clone   *clone

	baseSHA string
	branch  plumbing.ReferenceName
}

// Root returns the absolute path of the lease's working tree. Manifest and
// policy stores are rooted here.
func (l *Lease) Root() string {
	return l.clone.path
}

// BaseSHA returns the source branch tip the lease was prepared at.
func (l *Lease) BaseSHA() string {
	return l.baseSHA
}

// MaterializeBranch points branchName at the base branch tip and checks it
// out. When the branch already exists, locally or on the remote, its prior
// state is discarded in favor of the fresh base tip; the following force push
// makes the remote agree. Repeated runs for the same coordinate therefore
// converge on one branch rather than accumulating them.
func (l *Lease) MaterializeBranch(_ context.Context, branchName string) error {
	if branchName == "" {
		return errors.New("branch name cannot be empty")
	}

	refName := plumbing.NewBranchReferenceName(branchName)
	branchRef := plumbing.NewHashReference(refName, plumbing.NewHash(l.baseSHA))

	if err := l.clone.repo.Storer.SetReference(branchRef); err != nil {
		return fmt.Errorf("setting branch reference: %w", err)
	}

	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return fmt.Errorf("checking out branch: %w", err)
	}

	l.branch = refName
	return nil
}

// CommitAndPush stages the given repository-relative paths, commits them with
// the manager's identity, and force pushes the materialized branch. Returns
// ErrNothingToCommit when the staged paths carry no changes.
func (l *Lease) CommitAndPush(ctx context.Context, paths []string, message string) error {
	if l.branch == "" {
		return errors.New("no branch materialized")
	}
	if message == "" {
		return errors.New("commit message cannot be empty")
	}

	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("getting worktree status: %w", err)
	}
	if status.IsClean() {
		return ErrNothingToCommit
	}

	if err := l.manager.commitChanges(l.clone.repo, paths, message); err != nil {
		return fmt.Errorf("committing changes: %w", err)
	}

	if err := l.manager.forcePushBranch(ctx, l.clone.repo, l.branch); err != nil {
		return fmt.Errorf("force pushing branch: %w", err)
	}

	return nil
}

// Return resets the working tree and places the clone back into the
// manager's pool. Once Return succeeds the lease is invalid.
func (l *Lease) Return(_ context.Context) error {
	if err := l.manager.resetClone(l.clone); err != nil {
		l.manager.discardClone(l.clone)
		l.clone = nil
		return err
	}

	l.manager.releaseClone(l.clone)
	l.clone = nil
	l.manager = nil
	l.baseSHA = ""
	l.branch = ""

	return nil
}
