/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/oauth2"
)

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}

// initTestRepo creates a local repository with a single commit on main,
// usable as the "remote" for a Manager.
func initTestRepo(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	manifestDir := filepath.Join(dir, "acme", "shop", "des")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(manifestDir, "images.yaml"), []byte("proxy:\n  image: foo/proxy:dev\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add("acme/shop/des/images.yaml"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	return dir, hash.String()
}

func newTestManager(t *testing.T, remote string) *Manager {
	t.Helper()

	mgr, err := New(context.Background(), remote, "main", staticTokenSource(""), "rollout-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mgr
}

func TestLeasePreparedAtBaseTip(t *testing.T) {
	ctx := context.Background()
	repoDir, headHash := initTestRepo(t)
	mgr := newTestManager(t, repoDir)

	lease, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if got := lease.BaseSHA(); got != headHash {
		t.Fatalf("BaseSHA = %s, want %s", got, headHash)
	}
	if lease.Root() == repoDir {
		t.Fatalf("expected working tree to differ from remote")
	}

	// Litter the working tree; Return must leave the clone pristine for
	// the next lease.
	scratch := filepath.Join(lease.Root(), "scratch.txt")
	if err := os.WriteFile(scratch, []byte("temporary"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := lease.Return(ctx); err != nil {
		t.Fatalf("Return: %v", err)
	}

	lease2, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease reuse: %v", err)
	}
	if lease2.Root() != filepath.Dir(scratch) {
		t.Fatalf("expected clone to be reused")
	}
	if _, err := os.Stat(scratch); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected scratch file cleaned, got err=%v", err)
	}
	if err := lease2.Return(ctx); err != nil {
		t.Fatalf("Return lease2: %v", err)
	}
}

func TestMaterializeCommitAndPush(t *testing.T) {
	ctx := context.Background()
	repoDir, baseHash := initTestRepo(t)
	mgr := newTestManager(t, repoDir)

	lease, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	branch := "rollout/acme/shop/des/proxy"
	if err := lease.MaterializeBranch(ctx, branch); err != nil {
		t.Fatalf("MaterializeBranch: %v", err)
	}

	manifest := filepath.Join(lease.Root(), "acme", "shop", "des", "images.yaml")
	if err := os.WriteFile(manifest, []byte("proxy:\n  image: foo/proxy:v2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := lease.CommitAndPush(ctx, []string{"acme/shop/des/images.yaml"}, "roll acme/shop/des/proxy to foo/proxy:v2"); err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}
	if err := lease.Return(ctx); err != nil {
		t.Fatalf("Return: %v", err)
	}

	origin, err := git.PlainOpen(repoDir)
	if err != nil {
		t.Fatalf("PlainOpen origin: %v", err)
	}
	ref, err := origin.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("Reference lookup: %v", err)
	}
	if ref.Hash().String() == baseHash {
		t.Fatalf("branch still at base tip, commit was not pushed")
	}
}

// TestMaterializeBranchResetsExisting verifies the idempotency contract: a
// branch left over from a previous run is reset to the base tip instead of
// being extended or duplicated.
func TestMaterializeBranchResetsExisting(t *testing.T) {
	ctx := context.Background()
	repoDir, baseHash := initTestRepo(t)
	mgr := newTestManager(t, repoDir)

	branch := "rollout/acme/shop/des/proxy"

	// First run: branch diverges from base.
	lease, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if err := lease.MaterializeBranch(ctx, branch); err != nil {
		t.Fatalf("MaterializeBranch: %v", err)
	}
	manifest := filepath.Join(lease.Root(), "acme", "shop", "des", "images.yaml")
	if err := os.WriteFile(manifest, []byte("proxy:\n  image: foo/proxy:v2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := lease.CommitAndPush(ctx, []string{"acme/shop/des/images.yaml"}, "first"); err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}
	if err := lease.Return(ctx); err != nil {
		t.Fatalf("Return: %v", err)
	}

	// Second run: materializing the same branch must discard the prior
	// commit and start from the base tip again.
	lease2, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease 2: %v", err)
	}
	if err := lease2.MaterializeBranch(ctx, branch); err != nil {
		t.Fatalf("MaterializeBranch 2: %v", err)
	}

	head, err := lease2.clone.repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Hash().String() != baseHash {
		t.Fatalf("rematerialized branch at %s, want base tip %s", head.Hash(), baseHash)
	}
	if err := lease2.Return(ctx); err != nil {
		t.Fatalf("Return 2: %v", err)
	}
}

func TestCommitAndPushNothingStaged(t *testing.T) {
	ctx := context.Background()
	repoDir, _ := initTestRepo(t)
	mgr := newTestManager(t, repoDir)

	lease, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if err := lease.MaterializeBranch(ctx, "rollout/acme/shop/des/proxy"); err != nil {
		t.Fatalf("MaterializeBranch: %v", err)
	}

	err = lease.CommitAndPush(ctx, []string{"acme/shop/des/images.yaml"}, "no changes")
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("error = %v, want ErrNothingToCommit", err)
	}
	if err := lease.Return(ctx); err != nil {
		t.Fatalf("Return: %v", err)
	}
}

func TestPoolFIFOReuse(t *testing.T) {
	ctx := context.Background()
	repoDir, _ := initTestRepo(t)
	mgr := newTestManager(t, repoDir)

	lease1, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease 1: %v", err)
	}
	lease2, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease 2: %v", err)
	}

	dir1, dir2 := lease1.Root(), lease2.Root()
	if dir1 == dir2 {
		t.Fatalf("concurrent leases share a working tree")
	}

	if err := lease1.Return(ctx); err != nil {
		t.Fatalf("Return 1: %v", err)
	}
	if err := lease2.Return(ctx); err != nil {
		t.Fatalf("Return 2: %v", err)
	}

	re1, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Reacquire 1: %v", err)
	}
	re2, err := mgr.Lease(ctx)
	if err != nil {
		t.Fatalf("Reacquire 2: %v", err)
	}

	if re1.Root() != dir1 {
		t.Errorf("first reacquire = %s, want %s", re1.Root(), dir1)
	}
	if re2.Root() != dir2 {
		t.Errorf("second reacquire = %s, want %s", re2.Root(), dir2)
	}

	_ = re1.Return(ctx)
	_ = re2.Return(ctx)
}
