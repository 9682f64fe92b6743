/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const cloneDirPrefix = "rollout-clone-"

// Manager owns a pool of clones of the deployment repository. Each lease is
// dedicated to one coordinate's processing and ensures the working tree is
// reset before being returned to the pool.
type Manager struct {
	remoteURL   string
	baseBranch  string
	tokenSource oauth2.TokenSource
	identity    string

	mu        sync.Mutex
	available []*clone
}

type clone struct {
	path string
	repo *git.Repository
}

// New constructs a Manager for the deployment repository at remoteURL. The
// token source must allow cloning and pushing; identity is used as the commit
// author name (and, when it lacks a domain, suffixed into a noreply address).
// baseBranch is the source branch every update branch is cut from.
func New(_ context.Context, remoteURL, baseBranch string, tokenSource oauth2.TokenSource, identity string) (*Manager, error) {
	switch {
	case remoteURL == "":
		return nil, errors.New("remote URL cannot be empty")
	case baseBranch == "":
		return nil, errors.New("base branch cannot be empty")
	case tokenSource == nil:
		return nil, errors.New("token source cannot be nil")
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	return &Manager{
		remoteURL:   remoteURL,
		baseBranch:  baseBranch,
		tokenSource: tokenSource,
		identity:    identity,
	}, nil
}

// Lease hydrates a clone at the tip of the base branch and returns a Lease
// handle. Callers must invoke Return to release the clone back to the pool.
func (m *Manager) Lease(ctx context.Context) (*Lease, error) {
	cl, err := m.acquireClone(ctx)
	if err != nil {
		return nil, err
	}

	sha, err := m.prepareClone(ctx, cl)
	if err != nil {
		clog.FromContext(ctx).Warnf("Discarding clone after prepare failure: %v", err)
		m.discardClone(cl)
		return nil, err
	}

	return &Lease{manager: m, clone: cl, baseSHA: sha}, nil
}

// acquireClone returns a clone from the pool or creates a new one if the pool
// is empty. Clones are taken from the front while releaseClone appends to the
// back, so recently returned clones are not immediately reused and a
// problematic clone can age out rather than churn.
func (m *Manager) acquireClone(ctx context.Context) (*clone, error) {
	m.mu.Lock()
	if n := len(m.available); n > 0 {
		cl := m.available[0]
		m.available = m.available[1:]
		m.mu.Unlock()
		return cl, nil
	}
	m.mu.Unlock()

	return m.createClone(ctx)
}

func (m *Manager) createClone(ctx context.Context) (*clone, error) {
	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", m.remoteURL, dir)

	auth, err := m.authForRemote()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	repo, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           m.remoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(m.baseBranch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	return &clone{path: dir, repo: repo}, nil
}

// prepareClone brings a clone to a pristine checkout of the base branch tip
// and returns the tip's SHA.
func (m *Manager) prepareClone(ctx context.Context, cl *clone) (string, error) {
	repo := cl.repo

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return "", fmt.Errorf("resetting worktree: %w", err)
	}

	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return "", fmt.Errorf("cleaning worktree: %w", err)
	}

	auth, err := m.authForRemote()
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	fetchOpts := &git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", m.baseBranch, m.baseBranch))},
		Auth:     auth,
	}

	clog.FromContext(ctx).Debugf("Fetching base branch %s", m.baseBranch)
	if err := repo.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("fetching base branch %s: %w", m.baseBranch, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", m.baseBranch), true)
	if err != nil {
		return "", fmt.Errorf("getting remote ref %s: %w", m.baseBranch, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return "", fmt.Errorf("checking out base tip: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("getting worktree status: %w", err)
	}
	if !status.IsClean() {
		return "", errors.New("worktree is not clean after checkout")
	}

	return remoteRef.Hash().String(), nil
}

func (m *Manager) resetClone(cl *clone) error {
	worktree, err := cl.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}

	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}

	return nil
}

func (m *Manager) releaseClone(cl *clone) {
	m.mu.Lock()
	m.available = append(m.available, cl)
	m.mu.Unlock()
}

func (m *Manager) discardClone(cl *clone) {
	os.RemoveAll(cl.path)
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

func (m *Manager) commitChanges(repo *git.Repository, paths []string, commitMessage string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	for _, p := range paths {
		if _, err := worktree.Add(p); err != nil {
			return fmt.Errorf("staging %s: %w", p, err)
		}
	}

	email := m.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@users.noreply.github.com", email)
	}

	_, err = worktree.Commit(commitMessage, &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.identity,
			Email: email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (m *Manager) forcePushBranch(ctx context.Context, repo *git.Repository, ref plumbing.ReferenceName) error {
	log := clog.FromContext(ctx)

	auth, err := m.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref.String(), ref.String()))
	log.Infof("Force pushing %s", refSpec)

	if err := repo.Push(&git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch already up to date")
			return nil
		}
		return fmt.Errorf("force pushing: %w", err)
	}

	return nil
}
