/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tenantops/rollout/coordinate"
)

// newBatchTree builds a fixture tree with manifests for three services and a
// permissive policy, and returns the matching requests. The second request
// targets a tenant whose manifest does not exist.
func newBatchTree(t *testing.T) (string, []coordinate.UpdateRequest) {
	t.Helper()

	root := writeTree(t,
		"proxy:\n  image: foo/proxy:v1\napi:\n  image: foo/api:v1\n",
		"shop:\n  des: false\n")

	reqs := make([]coordinate.UpdateRequest, 3)
	for i, service := range []string{"proxy", "api", "proxy"} {
		reqs[i] = coordinate.UpdateRequest{
			Coordinate: coordinate.Coordinate{
				Tenant:      "acme",
				Application: "shop",
				Environment: "des",
				Service:     service,
			},
			NewImage: fmt.Sprintf("foo/%s:v%d", service, i+2),
		}
	}
	// Request 2 points at a tenant with no manifests at all.
	reqs[1].Tenant = "ghost"
	return root, reqs
}

func singleLease(wt *fakeWorktree) LeaseFunc {
	return func(context.Context) (Lease, error) { return wt, nil }
}

func TestRunBatchIsolation(t *testing.T) {
	root, reqs := newBatchTree(t)
	host := newFakeHost()
	runner := NewBatchRunner(NewCoordinator(host), singleLease(&fakeWorktree{root: root}))

	outcomes := runner.Run(context.Background(), reqs)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if outcomes[0].Status != StatusOpened {
		t.Errorf("outcome 1 = %+v, want opened", outcomes[0])
	}
	if outcomes[1].Status != StatusFailed || outcomes[1].Stage != StageMutateManifest {
		t.Errorf("outcome 2 = %+v, want failed at mutate-manifest", outcomes[1])
	}
	if outcomes[2].Status != StatusOpened {
		t.Errorf("outcome 3 = %+v, want opened: the failure of request 2 must not abort request 3", outcomes[2])
	}
}

func TestRunOutcomesMatchInputOrder(t *testing.T) {
	root, reqs := newBatchTree(t)
	host := newFakeHost()
	runner := NewBatchRunner(NewCoordinator(host), singleLease(&fakeWorktree{root: root}))

	outcomes := runner.Run(context.Background(), reqs)

	for i := range reqs {
		if outcomes[i].Request.Service != reqs[i].Service || outcomes[i].Request.Tenant != reqs[i].Tenant {
			t.Errorf("outcome %d is for %s, want %s", i, outcomes[i].Request.Coordinate, reqs[i].Coordinate)
		}
	}
}

func TestRunParallelWorkersIsolatedTrees(t *testing.T) {
	root, reqs := newBatchTree(t)
	host := newFakeHost()

	// Each worker leases its own tree; both point at the same fixture.
	leases := make(chan *fakeWorktree, 2)
	leases <- &fakeWorktree{root: root}
	leases <- &fakeWorktree{root: root}
	lease := func(context.Context) (Lease, error) { return <-leases, nil }

	runner := NewBatchRunner(NewCoordinator(host), lease, WithWorkers(2))
	outcomes := runner.Run(context.Background(), reqs)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	// Reporting order still matches input order even with workers.
	for i := range reqs {
		if outcomes[i].Request.Tenant != reqs[i].Tenant || outcomes[i].Request.Service != reqs[i].Service {
			t.Errorf("outcome %d is for %s, want %s", i, outcomes[i].Request.Coordinate, reqs[i].Coordinate)
		}
	}
}

func TestRunLeaseFailure(t *testing.T) {
	_, reqs := newBatchTree(t)
	host := newFakeHost()
	lease := func(context.Context) (Lease, error) { return nil, fmt.Errorf("clone failed") }

	runner := NewBatchRunner(NewCoordinator(host), lease)
	outcomes := runner.Run(context.Background(), reqs)

	for i, o := range outcomes {
		if o.Status != StatusFailed || o.Stage != StageMaterializeBranch {
			t.Errorf("outcome %d = %+v, want failed at materialize-branch", i, o)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	req := testRequest()
	outcomes := []Outcome{
		merged(req, 7),
		skipped(req, ReasonNoImageChange),
		failed(req, StageMutateManifest, fmt.Errorf("manifest gone")),
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, outcomes); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"acme/shop/des/proxy", "merged", "#7", "skipped", "manifest gone"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestAnyFailed(t *testing.T) {
	req := testRequest()
	if AnyFailed([]Outcome{merged(req, 1), opened(req, 2)}) {
		t.Error("AnyFailed = true for a clean batch")
	}
	if !AnyFailed([]Outcome{merged(req, 1), failed(req, StageValidate, fmt.Errorf("bad"))}) {
		t.Error("AnyFailed = false for a batch with a failure")
	}
}
