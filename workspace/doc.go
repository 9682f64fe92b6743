/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspace owns the git working trees the rollout engine mutates.
//
// A Manager keeps a pool of clones of the deployment repository. Callers
// lease a clone for the duration of one coordinate's processing; the lease is
// prepared at the tip of the source branch, exposes branch materialization
// and commit/force-push primitives, and is hard-reset when returned to the
// pool. Sequential batches reuse a single clone; parallel batches lease one
// clone per worker so no two coordinates ever share a working tree.
package workspace
