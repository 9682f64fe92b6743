/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package updater contains the rollout orchestration engine: a strictly
// linear per-coordinate state machine (branch materialization, manifest
// mutation, publish, pull-request reconciliation, annotation, merge decision)
// and a batch runner that drives it across many coordinates with
// per-coordinate failure isolation.
//
// The engine is built around two idempotency anchors. The branch name is a
// pure function of the coordinate, so repeated runs converge on one branch
// and one open pull request instead of accumulating them. And a manifest
// mutation that changes nothing short-circuits the workflow before anything
// is pushed, so re-running a completed rollout opens no empty-diff PRs.
//
// Failure policy follows the blast radius of each stage. Branch
// materialization and manifest mutation failures abort the coordinate;
// publish, label, and reviewer failures degrade to warnings because an
// existing PR may still be actionable; a policy resolution failure never
// merges, because ambiguity about merge policy always resolves to "leave
// it open".
package updater
