/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package coordinate defines the (tenant, application, environment, service)
// tuple that identifies one deployable image reference in a multi-tenant
// deployment repository, along with the pure derivations hung off it: the
// deterministic update branch name, the manifest and policy file paths, and
// the canonical pull-request label set.
//
// Everything in this package is side-effect free. In particular the branch
// name depends only on the coordinate itself, never on the target image or
// any run-time state; that determinism is what lets repeated rollouts for the
// same coordinate converge on one branch and one pull request instead of
// accumulating duplicates.
package coordinate
