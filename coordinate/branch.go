/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package coordinate

import "strings"

// branchPrefix namespaces every branch this tool creates, so operators can
// tell rollout branches apart from human ones at a glance.
const branchPrefix = "rollout"

// BranchName derives the update branch for the coordinate. The mapping is
// pure and deterministic: identical coordinates always yield identical names,
// and the name never depends on the target image, the reviewer list, or when
// the rollout runs. The branch name is the idempotency key for the whole
// workflow: branch materialization and pull-request lookup both key on it.
func (c Coordinate) BranchName() string {
	parts := []string{
		branchPrefix,
		sanitizeRefComponent(c.Tenant),
		sanitizeRefComponent(c.Application),
		sanitizeRefComponent(c.Environment),
		sanitizeRefComponent(c.Service),
	}
	return strings.Join(parts, "/")
}

// refInvalid holds the characters git refuses inside a reference name
// (git-check-ref-format(1)), plus the path separator since each coordinate
// component must stay a single path segment.
const refInvalid = " ~^:?*[\\/\x7f"

// sanitizeRefComponent maps an arbitrary coordinate component onto a string
// that is safe as one segment of a git reference name. Invalid characters
// become '-'; sequences git rejects ("..", "@{", a ".lock" suffix, leading or
// trailing '.') are broken up the same way.
func sanitizeRefComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x20 || strings.ContainsRune(refInvalid, r):
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	out = strings.ReplaceAll(out, "..", "--")
	out = strings.ReplaceAll(out, "@{", "-{")
	out = strings.TrimPrefix(out, ".")
	out = strings.TrimSuffix(out, ".")
	out = strings.TrimSuffix(out, ".lock")
	if out == "" {
		// A component made entirely of invalid characters still has to
		// occupy its segment, or distinct coordinates could collide.
		out = "-"
	}
	return out
}
