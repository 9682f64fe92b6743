/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package policy resolves whether a rollout's pull request may merge
// automatically. Each tenant carries a policy document alongside its
// manifests:
//
//	shop:
//	  des: true
//	  pre: true
//	  pro: false
//
// Auto-merge is security sensitive: a branch that merges on its own ends up
// in production-serving manifests. The resolver therefore fails loud on every
// ambiguity (unknown application, unknown environment name, environment not
// configured) instead of defaulting to an answer. The caller applies the
// fail-safe (treat resolution failure as "do not merge").
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tenantops/rollout/coordinate"
	"gopkg.in/yaml.v3"
)

// SupportedEnvironments is the closed set of environment names a policy
// document may configure. Anything else in a lookup is a usage error, not a
// false answer.
var SupportedEnvironments = []string{"des", "pre", "pro"}

// Document maps application name to per-environment auto-merge flags.
type Document map[string]map[string]bool

// NotFoundError reports a policy document that is missing or unparseable.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy %s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ApplicationNotFoundError reports an application with no policy entry.
type ApplicationNotFoundError struct {
	Application string
	Path        string
}

func (e *ApplicationNotFoundError) Error() string {
	return fmt.Sprintf("application %q not found in policy %s", e.Application, e.Path)
}

// InvalidEnvironmentError reports a lookup for an environment name outside
// the supported set.
type InvalidEnvironmentError struct {
	Environment string
}

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("invalid environment %q, supported environments are %s",
		e.Environment, strings.Join(SupportedEnvironments, ", "))
}

// EnvironmentNotConfiguredError reports a syntactically valid environment
// that the application's policy entry does not configure. Distinct from
// "configured as false": a missing entry is a configuration error the caller
// must not silently treat as non-merging.
type EnvironmentNotConfiguredError struct {
	Application string
	Environment string
}

func (e *EnvironmentNotConfiguredError) Error() string {
	return fmt.Sprintf("environment %q not configured for application %q", e.Environment, e.Application)
}

// Resolver answers auto-merge questions from per-tenant policy documents
// below a working-tree root.
type Resolver struct {
	root string
}

// NewResolver returns a Resolver rooted at the given working tree.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// DetermineAutoMerge resolves the auto-merge flag for the coordinate.
// Resolution order: load the tenant's document, look up the application,
// validate the environment name against the supported set, then look up the
// configured flag. Every miss is a distinct typed error.
func (r *Resolver) DetermineAutoMerge(c coordinate.Coordinate) (bool, error) {
	path := filepath.Join(r.root, filepath.FromSlash(c.PolicyPath()))

	data, err := os.ReadFile(path)
	if err != nil {
		return false, &NotFoundError{Path: path, Err: err}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, &NotFoundError{Path: path, Err: err}
	}

	app, ok := doc[c.Application]
	if !ok {
		return false, &ApplicationNotFoundError{Application: c.Application, Path: path}
	}

	if !slices.Contains(SupportedEnvironments, c.Environment) {
		return false, &InvalidEnvironmentError{Environment: c.Environment}
	}

	merge, ok := app[c.Environment]
	if !ok {
		return false, &EnvironmentNotConfiguredError{Application: c.Application, Environment: c.Environment}
	}

	return merge, nil
}
