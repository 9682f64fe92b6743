/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package coordinate

import (
	"errors"
	"fmt"
	"path"
)

// manifestFileName is the per-environment image manifest inside the
// deployment repository.
const manifestFileName = "images.yaml"

// policyFileName is the per-tenant auto-merge policy document, stored
// alongside that tenant's manifests.
const policyFileName = "automerge.yaml"

// Coordinate identifies one deployable image reference.
type Coordinate struct {
	Tenant      string `yaml:"tenant"`
	Application string `yaml:"application"`
	Environment string `yaml:"environment"`
	Service     string `yaml:"service"`
}

// Validate reports whether all four components are present. Branch naming and
// path derivation assume well-formed inputs; empty components are rejected
// here, at the edge, rather than deeper in the workflow.
func (c Coordinate) Validate() error {
	switch {
	case c.Tenant == "":
		return errors.New("tenant cannot be empty")
	case c.Application == "":
		return errors.New("application cannot be empty")
	case c.Environment == "":
		return errors.New("environment cannot be empty")
	case c.Service == "":
		return errors.New("service cannot be empty")
	}
	return nil
}

// String renders the coordinate as tenant/application/environment/service.
func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Tenant, c.Application, c.Environment, c.Service)
}

// ManifestPath returns the repository-relative path of the image manifest
// holding this coordinate's service entry.
func (c Coordinate) ManifestPath() string {
	return path.Join(c.Tenant, c.Application, c.Environment, manifestFileName)
}

// PolicyPath returns the repository-relative path of the tenant's auto-merge
// policy document.
func (c Coordinate) PolicyPath() string {
	return path.Join(c.Tenant, policyFileName)
}

// Labels returns the canonical label set for the coordinate's pull request.
// Annotation replaces the PR's labels with exactly this set, so re-running a
// rollout always converges on the same labels.
func (c Coordinate) Labels() []string {
	return []string{
		"tenant/" + c.Tenant,
		"app/" + c.Application,
		"env/" + c.Environment,
		"service/" + c.Service,
	}
}

// UpdateRequest is one unit of work in a batch: roll the coordinate's service
// to NewImage and request the given reviewers on the resulting pull request.
// Immutable once constructed.
type UpdateRequest struct {
	Coordinate `yaml:",inline"`

	NewImage  string   `yaml:"image"`
	Reviewers []string `yaml:"reviewers,omitempty"`
}

// Validate extends Coordinate.Validate with the image reference.
func (r UpdateRequest) Validate() error {
	if err := r.Coordinate.Validate(); err != nil {
		return err
	}
	if r.NewImage == "" {
		return errors.New("image cannot be empty")
	}
	return nil
}
