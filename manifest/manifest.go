/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package manifest reads and mutates the per-environment image manifests of a
// deployment repository. A manifest maps service names to records carrying at
// least an image reference:
//
//	proxy:
//	  image: registry.example.com/acme/proxy:v1.2.3
//	api:
//	  image: registry.example.com/acme/api:v0.9.0
//
// Mutation goes through the yaml.v3 node tree rather than typed structs so
// that keys this tool does not know about, and the document's comments,
// survive a round trip. Only the targeted service's image scalar changes.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tenantops/rollout/coordinate"
	"gopkg.in/yaml.v3"
)

// Entry is the decoded form of one service record. Unknown sibling keys are
// not represented here; Load is a read-only view, SetImage preserves them.
type Entry struct {
	Image string `yaml:"image"`
}

// Document maps service name to its manifest entry.
type Document map[string]Entry

// NotFoundError reports a manifest that does not exist or cannot be parsed as
// YAML. The resolved path is part of the message so operators can locate the
// missing file without re-running.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ServiceNotFoundError reports a service absent from an otherwise valid
// manifest.
type ServiceNotFoundError struct {
	Service string
	Path    string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service %q not found in manifest %s", e.Service, e.Path)
}

// Store reads and writes manifests below a working-tree root.
type Store struct {
	root string
}

// NewStore returns a Store rooted at the given working tree.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// resolve maps a coordinate onto the absolute manifest path.
func (s *Store) resolve(c coordinate.Coordinate) string {
	return filepath.Join(s.root, filepath.FromSlash(c.ManifestPath()))
}

// Load reads the manifest for the coordinate's scope. It fails with a
// *NotFoundError when the file is missing or not parseable as a mapping.
func (s *Store) Load(c coordinate.Coordinate) (Document, error) {
	path := s.resolve(c)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	return doc, nil
}

// SetImage rewrites the image reference of the named service and persists the
// document, preserving all unrelated content. It returns the previous image
// value; callers decide what an unchanged value means (the no-op check lives
// in the orchestrator, not here). Fails with *NotFoundError when the manifest
// is missing or unparseable and *ServiceNotFoundError when the service has no
// entry.
func (s *Store) SetImage(c coordinate.Coordinate, service, newImage string) (string, error) {
	path := s.resolve(c)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &NotFoundError{Path: path, Err: err}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", &NotFoundError{Path: path, Err: err}
	}

	mapping, err := documentMapping(&root)
	if err != nil {
		return "", &NotFoundError{Path: path, Err: err}
	}

	imageNode := findImageNode(mapping, service)
	if imageNode == nil {
		return "", &ServiceNotFoundError{Service: service, Path: path}
	}

	oldImage := imageNode.Value
	imageNode.Value = newImage
	// Force plain scalar style so the rewritten value is not carried in
	// whatever quoting the old one happened to use.
	imageNode.Tag = "!!str"
	imageNode.Style = 0

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root.Content[0]); err != nil {
		return "", fmt.Errorf("encoding manifest %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding manifest %s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing manifest %s: %w", path, err)
	}

	return oldImage, nil
}

// documentMapping unwraps the document node down to its top-level mapping.
func documentMapping(root *yaml.Node) (*yaml.Node, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("document is not a mapping")
	}
	return mapping, nil
}

// findImageNode walks service mapping -> image scalar. Returns nil when the
// service has no entry or the entry has no image field.
func findImageNode(mapping *yaml.Node, service string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != service {
			continue
		}
		entry := mapping.Content[i+1]
		if entry.Kind != yaml.MappingNode {
			return nil
		}
		for j := 0; j+1 < len(entry.Content); j += 2 {
			if entry.Content[j].Value == "image" {
				return entry.Content[j+1]
			}
		}
		return nil
	}
	return nil
}
