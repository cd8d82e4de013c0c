// Package ontology loads and validates the fixed extraction schema: the set
// of entity types, relation types, and which relations each entity type may
// emit. The ontology is immutable after load and shared by reference across
// the whole pipeline; schema changes require a restart.
package ontology

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the YAML shape of an ontology file.
type document struct {
	Domain           string              `yaml:"domain"`
	Version          string              `yaml:"version"`
	EntityTypes      []string            `yaml:"entity_types"`
	RelationTypes    []string            `yaml:"relation_types"`
	AllowedRelations map[string][]string `yaml:"allowed_relations"`
}

// Ontology is the validated, read-only extraction schema.
type Ontology struct {
	domain  string
	version string

	entityTypes   map[string]struct{}
	relationTypes map[string]struct{}
	allowed       map[string]map[string]struct{}
}

// Load reads and validates an ontology from a YAML file.
// A malformed or inconsistent ontology is a fatal configuration error.
func Load(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology file: %w", err)
	}
	return Parse(data)
}

// Parse validates ontology YAML content.
func Parse(data []byte) (*Ontology, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ontology: %w", err)
	}

	if len(doc.EntityTypes) == 0 {
		return nil, fmt.Errorf("ontology: entity_types cannot be empty")
	}
	if len(doc.RelationTypes) == 0 {
		return nil, fmt.Errorf("ontology: relation_types cannot be empty")
	}

	o := &Ontology{
		domain:        doc.Domain,
		version:       doc.Version,
		entityTypes:   make(map[string]struct{}, len(doc.EntityTypes)),
		relationTypes: make(map[string]struct{}, len(doc.RelationTypes)),
		allowed:       make(map[string]map[string]struct{}, len(doc.AllowedRelations)),
	}

	// Types are upper-cased on load so lookups are case-stable.
	for _, et := range doc.EntityTypes {
		o.entityTypes[strings.ToUpper(strings.TrimSpace(et))] = struct{}{}
	}
	for _, rt := range doc.RelationTypes {
		o.relationTypes[strings.ToUpper(strings.TrimSpace(rt))] = struct{}{}
	}

	for et, rels := range doc.AllowedRelations {
		key := strings.ToUpper(strings.TrimSpace(et))
		if _, ok := o.entityTypes[key]; !ok {
			return nil, fmt.Errorf("ontology: allowed_relations key %q is not a declared entity type", et)
		}
		set := make(map[string]struct{}, len(rels))
		for _, rel := range rels {
			rk := strings.ToUpper(strings.TrimSpace(rel))
			if _, ok := o.relationTypes[rk]; !ok {
				return nil, fmt.Errorf("ontology: relation %q under entity type %q is not a declared relation type", rel, et)
			}
			set[rk] = struct{}{}
		}
		o.allowed[key] = set
	}

	return o, nil
}

// Domain returns the human-readable domain name (e.g. "Renewable Energy").
func (o *Ontology) Domain() string { return o.domain }

// Version returns the schema version string.
func (o *Ontology) Version() string { return o.version }

// HasEntityType reports whether the entity type is declared.
func (o *Ontology) HasEntityType(entityType string) bool {
	_, ok := o.entityTypes[entityType]
	return ok
}

// HasRelationType reports whether the relation type is declared.
func (o *Ontology) HasRelationType(relationType string) bool {
	_, ok := o.relationTypes[relationType]
	return ok
}

// IsAllowed reports whether the entity type may emit the relation type.
// An entity type absent from allowed_relations may emit nothing.
func (o *Ontology) IsAllowed(entityType, relationType string) bool {
	rels, ok := o.allowed[entityType]
	if !ok {
		return false
	}
	_, ok = rels[relationType]
	return ok
}

// EntityTypes returns the declared entity types, sorted.
func (o *Ontology) EntityTypes() []string {
	return sortedKeys(o.entityTypes)
}

// RelationTypes returns the declared relation types, sorted.
func (o *Ontology) RelationTypes() []string {
	return sortedKeys(o.relationTypes)
}

// AllowedRelations returns the allow-matrix as sorted slices, suitable for
// embedding in an extraction prompt.
func (o *Ontology) AllowedRelations() map[string][]string {
	out := make(map[string][]string, len(o.allowed))
	for et, rels := range o.allowed {
		out[et] = sortedKeys(rels)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
