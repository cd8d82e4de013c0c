// Package schema validates candidate triplets against the ontology.
//
// Validation is an ordered decision procedure per triplet: unknown entity
// type, then unknown relation type, then relation not allowed for the
// subject's entity type. Triplets that pass get canonical identities
// recomputed with the normalizer; nothing else is repaired — a candidate
// either conforms after normalization or is dropped. Rejections are
// routine events, counted and reported but never surfaced as errors.
package schema

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/kgraph/extract"
	"github.com/c360studio/kgraph/normalize"
	"github.com/c360studio/kgraph/ontology"
)

// ViolationKind identifies why a candidate triplet was rejected.
type ViolationKind string

const (
	UnknownEntityType         ViolationKind = "unknown_entity_type"
	UnknownRelationType       ViolationKind = "unknown_relation_type"
	DisallowedRelationForType ViolationKind = "disallowed_relation_for_type"
	EmptyEntityName           ViolationKind = "empty_entity_name"
)

// Rejection pairs a dropped candidate with the violation that dropped it.
type Rejection struct {
	Candidate extract.CandidateTriplet
	Kind      ViolationKind
}

// Triplet is an accepted, canonicalized assertion ready for commit.
// Names carry the canonical surface form; types and relations are
// upper-cased to match the ontology's labels.
type Triplet struct {
	SubjectName string
	SubjectType string
	Relation    string
	ObjectName  string
	ObjectType  string
	Confidence  float64
}

// Key returns the identity used for deduplication. Two triplets with the
// same subject identity, relation, and object identity are the same edge.
func (t Triplet) Key() string {
	return fmt.Sprintf("%s:%s|%s|%s:%s",
		t.SubjectType, t.SubjectName, t.Relation, t.ObjectType, t.ObjectName)
}

// Result is the outcome of validating one batch of candidates.
type Result struct {
	Accepted   []Triplet
	Rejections []Rejection

	// Duplicates counts accepted triplets that collapsed into an
	// earlier identical triplet in the same batch.
	Duplicates int
}

// RejectionCounts aggregates rejections by violation kind.
func (r Result) RejectionCounts() map[ViolationKind]int {
	counts := make(map[ViolationKind]int)
	for _, rej := range r.Rejections {
		counts[rej.Kind]++
	}
	return counts
}

// Validator checks candidate triplets against an ontology snapshot.
type Validator struct {
	ont    *ontology.Ontology
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a Validator bound to an ontology snapshot.
func New(ont *ontology.Ontology, opts ...Option) (*Validator, error) {
	if ont == nil {
		return nil, fmt.Errorf("schema: ontology is required")
	}
	v := &Validator{ont: ont, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate checks a single candidate. It returns the canonicalized
// triplet, or a non-nil Rejection when the candidate does not conform.
func (v *Validator) Validate(c extract.CandidateTriplet) (Triplet, *Rejection) {
	subjectType := strings.ToUpper(strings.TrimSpace(c.SubjectType))
	objectType := strings.ToUpper(strings.TrimSpace(c.ObjectType))
	relation := strings.ToUpper(strings.TrimSpace(c.Relation))

	if !v.ont.HasEntityType(subjectType) || !v.ont.HasEntityType(objectType) {
		return Triplet{}, &Rejection{Candidate: c, Kind: UnknownEntityType}
	}
	if !v.ont.HasRelationType(relation) {
		return Triplet{}, &Rejection{Candidate: c, Kind: UnknownRelationType}
	}
	if !v.ont.IsAllowed(subjectType, relation) {
		return Triplet{}, &Rejection{Candidate: c, Kind: DisallowedRelationForType}
	}

	// Oracle output may bypass pre-normalization, so canonical names are
	// recomputed here regardless of what the pipeline did upstream.
	subjectName := normalize.CanonicalName(c.SubjectName)
	objectName := normalize.CanonicalName(c.ObjectName)
	if subjectName == "" || objectName == "" {
		return Triplet{}, &Rejection{Candidate: c, Kind: EmptyEntityName}
	}

	return Triplet{
		SubjectName: subjectName,
		SubjectType: subjectType,
		Relation:    relation,
		ObjectName:  objectName,
		ObjectType:  objectType,
		Confidence:  c.Confidence,
	}, nil
}

// ValidateBatch validates all candidates from one document, deduplicating
// accepted triplets within the batch. Rejections never abort the batch.
// Store-level deduplication is the commit path's concern: edge upserts
// are idempotent on the same identity key.
func (v *Validator) ValidateBatch(candidates []extract.CandidateTriplet) Result {
	var result Result
	seen := make(map[string]struct{})

	for _, c := range candidates {
		triplet, rejection := v.Validate(c)
		if rejection != nil {
			v.logger.Debug("rejected candidate triplet",
				"kind", string(rejection.Kind),
				"subject", c.SubjectName,
				"relation", c.Relation,
				"object", c.ObjectName)
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}

		key := triplet.Key()
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		result.Accepted = append(result.Accepted, triplet)
	}

	return result
}
