package schema_test

import (
	"testing"

	"github.com/c360studio/kgraph/extract"
	"github.com/c360studio/kgraph/ontology"
	"github.com/c360studio/kgraph/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOntologyYAML = `
domain: energy
version: "1.0"
entity_types:
  - TECHNOLOGY
  - MATERIAL
relation_types:
  - USES
allowed_relations:
  TECHNOLOGY:
    - USES
`

func newValidator(t *testing.T) *schema.Validator {
	t.Helper()
	ont, err := ontology.Parse([]byte(testOntologyYAML))
	require.NoError(t, err)
	v, err := schema.New(ont)
	require.NoError(t, err)
	return v
}

func TestValidator_DirectionalAllowMatrix(t *testing.T) {
	v := newValidator(t)

	candidates := []extract.CandidateTriplet{
		{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
		{SubjectName: "Silicon", SubjectType: "MATERIAL", Relation: "USES", ObjectName: "Solar Panel", ObjectType: "TECHNOLOGY"},
	}

	result := v.ValidateBatch(candidates)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "Solar Panel", result.Accepted[0].SubjectName)

	require.Len(t, result.Rejections, 1)
	assert.Equal(t, schema.DisallowedRelationForType, result.Rejections[0].Kind)
}

func TestValidator_OrderedChecks(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		candidate extract.CandidateTriplet
		wantKind  schema.ViolationKind
	}{
		{
			name:      "unknown subject type",
			candidate: extract.CandidateTriplet{SubjectName: "X", SubjectType: "GADGET", Relation: "USES", ObjectName: "Y", ObjectType: "MATERIAL"},
			wantKind:  schema.UnknownEntityType,
		},
		{
			name:      "unknown object type",
			candidate: extract.CandidateTriplet{SubjectName: "X", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Y", ObjectType: "GADGET"},
			wantKind:  schema.UnknownEntityType,
		},
		{
			// Both type and relation are bad: entity type check wins.
			name:      "entity type checked before relation type",
			candidate: extract.CandidateTriplet{SubjectName: "X", SubjectType: "GADGET", Relation: "POWERS", ObjectName: "Y", ObjectType: "MATERIAL"},
			wantKind:  schema.UnknownEntityType,
		},
		{
			name:      "unknown relation type",
			candidate: extract.CandidateTriplet{SubjectName: "X", SubjectType: "TECHNOLOGY", Relation: "POWERS", ObjectName: "Y", ObjectType: "MATERIAL"},
			wantKind:  schema.UnknownRelationType,
		},
		{
			name:      "disallowed relation for subject type",
			candidate: extract.CandidateTriplet{SubjectName: "X", SubjectType: "MATERIAL", Relation: "USES", ObjectName: "Y", ObjectType: "TECHNOLOGY"},
			wantKind:  schema.DisallowedRelationForType,
		},
		{
			name:      "empty subject name",
			candidate: extract.CandidateTriplet{SubjectName: "   ", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Y", ObjectType: "MATERIAL"},
			wantKind:  schema.EmptyEntityName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rejection := v.Validate(tt.candidate)
			require.NotNil(t, rejection)
			assert.Equal(t, tt.wantKind, rejection.Kind)
		})
	}
}

func TestValidator_CanonicalizesNames(t *testing.T) {
	v := newValidator(t)

	triplet, rejection := v.Validate(extract.CandidateTriplet{
		SubjectName: "SOLAR   panel",
		SubjectType: "technology",
		Relation:    "uses",
		ObjectName:  "silicon",
		ObjectType:  "material",
	})

	require.Nil(t, rejection)
	assert.Equal(t, "Solar Panel", triplet.SubjectName)
	assert.Equal(t, "TECHNOLOGY", triplet.SubjectType)
	assert.Equal(t, "USES", triplet.Relation)
	assert.Equal(t, "Silicon", triplet.ObjectName)
	assert.Equal(t, "MATERIAL", triplet.ObjectType)
}

func TestValidator_BatchDeduplication(t *testing.T) {
	v := newValidator(t)

	// Case variants of the same assertion collapse to one triplet
	candidates := []extract.CandidateTriplet{
		{SubjectName: "solar panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "silicon", ObjectType: "MATERIAL"},
		{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
		{SubjectName: "SOLAR PANEL", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "SILICON", ObjectType: "MATERIAL"},
	}

	result := v.ValidateBatch(candidates)

	assert.Len(t, result.Accepted, 1)
	assert.Equal(t, 2, result.Duplicates)
	assert.Empty(t, result.Rejections)
}

func TestValidator_RejectionDoesNotAbortBatch(t *testing.T) {
	v := newValidator(t)

	candidates := []extract.CandidateTriplet{
		{SubjectName: "A", SubjectType: "GADGET", Relation: "USES", ObjectName: "B", ObjectType: "MATERIAL"},
		{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
		{SubjectName: "C", SubjectType: "TECHNOLOGY", Relation: "POWERS", ObjectName: "D", ObjectType: "MATERIAL"},
		{SubjectName: "E", SubjectType: "MATERIAL", Relation: "USES", ObjectName: "F", ObjectType: "TECHNOLOGY"},
	}

	result := v.ValidateBatch(candidates)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "Solar Panel", result.Accepted[0].SubjectName)
	assert.Len(t, result.Rejections, 3)

	counts := result.RejectionCounts()
	assert.Equal(t, 1, counts[schema.UnknownEntityType])
	assert.Equal(t, 1, counts[schema.UnknownRelationType])
	assert.Equal(t, 1, counts[schema.DisallowedRelationForType])
}

func TestTriplet_Key(t *testing.T) {
	a := schema.Triplet{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"}
	b := a
	c := a
	c.ObjectName = "Glass"

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestNew_RequiresOntology(t *testing.T) {
	_, err := schema.New(nil)
	assert.Error(t, err)
}
