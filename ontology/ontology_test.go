package ontology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
domain: Renewable Energy
version: "1.0"
entity_types:
  - TECHNOLOGY
  - CONCEPT
  - LOCATION
  - METRIC
  - ORGANIZATION
  - MATERIAL
relation_types:
  - USES
  - PRODUCES
  - LOCATED_IN
  - AFFECTS
  - HAS_METRIC
  - DEVELOPED_BY
allowed_relations:
  TECHNOLOGY: [USES, PRODUCES, LOCATED_IN, HAS_METRIC, DEVELOPED_BY]
  CONCEPT: [AFFECTS, HAS_METRIC]
  ORGANIZATION: [LOCATED_IN, PRODUCES]
`

func TestParse_Valid(t *testing.T) {
	o, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "Renewable Energy", o.Domain())
	assert.Equal(t, "1.0", o.Version())
	assert.True(t, o.HasEntityType("TECHNOLOGY"))
	assert.True(t, o.HasRelationType("USES"))
	assert.True(t, o.IsAllowed("TECHNOLOGY", "USES"))
	assert.False(t, o.IsAllowed("TECHNOLOGY", "AFFECTS"))
}

func TestParse_UppercasesTypes(t *testing.T) {
	o, err := Parse([]byte(`
entity_types: [technology, material]
relation_types: [uses]
allowed_relations:
  technology: [uses]
`))
	require.NoError(t, err)
	assert.True(t, o.HasEntityType("TECHNOLOGY"))
	assert.True(t, o.HasRelationType("USES"))
	assert.True(t, o.IsAllowed("TECHNOLOGY", "USES"))
}

func TestParse_EntityTypeWithoutAllowedRelationsEmitsNothing(t *testing.T) {
	o, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	// MATERIAL is declared but has no allow-matrix entry.
	assert.True(t, o.HasEntityType("MATERIAL"))
	assert.False(t, o.IsAllowed("MATERIAL", "USES"))
}

func TestParse_RejectsUndefinedRelationInMatrix(t *testing.T) {
	_, err := Parse([]byte(`
entity_types: [TECHNOLOGY]
relation_types: [USES]
allowed_relations:
  TECHNOLOGY: [PRODUCES]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRODUCES")
}

func TestParse_RejectsUndefinedEntityKeyInMatrix(t *testing.T) {
	_, err := Parse([]byte(`
entity_types: [TECHNOLOGY]
relation_types: [USES]
allowed_relations:
  MATERIAL: [USES]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATERIAL")
}

func TestParse_RejectsEmptyTypeLists(t *testing.T) {
	_, err := Parse([]byte(`
entity_types: []
relation_types: [USES]
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
entity_types: [TECHNOLOGY]
relation_types: []
`))
	assert.Error(t, err)
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("entity_types: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	o, err := Load(path)
	require.NoError(t, err)
	assert.True(t, o.IsAllowed("CONCEPT", "AFFECTS"))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestAllowedRelations_SortedCopy(t *testing.T) {
	o, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	m := o.AllowedRelations()
	assert.Equal(t, []string{"DEVELOPED_BY", "HAS_METRIC", "LOCATED_IN", "PRODUCES", "USES"}, m["TECHNOLOGY"])

	// Mutating the copy must not affect the registry.
	m["TECHNOLOGY"] = nil
	assert.True(t, o.IsAllowed("TECHNOLOGY", "USES"))
}
