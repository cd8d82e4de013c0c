package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_NilDegradesGracefully(t *testing.T) {
	var p *Publisher
	err := p.PublishDocumentIngested(context.Background(), DocumentIngested{ID: "doc.x"})
	assert.NoError(t, err)

	p.Close() // must not panic
}

func TestDocumentIngested_PayloadShape(t *testing.T) {
	msg := DocumentIngested{
		ID:          "doc.solar.abc123",
		Fingerprint: "deadbeef",
		Filename:    "solar.md",
		Triples: []Triple{
			{
				Subject:    "Solar Panel",
				Predicate:  "USES",
				Object:     "Silicon",
				Source:     "doc.solar.abc123",
				Timestamp:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
				Confidence: 0.9,
			},
		},
		IngestedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "doc.solar.abc123", decoded["id"])
	assert.Equal(t, "deadbeef", decoded["fingerprint"])

	triples, ok := decoded["triples"].([]any)
	require.True(t, ok)
	require.Len(t, triples, 1)
	first := triples[0].(map[string]any)
	assert.Equal(t, "USES", first["predicate"])
}
