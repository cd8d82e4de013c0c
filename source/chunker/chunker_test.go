package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Chunk_SimpleDocument(t *testing.T) {
	c := NewDefault()

	content := `# Solar Overview

Photovoltaic systems convert sunlight into electricity.

## Components

Panels, inverters, and batteries make up a typical installation.

## Economics

Installation costs have fallen steadily over the last decade.
`

	chunks := c.Chunk("doc.solar.abc123", content)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.Equal(t, "doc.solar.abc123", chunk.ParentID)
		assert.NotEmpty(t, chunk.Content)
		assert.GreaterOrEqual(t, chunk.Index, 0)
		assert.Greater(t, chunk.TokenCount, 0)
	}
}

func TestChunker_Chunk_PreservesCodeBlocks(t *testing.T) {
	c := MustNew(Config{
		TargetTokens: 50, // Small target to force splitting
		MaxTokens:    100,
		MinTokens:    10,
	})

	content := "# Example\n\n" + "```go\nfunc main() {\n\t// not split across chunks\n\tfmt.Println(\"hi\")\n}\n```\n\nMore text after code."

	chunks := c.Chunk("doc.test.123", content)

	var foundCodeBlock bool
	for _, chunk := range chunks {
		if strings.Contains(chunk.Content, "```go") {
			foundCodeBlock = true
			assert.Contains(t, chunk.Content, "func main()")
			assert.Contains(t, chunk.Content, "```", "closing fence should be present")
		}
	}
	assert.True(t, foundCodeBlock, "should have a chunk with code block")
}

func TestChunker_Chunk_SectionNames(t *testing.T) {
	c := NewDefault()

	content := `# Main Title

Introduction paragraph.

## First Section

Content of first section.
`

	chunks := c.Chunk("doc.test.123", content)
	require.NotEmpty(t, chunks)

	assert.Equal(t, "Main Title", chunks[0].Section)
}

func TestChunker_Chunk_LargeSection(t *testing.T) {
	c := MustNew(Config{
		TargetTokens: 100, // ~400 chars
		MaxTokens:    200, // ~800 chars
		MinTokens:    20,
	})

	longParagraph := strings.Repeat("This is a test sentence. ", 100)
	content := "# Large Section\n\n" + longParagraph

	chunks := c.Chunk("doc.test.123", content)

	assert.Greater(t, len(chunks), 1, "long content should be split")

	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, c.config.MaxTokens+50, "chunk should not greatly exceed max")
	}
}

func TestChunker_Chunk_MergesSmallChunks(t *testing.T) {
	c := MustNew(Config{
		TargetTokens: 100,
		MaxTokens:    200,
		MinTokens:    50,
	})

	content := `# Sec 1

Small.

# Sec 2

Also small.

# Sec 3

Tiny.
`

	chunks := c.Chunk("doc.test.123", content)
	require.NotEmpty(t, chunks)

	// Sections well below minimum collapse into fewer chunks
	assert.Less(t, len(chunks), 3)
}

func TestChunker_Chunk_EmptyContent(t *testing.T) {
	c := NewDefault()
	chunks := c.Chunk("doc.test.123", "")
	assert.Empty(t, chunks)
}

func TestChunker_Chunk_NoHeadings(t *testing.T) {
	c := NewDefault()
	chunks := c.Chunk("doc.test.123", "Plain prose with no markdown structure at all.")
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Section)
}

func TestChunker_Chunk_HardSplitUnbrokenText(t *testing.T) {
	c := MustNew(Config{
		TargetTokens: 50,
		MaxTokens:    100,
		MinTokens:    10,
	})

	// No sentence breaks, no paragraph breaks
	content := strings.Repeat("x", 2000)
	chunks := c.Chunk("doc.test.123", content)

	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, c.config.MaxTokens)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{TargetTokens: 100, MaxTokens: 200, MinTokens: 10}, false},
		{"zero min", Config{TargetTokens: 100, MaxTokens: 200, MinTokens: 0}, true},
		{"min above target", Config{TargetTokens: 100, MaxTokens: 200, MinTokens: 150}, true},
		{"target above max", Config{TargetTokens: 300, MaxTokens: 200, MinTokens: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c.config)
}
