package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetByMimeType(t *testing.T) {
	r := NewRegistry()

	p := r.GetByMimeType("text/markdown")
	require.NotNil(t, p)
	assert.Equal(t, "text/markdown", p.MimeType())

	// text/plain has no dedicated parser but the markdown parser accepts it
	p = r.GetByMimeType("text/plain")
	require.NotNil(t, p)
	assert.Equal(t, "text/markdown", p.MimeType())

	assert.Nil(t, r.GetByMimeType("video/mp4"))
}

func TestRegistry_GetByExtension(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		filename string
		wantMime string
	}{
		{"report.md", "text/markdown"},
		{"report.txt", "text/markdown"},
		{"report.html", "text/html"},
		{"report.pdf", "application/pdf"},
	}

	for _, tt := range tests {
		p := r.GetByExtension(tt.filename)
		require.NotNil(t, p, tt.filename)
		assert.Equal(t, tt.wantMime, p.MimeType(), tt.filename)
	}

	assert.Nil(t, r.GetByExtension("report.xlsx"))
}

func TestRegistry_Parse_UnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Parse("data.bin", []byte{0x00})
	assert.Error(t, err)
}

func TestMimeTypeFromExtension(t *testing.T) {
	assert.Equal(t, "text/markdown", MimeTypeFromExtension(".MD"))
	assert.Equal(t, "application/pdf", MimeTypeFromExtension(".pdf"))
	assert.Equal(t, "application/octet-stream", MimeTypeFromExtension(".zip"))
}
