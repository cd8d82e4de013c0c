// Package source provides types and parsers for document ingestion.
package source

// Document represents a parsed document with its content and metadata.
type Document struct {
	// ID is the document identifier (derived from file path and content hash).
	ID string `json:"id"`

	// Filename is the original filename.
	Filename string `json:"filename"`

	// Path is the path the document was loaded from.
	Path string `json:"path"`

	// Content is the raw document content as stored on disk.
	Content string `json:"content"`

	// Frontmatter contains parsed YAML frontmatter if present.
	Frontmatter map[string]any `json:"frontmatter,omitempty"`

	// Body is the extracted text content without frontmatter, ready for
	// normalization and chunking.
	Body string `json:"body"`
}

// HasFrontmatter returns true if the document has parsed frontmatter.
func (d *Document) HasFrontmatter() bool {
	return len(d.Frontmatter) > 0
}

// Chunk represents a section of a document dispatched to extraction.
type Chunk struct {
	// ParentID is the ID of the parent document.
	ParentID string `json:"parent_id"`

	// Index is the chunk sequence number.
	Index int `json:"index"`

	// Section is the heading or section name.
	Section string `json:"section,omitempty"`

	// Content is the chunk text.
	Content string `json:"content"`

	// TokenCount is the estimated token count.
	TokenCount int `json:"token_count"`
}
