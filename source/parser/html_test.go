package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Solar Panel Basics</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<p>Photovoltaic modules convert sunlight into electricity. Most commercial
panels use crystalline silicon, though perovskite cells are an active
research area with rapidly improving conversion efficiency.</p>
<p>Inverters convert the direct current produced by the panels into
alternating current suitable for the grid.</p>
</article>
<footer>Copyright</footer>
</body>
</html>`

func TestHTMLParserParse(t *testing.T) {
	p := NewHTMLParser()

	doc, err := p.Parse("/data/solar.html", []byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "solar.html", doc.Filename)
	assert.Contains(t, doc.Body, "# Solar Panel Basics")
	assert.Contains(t, doc.Body, "perovskite cells")
	// Raw content is preserved alongside the markdown body.
	assert.Contains(t, doc.Content, "<article>")
}

func TestHTMLParserEmptyBodyFallsBackToRaw(t *testing.T) {
	p := NewHTMLParser()

	// Too little content for readable-content extraction; the raw
	// document is converted instead.
	doc, err := p.Parse("tiny.html", []byte("<html><body><p>just one line</p></body></html>"))
	require.NoError(t, err)
	assert.Contains(t, doc.Body, "just one line")
}

func TestHTMLParserCanParse(t *testing.T) {
	p := NewHTMLParser()

	assert.True(t, p.CanParse("text/html"))
	assert.True(t, p.CanParse("application/xhtml+xml"))
	assert.False(t, p.CanParse("text/markdown"))
	assert.Equal(t, "text/html", p.MimeType())
}

func TestExtractHTMLTitle(t *testing.T) {
	title := extractHTMLTitle([]byte("<html><head><title> Wind Turbines </title></head><body></body></html>"))
	assert.Equal(t, "Wind Turbines", title)

	assert.Empty(t, extractHTMLTitle([]byte("<html><body><p>no title</p></body></html>")))
}
