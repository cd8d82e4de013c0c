// Package normalize provides deterministic text normalization applied before
// extraction. Collapsing case and whitespace variants here keeps superficial
// duplicates ("solar panel" / "SOLAR PANEL") from ever reaching the graph.
package normalize

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes document text: each whitespace-separated token is
// title-cased and runs of spaces or tabs collapse to a single space. Line
// boundaries are preserved so downstream section-aware chunking still sees
// document structure. Token boundaries are never merged, so multi-word
// entity names survive intact. Pure: identical input yields identical output.
func Normalize(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = normalizeLine(line)
	}
	return strings.Join(lines, "\n")
}

// CanonicalName computes the canonical identity form of an entity name:
// title-cased tokens joined by single spaces, with all surrounding and
// internal whitespace (including newlines) collapsed. Names arriving
// directly from the oracle, bypassing document pre-normalization, converge
// to the same identity.
func CanonicalName(name string) string {
	fields := strings.Fields(name)
	for i, f := range fields {
		fields[i] = titleToken(f)
	}
	return strings.Join(fields, " ")
}

// normalizeLine title-cases tokens within one line and collapses horizontal
// whitespace.
func normalizeLine(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		fields[i] = titleToken(f)
	}
	return strings.Join(fields, " ")
}

// titleToken upper-cases the first letter of a token and lower-cases the
// rest. Tokens without letters pass through unchanged.
func titleToken(tok string) string {
	runes := []rune(strings.ToLower(tok))
	for i, r := range runes {
		if unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			break
		}
	}
	return string(runes)
}
