package extract

import (
	"fmt"
	"strings"

	"github.com/c360studio/kgraph/ontology"
)

const systemPrompt = `You are a knowledge graph extraction engine. You read text and emit
subject-relation-object triplets that conform to a fixed ontology.
You only use the entity types and relation types you are given, and you
only emit a relation when the ontology allows it for the subject's
entity type. You respond with a JSON array and nothing else.`

// buildPrompt renders the extraction instruction for one chunk. The full
// allowed vocabulary is embedded in every request so the model has no
// reason to invent labels; out-of-vocabulary output is still validated
// downstream.
func buildPrompt(ont *ontology.Ontology, chunk string, maxTriplets int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Extract up to %d knowledge graph triplets from the text below.\n\n", maxTriplets)

	b.WriteString("Entity types (use EXACTLY these labels):\n")
	for _, et := range ont.EntityTypes() {
		fmt.Fprintf(&b, "- %s\n", et)
	}

	b.WriteString("\nRelation types (use EXACTLY these labels):\n")
	for _, rt := range ont.RelationTypes() {
		fmt.Fprintf(&b, "- %s\n", rt)
	}

	b.WriteString("\nAllowed relations per subject entity type:\n")
	allowed := ont.AllowedRelations()
	for _, et := range ont.EntityTypes() {
		relations := allowed[et]
		if len(relations) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s may emit: %s\n", et, strings.Join(relations, ", "))
	}

	b.WriteString(`
Rules:
- A triplet is only valid if the subject's entity type allows the relation.
- Do not invent entity types or relation types.
- Use the surface form of entity names as they appear in the text.
- If the text contains no valid triplets, return an empty array.

Respond with a JSON array of objects with these fields:
[{"subject_name": "...", "subject_type": "...", "relation": "...", "object_name": "...", "object_type": "...", "confidence": 0.0}]

Text:
`)
	b.WriteString(chunk)

	return b.String()
}
