package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// responseSchema is the shape the model is asked to produce.
type responseSchema struct {
	Triples []tripleSchema `json:"triples" jsonschema:"description=Facts stated in the paragraphs"`
}

type tripleSchema struct {
	Subject     string  `json:"subject" jsonschema:"description=Entity the fact is about"`
	SubjectType string  `json:"subject_type,omitempty" jsonschema:"description=Kind of the subject such as Component or Requirement"`
	Predicate   string  `json:"predicate" jsonschema:"description=Relation in a few words such as monitors or is part of"`
	Object      string  `json:"object" jsonschema:"description=Entity the subject relates to"`
	ObjectType  string  `json:"object_type,omitempty" jsonschema:"description=Kind of the object"`
	Confidence  float64 `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=1"`
}

var schemaJSON = func() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	data, err := json.MarshalIndent(reflector.Reflect(&responseSchema{}), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("triple response schema: %v", err))
	}
	return string(data)
}()

const triplePrompt = `You extract knowledge graph triples from engineering requirement documents.

Read the numbered paragraphs below and list every fact of the form
(subject, predicate, object) that they state about systems, components,
requirements, functions, interfaces or signals. Use the entity names exactly
as they appear in the text. Do not invent facts.

Reply with a single JSON object matching this schema and nothing else:
%s

Paragraphs:
%s`

const mentionPrompt = `List the named entities (systems, components, requirements, signals,
functions) mentioned in the question below. Reply with the names separated by
commas and nothing else. Reply with an empty line when there are none.

Question: %s`

const answerPrompt = `Answer the question using only the context below. Cite context items by
their number in square brackets. If the context does not contain the answer,
say so.

Context:
%s

Question: %s`

func buildTriplePrompt(paragraphs []string) string {
	var b strings.Builder
	for i, p := range paragraphs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	return fmt.Sprintf(triplePrompt, schemaJSON, strings.TrimRight(b.String(), "\n"))
}

// AnswerPrompt renders the answer prompt for a question and its rendered
// context block.
func AnswerPrompt(question, context string) string {
	return fmt.Sprintf(answerPrompt, context, question)
}
