package skills

import (
	"context"
	"fmt"

	"github.com/yoockh/voxaura/internal/persona"
)

var documentKeywords = []string{"pdf", "document", "file", "upload"}

// Document recognizes requests about files. Files only arrive through an
// upload, so the reply always asks for one.
type Document struct{}

func NewDocument() *Document { return &Document{} }

func (d *Document) Name() string { return "document-skill" }

func (d *Document) TryHandle(_ context.Context, text string, p persona.Persona) (string, bool) {
	n := words(text)
	if !hasPhrase(n, documentKeywords...) {
		return "", false
	}

	analysis := "summarize"
	if hasPhrase(n, "question", "questions", "answer") {
		analysis = "answer questions about"
	}
	return say(p,
		fmt.Sprintf("Please upload the PDF or document you would like me to %s.", analysis),
		fmt.Sprintf("Arrr! Ready to tackle that document, matey! Upload a file ye want me to %s!", analysis)), true
}
