package extraction

import (
	"fmt"
	"strings"

	"github.com/kirillkom/labflow/internal/core/domain"
)

const singleDocInstruction = `You are a medical lab report parser.
Extract every biomarker measurement and the patient metadata from the report below.
Return a strict JSON object with keys:
biomarkers (array of {name, value, unit}),
patient_info ({name, date_of_birth, gender, test_date} with ISO dates, null when unknown),
panel_name (string or null).
No markdown, no extra keys, no commentary.`

const batchInstruction = `You are a medical lab report parser.
The request contains several documents, each labelled with its file name.
Extract every biomarker measurement and the patient metadata per document.
Return a strict JSON object: {"documents": [{source_file, biomarkers, patient_info, panel_name}]}
where biomarkers is an array of {name, value, unit} and patient_info is
{name, date_of_birth, gender, test_date} with ISO dates and null when unknown.
Produce exactly one entry per document, keyed by its file name. No markdown, no commentary.`

func buildSinglePrompt(doc domain.ProcessedDocument) string {
	var b strings.Builder
	b.WriteString(singleDocInstruction)
	b.WriteString("\n\n")
	writeDocumentSection(&b, 1, doc)
	return b.String()
}

func buildBatchPrompt(docs []domain.ProcessedDocument) string {
	var b strings.Builder
	b.WriteString(batchInstruction)
	b.WriteString("\n\n")
	for idx, doc := range docs {
		writeDocumentSection(&b, idx+1, doc)
	}
	return b.String()
}

func writeDocumentSection(b *strings.Builder, ordinal int, doc domain.ProcessedDocument) {
	fmt.Fprintf(b, "=== Document %d: %s ===\n", ordinal, doc.Filename)
	if doc.ExtractedText != "" {
		b.WriteString(doc.ExtractedText)
		b.WriteString("\n\n")
		return
	}
	fmt.Fprintf(b, "(document %q is attached as %d image/file block(s))\n\n", doc.Filename, len(doc.ImagePages))
}
