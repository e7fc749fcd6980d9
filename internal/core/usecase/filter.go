package usecase

import (
	"strings"
	"unicode"

	"github.com/kirillkom/labflow/internal/core/domain"
)

const (
	minTextLength    = 50
	minNumericTokens = 3
)

// labKeywords is the multilingual signal set a lab report is expected to
// mention at least once. Lowercase; matched as substrings of the lowered text.
var labKeywords = []string{
	"glucose", "cholesterol", "hemoglobin", "haemoglobin", "triglyceride",
	"creatinine", "bilirubin", "ferritin", "vitamin", "tsh", "hdl", "ldl",
	"leukocyte", "erythrocyte", "platelet", "hba1c", "insulin", "cortisol",
	"reference range", "test result", "laboratory",
	// Russian
	"глюкоза", "холестерин", "гемоглобин", "креатинин", "билирубин",
	"ферритин", "витамин", "ттг", "лейкоциты", "эритроциты", "тромбоциты",
	"анализ", "референсные значения",
	// Spanish / German
	"glucosa", "colesterol", "hemoglobina", "blutbild", "cholesterin",
}

// DocumentFilter discards documents unlikely to contain usable lab data
// before any network call is made. Pure function of its input.
type DocumentFilter struct {
	maxFileBytes int64
}

func NewDocumentFilter(maxFileBytes int64) *DocumentFilter {
	if maxFileBytes <= 0 {
		maxFileBytes = 6 * 1024 * 1024
	}
	return &DocumentFilter{maxFileBytes: maxFileBytes}
}

// Filter partitions docs into processable and skipped. Every input document
// receives exactly one verdict.
func (f *DocumentFilter) Filter(docs []domain.ProcessedDocument) ([]domain.ProcessedDocument, []domain.SkippedDocument) {
	processable := make([]domain.ProcessedDocument, 0, len(docs))
	var skipped []domain.SkippedDocument

	for _, doc := range docs {
		if reason := f.verdict(doc); reason != "" {
			skipped = append(skipped, domain.SkippedDocument{Filename: doc.Filename, Reason: reason})
			continue
		}
		processable = append(processable, doc)
	}
	return processable, skipped
}

func (f *DocumentFilter) verdict(doc domain.ProcessedDocument) string {
	switch {
	case len(doc.ExtractedText) < minTextLength && !doc.HasImages():
		return domain.SkipReasonEmpty
	case !doc.HasImages() && !hasLabSignal(doc.ExtractedText):
		return domain.SkipReasonNoIndicators
	case doc.SizeBytes() > f.maxFileBytes:
		return domain.SkipReasonTooLarge
	default:
		return ""
	}
}

func hasLabSignal(text string) bool {
	if countNumericTokens(text) >= minNumericTokens {
		return true
	}
	lowered := strings.ToLower(text)
	for _, keyword := range labKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func countNumericTokens(text string) int {
	count := 0
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != ','
	})
	for _, field := range fields {
		if hasDigit(field) {
			count++
		}
	}
	return count
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
