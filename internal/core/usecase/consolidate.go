package usecase

import (
	"strings"
	"time"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// Consolidator merges per-document extraction results of one session into a
// single patient record and a deduplicated biomarker set. Stateless and
// idempotent.
type Consolidator struct{}

func NewConsolidator() *Consolidator {
	return &Consolidator{}
}

func (c *Consolidator) Consolidate(results []domain.ExtractionResult) (domain.ConsolidatedPatientInfo, domain.ConsolidatedBiomarkerSet) {
	return c.mergePatientInfo(results), c.mergeBiomarkers(results)
}

// mergePatientInfo takes the first non-empty value per field; later
// disagreeing values are recorded as discrepancies, never silently applied.
func (c *Consolidator) mergePatientInfo(results []domain.ExtractionResult) domain.ConsolidatedPatientInfo {
	var info domain.ConsolidatedPatientInfo

	for _, result := range results {
		mergeField(&info.Name, "name", result.PatientInfo.Name, result.SourceFile, &info.Discrepancies)
		mergeField(&info.DateOfBirth, "date_of_birth", result.PatientInfo.DateOfBirth, result.SourceFile, &info.Discrepancies)
		mergeField(&info.Gender, "gender", result.PatientInfo.Gender, result.SourceFile, &info.Discrepancies)
		mergeField(&info.TestDate, "test_date", result.PatientInfo.TestDate, result.SourceFile, &info.Discrepancies)
	}
	return info
}

func mergeField(kept *string, field, candidate, sourceFile string, discrepancies *[]domain.FieldDiscrepancy) {
	candidate = strings.TrimSpace(candidate)
	if isPlaceholder(candidate) {
		return
	}
	if *kept == "" {
		*kept = candidate
		return
	}
	if !strings.EqualFold(*kept, candidate) {
		*discrepancies = append(*discrepancies, domain.FieldDiscrepancy{
			Field:      field,
			Kept:       *kept,
			Alternate:  candidate,
			SourceFile: sourceFile,
		})
	}
}

// mergeBiomarkers groups by normalized name. Duplicates resolve to the value
// with the most recent parseable test date; a non-empty value is never
// displaced by a placeholder.
func (c *Consolidator) mergeBiomarkers(results []domain.ExtractionResult) domain.ConsolidatedBiomarkerSet {
	set := make(domain.ConsolidatedBiomarkerSet)

	for _, result := range results {
		testDate := result.PatientInfo.TestDate
		for _, marker := range result.Biomarkers {
			key := normalizeBiomarkerName(marker.Name)
			if key == "" || isPlaceholder(marker.Value) {
				continue
			}

			candidate := domain.ConsolidatedBiomarker{
				Name:       strings.TrimSpace(marker.Name),
				Value:      strings.TrimSpace(marker.Value),
				Unit:       strings.TrimSpace(marker.Unit),
				TestDate:   testDate,
				SourceFile: result.SourceFile,
			}

			existing, ok := set[key]
			if !ok || laterTestDate(candidate.TestDate, existing.TestDate) {
				set[key] = candidate
			}
		}
	}
	return set
}

func normalizeBiomarkerName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(lowered), " ")
}

var placeholderValues = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "n/a": {}, "na": {}, "none": {},
	"null": {}, "nil": {}, "unknown": {}, "not detected": {},
}

func isPlaceholder(value string) bool {
	_, ok := placeholderValues[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

var testDateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	"2 January 2006",
	"January 2, 2006",
	time.RFC3339,
}

func parseTestDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range testDateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// laterTestDate reports whether candidate is strictly more recent than
// current. Unparseable candidates never win; ties keep the current value.
func laterTestDate(candidate, current string) bool {
	candidateTS, ok := parseTestDate(candidate)
	if !ok {
		return false
	}
	currentTS, ok := parseTestDate(current)
	if !ok {
		return true
	}
	return candidateTS.After(currentTS)
}
