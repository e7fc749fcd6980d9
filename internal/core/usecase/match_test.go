package usecase

import (
	"testing"

	"github.com/kirillkom/labflow/internal/core/domain"
)

func testRegistry() []domain.ClientRecord {
	return []domain.ClientRecord{
		{ID: "c1", FullName: "Jane Doe", DateOfBirth: "1985-04-12"},
		{ID: "c2", FullName: "Jane Dow", DateOfBirth: "1990-01-01"},
		{ID: "c3", FullName: "Peter Hoffmann", DateOfBirth: "1972-11-03"},
	}
}

func TestMatchExactNameAndDOBIsTopHighCandidate(t *testing.T) {
	matcher := NewClientMatcher()

	candidates := matcher.Match(domain.ConsolidatedPatientInfo{
		Name:        "Jane Doe",
		DateOfBirth: "12.04.1985",
	}, testRegistry())

	if len(candidates) == 0 {
		t.Fatal("no candidates returned")
	}
	top := candidates[0]
	if top.ClientID != "c1" {
		t.Fatalf("top candidate = %s, want c1", top.ClientID)
	}
	if top.Tier != domain.TierHigh {
		t.Errorf("tier = %q, want high", top.Tier)
	}
	if !top.DOBMatched {
		t.Error("DOBMatched = false for exact date match")
	}
	if top.Score != 1.0 {
		t.Errorf("score = %v, want clamped 1.0", top.Score)
	}
}

func TestMatchTokenOrderInsensitive(t *testing.T) {
	matcher := NewClientMatcher()

	candidates := matcher.Match(domain.ConsolidatedPatientInfo{Name: "Doe, Jane"}, testRegistry())

	if len(candidates) == 0 {
		t.Fatal("no candidates returned")
	}
	if candidates[0].ClientID != "c1" {
		t.Errorf("top candidate = %s, want c1 despite reversed token order", candidates[0].ClientID)
	}
	if candidates[0].Score < tierHighThreshold {
		t.Errorf("score = %v, sorted-token comparison should yield a high match", candidates[0].Score)
	}
}

func TestMatchDOBMismatchPenalty(t *testing.T) {
	matcher := NewClientMatcher()

	withDOB := matcher.Match(domain.ConsolidatedPatientInfo{
		Name:        "Jane Doe",
		DateOfBirth: "1999-09-09",
	}, []domain.ClientRecord{{ID: "c1", FullName: "Jane Doe", DateOfBirth: "1985-04-12"}})
	without := matcher.Match(domain.ConsolidatedPatientInfo{
		Name: "Jane Doe",
	}, []domain.ClientRecord{{ID: "c1", FullName: "Jane Doe", DateOfBirth: "1985-04-12"}})

	if len(withDOB) != 1 || len(without) != 1 {
		t.Fatalf("candidates = %d/%d, want 1/1", len(withDOB), len(without))
	}
	if withDOB[0].Score >= without[0].Score {
		t.Errorf("mismatched DOB score %v not below neutral score %v", withDOB[0].Score, without[0].Score)
	}
	if withDOB[0].DOBMatched {
		t.Error("DOBMatched = true on mismatch")
	}
}

func TestMatchEmptyNameReturnsNothing(t *testing.T) {
	matcher := NewClientMatcher()
	if candidates := matcher.Match(domain.ConsolidatedPatientInfo{}, testRegistry()); candidates != nil {
		t.Errorf("expected nil for empty patient name, got %v", candidates)
	}
}

func TestMatchDropsNoiseCandidates(t *testing.T) {
	matcher := NewClientMatcher()

	candidates := matcher.Match(domain.ConsolidatedPatientInfo{Name: "Jane Doe"}, []domain.ClientRecord{
		{ID: "far", FullName: "Aleksandr Zyuganov-Petrovsky"},
	})
	for _, candidate := range candidates {
		if candidate.Score < minCandidateScore {
			t.Errorf("candidate below floor returned: %+v", candidate)
		}
	}
}

func TestMatchRankingIsDeterministic(t *testing.T) {
	matcher := NewClientMatcher()
	registry := []domain.ClientRecord{
		{ID: "b", FullName: "Jane Doe"},
		{ID: "a", FullName: "Jane Doe"},
	}

	candidates := matcher.Match(domain.ConsolidatedPatientInfo{Name: "Jane Doe"}, registry)
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	// Equal scores and names keep input order under stable sort.
	if candidates[0].ClientID != "b" || candidates[1].ClientID != "a" {
		t.Errorf("order = %s,%s; stable sort must preserve input order on ties",
			candidates[0].ClientID, candidates[1].ClientID)
	}
}
