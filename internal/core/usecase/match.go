package usecase

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kirillkom/labflow/internal/core/domain"
)

const (
	tierHighThreshold   = 0.85
	tierMediumThreshold = 0.6

	dobMatchBonus      = 0.15
	dobMismatchPenalty = 0.25

	// Candidates scoring below this floor are noise and not returned.
	minCandidateScore = 0.4
)

// ClientMatcher scores consolidated patient info against the client registry
// using normalized edit-distance similarity plus an exact date-of-birth
// bonus/penalty. It ranks; it never auto-selects.
type ClientMatcher struct{}

func NewClientMatcher() *ClientMatcher {
	return &ClientMatcher{}
}

func (m *ClientMatcher) Match(info domain.ConsolidatedPatientInfo, registry []domain.ClientRecord) []domain.ClientMatchCandidate {
	name := normalizeName(info.Name)
	if name == "" {
		return nil
	}
	dob := normalizeDate(info.DateOfBirth)

	var candidates []domain.ClientMatchCandidate
	for _, client := range registry {
		clientName := normalizeName(client.FullName)
		if clientName == "" {
			continue
		}

		score := nameSimilarity(name, clientName)
		dobMatched := false
		clientDOB := normalizeDate(client.DateOfBirth)
		if dob != "" && clientDOB != "" {
			if dob == clientDOB {
				dobMatched = true
				score += dobMatchBonus
			} else {
				score -= dobMismatchPenalty
			}
		}
		score = clamp01(score)
		if score < minCandidateScore {
			continue
		}

		candidates = append(candidates, domain.ClientMatchCandidate{
			ClientID:   client.ID,
			ClientName: client.FullName,
			Score:      score,
			Tier:       tierFor(score),
			DOBMatched: dobMatched,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ClientName < candidates[j].ClientName
	})
	return candidates
}

// nameSimilarity is 1 - normalized edit distance, taken over both the raw
// normalized names and their sorted tokens so "Doe Jane" still matches
// "Jane Doe".
func nameSimilarity(a, b string) float64 {
	direct := levenshteinSimilarity(a, b)
	sorted := levenshteinSimilarity(sortTokens(a), sortTokens(b))
	if sorted > direct {
		return sorted
	}
	return direct
}

func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}

func sortTokens(name string) string {
	tokens := strings.Fields(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func normalizeName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	lowered = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '\'', '"':
			return -1
		default:
			return r
		}
	}, lowered)
	return strings.Join(strings.Fields(lowered), " ")
}

func normalizeDate(value string) string {
	ts, ok := parseTestDate(value)
	if !ok {
		return ""
	}
	return ts.Format("2006-01-02")
}

func tierFor(score float64) domain.ConfidenceTier {
	switch {
	case score >= tierHighThreshold:
		return domain.TierHigh
	case score >= tierMediumThreshold:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
