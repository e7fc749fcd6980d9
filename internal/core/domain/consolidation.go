package domain

import "time"

// FieldDiscrepancy flags a patient-info field two documents disagreed on.
// The first non-empty value wins; the alternate is kept for review.
type FieldDiscrepancy struct {
	Field      string `json:"field"`
	Kept       string `json:"kept"`
	Alternate  string `json:"alternate"`
	SourceFile string `json:"source_file,omitempty"`
}

type ConsolidatedPatientInfo struct {
	Name          string             `json:"name,omitempty"`
	DateOfBirth   string             `json:"date_of_birth,omitempty"`
	Gender        string             `json:"gender,omitempty"`
	TestDate      string             `json:"test_date,omitempty"`
	Discrepancies []FieldDiscrepancy `json:"discrepancies,omitempty"`
}

// ConsolidatedBiomarker is the winning observation for one normalized
// biomarker name across all documents of a session.
type ConsolidatedBiomarker struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Unit       string `json:"unit,omitempty"`
	TestDate   string `json:"test_date,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
}

// ConsolidatedBiomarkerSet maps normalized biomarker name to its winning
// observation. At most one entry per normalized name.
type ConsolidatedBiomarkerSet map[string]ConsolidatedBiomarker

// ClientRecord is one registry entry the matcher scores against.
type ClientRecord struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// ClientMatchCandidate is a ranked, never auto-selected registry match.
type ClientMatchCandidate struct {
	ClientID   string         `json:"client_id"`
	ClientName string         `json:"client_name"`
	Score      float64        `json:"score"`
	Tier       ConfidenceTier `json:"tier"`
	DOBMatched bool           `json:"dob_matched"`
}

// SessionReport is the persisted proposal handed to the confirmation step.
type SessionReport struct {
	SessionID         string                  `json:"session_id"`
	PatientInfo       ConsolidatedPatientInfo `json:"patient_info"`
	Biomarkers        []ConsolidatedBiomarker `json:"biomarkers"`
	Candidates        []ClientMatchCandidate  `json:"candidates,omitempty"`
	FailedFiles       []FailedFile            `json:"failed_files,omitempty"`
	SkippedFiles      []SkippedDocument       `json:"skipped_files,omitempty"`
	ConfirmedClientID string                  `json:"confirmed_client_id,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}
