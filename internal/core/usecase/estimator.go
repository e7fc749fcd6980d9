package usecase

import (
	"github.com/kirillkom/labflow/internal/core/domain"
)

const (
	// Rough character-per-token ratio of the extraction model's tokenizer.
	charsPerToken = 4

	// Images carry a fixed vision preamble plus a cost that grows with
	// resolution, approximated per kilobyte of encoded payload.
	imageBaseTokens  = 800
	imageTokensPerKB = 3

	// Wrapping metadata (filename labels, delimiters, JSON envelope) added
	// per document in the combined request.
	perDocOverheadBytes  = 256
	perDocOverheadTokens = 48
)

// PayloadEstimator approximates the serialized size and token cost of a
// document set without any network I/O. Safe to call repeatedly during
// planning; never mutates its input.
type PayloadEstimator struct {
	limits domain.BatchLimits
}

func NewPayloadEstimator(limits domain.BatchLimits) *PayloadEstimator {
	return &PayloadEstimator{limits: limits}
}

func (e *PayloadEstimator) Estimate(docs []domain.ProcessedDocument) domain.PayloadEstimate {
	estimate := domain.PayloadEstimate{LimitType: domain.LimitNone}

	for _, doc := range docs {
		size := doc.SizeBytes() + perDocOverheadBytes
		estimate.TotalBytes += size
		estimate.EstimatedTokens += e.EstimateDocumentTokens(doc)
		if doc.HasImages() {
			estimate.HasImages = true
		}
		if size > estimate.LargestBytes {
			estimate.LargestBytes = size
			estimate.LargestFileName = doc.Filename
		}
	}

	switch {
	case e.limits.MaxFiles > 0 && len(docs) > e.limits.MaxFiles:
		estimate.ExceedsLimit = true
		estimate.LimitType = domain.LimitFileCount
	case e.limits.MaxPayloadBytes > 0 && estimate.TotalBytes > e.limits.MaxPayloadBytes:
		estimate.ExceedsLimit = true
		estimate.LimitType = domain.LimitPayload
	case e.limits.MaxTokens > 0 && estimate.EstimatedTokens > e.limits.MaxTokens:
		estimate.ExceedsLimit = true
		estimate.LimitType = domain.LimitTokens
	}
	return estimate
}

// EstimateDocumentTokens is the per-document token cost used by both the
// set estimate and the planner's weighted accumulation.
func (e *PayloadEstimator) EstimateDocumentTokens(doc domain.ProcessedDocument) int {
	tokens := perDocOverheadTokens
	if doc.ExtractedText != "" {
		tokens += (len(doc.ExtractedText) + charsPerToken - 1) / charsPerToken
	}
	for _, page := range doc.ImagePages {
		tokens += imageBaseTokens + imageTokensPerKB*(len(page)/1024)
	}
	return tokens
}
