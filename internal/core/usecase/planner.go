package usecase

import (
	"github.com/google/uuid"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// Image documents pack more densely than their raw byte/token estimate
// implies, so they accumulate at a discount during packing. The true
// estimate is still checked against the hard ceilings before a batch is
// accepted.
const imagePackingWeight = 0.75

// BatchPlanner partitions filtered documents into batches obeying the
// file-count, byte and token ceilings using a greedy weighted pass in input
// order. Every document lands in exactly one batch; no batch is empty.
type BatchPlanner struct {
	limits    domain.BatchLimits
	estimator *PayloadEstimator
}

func NewBatchPlanner(limits domain.BatchLimits, estimator *PayloadEstimator) *BatchPlanner {
	return &BatchPlanner{limits: limits, estimator: estimator}
}

func (p *BatchPlanner) Plan(docs []domain.ProcessedDocument) []domain.Batch {
	if len(docs) == 0 {
		return nil
	}

	var batches []domain.Batch
	var current []domain.ProcessedDocument
	var weightedBytes, weightedTokens float64

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, p.seal(current))
		current = nil
		weightedBytes = 0
		weightedTokens = 0
	}

	for _, doc := range docs {
		single := p.estimator.Estimate([]domain.ProcessedDocument{doc})
		if single.ExceedsLimit {
			// A document that alone exceeds a ceiling is never split: it
			// forms its own flagged singleton batch.
			flush()
			oversized := p.seal([]domain.ProcessedDocument{doc})
			oversized.Oversized = true
			batches = append(batches, oversized)
			continue
		}

		weight := 1.0
		if doc.HasImages() {
			weight = imagePackingWeight
		}
		docBytes := weight * float64(single.TotalBytes)
		docTokens := weight * float64(single.EstimatedTokens)

		if len(current) > 0 && !p.fits(len(current)+1, weightedBytes+docBytes, weightedTokens+docTokens) {
			flush()
		}
		if len(current) > 0 {
			// Weighted accumulation decides the tentative fit; the true
			// estimate has the final say so no ceiling is ever exceeded.
			trueEstimate := p.estimator.Estimate(append(append([]domain.ProcessedDocument{}, current...), doc))
			if trueEstimate.ExceedsLimit {
				flush()
			}
		}

		current = append(current, doc)
		weightedBytes += docBytes
		weightedTokens += docTokens
	}
	flush()

	return batches
}

func (p *BatchPlanner) fits(fileCount int, bytes, tokens float64) bool {
	if p.limits.MaxFiles > 0 && fileCount > p.limits.MaxFiles {
		return false
	}
	if p.limits.MaxPayloadBytes > 0 && bytes > float64(p.limits.MaxPayloadBytes) {
		return false
	}
	if p.limits.MaxTokens > 0 && tokens > float64(p.limits.MaxTokens) {
		return false
	}
	return true
}

func (p *BatchPlanner) seal(docs []domain.ProcessedDocument) domain.Batch {
	return domain.Batch{
		ID:        uuid.NewString(),
		Documents: docs,
		Estimate:  p.estimator.Estimate(docs),
		Type:      classifyBatch(docs),
	}
}

// classifyBatch derives the batch type from the text/image document ratio;
// mixed when neither kind reaches three quarters of the batch.
func classifyBatch(docs []domain.ProcessedDocument) domain.BatchType {
	if len(docs) == 0 {
		return domain.BatchMixed
	}
	images := 0
	for _, doc := range docs {
		if doc.HasImages() {
			images++
		}
	}
	texts := len(docs) - images
	switch {
	case texts*4 >= len(docs)*3:
		return domain.BatchTextHeavy
	case images*4 >= len(docs)*3:
		return domain.BatchImageHeavy
	default:
		return domain.BatchMixed
	}
}
