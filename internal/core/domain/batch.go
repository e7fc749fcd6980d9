package domain

type LimitType string

const (
	LimitNone      LimitType = "none"
	LimitPayload   LimitType = "payload"
	LimitTokens    LimitType = "tokens"
	LimitFileCount LimitType = "file_count"
)

// PayloadEstimate is a derived, never-persisted approximation of the wire
// cost of a document set.
type PayloadEstimate struct {
	TotalBytes      int64
	EstimatedTokens int
	HasImages       bool
	LargestFileName string
	LargestBytes    int64
	ExceedsLimit    bool
	LimitType       LimitType
}

type BatchType string

const (
	BatchTextHeavy  BatchType = "text-heavy"
	BatchImageHeavy BatchType = "image-heavy"
	BatchMixed      BatchType = "mixed"
)

// Batch is one extraction request's worth of documents. Its ceilings hold at
// planning time by construction; Oversized marks the singleton case where one
// document alone exceeds a ceiling and could not be split.
type Batch struct {
	ID        string
	Documents []ProcessedDocument
	Estimate  PayloadEstimate
	Type      BatchType
	Oversized bool

	// Requeued marks a singleton batch produced by splitting a batch the
	// service rejected as too large; such batches are never split again.
	Requeued bool
}

func (b Batch) FileCount() int {
	return len(b.Documents)
}

// BatchLimits are the hard ceilings a planned batch must satisfy.
type BatchLimits struct {
	MaxFiles        int
	MaxPayloadBytes int64
	MaxTokens       int
}
