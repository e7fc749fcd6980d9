package usecase

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kirillkom/labflow/internal/core/domain"
)

func TestFilterVerdicts(t *testing.T) {
	filter := NewDocumentFilter(1024)

	tests := []struct {
		name       string
		doc        domain.ProcessedDocument
		wantReason string
	}{
		{
			name:       "short text without images is empty",
			doc:        domain.ProcessedDocument{Filename: "note.txt", ExtractedText: "hello"},
			wantReason: domain.SkipReasonEmpty,
		},
		{
			name: "long prose without lab signal",
			doc: domain.ProcessedDocument{
				Filename:      "letter.txt",
				ExtractedText: strings.Repeat("dear patient thank you for visiting our clinic ", 5),
			},
			wantReason: domain.SkipReasonNoIndicators,
		},
		{
			name: "numeric tokens count as lab signal",
			doc: domain.ProcessedDocument{
				Filename:      "table.txt",
				ExtractedText: "result one 5.2 result two 3.1 result three 140 with some padding text here",
			},
			wantReason: "",
		},
		{
			name: "keyword counts as lab signal",
			doc: domain.ProcessedDocument{
				Filename:      "report.txt",
				ExtractedText: "The cholesterol panel was performed at the central laboratory today.",
			},
			wantReason: "",
		},
		{
			name: "russian keyword counts as lab signal",
			doc: domain.ProcessedDocument{
				Filename:      "analiz.txt",
				ExtractedText: "Общий анализ крови выполнен в лаборатории, подробности смотрите ниже.",
			},
			wantReason: "",
		},
		{
			name: "image document bypasses text checks",
			doc: domain.ProcessedDocument{
				Filename:   "scan.pdf",
				ImagePages: [][]byte{[]byte("img")},
			},
			wantReason: "",
		},
		{
			name: "oversized document",
			doc: domain.ProcessedDocument{
				Filename:   "huge.pdf",
				ImagePages: [][]byte{bytes.Repeat([]byte("x"), 2048)},
			},
			wantReason: domain.SkipReasonTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processable, skipped := filter.Filter([]domain.ProcessedDocument{tt.doc})

			if tt.wantReason == "" {
				if len(processable) != 1 || len(skipped) != 0 {
					t.Fatalf("expected processable, got processable=%d skipped=%v", len(processable), skipped)
				}
				return
			}
			if len(skipped) != 1 {
				t.Fatalf("expected one skip, got processable=%d skipped=%d", len(processable), len(skipped))
			}
			if skipped[0].Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", skipped[0].Reason, tt.wantReason)
			}
			if skipped[0].Filename != tt.doc.Filename {
				t.Errorf("filename = %q, want %q", skipped[0].Filename, tt.doc.Filename)
			}
		})
	}
}

func TestFilterEveryDocumentGetsOneVerdict(t *testing.T) {
	filter := NewDocumentFilter(0)
	docs := []domain.ProcessedDocument{
		{Filename: "a.txt", ExtractedText: "x"},
		{Filename: "b.txt", ExtractedText: "glucose 5.5 mmol/l reference range 3.9-6.1 measured fasting morning"},
		{Filename: "c.pdf", ImagePages: [][]byte{[]byte("page")}},
	}

	processable, skipped := filter.Filter(docs)
	if len(processable)+len(skipped) != len(docs) {
		t.Fatalf("partition lost documents: processable=%d skipped=%d input=%d",
			len(processable), len(skipped), len(docs))
	}
}
