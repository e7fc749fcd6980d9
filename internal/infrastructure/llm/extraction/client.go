package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/infrastructure/resilience"
)

// Client calls the remote extraction service: one round trip per batch in
// the non-retry path. Vision-mode multi-page requests are slow, so the call
// timeout is on the order of minutes.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	CallTimeout time.Duration
	// RequestsPerMinute caps the outbound rate on top of the adaptive
	// inter-batch delay. Zero disables the limiter.
	RequestsPerMinute int
	Executor          *resilience.Executor
}

func New(baseURL, apiKey, model string, options Options) *Client {
	timeout := options.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	var limiter *rate.Limiter
	if options.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(options.RequestsPerMinute)/60.0), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		executor:   options.Executor,
	}
}

func (c *Client) ExtractBatch(ctx context.Context, batch domain.Batch) ([]domain.ExtractionResult, error) {
	if batch.FileCount() == 1 {
		result, err := c.ExtractDocument(ctx, batch.Documents[0])
		if err != nil {
			return nil, err
		}
		return []domain.ExtractionResult{result}, nil
	}

	request := c.buildRequest(buildBatchPrompt(batch.Documents), batch.Documents)
	response, err := c.post(ctx, "extract_batch", request)
	if err != nil {
		return nil, err
	}
	return parseBatchReply(response.fullText(), batch.Documents)
}

func (c *Client) ExtractDocument(ctx context.Context, doc domain.ProcessedDocument) (domain.ExtractionResult, error) {
	docs := []domain.ProcessedDocument{doc}
	request := c.buildRequest(buildSinglePrompt(doc), docs)
	response, err := c.post(ctx, "extract_document", request)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	return parseSingleReply(response.fullText(), doc.Filename)
}

// buildRequest assembles one messages-API call: an instruction text block
// with the delimited document texts, followed by one content block per
// attached image or file.
func (c *Client) buildRequest(prompt string, docs []domain.ProcessedDocument) map[string]any {
	content := []map[string]any{
		{"type": "text", "text": prompt},
	}
	for _, doc := range docs {
		for _, page := range doc.ImagePages {
			content = append(content, contentBlock(doc.MimeType, page))
		}
	}
	return map[string]any{
		"model":      c.model,
		"max_tokens": 8192,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}
}

func contentBlock(mimeType string, payload []byte) map[string]any {
	blockType := "image"
	if mimeType == "application/pdf" {
		blockType = "document"
	}
	return map[string]any{
		"type": blockType,
		"source": map[string]any{
			"type":       "base64",
			"media_type": mimeType,
			"data":       base64.StdEncoding.EncodeToString(payload),
		},
	}
}

// flexString tolerates the service returning numbers where strings are
// expected; the reply JSON is not schema-enforced.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
		*s = flexString(trimmed)
		return nil
	}
	return fmt.Errorf("unsupported scalar: %s", trimmed)
}

type wireBiomarker struct {
	Name  flexString `json:"name"`
	Value flexString `json:"value"`
	Unit  flexString `json:"unit"`
}

type wirePatient struct {
	Name        flexString `json:"name"`
	DateOfBirth flexString `json:"date_of_birth"`
	Gender      flexString `json:"gender"`
	TestDate    flexString `json:"test_date"`
}

type wireResult struct {
	SourceFile flexString       `json:"source_file"`
	Biomarkers *[]wireBiomarker `json:"biomarkers"`
	Patient    *wirePatient     `json:"patient_info"`
	// The model occasionally ignores the snake_case instruction.
	PatientAlt *wirePatient `json:"patientInfo"`
	PanelName  flexString   `json:"panel_name"`
}

type wireBatchResult struct {
	Documents *[]wireResult `json:"documents"`
}

// parseSingleReply handles one document's reply. A reply with no JSON at all
// is evidence the document was not a lab report, so it resolves to a soft
// empty-findings result. A JSON span that fails to parse, or a parsed object
// with no biomarkers array, is a hard error.
func parseSingleReply(text, filename string) (domain.ExtractionResult, error) {
	span, found := extractJSONSpan(text)
	if !found {
		return emptyFindings(filename, "model reply contained no JSON payload"), nil
	}

	var parsed wireResult
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return domain.ExtractionResult{}, parseFailure("extract_document", err)
	}
	return toResult(parsed, filename)
}

func parseBatchReply(text string, docs []domain.ProcessedDocument) ([]domain.ExtractionResult, error) {
	span, found := extractJSONSpan(text)
	if !found {
		results := make([]domain.ExtractionResult, 0, len(docs))
		for _, doc := range docs {
			results = append(results, emptyFindings(doc.Filename, "model reply contained no JSON payload"))
		}
		return results, nil
	}

	var parsed wireBatchResult
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return nil, parseFailure("extract_batch", err)
	}
	if parsed.Documents == nil {
		return nil, parseFailure("extract_batch", errors.New("reply has no documents array"))
	}

	// Map entries back by file name, falling back to reply order.
	byName := make(map[string]wireResult, len(*parsed.Documents))
	for _, entry := range *parsed.Documents {
		byName[string(entry.SourceFile)] = entry
	}

	results := make([]domain.ExtractionResult, 0, len(docs))
	for idx, doc := range docs {
		entry, ok := byName[doc.Filename]
		if !ok {
			if idx < len(*parsed.Documents) {
				entry = (*parsed.Documents)[idx]
			} else {
				results = append(results, emptyFindings(doc.Filename, "model reply omitted this document"))
				continue
			}
		}
		result, err := toResult(entry, doc.Filename)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// toResult validates shape explicitly before use: a present-but-empty
// biomarkers array is a successful "no findings"; a missing array means the
// service rejected the semantic task.
func toResult(parsed wireResult, filename string) (domain.ExtractionResult, error) {
	if parsed.Biomarkers == nil {
		return domain.ExtractionResult{}, parseFailure("extract",
			fmt.Errorf("reply for %s has no biomarkers array", filename))
	}

	result := domain.ExtractionResult{
		SourceFile: filename,
		Biomarkers: make([]domain.Biomarker, 0, len(*parsed.Biomarkers)),
		PanelName:  string(parsed.PanelName),
	}
	for _, marker := range *parsed.Biomarkers {
		if marker.Name == "" {
			continue
		}
		result.Biomarkers = append(result.Biomarkers, domain.Biomarker{
			Name:  string(marker.Name),
			Value: string(marker.Value),
			Unit:  string(marker.Unit),
		})
	}
	patient := parsed.Patient
	if patient == nil {
		patient = parsed.PatientAlt
	}
	if patient != nil {
		result.PatientInfo = domain.PatientInfo{
			Name:        string(patient.Name),
			DateOfBirth: string(patient.DateOfBirth),
			Gender:      string(patient.Gender),
			TestDate:    string(patient.TestDate),
		}
	}
	return result, nil
}

func emptyFindings(filename, diagnostic string) domain.ExtractionResult {
	return domain.ExtractionResult{
		SourceFile: filename,
		Biomarkers: []domain.Biomarker{},
		Diagnostic: diagnostic,
	}
}

func parseFailure(operation string, err error) error {
	return &domain.ExtractionError{
		Operation: operation,
		Type:      domain.ErrorUnknown,
		Err:       fmt.Errorf("invalid extraction payload: %w", err),
	}
}
