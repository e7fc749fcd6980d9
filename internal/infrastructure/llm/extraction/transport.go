package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/labflow/internal/core/domain"
)

const (
	apiVersionHeader = "anthropic-version"
	apiVersion       = "2023-06-01"

	// Replies are prose plus one JSON payload; anything beyond this bound
	// is a malfunction, not data.
	maxResponseBytes = 20 << 20
)

// wireResponse is the reassembled messages-API reply. The content may arrive
// chunked; ReadAll below accumulates it fully before any parsing happens.
type wireResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// fullText concatenates every text content block into the complete reply.
func (r *wireResponse) fullText() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (c *Client) post(ctx context.Context, operation string, payload any) (*wireResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}

	var response wireResponse
	call := func(callCtx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(callCtx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set(apiVersionHeader, apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return statusError(operation, resp)
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("read %s response: %w", operation, err)
		}
		if err := json.Unmarshal(raw, &response); err != nil {
			return fmt.Errorf("decode %s envelope: %w", operation, err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "extraction."+operation, call, classifyForExecutor)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, toExtractionError(operation, err)
	}
	return &response, nil
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &domain.ExtractionError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Type:       errorTypeForStatus(resp.StatusCode),
		Err:        fmt.Errorf("extraction service status %d: %s", resp.StatusCode, msg),
	}
}
