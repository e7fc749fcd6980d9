package extraction

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/infrastructure/resilience"
)

func errorTypeForStatus(statusCode int) domain.ErrorType {
	switch {
	case statusCode == http.StatusRequestTimeout:
		return domain.ErrorTimeout
	case statusCode == http.StatusTooManyRequests:
		return domain.ErrorRateLimit
	case statusCode == http.StatusRequestEntityTooLarge:
		return domain.ErrorPayloadTooLarge
	case statusCode == http.StatusGatewayTimeout:
		return domain.ErrorGatewayTimeout
	case statusCode >= 500:
		return domain.ErrorServer
	case statusCode >= 400:
		return domain.ErrorClient
	default:
		return domain.ErrorUnknown
	}
}

// toExtractionError guarantees every transport failure reaches the retry
// path as a classified *domain.ExtractionError.
func toExtractionError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var extErr *domain.ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	errType := domain.ErrorUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		errType = domain.ErrorTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		errType = domain.ErrorTimeout
	}
	return &domain.ExtractionError{Operation: operation, Type: errType, Err: err}
}

// classifyForExecutor drives the transport-level executor: transient wire
// failures may be retried there, while payload rejections and client errors
// go straight to the split-on-failure controller.
func classifyForExecutor(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var extErr *domain.ExtractionError
	if errors.As(err, &extErr) {
		switch extErr.Type {
		case domain.ErrorRateLimit, domain.ErrorServer, domain.ErrorGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
