package domain

import (
	"context"
	"errors"
	"fmt"
)

// ExtractionError is the typed failure of one extraction call. The transport
// layer fills StatusCode and Type so the retry path can classify without
// depending on wire details.
type ExtractionError struct {
	Operation  string
	StatusCode int
	Type       ErrorType
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Operation, e.Type)
	}
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Type, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ClassifyError maps any error from the extraction boundary onto the
// error-type taxonomy used in FailedFile records.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) && extErr.Type != "" {
		return extErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	if errors.Is(err, ErrPayloadTooLarge) {
		return ErrorPayloadTooLarge
	}
	return ErrorUnknown
}

// StatusCodeOf returns the HTTP status carried by an extraction error, or 0.
func StatusCodeOf(err error) int {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.StatusCode
	}
	return 0
}
