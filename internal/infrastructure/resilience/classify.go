package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

// classifyCommon handles the cases every transport agrees on. ok is false when the caller must decide.
func classifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	case domain.IsKind(err, domain.ErrQuotaExceeded), domain.IsKind(err, domain.ErrConfiguration):
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	}
	return ErrorClassification{}, false
}

// ClassifyTransient builds a classifier for transports whose retryable failures are recognized by
// isTransient, e.g. broker disconnects. Everything else counts against the breaker without retry.
func ClassifyTransient(isTransient func(error) bool) ErrorClassifier {
	return func(err error) ErrorClassification {
		if class, ok := classifyCommon(err); ok {
			return class
		}
		if isTransient != nil && isTransient(err) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// WrapTemporary tags err with ErrTemporary when classifier considers it retryable.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = ClassifyHTTP
	}
	if classifier(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
