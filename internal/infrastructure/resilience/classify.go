package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// ErrorClassification tells the executor whether to try again and whether
// the failure counts against the breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	neutral   = ErrorClassification{}
	transient = ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = ErrorClassification{RecordFailure: true}
)

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// TransportClassifier treats cancellation as neutral, an open breaker and
// network errors as retryable, and everything else as a permanent failure.
func TransportClassifier(err error) ErrorClassification {
	var netErr net.Error
	switch {
	case err == nil:
		return neutral
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return neutral
	case IsCircuitOpen(err), errors.As(err, &netErr):
		return transient
	default:
		return permanent
	}
}

// StatusClassification maps an upstream HTTP status: overload and server
// errors are retried, other statuses are the caller's fault and do not
// trip the breaker.
func StatusClassification(code int) ErrorClassification {
	if RetryableHTTPStatus(code) {
		return transient
	}
	return neutral
}

func RetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError && code != http.StatusNotImplemented
}

// WrapTemporary marks err as domain.ErrTemporary when classifier would
// retry it, so callers above the adapter can tell an outage from a bad
// request.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = TransportClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func defaultClassifier(error) ErrorClassification {
	return permanent
}
