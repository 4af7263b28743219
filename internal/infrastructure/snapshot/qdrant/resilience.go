package qdrant

import (
	"errors"
	"fmt"

	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

type statusError struct {
	Code   int
	Status string
	Body   string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant status: %s", e.Status)
	}
	return fmt.Sprintf("qdrant status: %s: %s", e.Status, e.Body)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return resilience.StatusClassification(statusErr.Code)
	}
	return resilience.TransportClassifier(err)
}
