package ollama

import (
	"errors"
	"fmt"

	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

// StatusError is a non-2xx answer from Ollama.
type StatusError struct {
	Operation string
	Code      int
	Status    string
	Body      string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama %s: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s: %s: %s", e.Operation, e.Status, e.Body)
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.StatusClassification(statusErr.Code)
	}
	return resilience.TransportClassifier(err)
}
