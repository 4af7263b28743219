package redis

import (
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

func classifyRedisError(err error) resilience.ErrorClassification {
	if errors.Is(err, goredis.Nil) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.TransportClassifier(err)
}
