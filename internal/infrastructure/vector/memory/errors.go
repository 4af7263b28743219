package memory

import (
	"fmt"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func scopeMismatch(c domain.Chunk, scopeID string) error {
	return fmt.Errorf("chunk %s has scope %q, expected %q", c.ID, c.Scope, scopeID)
}
