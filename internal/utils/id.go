package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a 12-character lowercase hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
