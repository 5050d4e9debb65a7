package catalog

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a short opaque identifier: a random UUID encoded as
// 22 URL-safe base64 characters.
func NewID() string {
	u := uuid.New()
	return base64.RawURLEncoding.EncodeToString(u[:])
}
