package utils

import "github.com/google/uuid"

// NewOriginID returns a fresh client-generated id for an outgoing message.
func NewOriginID() string {
	return uuid.NewString()
}
