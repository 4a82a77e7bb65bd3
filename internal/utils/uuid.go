package utils

import "github.com/google/uuid"

// IsUUID reports whether s parses as a UUID. Client-supplied ids (message
// idempotency keys, path params) are validated with it before hitting the
// store.
func IsUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
