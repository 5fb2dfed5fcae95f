package utils

import (
	"strings"

	"github.com/google/uuid"
)

// IsUUID checks if the string is a valid UUID
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// TempMessageID generates a local-only ID for an optimistic message. The
// prefix keeps temp IDs distinguishable from durable IDs in logs and lets
// the resend endpoint reject IDs that were never local.
func TempMessageID() string {
	return "local-" + uuid.New().String()
}

// IsTempMessageID reports whether the ID was generated by TempMessageID.
func IsTempMessageID(id string) bool {
	return strings.HasPrefix(id, "local-")
}
