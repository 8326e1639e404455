package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a new unique ID with the given prefix. The result never
// contains a hyphen because hyphens join the ids of a consolidated batch.
func GenerateID(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")

	return prefix + id[:12]
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}
