package models

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7 string so records sort by creation.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
