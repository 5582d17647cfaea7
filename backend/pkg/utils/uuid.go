package utils

import "github.com/google/uuid"

// NewUUID returns a time-ordered (v7) UUID string. It panics if the random source fails.
func NewUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("failed to generate UUID: " + err.Error())
	}

	return id.String()
}
