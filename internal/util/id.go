package util

import (
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const shortIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a random UUID string, used for records and request ids.
func NewID() string {
	return uuid.NewString()
}

// NewShortID returns a 16 character lowercase id that is safe in object keys
// and file names.
func NewShortID() string {
	id, err := gonanoid.Generate(shortIDAlphabet, 16)
	if err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	return id
}
