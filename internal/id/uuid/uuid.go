// Package uuid provides random identifiers for archived document filenames.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
)

// SuffixLength is the number of hex characters kept from a UUIDv4.
const SuffixLength = 8

// Generator creates short random suffixes from UUIDv4 values.
type Generator struct{}

var _ guideline.IDGenerator = Generator{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewSuffix returns the first SuffixLength characters of a random UUID.
func (Generator) NewSuffix() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String()[:SuffixLength], nil
}
