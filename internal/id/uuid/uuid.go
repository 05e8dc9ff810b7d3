// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewShortID returns a compact token suitable for filenames: the last
// dash-free 12 hex characters of a UUID7.
func (g Generator) NewShortID() (string, error) {
	id, err := g.NewID()
	if err != nil {
		return "", err
	}
	compact := strings.ReplaceAll(id, "-", "")
	return compact[len(compact)-12:], nil
}
