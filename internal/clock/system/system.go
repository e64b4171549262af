// Package system provides the wall clock used to stamp pipeline runs.
package system

import (
	"time"

	"github.com/JakeFAU/guideline-archiver/internal/guideline"
)

// Clock implements guideline.Clock using time.Now.
type Clock struct{}

var _ guideline.Clock = Clock{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
