// Package jobctl is the job-control side of a run: Init when the job starts,
// Commit when its output is stored. There is no abort call; a run that never
// commits has failed.
package jobctl

import (
	"context"

	"github.com/google/uuid"
)

// Controller tracks run lifecycle.
type Controller interface {
	// Init registers a run and returns its id.
	Init(ctx context.Context, jobName string, params map[string]string) (string, error)
	// Commit marks the run as successfully finished.
	Commit(ctx context.Context, runID string) error
}

// Nop hands out run ids and records nothing.
type Nop struct{}

func (Nop) Init(context.Context, string, map[string]string) (string, error) {
	return NewRunID(), nil
}

func (Nop) Commit(context.Context, string) error { return nil }

// NewRunID returns a random run id.
func NewRunID() string {
	return uuid.NewString()
}
