package indexer

import (
	"errors"
	"fmt"
)

// Status is the per-document indexing lifecycle state. It lives on the
// document's tree record, not inferred from which records happen to exist.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusParsing   Status = "parsing"
	StatusChunking  Status = "chunking"
	StatusEmbedding Status = "embedding"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned for lifecycle moves outside the state
// machine. It indicates a pipeline logic defect, never a runtime condition.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status]Status{
	StatusQueued:    StatusParsing,
	StatusParsing:   StatusChunking,
	StatusChunking:  StatusEmbedding,
	StatusEmbedding: StatusCompleted,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving to next is legal: each state advances
// to exactly one successor, and any non-terminal state may fail.
func (s Status) CanTransition(next Status) bool {
	if next == StatusFailed {
		return !s.Terminal()
	}
	return transitions[s] == next
}

// lifecycle tracks one document's status through a pipeline run, validating
// every step.
type lifecycle struct {
	status Status
}

func newLifecycle() *lifecycle {
	return &lifecycle{status: StatusQueued}
}

func (l *lifecycle) advance(next Status) error {
	if !l.status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.status, next)
	}
	l.status = next
	return nil
}
