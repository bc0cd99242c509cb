package indexer

import (
	"errors"
	"testing"
)

// TestLifecycle_HappyPath walks the full chain of valid transitions.
func TestLifecycle_HappyPath(t *testing.T) {
	lc := newLifecycle()
	for _, next := range []Status{StatusParsing, StatusChunking, StatusEmbedding, StatusCompleted} {
		if err := lc.advance(next); err != nil {
			t.Fatalf("advance to %s failed: %v", next, err)
		}
	}
	if !lc.status.Terminal() {
		t.Error("completed should be terminal")
	}
}

// TestLifecycle_InvalidJump rejects skipping a stage.
func TestLifecycle_InvalidJump(t *testing.T) {
	lc := newLifecycle()
	err := lc.advance(StatusEmbedding)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if lc.status != StatusQueued {
		t.Errorf("Status should be unchanged after rejected transition, got %s", lc.status)
	}
}

// TestLifecycle_FailedFromAnyNonTerminal verifies the failure edge.
func TestLifecycle_FailedFromAnyNonTerminal(t *testing.T) {
	for _, from := range []Status{StatusQueued, StatusParsing, StatusChunking, StatusEmbedding} {
		if !from.CanTransition(StatusFailed) {
			t.Errorf("%s should be able to fail", from)
		}
	}
	if StatusCompleted.CanTransition(StatusFailed) {
		t.Error("completed must not transition to failed")
	}
	if StatusFailed.CanTransition(StatusFailed) {
		t.Error("failed must not transition again")
	}
}

// TestLifecycle_NoResurrection verifies terminal states are final.
func TestLifecycle_NoResurrection(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusFailed} {
		for _, next := range []Status{StatusQueued, StatusParsing, StatusChunking, StatusEmbedding, StatusCompleted} {
			if from.CanTransition(next) {
				t.Errorf("%s -> %s should be rejected", from, next)
			}
		}
	}
}
