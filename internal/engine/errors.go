package engine

import (
	"errors"
	"fmt"

	"github.com/examprep/backend/internal/allocation"
	"github.com/examprep/backend/internal/models"
)

var (
	// ErrInvalidModuleConfig marks a blueprint whose quotas do not add up.
	// It is surfaced to the test administrator and never retried.
	ErrInvalidModuleConfig = allocation.ErrInvalidModuleConfig
	// ErrAllocationExhausted means no unused question matched the module.
	ErrAllocationExhausted = allocation.ErrAllocationExhausted

	ErrStaleTransition = errors.New("stale transition")
	ErrTransientStore  = errors.New("transient store error")

	ErrSessionNotFound      = errors.New("session not found")
	ErrModuleNotFound       = errors.New("module run not found")
	ErrForbidden            = errors.New("session belongs to another user")
	ErrInvalidChoice        = errors.New("selected choice must be between 1 and 4")
	ErrQuestionNotAllocated = errors.New("question is not part of this module")
	ErrUnknownTopic         = errors.New("unknown topic")
	ErrInvalidRequest       = errors.New("invalid session request")
)

// StaleTransitionError rejects a transition that no longer applies. State
// is the authoritative snapshot the client should resync to.
type StaleTransitionError struct {
	Op     string
	Reason string
	State  *models.SessionState
}

func (e *StaleTransitionError) Error() string {
	return fmt.Sprintf("%s: stale transition: %s", e.Op, e.Reason)
}

func (e *StaleTransitionError) Is(target error) bool { return target == ErrStaleTransition }

// TransientStoreError reports a store failure that outlived its retries.
// The writes of the failed step were rolled back together. In a transition
// that spans several steps, earlier steps may already be committed; each of
// them leaves a state the same call can resume from.
type TransientStoreError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: transient store error after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

func (e *TransientStoreError) Is(target error) bool { return target == ErrTransientStore }
