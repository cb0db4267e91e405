// Package events publishes session lifecycle events for downstream
// consumers such as progress tracking and notifications.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
)

type EventType string

const (
	SessionStarted   EventType = "session.started"
	ModuleCompleted  EventType = "module.completed"
	SessionCompleted EventType = "session.completed"
)

type Event struct {
	Type        EventType               `json:"type"`
	SessionID   uuid.UUID               `json:"session_id"`
	OwnerID     int64                   `json:"owner_id"`
	Kind        models.SessionKind      `json:"kind"`
	ModuleRunID *uuid.UUID              `json:"module_run_id,omitempty"`
	Reason      models.CompletionReason `json:"reason,omitempty"`
	Scores      map[models.Category]int `json:"scores,omitempty"`
	TotalScore  int                     `json:"total_score"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error { return nil }
