// Package events defines the domain events published after a workflow changes.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow event.
const Topic = "flowguard.workflows"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowCreatedEvent   EventType = "workflow.created"
	WorkflowUpdatedEvent   EventType = "workflow.updated"
	WorkflowDeletedEvent   EventType = "workflow.deleted"
	WorkflowPatchedEvent   EventType = "workflow.patched"
	WorkflowAutofixedEvent EventType = "workflow.autofixed"
)

var (
	ErrMissingEventID    = errors.New("id is required")
	ErrMissingWorkflowID = errors.New("workflow_id is required")
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// Validate checks the fields every event needs.
func (e BaseEvent) Validate() error {
	if e.ID == "" {
		return ErrMissingEventID
	}

	if e.WorkflowID == "" {
		return ErrMissingWorkflowID
	}

	return nil
}

type WorkflowCreated struct {
	BaseEvent

	Name string `json:"name"`
}

func (e WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

func NewWorkflowCreated(workflowID, name string) *WorkflowCreated {
	return &WorkflowCreated{
		BaseEvent: NewBaseEvent(WorkflowCreatedEvent, workflowID),
		Name:      name,
	}
}

type WorkflowUpdated struct {
	BaseEvent

	Name string `json:"name"`
}

func (e WorkflowUpdated) GetType() EventType {
	return WorkflowUpdatedEvent
}

func NewWorkflowUpdated(workflowID, name string) *WorkflowUpdated {
	return &WorkflowUpdated{
		BaseEvent: NewBaseEvent(WorkflowUpdatedEvent, workflowID),
		Name:      name,
	}
}

type WorkflowDeleted struct {
	BaseEvent
}

func (e WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

func NewWorkflowDeleted(workflowID string) *WorkflowDeleted {
	return &WorkflowDeleted{BaseEvent: NewBaseEvent(WorkflowDeletedEvent, workflowID)}
}

// WorkflowPatched is published after a patch batch was committed.
type WorkflowPatched struct {
	BaseEvent

	Applied    int      `json:"applied"`
	Skipped    int      `json:"skipped"`
	Operations []string `json:"operations"` // Operation types, in application order
	Valid      bool     `json:"valid"`      // Whether the committed workflow has no error findings
}

func (e WorkflowPatched) GetType() EventType {
	return WorkflowPatchedEvent
}

func NewWorkflowPatched(workflowID string, applied, skipped int, operations []string, valid bool) *WorkflowPatched {
	return &WorkflowPatched{
		BaseEvent:  NewBaseEvent(WorkflowPatchedEvent, workflowID),
		Applied:    applied,
		Skipped:    skipped,
		Operations: operations,
		Valid:      valid,
	}
}

// WorkflowAutofixed is published after autofix committed at least one fix.
type WorkflowAutofixed struct {
	BaseEvent

	FixTypes  []string `json:"fix_types"` // One entry per applied fix
	Proposed  int      `json:"proposed"`
	Failed    int      `json:"failed"`
	Threshold string   `json:"threshold"`
	Valid     bool     `json:"valid"`
}

func (e WorkflowAutofixed) GetType() EventType {
	return WorkflowAutofixedEvent
}

func NewWorkflowAutofixed(workflowID string, fixTypes []string, proposed, failed int, threshold string, valid bool) *WorkflowAutofixed {
	return &WorkflowAutofixed{
		BaseEvent: NewBaseEvent(WorkflowAutofixedEvent, workflowID),
		FixTypes:  fixTypes,
		Proposed:  proposed,
		Failed:    failed,
		Threshold: threshold,
		Valid:     valid,
	}
}

// New returns an empty event of the given type for decoding, or nil for unknown types.
func New(eventType EventType) any {
	switch eventType {
	case WorkflowCreatedEvent:
		return &WorkflowCreated{}
	case WorkflowUpdatedEvent:
		return &WorkflowUpdated{}
	case WorkflowDeletedEvent:
		return &WorkflowDeleted{}
	case WorkflowPatchedEvent:
		return &WorkflowPatched{}
	case WorkflowAutofixedEvent:
		return &WorkflowAutofixed{}
	default:
		return nil
	}
}
