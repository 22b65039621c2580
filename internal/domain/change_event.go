package domain

import "time"

// EntityType names the record kind a change event refers to.
type EntityType string

const (
	EntityTask        EntityType = "task"
	EntityMember      EntityType = "member"
	EntityComment     EntityType = "comment"
	EntityJoinRequest EntityType = "join_request"
)

// ChangeOperation describes a persisted activity operation.
type ChangeOperation string

// ChangeOperation values used by the project activity log.
const (
	ChangeOperationCreate ChangeOperation = "create"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationStatus ChangeOperation = "status"
	ChangeOperationDelete ChangeOperation = "delete"
	ChangeOperationReview ChangeOperation = "review"
)

// ChangeEvent represents a single activity-log entry for a project.
type ChangeEvent struct {
	ID         int64
	ProjectID  string
	EntityType EntityType
	EntityID   string
	Operation  ChangeOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}
