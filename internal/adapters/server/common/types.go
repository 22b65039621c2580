// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// ErrInvalidRequest reports malformed or invalid transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrInvalidStateTransition reports a transition out of a terminal state.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrConflict reports a uniqueness conflict.
var ErrConflict = errors.New("conflict")

// ErrUnauthorized reports a missing or rejected credential.
var ErrUnauthorized = errors.New("unauthorized")

// Project is the wire shape of a project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task is the wire shape of a task. DueDate is YYYY-MM-DD.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     string    `json:"due_date"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	AssignedBy  string    `json:"assigned_by,omitempty"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Personal    bool      `json:"personal"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskDraft is the editable subset of a task.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
}

// TaskPage is one page of a filtered task listing.
type TaskPage struct {
	Tasks      []Task `json:"tasks"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
}

// BoardColumn is one status column of a project board.
type BoardColumn struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Tasks  []Task `json:"tasks"`
}

// Member is the wire shape of a project member.
type Member struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// MemberResult reports an idempotent member add.
type MemberResult struct {
	Member  Member `json:"member"`
	Created bool   `json:"created"`
}

// Comment is the wire shape of a project comment.
type Comment struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	AuthorID   string    `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// JoinRequest is the wire shape of a join request.
type JoinRequest struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	RequesterID     string     `json:"requester_id,omitempty"`
	RequesterName   string     `json:"requester_name"`
	RequesterEmail  string     `json:"requester_email"`
	RequesterAvatar string     `json:"requester_avatar,omitempty"`
	Message         string     `json:"message,omitempty"`
	RequestDate     time.Time  `json:"request_date"`
	Status          string     `json:"status"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}

// ReviewResult reports a join-request decision.
type ReviewResult struct {
	Request JoinRequest `json:"request"`
	Member  *Member     `json:"member,omitempty"`
}

// ChangeEvent is one project activity entry.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ProjectDetail is the aggregate read view of one project.
type ProjectDetail struct {
	Project      Project       `json:"project"`
	Members      []Member      `json:"members"`
	Comments     []Comment     `json:"comments"`
	JoinRequests []JoinRequest `json:"join_requests"`
	Tasks        []Task        `json:"tasks"`
}

// PendingAction is the wire form of a requested but unconfirmed status change or delete.
// Clients echo it back unchanged to confirm; the signature covers every other field.
type PendingAction struct {
	Kind        string    `json:"kind"`
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Signature   string    `json:"signature"`
}

// ActionResult reports a confirmed action.
type ActionResult struct {
	Kind    string `json:"kind"`
	Task    Task   `json:"task"`
	Deleted bool   `json:"deleted"`
}

// TaskListRequest carries raw list criteria. Invalid criteria mean "no filter".
type TaskListRequest struct {
	Search   string
	Priority string
	From     string
	To       string
	Page     int
}

// CreateProjectRequest stores transport input for project creation.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateTaskRequest stores transport input for task creation. An empty ProjectID creates a personal task.
type CreateTaskRequest struct {
	ProjectID   string `json:"project_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

// EditTaskRequest stores transport input for the confirm step of a task edit.
type EditTaskRequest struct {
	TaskID      string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
}

// ProjectService exposes project reads and writes.
type ProjectService interface {
	ListProjects(ctx context.Context, search string) ([]Project, error)
	CreateProject(context.Context, CreateProjectRequest, domain.Identity) (Project, error)
	GetProjectDetail(context.Context, string) (ProjectDetail, error)
	ProjectBoard(context.Context, string) ([]BoardColumn, error)
	ProjectActivity(context.Context, string, int) ([]ChangeEvent, error)
}

// TaskService exposes task queries and the two-phase workflow.
type TaskService interface {
	ProjectTasks(context.Context, string, TaskListRequest) (TaskPage, error)
	MyTasks(context.Context, domain.Identity, string, TaskListRequest) (TaskPage, error)
	CreateTask(context.Context, CreateTaskRequest, domain.Identity) (Task, error)
	TaskDraft(context.Context, string) (TaskDraft, error)
	EditTask(context.Context, EditTaskRequest, domain.Identity) (Task, error)
	RequestStatusChange(context.Context, string, string) (PendingAction, error)
	RequestDelete(context.Context, string) (PendingAction, error)
	ConfirmAction(context.Context, PendingAction, domain.Identity) (ActionResult, error)
}

// MembershipService exposes members, comments, and join requests.
type MembershipService interface {
	ListMembers(context.Context, string) ([]Member, error)
	AddMember(context.Context, string, string, domain.Identity) (MemberResult, error)
	InviteMember(context.Context, string, string, domain.Identity) (MemberResult, error)
	ListComments(context.Context, string) ([]Comment, error)
	AddComment(context.Context, string, string, domain.Identity) (Comment, error)
	ListJoinRequests(context.Context, string) ([]JoinRequest, error)
	SubmitJoinRequest(context.Context, string, string, domain.Identity) (JoinRequest, error)
	ReviewJoinRequest(context.Context, string, string, domain.Identity) (ReviewResult, error)
}

// Service is the full transport-facing surface.
type Service interface {
	ProjectService
	TaskService
	MembershipService
}
