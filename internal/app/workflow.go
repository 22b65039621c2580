package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// ActionKind names the destructive operation a PendingAction will commit.
type ActionKind string

// ActionKind values.
const (
	ActionStatusChange ActionKind = "status_change"
	ActionDelete       ActionKind = "delete"
)

// PendingAction is the first phase of a two-phase status change or delete.
// It is a plain value; callers hold it until they confirm or drop it. Signature
// is issued by the Request* call and must come back unchanged with every field.
type PendingAction struct {
	Kind        ActionKind
	TaskID      string
	Status      domain.Status
	RequestedAt time.Time
	ExpiresAt   time.Time
	Signature   string
}

// ActionResult reports the outcome of a confirmed action.
type ActionResult struct {
	Kind    ActionKind
	Task    domain.Task
	Deleted bool
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ProjectID   string
	Title       string
	Description string
	DueDate     time.Time
	Priority    domain.Priority
	// AssignedTo names a project member by id or email. Ignored for personal tasks.
	AssignedTo string
	Actor      Actor
}

// CreateTask creates a personal task, or a project task assigned to an existing member.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	taskIn := domain.TaskInput{
		ID:          s.idGen(),
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		CreatedBy:   in.Actor.UserID,
	}
	if projectID != "" {
		if _, err := s.repo.GetProject(ctx, projectID); err != nil {
			return domain.Task{}, err
		}
		if strings.TrimSpace(in.AssignedTo) != "" {
			member, err := s.resolveMember(ctx, projectID, in.AssignedTo)
			if err != nil {
				return domain.Task{}, err
			}
			taskIn.AssignedTo = member.ID
		}
		taskIn.AssignedBy = in.Actor.UserID
		if taskIn.AssignedBy == "" {
			taskIn.AssignedBy = in.Actor.displayName()
		}
	}

	task, err := domain.NewTask(taskIn, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	if err := s.record(ctx, domain.ChangeEvent{
		ProjectID:  task.ProjectID,
		EntityType: domain.EntityTask,
		EntityID:   task.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    in.Actor.UserID,
		Metadata:   map[string]string{"title": task.Title, "assigned_to": task.AssignedTo},
	}); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// resolveMember finds a project member by id or email.
func (s *Service) resolveMember(ctx context.Context, projectID, ref string) (domain.Member, error) {
	ref = strings.TrimSpace(ref)
	members, err := s.repo.ListMembers(ctx, projectID)
	if err != nil {
		return domain.Member{}, err
	}
	email := strings.ToLower(ref)
	for _, member := range members {
		if member.ID == ref || member.Email == email {
			return member, nil
		}
	}
	return domain.Member{}, fmt.Errorf("%q: %w", ref, ErrUnknownAssignee)
}

// RequestStatusChange validates a status change without applying it.
func (s *Service) RequestStatusChange(ctx context.Context, taskID string, status domain.Status) (PendingAction, error) {
	parsed, err := domain.ParseStatus(string(status))
	if err != nil {
		return PendingAction{}, err
	}
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return PendingAction{}, err
	}
	now := s.clock().UTC()
	return s.issueAction(PendingAction{
		Kind:        ActionStatusChange,
		TaskID:      task.ID,
		Status:      parsed,
		RequestedAt: now,
		ExpiresAt:   now.Add(s.actionTTL),
	}), nil
}

// RequestDelete validates a delete without applying it.
func (s *Service) RequestDelete(ctx context.Context, taskID string) (PendingAction, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return PendingAction{}, err
	}
	now := s.clock().UTC()
	return s.issueAction(PendingAction{
		Kind:        ActionDelete,
		TaskID:      task.ID,
		RequestedAt: now,
		ExpiresAt:   now.Add(s.actionTTL),
	}), nil
}

func (s *Service) issueAction(action PendingAction) PendingAction {
	action.Signature = s.signAction(action)
	return action
}

// signAction is an HMAC-SHA256 over the fields a confirm will act on.
func (s *Service) signAction(action PendingAction) string {
	mac := hmac.New(sha256.New, s.actionKey)
	_, _ = fmt.Fprintf(mac, "%s\n%s\n%s\n%d\n%d",
		action.Kind, action.TaskID, action.Status,
		action.RequestedAt.UnixNano(), action.ExpiresAt.UnixNano())
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validateAction checks that the action was issued by RequestStatusChange or
// RequestDelete, is unmodified, and has not expired.
func (s *Service) validateAction(action PendingAction) error {
	action.TaskID = strings.TrimSpace(action.TaskID)
	if action.TaskID == "" {
		return ErrInvalidAction
	}
	switch action.Kind {
	case ActionStatusChange:
		status, err := domain.ParseStatus(string(action.Status))
		if err != nil {
			return err
		}
		action.Status = status
	case ActionDelete:
		action.Status = ""
	default:
		return ErrInvalidAction
	}
	if action.RequestedAt.IsZero() || action.ExpiresAt.IsZero() || !action.ExpiresAt.After(action.RequestedAt) {
		return ErrInvalidAction
	}
	if !hmac.Equal([]byte(action.Signature), []byte(s.signAction(action))) {
		return ErrInvalidAction
	}
	if s.clock().After(action.ExpiresAt) {
		return ErrActionExpired
	}
	return nil
}

// ConfirmAction commits a pending status change or delete.
func (s *Service) ConfirmAction(ctx context.Context, action PendingAction, actor Actor) (ActionResult, error) {
	if err := s.validateAction(action); err != nil {
		return ActionResult{}, err
	}

	unlock := s.locks.lock(action.TaskID)
	defer unlock()

	task, err := s.repo.GetTask(ctx, action.TaskID)
	if err != nil {
		return ActionResult{}, err
	}

	switch action.Kind {
	case ActionStatusChange:
		from := task.Status
		status, _ := domain.ParseStatus(string(action.Status))
		if err := task.SetStatus(status, s.clock()); err != nil {
			return ActionResult{}, err
		}
		if err := s.repo.UpdateTask(ctx, task); err != nil {
			return ActionResult{}, err
		}
		if err := s.record(ctx, domain.ChangeEvent{
			ProjectID:  task.ProjectID,
			EntityType: domain.EntityTask,
			EntityID:   task.ID,
			Operation:  domain.ChangeOperationStatus,
			ActorID:    actor.UserID,
			Metadata:   map[string]string{"from": string(from), "to": string(task.Status)},
		}); err != nil {
			return ActionResult{}, err
		}
		return ActionResult{Kind: action.Kind, Task: task}, nil
	default:
		if err := s.repo.DeleteTask(ctx, task.ID); err != nil {
			return ActionResult{}, err
		}
		if err := s.record(ctx, domain.ChangeEvent{
			ProjectID:  task.ProjectID,
			EntityType: domain.EntityTask,
			EntityID:   task.ID,
			Operation:  domain.ChangeOperationDelete,
			ActorID:    actor.UserID,
			Metadata:   map[string]string{"title": task.Title},
		}); err != nil {
			return ActionResult{}, err
		}
		return ActionResult{Kind: action.Kind, Task: task, Deleted: true}, nil
	}
}

// ConfirmStatusChange commits a pending status change.
func (s *Service) ConfirmStatusChange(ctx context.Context, action PendingAction, actor Actor) (domain.Task, error) {
	if action.Kind != ActionStatusChange {
		return domain.Task{}, ErrInvalidAction
	}
	result, err := s.ConfirmAction(ctx, action, actor)
	if err != nil {
		return domain.Task{}, err
	}
	return result.Task, nil
}

// ConfirmDelete commits a pending delete.
func (s *Service) ConfirmDelete(ctx context.Context, action PendingAction, actor Actor) error {
	if action.Kind != ActionDelete {
		return ErrInvalidAction
	}
	_, err := s.ConfirmAction(ctx, action, actor)
	return err
}

// CancelAction abandons a pending action. Nothing was mutated, so only the shape is checked.
func (s *Service) CancelAction(action PendingAction) error {
	if strings.TrimSpace(action.TaskID) == "" {
		return ErrInvalidAction
	}
	if action.Kind != ActionStatusChange && action.Kind != ActionDelete {
		return ErrInvalidAction
	}
	return nil
}

// RequestEdit returns the prefilled edit draft for a task.
func (s *Service) RequestEdit(ctx context.Context, taskID string) (domain.TaskDraft, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return domain.TaskDraft{}, err
	}
	return task.Draft(), nil
}

// ConfirmEdit replaces the task's mutable fields with the submitted draft.
func (s *Service) ConfirmEdit(ctx context.Context, taskID string, draft domain.TaskDraft, actor Actor) (domain.Task, error) {
	taskID = strings.TrimSpace(taskID)
	unlock := s.locks.lock(taskID)
	defer unlock()

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.ApplyDraft(draft, s.clock()); err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	if err := s.record(ctx, domain.ChangeEvent{
		ProjectID:  task.ProjectID,
		EntityType: domain.EntityTask,
		EntityID:   task.ID,
		Operation:  domain.ChangeOperationUpdate,
		ActorID:    actor.UserID,
		Metadata:   map[string]string{"title": task.Title, "priority": string(task.Priority)},
	}); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// TaskTab selects which of the caller's task collections a listing shows.
type TaskTab string

// TaskTab values.
const (
	TabAll      TaskTab = "all"
	TabAssigned TaskTab = "assigned"
	TabPersonal TaskTab = "personal"
)

// ParseTaskTab parses input into a normalized value. Empty input means all.
func ParseTaskTab(raw string) (TaskTab, error) {
	switch tab := TaskTab(strings.ToLower(strings.TrimSpace(raw))); tab {
	case "":
		return TabAll, nil
	case TabAll, TabAssigned, TabPersonal:
		return tab, nil
	default:
		return "", ErrInvalidTab
	}
}

// ListMyTasks filters and paginates the caller's assigned and personal tasks.
func (s *Service) ListMyTasks(ctx context.Context, actor Actor, tab TaskTab, q TaskQuery) (TaskPage, error) {
	tab, err := ParseTaskTab(string(tab))
	if err != nil {
		return TaskPage{}, err
	}
	var tasks []domain.Task
	if tab == TabAll || tab == TabAssigned {
		if email := strings.TrimSpace(actor.Email); email != "" {
			assigned, err := s.repo.ListAssignedTasks(ctx, strings.ToLower(email))
			if err != nil {
				return TaskPage{}, err
			}
			tasks = append(tasks, assigned...)
		}
	}
	if tab == TabAll || tab == TabPersonal {
		personal, err := s.repo.ListPersonalTasks(ctx, actor.UserID)
		if err != nil {
			return TaskPage{}, err
		}
		tasks = append(tasks, personal...)
	}
	return QueryTasks(tasks, s.normalizeQuery(q)), nil
}

// ProjectTasks filters, board-sorts, and paginates one project's tasks.
func (s *Service) ProjectTasks(ctx context.Context, projectID string, q TaskQuery) (TaskPage, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return TaskPage{}, err
	}
	tasks, err := s.repo.ListProjectTasks(ctx, projectID)
	if err != nil {
		return TaskPage{}, err
	}
	q = s.normalizeQuery(q)
	q.BoardSort = true
	return QueryTasks(tasks, q), nil
}

// ProjectBoard groups one project's tasks into status columns.
func (s *Service) ProjectBoard(ctx context.Context, projectID string) ([]BoardColumn, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.repo.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return GroupByStatus(tasks), nil
}

// GetTask returns one task by id.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return s.repo.GetTask(ctx, strings.TrimSpace(taskID))
}

func (s *Service) normalizeQuery(q TaskQuery) TaskQuery {
	if q.PageSize < 1 {
		q.PageSize = s.pageSize
	}
	return NormalizeTaskQuery(q)
}
