package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service workflow and membership APIs.
type AppServiceAdapter struct {
	service *app.Service
}

var _ Service = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ListProjects lists projects in creation order, optionally narrowed by a name search.
func (a *AppServiceAdapter) ListProjects(ctx context.Context, search string) ([]Project, error) {
	projects, err := a.service.ListProjects(ctx, search)
	if err != nil {
		return nil, mapAppError("list projects", err)
	}
	return mapSlice(projects, mapProject), nil
}

// CreateProject creates a project with the caller as admin.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, in CreateProjectRequest, who domain.Identity) (Project, error) {
	project, err := a.service.CreateProject(ctx, app.CreateProjectInput{
		Name:        in.Name,
		Description: in.Description,
		Creator:     app.ActorFromIdentity(who),
	})
	if err != nil {
		return Project{}, mapAppError("create project", err)
	}
	return mapProject(project), nil
}

// GetProjectDetail loads the aggregate project view.
func (a *AppServiceAdapter) GetProjectDetail(ctx context.Context, projectID string) (ProjectDetail, error) {
	detail, err := a.service.GetProjectDetail(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return ProjectDetail{}, mapAppError("get project", err)
	}
	return ProjectDetail{
		Project:      mapProject(detail.Project),
		Members:      mapSlice(detail.Members, mapMember),
		Comments:     mapSlice(detail.Comments, mapComment),
		JoinRequests: mapSlice(detail.JoinRequests, mapJoinRequest),
		Tasks:        mapSlice(detail.Tasks, mapTask),
	}, nil
}

// ProjectBoard groups a project's tasks into status columns.
func (a *AppServiceAdapter) ProjectBoard(ctx context.Context, projectID string) ([]BoardColumn, error) {
	columns, err := a.service.ProjectBoard(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, mapAppError("project board", err)
	}
	out := make([]BoardColumn, 0, len(columns))
	for _, col := range columns {
		out = append(out, BoardColumn{
			Status: string(col.Status),
			Title:  col.Title,
			Tasks:  mapSlice(col.Tasks, mapTask),
		})
	}
	return out, nil
}

// ProjectActivity lists recent change events, newest first.
func (a *AppServiceAdapter) ProjectActivity(ctx context.Context, projectID string, limit int) ([]ChangeEvent, error) {
	events, err := a.service.ListProjectActivity(ctx, strings.TrimSpace(projectID), limit)
	if err != nil {
		return nil, mapAppError("project activity", err)
	}
	return mapSlice(events, mapChangeEvent), nil
}

// ProjectTasks returns one board-sorted page of a project's tasks.
func (a *AppServiceAdapter) ProjectTasks(ctx context.Context, projectID string, in TaskListRequest) (TaskPage, error) {
	page, err := a.service.ProjectTasks(ctx, strings.TrimSpace(projectID), toTaskQuery(in))
	if err != nil {
		return TaskPage{}, mapAppError("project tasks", err)
	}
	return mapTaskPage(page), nil
}

// MyTasks returns one page of the caller's assigned and personal tasks.
func (a *AppServiceAdapter) MyTasks(ctx context.Context, who domain.Identity, tab string, in TaskListRequest) (TaskPage, error) {
	page, err := a.service.ListMyTasks(ctx, app.ActorFromIdentity(who), app.TaskTab(tab), toTaskQuery(in))
	if err != nil {
		return TaskPage{}, mapAppError("my tasks", err)
	}
	return mapTaskPage(page), nil
}

// CreateTask creates a project or personal task.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest, who domain.Identity) (Task, error) {
	due, err := parseOptionalDate(in.DueDate)
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	priority, err := parseOptionalPriority(in.Priority)
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	task, err := a.service.CreateTask(ctx, app.CreateTaskInput{
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     due,
		Priority:    priority,
		AssignedTo:  in.AssignedTo,
		Actor:       app.ActorFromIdentity(who),
	})
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	return mapTask(task), nil
}

// TaskDraft returns the prefilled edit draft for one task.
func (a *AppServiceAdapter) TaskDraft(ctx context.Context, taskID string) (TaskDraft, error) {
	draft, err := a.service.RequestEdit(ctx, taskID)
	if err != nil {
		return TaskDraft{}, mapAppError("request edit", err)
	}
	return TaskDraft{
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    string(draft.Priority),
		DueDate:     formatDate(draft.DueDate),
	}, nil
}

// EditTask commits an edited draft.
func (a *AppServiceAdapter) EditTask(ctx context.Context, in EditTaskRequest, who domain.Identity) (Task, error) {
	due, err := parseOptionalDate(in.DueDate)
	if err != nil {
		return Task{}, mapAppError("edit task", err)
	}
	priority, err := parseOptionalPriority(in.Priority)
	if err != nil {
		return Task{}, mapAppError("edit task", err)
	}
	task, err := a.service.ConfirmEdit(ctx, in.TaskID, domain.TaskDraft{
		Title:       in.Title,
		Description: in.Description,
		Priority:    priority,
		DueDate:     due,
	}, app.ActorFromIdentity(who))
	if err != nil {
		return Task{}, mapAppError("edit task", err)
	}
	return mapTask(task), nil
}

// RequestStatusChange returns a pending status change for the caller to confirm.
func (a *AppServiceAdapter) RequestStatusChange(ctx context.Context, taskID, status string) (PendingAction, error) {
	action, err := a.service.RequestStatusChange(ctx, strings.TrimSpace(taskID), domain.Status(status))
	if err != nil {
		return PendingAction{}, mapAppError("request status change", err)
	}
	return mapPendingAction(action), nil
}

// RequestDelete returns a pending delete for the caller to confirm.
func (a *AppServiceAdapter) RequestDelete(ctx context.Context, taskID string) (PendingAction, error) {
	action, err := a.service.RequestDelete(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return PendingAction{}, mapAppError("request delete", err)
	}
	return mapPendingAction(action), nil
}

// ConfirmAction commits a pending action echoed back by the client.
func (a *AppServiceAdapter) ConfirmAction(ctx context.Context, in PendingAction, who domain.Identity) (ActionResult, error) {
	result, err := a.service.ConfirmAction(ctx, app.PendingAction{
		Kind:        app.ActionKind(strings.TrimSpace(in.Kind)),
		TaskID:      strings.TrimSpace(in.TaskID),
		Status:      domain.Status(in.Status),
		RequestedAt: in.RequestedAt,
		ExpiresAt:   in.ExpiresAt,
		Signature:   strings.TrimSpace(in.Signature),
	}, app.ActorFromIdentity(who))
	if err != nil {
		return ActionResult{}, mapAppError("confirm action", err)
	}
	return ActionResult{
		Kind:    string(result.Kind),
		Task:    mapTask(result.Task),
		Deleted: result.Deleted,
	}, nil
}

// ListMembers lists a project's members in join order.
func (a *AppServiceAdapter) ListMembers(ctx context.Context, projectID string) ([]Member, error) {
	members, err := a.service.ListMembers(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, mapAppError("list members", err)
	}
	return mapSlice(members, mapMember), nil
}

// AddMember adds a member by email, or returns the existing one.
func (a *AppServiceAdapter) AddMember(ctx context.Context, projectID, email string, who domain.Identity) (MemberResult, error) {
	result, err := a.service.AddMember(ctx, strings.TrimSpace(projectID), email, app.ActorFromIdentity(who))
	if err != nil {
		return MemberResult{}, mapAppError("add member", err)
	}
	return MemberResult{Member: mapMember(result.Member), Created: result.Created}, nil
}

// InviteMember invites a member by email, or returns the existing one.
func (a *AppServiceAdapter) InviteMember(ctx context.Context, projectID, email string, who domain.Identity) (MemberResult, error) {
	result, err := a.service.InviteMember(ctx, strings.TrimSpace(projectID), email, app.ActorFromIdentity(who))
	if err != nil {
		return MemberResult{}, mapAppError("invite member", err)
	}
	return MemberResult{Member: mapMember(result.Member), Created: result.Created}, nil
}

// ListComments lists a project's comments oldest first.
func (a *AppServiceAdapter) ListComments(ctx context.Context, projectID string) ([]Comment, error) {
	comments, err := a.service.ListComments(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, mapAppError("list comments", err)
	}
	return mapSlice(comments, mapComment), nil
}

// AddComment appends a comment authored by the caller.
func (a *AppServiceAdapter) AddComment(ctx context.Context, projectID, message string, who domain.Identity) (Comment, error) {
	comment, err := a.service.AddComment(ctx, strings.TrimSpace(projectID), message, app.ActorFromIdentity(who))
	if err != nil {
		return Comment{}, mapAppError("add comment", err)
	}
	return mapComment(comment), nil
}

// ListJoinRequests lists a project's join requests.
func (a *AppServiceAdapter) ListJoinRequests(ctx context.Context, projectID string) ([]JoinRequest, error) {
	requests, err := a.service.ListJoinRequests(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, mapAppError("list join requests", err)
	}
	return mapSlice(requests, mapJoinRequest), nil
}

// SubmitJoinRequest files a join request for the caller.
func (a *AppServiceAdapter) SubmitJoinRequest(ctx context.Context, projectID, message string, who domain.Identity) (JoinRequest, error) {
	req, err := a.service.SubmitJoinRequest(ctx, app.SubmitJoinRequestInput{
		ProjectID: projectID,
		Requester: who,
		Message:   message,
	})
	if err != nil {
		return JoinRequest{}, mapAppError("submit join request", err)
	}
	return mapJoinRequest(req), nil
}

// ReviewJoinRequest approves or rejects a pending join request.
func (a *AppServiceAdapter) ReviewJoinRequest(ctx context.Context, requestID, decision string, who domain.Identity) (ReviewResult, error) {
	result, err := a.service.ReviewJoinRequest(ctx, requestID, decision, app.ActorFromIdentity(who))
	if err != nil {
		return ReviewResult{}, mapAppError("review join request", err)
	}
	out := ReviewResult{Request: mapJoinRequest(result.Request)}
	if result.Member != nil {
		member := mapMember(*result.Member)
		out.Member = &member
	}
	return out, nil
}

// toTaskQuery converts raw list criteria. Unparseable dates drop the range filter.
func toTaskQuery(in TaskListRequest) app.TaskQuery {
	q := app.TaskQuery{
		Filter: app.TaskFilter{
			Search:   in.Search,
			Priority: in.Priority,
		},
		Page: in.Page,
	}
	if from, err := domain.ParseDate(in.From); err == nil {
		q.Filter.From = from
	}
	if to, err := domain.ParseDate(in.To); err == nil {
		q.Filter.To = to
	}
	return q
}

func parseOptionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return domain.ParseDate(raw)
}

func parseOptionalPriority(raw string) (domain.Priority, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return domain.ParsePriority(raw)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, item := range in {
		out = append(out, fn(item))
	}
	return out
}

func mapProject(p domain.Project) Project {
	return Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapTask(t domain.Task) Task {
	return Task{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     formatDate(t.DueDate),
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		AssignedBy:  t.AssignedBy,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		Personal:    t.IsPersonal(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTaskPage(p app.TaskPage) TaskPage {
	return TaskPage{
		Tasks:      mapSlice(p.Tasks, mapTask),
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
	}
}

func mapMember(m domain.Member) Member {
	return Member{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Name:      m.Name,
		Email:     m.Email,
		Avatar:    m.Avatar,
		Role:      string(m.Role),
		JoinedAt:  m.JoinedAt,
	}
}

func mapComment(c domain.Comment) Comment {
	return Comment{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Message:    c.Message,
		CreatedAt:  c.CreatedAt,
	}
}

func mapJoinRequest(r domain.JoinRequest) JoinRequest {
	return JoinRequest{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		RequesterID:     r.Requester.UserID,
		RequesterName:   r.Requester.Name,
		RequesterEmail:  r.Requester.Email,
		RequesterAvatar: r.Requester.Avatar,
		Message:         r.Message,
		RequestDate:     r.RequestDate,
		Status:          string(r.Status),
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      r.ReviewedAt,
	}
}

func mapChangeEvent(e domain.ChangeEvent) ChangeEvent {
	return ChangeEvent{
		ID:         e.ID,
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		Operation:  string(e.Operation),
		ActorID:    e.ActorID,
		Metadata:   e.Metadata,
		OccurredAt: e.OccurredAt,
	}
}

func mapPendingAction(a app.PendingAction) PendingAction {
	return PendingAction{
		Kind:        string(a.Kind),
		TaskID:      a.TaskID,
		Status:      string(a.Status),
		RequestedAt: a.RequestedAt,
		ExpiresAt:   a.ExpiresAt,
		Signature:   a.Signature,
	}
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidStateTransition, err))
	case errors.Is(err, app.ErrDuplicate):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrInvalidCredential):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnauthorized, err))
	case errors.Is(err, domain.ErrValidation):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
