// Package memory provides a process-local entity store for tests, demos, and the --memory serve mode.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
)

// Repository keeps every collection in insertion order behind one mutex.
type Repository struct {
	mu       sync.RWMutex
	projects []domain.Project
	tasks    []domain.Task
	members  []domain.Member
	comments []domain.Comment
	requests []domain.JoinRequest
	users    []domain.User
	events   []domain.ChangeEvent
	eventSeq int64
}

// New constructs an empty store.
func New() *Repository {
	return &Repository{}
}

// indexOf returns the position of the first item whose id matches.
func indexOf[T any](items []T, id string, idOf func(T) string) int {
	return slices.IndexFunc(items, func(item T) bool { return idOf(item) == id })
}

func projectKey(p domain.Project) string { return p.ID }
func taskKey(t domain.Task) string { return t.ID }
func memberKey(m domain.Member) string { return m.ID }
func joinRequestKey(jr domain.JoinRequest) string { return jr.ID }
func userKey(u domain.User) string { return u.ID }

// CreateProject creates project.
func (r *Repository) CreateProject(_ context.Context, p domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.projects, p.ID, projectKey) >= 0 {
		return fmt.Errorf("project %s: %w", p.ID, app.ErrDuplicate)
	}
	r.projects = append(r.projects, p)
	return nil
}

// UpdateProject updates state for the requested operation.
func (r *Repository) UpdateProject(_ context.Context, p domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.projects, p.ID, projectKey)
	if i < 0 {
		return app.ErrNotFound
	}
	r.projects[i] = p
	return nil
}

// GetProject returns project.
func (r *Repository) GetProject(_ context.Context, id string) (domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.projects, id, projectKey)
	if i < 0 {
		return domain.Project{}, app.ErrNotFound
	}
	return r.projects[i], nil
}

// ListProjects lists projects.
func (r *Repository) ListProjects(context.Context) ([]domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Project{}, r.projects...), nil
}

// CreateTask creates task.
func (r *Repository) CreateTask(_ context.Context, t domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.tasks, t.ID, taskKey) >= 0 {
		return fmt.Errorf("task %s: %w", t.ID, app.ErrDuplicate)
	}
	if t.ProjectID != "" && indexOf(r.projects, t.ProjectID, projectKey) < 0 {
		return fmt.Errorf("project %s: %w", t.ProjectID, app.ErrNotFound)
	}
	r.tasks = append(r.tasks, t)
	return nil
}

// UpdateTask writes the mutable task fields. The stored project reference wins.
func (r *Repository) UpdateTask(_ context.Context, t domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.tasks, t.ID, taskKey)
	if i < 0 {
		return app.ErrNotFound
	}
	t.ProjectID = r.tasks[i].ProjectID
	r.tasks[i] = t
	return nil
}

// GetTask returns task.
func (r *Repository) GetTask(_ context.Context, id string) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.tasks, id, taskKey)
	if i < 0 {
		return domain.Task{}, app.ErrNotFound
	}
	return r.tasks[i], nil
}

// DeleteTask deletes task.
func (r *Repository) DeleteTask(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.tasks, id, taskKey)
	if i < 0 {
		return app.ErrNotFound
	}
	r.tasks = slices.Delete(r.tasks, i, i+1)
	return nil
}

func (r *Repository) filterTasks(keep func(domain.Task) bool) []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Task{}
	for _, t := range r.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// ListProjectTasks lists a project's tasks in insertion order.
func (r *Repository) ListProjectTasks(_ context.Context, projectID string) ([]domain.Task, error) {
	return r.filterTasks(func(t domain.Task) bool {
		return projectID != "" && t.ProjectID == projectID
	}), nil
}

// ListPersonalTasks lists tasks without a project owned by one user.
func (r *Repository) ListPersonalTasks(_ context.Context, ownerID string) ([]domain.Task, error) {
	return r.filterTasks(func(t domain.Task) bool {
		return t.ProjectID == "" && t.CreatedBy == ownerID
	}), nil
}

// ListAssignedTasks lists project tasks assigned to any member row carrying email.
func (r *Repository) ListAssignedTasks(_ context.Context, email string) ([]domain.Task, error) {
	r.mu.RLock()
	ids := map[string]struct{}{}
	for _, m := range r.members {
		if m.Email == email {
			ids[m.ID] = struct{}{}
		}
	}
	r.mu.RUnlock()
	return r.filterTasks(func(t domain.Task) bool {
		_, ok := ids[t.AssignedTo]
		return t.ProjectID != "" && ok
	}), nil
}

// AddMember inserts a member. An email already on the project returns app.ErrDuplicate.
func (r *Repository) AddMember(_ context.Context, m domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.projects, m.ProjectID, projectKey) < 0 {
		return fmt.Errorf("project %s: %w", m.ProjectID, app.ErrNotFound)
	}
	for _, existing := range r.members {
		if existing.ID == m.ID || (existing.ProjectID == m.ProjectID && existing.Email == m.Email) {
			return fmt.Errorf("member %s: %w", m.Email, app.ErrDuplicate)
		}
	}
	r.members = append(r.members, m)
	return nil
}

// GetMember returns member.
func (r *Repository) GetMember(_ context.Context, id string) (domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.members, id, memberKey)
	if i < 0 {
		return domain.Member{}, app.ErrNotFound
	}
	return r.members[i], nil
}

// ListMembers lists members in join order.
func (r *Repository) ListMembers(_ context.Context, projectID string) ([]domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Member{}
	for _, m := range r.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

// CreateComment creates comment.
func (r *Repository) CreateComment(_ context.Context, c domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.projects, c.ProjectID, projectKey) < 0 {
		return fmt.Errorf("project %s: %w", c.ProjectID, app.ErrNotFound)
	}
	r.comments = append(r.comments, c)
	return nil
}

// ListComments lists a project's comments chronologically.
func (r *Repository) ListComments(_ context.Context, projectID string) ([]domain.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Comment{}
	for _, c := range r.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateJoinRequest creates join request.
func (r *Repository) CreateJoinRequest(_ context.Context, jr domain.JoinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.projects, jr.ProjectID, projectKey) < 0 {
		return fmt.Errorf("project %s: %w", jr.ProjectID, app.ErrNotFound)
	}
	if indexOf(r.requests, jr.ID, joinRequestKey) >= 0 {
		return fmt.Errorf("join request %s: %w", jr.ID, app.ErrDuplicate)
	}
	r.requests = append(r.requests, cloneJoinRequest(jr))
	return nil
}

// UpdateJoinRequest writes the review fields.
func (r *Repository) UpdateJoinRequest(_ context.Context, jr domain.JoinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.requests, jr.ID, joinRequestKey)
	if i < 0 {
		return app.ErrNotFound
	}
	stored := r.requests[i]
	stored.Status = jr.Status
	stored.ReviewedBy = jr.ReviewedBy
	stored.ReviewedAt = jr.ReviewedAt
	r.requests[i] = cloneJoinRequest(stored)
	return nil
}

// GetJoinRequest returns join request.
func (r *Repository) GetJoinRequest(_ context.Context, id string) (domain.JoinRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.requests, id, joinRequestKey)
	if i < 0 {
		return domain.JoinRequest{}, app.ErrNotFound
	}
	return cloneJoinRequest(r.requests[i]), nil
}

// ListJoinRequests lists a project's join requests in submission order.
func (r *Repository) ListJoinRequests(_ context.Context, projectID string) ([]domain.JoinRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.JoinRequest{}
	for _, jr := range r.requests {
		if jr.ProjectID == projectID {
			out = append(out, cloneJoinRequest(jr))
		}
	}
	return out, nil
}

// cloneJoinRequest detaches the ReviewedAt pointer from stored state.
func cloneJoinRequest(jr domain.JoinRequest) domain.JoinRequest {
	if jr.ReviewedAt != nil {
		at := *jr.ReviewedAt
		jr.ReviewedAt = &at
	}
	return jr
}

// CreateUser creates user. A taken email returns app.ErrDuplicate.
func (r *Repository) CreateUser(_ context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ID == u.ID || existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Email, app.ErrDuplicate)
		}
	}
	r.users = append(r.users, u)
	return nil
}

// GetUser returns user.
func (r *Repository) GetUser(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.users, id, userKey)
	if i < 0 {
		return domain.User{}, app.ErrNotFound
	}
	return r.users[i], nil
}

// GetUserByEmail returns user by email.
func (r *Repository) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, app.ErrNotFound
}

// ListUsers returns users in registration order.
func (r *Repository) ListUsers(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.users), nil
}

// AppendChangeEvent stores an activity entry under the next sequence number.
func (r *Repository) AppendChangeEvent(_ context.Context, event domain.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventSeq++
	event.ID = r.eventSeq
	event.Metadata = maps.Clone(event.Metadata)
	r.events = append(r.events, event)
	return nil
}

// ListChangeEvents returns a project's events newest first.
func (r *Repository) ListChangeEvents(_ context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.ChangeEvent{}
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].ProjectID == projectID {
			event := r.events[i]
			event.Metadata = maps.Clone(event.Metadata)
			out = append(out, event)
		}
	}
	return out, nil
}

var _ app.Repository = (*Repository)(nil)
