package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/evanschultz/taskdeck/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	projects []domain.Project
	tasks    []domain.Task
	members  []domain.Member
	comments []domain.Comment
	requests []domain.JoinRequest
	users    []domain.User
	events   []domain.ChangeEvent

	// updateRequestErr, when set, fails the next UpdateJoinRequest call.
	updateRequestErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{}
}

func (f *fakeRepo) CreateProject(_ context.Context, p domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, p)
	return nil
}

func (f *fakeRepo) UpdateProject(_ context.Context, p domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.projects {
		if f.projects[i].ID == p.ID {
			f.projects[i] = p
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) GetProject(_ context.Context, id string) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Project{}, ErrNotFound
}

func (f *fakeRepo) ListProjects(context.Context) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.projects), nil
}

func (f *fakeRepo) CreateTask(_ context.Context, t domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeRepo) UpdateTask(_ context.Context, t domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == t.ID {
			f.tasks[i] = t
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) GetTask(_ context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, ErrNotFound
}

func (f *fakeRepo) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = slices.Delete(f.tasks, i, i+1)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) ListProjectTasks(_ context.Context, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Task{}
	for _, t := range f.tasks {
		if t.ProjectID == projectID && projectID != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListPersonalTasks(_ context.Context, ownerID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Task{}
	for _, t := range f.tasks {
		if t.ProjectID == "" && t.CreatedBy == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAssignedTasks(_ context.Context, email string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := map[string]bool{}
	for _, m := range f.members {
		if m.Email == email {
			ids[m.ID] = true
		}
	}
	out := []domain.Task{}
	for _, t := range f.tasks {
		if t.ProjectID != "" && ids[t.AssignedTo] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) AddMember(_ context.Context, m domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.members {
		if existing.ProjectID == m.ProjectID && existing.Email == m.Email {
			return ErrDuplicate
		}
	}
	f.members = append(f.members, m)
	return nil
}

func (f *fakeRepo) GetMember(_ context.Context, id string) (domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Member{}, ErrNotFound
}

func (f *fakeRepo) ListMembers(_ context.Context, projectID string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Member{}
	for _, m := range f.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateComment(_ context.Context, c domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeRepo) ListComments(_ context.Context, projectID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Comment{}
	for _, c := range f.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateJoinRequest(_ context.Context, r domain.JoinRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	return nil
}

func (f *fakeRepo) UpdateJoinRequest(_ context.Context, r domain.JoinRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateRequestErr; err != nil {
		f.updateRequestErr = nil
		return err
	}
	for i := range f.requests {
		if f.requests[i].ID == r.ID {
			f.requests[i] = r
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) GetJoinRequest(_ context.Context, id string) (domain.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.JoinRequest{}, ErrNotFound
}

func (f *fakeRepo) ListJoinRequests(_ context.Context, projectID string) ([]domain.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.JoinRequest{}
	for _, r := range f.requests {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, u domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	f.users = append(f.users, u)
	return nil
}

func (f *fakeRepo) GetUser(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (f *fakeRepo) ListUsers(context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.User(nil), f.users...), nil
}

func (f *fakeRepo) AppendChangeEvent(_ context.Context, e domain.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.events) + 1)
	f.events = append(f.events, e)
	return nil
}

func (f *fakeRepo) ListChangeEvents(_ context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChangeEvent{}
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].ProjectID != projectID {
			continue
		}
		out = append(out, f.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *testClock) {
	t.Helper()
	repo := newFakeRepo()
	clock := &testClock{now: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)}
	var (
		mu        sync.Mutex
		idCounter int
	)
	svc := NewService(repo, func() string {
		mu.Lock()
		defer mu.Unlock()
		idCounter++
		return fmt.Sprintf("id-%d", idCounter)
	}, clock.Now, ServiceConfig{PendingActionTTL: time.Minute})
	return svc, repo, clock
}

var alice = Actor{UserID: "u-alice", Name: "Alice", Email: "alice@example.com"}

func seedProject(t *testing.T, svc *Service) domain.Project {
	t.Helper()
	project, err := svc.CreateProject(context.Background(), CreateProjectInput{
		Name:    "Launch",
		Creator: alice,
	})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return project
}

func TestCreateProjectSeedsAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)

	members, err := svc.ListMembers(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 1 || members[0].Email != "alice@example.com" || members[0].Role != domain.RoleAdmin {
		t.Fatalf("unexpected members %#v", members)
	}
	if _, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: " "}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListProjectsSearchByName(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for _, name := range []string{"Garden Plan", "Roadmap", "garden shed"} {
		if _, err := svc.CreateProject(ctx, CreateProjectInput{Name: name, Description: "garden", Creator: alice}); err != nil {
			t.Fatalf("CreateProject(%q) error = %v", name, err)
		}
	}

	cases := []struct {
		search string
		want   []string
	}{
		{search: "", want: []string{"Garden Plan", "Roadmap", "garden shed"}},
		{search: "  GARDEN ", want: []string{"Garden Plan", "garden shed"}},
		{search: "map", want: []string{"Roadmap"}},
		{search: "orchard", want: nil},
	}
	for _, tc := range cases {
		projects, err := svc.ListProjects(ctx, tc.search)
		if err != nil {
			t.Fatalf("ListProjects(%q) error = %v", tc.search, err)
		}
		var names []string
		for _, p := range projects {
			names = append(names, p.Name)
		}
		if !slices.Equal(names, tc.want) {
			t.Fatalf("ListProjects(%q) = %v, want %v", tc.search, names, tc.want)
		}
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	if _, err := svc.CreateTask(ctx, CreateTaskInput{Title: "  ", Actor: alice}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "Ship", Actor: alice}); !errors.Is(err, domain.ErrAssigneeRequired) {
		t.Fatalf("expected ErrAssigneeRequired, got %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "Ship", AssignedTo: "ghost@example.com", Actor: alice}); !errors.Is(err, ErrUnknownAssignee) {
		t.Fatalf("expected ErrUnknownAssignee, got %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: "missing", Title: "Ship", AssignedTo: "x", Actor: alice}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing project, got %v", err)
	}
	if len(repo.tasks) != 0 {
		t.Fatalf("expected no tasks stored, got %d", len(repo.tasks))
	}
}

func TestCreateTaskAssignsMemberAndDefaults(t *testing.T) {
	svc, repo, clock := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, CreateTaskInput{
		ProjectID:  project.ID,
		Title:      "Write launch notes",
		AssignedTo: "ALICE@example.com",
		Actor:      alice,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Status != domain.StatusTodo || task.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults %#v", task)
	}
	if !task.DueDate.Equal(domain.CalendarDate(clock.Now())) {
		t.Fatalf("expected due date today, got %s", task.DueDate)
	}
	members, _ := svc.ListMembers(ctx, project.ID)
	if task.AssignedTo != members[0].ID || task.AssignedBy != alice.UserID {
		t.Fatalf("unexpected assignment %#v", task)
	}

	personal, err := svc.CreateTask(ctx, CreateTaskInput{Title: "Groceries", Actor: alice})
	if err != nil {
		t.Fatalf("CreateTask(personal) error = %v", err)
	}
	if personal.ID == task.ID {
		t.Fatalf("expected distinct ids, got %q twice", task.ID)
	}
	if !personal.IsPersonal() || personal.AssignedTo != "" {
		t.Fatalf("unexpected personal task %#v", personal)
	}
	if len(repo.events) != 1 || repo.events[0].Operation != domain.ChangeOperationCreate {
		t.Fatalf("expected one project activity event, got %#v", repo.events)
	}
}

func TestStatusChangeRequiresConfirm(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateTaskInput{Title: "Draft", Actor: alice})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	action, err := svc.RequestStatusChange(ctx, task.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("RequestStatusChange() error = %v", err)
	}
	unchanged, _ := svc.GetTask(ctx, task.ID)
	if unchanged.Status != domain.StatusTodo {
		t.Fatalf("request must not mutate, got %q", unchanged.Status)
	}

	if err := svc.CancelAction(action); err != nil {
		t.Fatalf("CancelAction() error = %v", err)
	}
	unchanged, _ = svc.GetTask(ctx, task.ID)
	if unchanged.Status != domain.StatusTodo {
		t.Fatalf("cancel must not mutate, got %q", unchanged.Status)
	}

	updated, err := svc.ConfirmStatusChange(ctx, action, alice)
	if err != nil {
		t.Fatalf("ConfirmStatusChange() error = %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %q", updated.Status)
	}

	if _, err := svc.RequestStatusChange(ctx, task.ID, "blocked"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
	if _, err := svc.RequestStatusChange(ctx, "missing", domain.StatusTodo); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAllStatusTransitionsAllowed(t *testing.T) {
	for _, from := range domain.Statuses() {
		for _, to := range domain.Statuses() {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				svc, _, _ := newTestService(t)
				ctx := context.Background()
				task, err := svc.CreateTask(ctx, CreateTaskInput{Title: "t", Actor: alice})
				if err != nil {
					t.Fatalf("CreateTask() error = %v", err)
				}
				for _, status := range []domain.Status{from, to} {
					action, err := svc.RequestStatusChange(ctx, task.ID, status)
					if err != nil {
						t.Fatalf("RequestStatusChange() error = %v", err)
					}
					if _, err := svc.ConfirmAction(ctx, action, alice); err != nil {
						t.Fatalf("ConfirmAction() error = %v", err)
					}
				}
				got, _ := svc.GetTask(ctx, task.ID)
				if got.Status != to {
					t.Fatalf("expected %q, got %q", to, got.Status)
				}
			})
		}
	}
}

func TestPendingActionExpires(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, CreateTaskInput{Title: "t", Actor: alice})

	action, err := svc.RequestDelete(ctx, task.ID)
	if err != nil {
		t.Fatalf("RequestDelete() error = %v", err)
	}
	clock.Advance(2 * time.Minute)
	if err := svc.ConfirmDelete(ctx, action, alice); !errors.Is(err, ErrActionExpired) {
		t.Fatalf("expected ErrActionExpired, got %v", err)
	}
	if _, err := svc.GetTask(ctx, task.ID); err != nil {
		t.Fatalf("expired delete must not remove task, got %v", err)
	}
}

func TestConfirmRejectsMalformedActions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.ConfirmAction(ctx, PendingAction{Kind: "archive", TaskID: "x"}, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if err := svc.ConfirmDelete(ctx, PendingAction{Kind: ActionStatusChange, TaskID: "x"}, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for mismatched kind, got %v", err)
	}
	if err := svc.CancelAction(PendingAction{Kind: ActionDelete}); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for missing task id, got %v", err)
	}
}

func TestConfirmRejectsUnsignedOrAlteredActions(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateTaskInput{Title: "keep me", Actor: alice})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	forged := PendingAction{Kind: ActionDelete, TaskID: task.ID}
	if err := svc.ConfirmDelete(ctx, forged, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for unsigned delete, got %v", err)
	}
	noExpiry := PendingAction{Kind: ActionDelete, TaskID: task.ID, RequestedAt: clock.Now()}
	if err := svc.ConfirmDelete(ctx, noExpiry, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for zero expiry, got %v", err)
	}

	action, err := svc.RequestStatusChange(ctx, task.ID, domain.StatusInProgress)
	if err != nil {
		t.Fatalf("RequestStatusChange() error = %v", err)
	}
	if action.Signature == "" {
		t.Fatal("expected a signed pending action")
	}
	altered := action
	altered.Status = domain.StatusCompleted
	if _, err := svc.ConfirmStatusChange(ctx, altered, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for altered status, got %v", err)
	}
	extended := action
	extended.ExpiresAt = extended.ExpiresAt.Add(time.Hour)
	if _, err := svc.ConfirmStatusChange(ctx, extended, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for extended expiry, got %v", err)
	}
	retargeted := action
	retargeted.Kind = ActionDelete
	retargeted.Status = ""
	if err := svc.ConfirmDelete(ctx, retargeted, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for retargeted kind, got %v", err)
	}

	other := NewService(newFakeRepo(), nil, clock.Now, ServiceConfig{ActionKey: []byte("another-key")})
	if _, err := other.ConfirmStatusChange(ctx, action, alice); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction under a different key, got %v", err)
	}

	got, err := svc.GetTask(ctx, task.ID)
	if err != nil || got.Status != domain.StatusTodo {
		t.Fatalf("rejected actions must not touch the task, got %#v err=%v", got, err)
	}
	if _, err := svc.ConfirmStatusChange(ctx, action, alice); err != nil {
		t.Fatalf("untouched action should still confirm, got %v", err)
	}
}

func TestDeleteRemovesExactlyOneTask(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	first, _ := svc.CreateTask(ctx, CreateTaskInput{Title: "one", Actor: alice})
	second, _ := svc.CreateTask(ctx, CreateTaskInput{Title: "two", Actor: alice})

	action, err := svc.RequestDelete(ctx, first.ID)
	if err != nil {
		t.Fatalf("RequestDelete() error = %v", err)
	}
	if err := svc.ConfirmDelete(ctx, action, alice); err != nil {
		t.Fatalf("ConfirmDelete() error = %v", err)
	}
	if len(repo.tasks) != 1 || repo.tasks[0].ID != second.ID {
		t.Fatalf("unexpected remaining tasks %#v", repo.tasks)
	}

	// Confirming a delete for a task that vanished fails without touching others.
	if err := svc.ConfirmDelete(ctx, action, alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat confirm, got %v", err)
	}

	third, _ := svc.CreateTask(ctx, CreateTaskInput{Title: "three", Actor: alice})
	if third.ID == first.ID {
		t.Fatalf("deleted id %q was reused", first.ID)
	}
}

func TestEditKeepsIdentityAndStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateTaskInput{
		ProjectID:  project.ID,
		Title:      "Old",
		AssignedTo: alice.Email,
		Actor:      alice,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	action, _ := svc.RequestStatusChange(ctx, task.ID, domain.StatusInProgress)
	if _, err := svc.ConfirmAction(ctx, action, alice); err != nil {
		t.Fatalf("ConfirmAction() error = %v", err)
	}

	draft, err := svc.RequestEdit(ctx, task.ID)
	if err != nil {
		t.Fatalf("RequestEdit() error = %v", err)
	}
	if draft.Title != "Old" {
		t.Fatalf("expected prefilled draft, got %#v", draft)
	}
	draft.Title = "New"
	draft.Priority = domain.PriorityHigh
	edited, err := svc.ConfirmEdit(ctx, task.ID, draft, alice)
	if err != nil {
		t.Fatalf("ConfirmEdit() error = %v", err)
	}
	if edited.ID != task.ID || edited.Status != domain.StatusInProgress || edited.ProjectID != project.ID || edited.AssignedTo != task.AssignedTo {
		t.Fatalf("edit touched immutable fields %#v", edited)
	}
	if edited.Title != "New" || edited.Priority != domain.PriorityHigh {
		t.Fatalf("edit did not apply %#v", edited)
	}

	draft.Title = "   "
	if _, err := svc.ConfirmEdit(ctx, task.ID, draft, alice); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEditAfterDeleteNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, CreateTaskInput{Title: "t", Actor: alice})
	draft, _ := svc.RequestEdit(ctx, task.ID)

	action, _ := svc.RequestDelete(ctx, task.ID)
	if err := svc.ConfirmDelete(ctx, action, alice); err != nil {
		t.Fatalf("ConfirmDelete() error = %v", err)
	}
	if _, err := svc.ConfirmEdit(ctx, task.ID, draft, alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentEditAndDeleteResolve(t *testing.T) {
	for range 20 {
		svc, repo, _ := newTestService(t)
		ctx := context.Background()
		task, _ := svc.CreateTask(ctx, CreateTaskInput{Title: "t", Actor: alice})
		draft, _ := svc.RequestEdit(ctx, task.ID)
		draft.Title = "edited"
		action, _ := svc.RequestDelete(ctx, task.ID)

		var (
			wg      sync.WaitGroup
			editErr error
			delErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, editErr = svc.ConfirmEdit(ctx, task.ID, draft, alice)
		}()
		go func() {
			defer wg.Done()
			delErr = svc.ConfirmDelete(ctx, action, alice)
		}()
		wg.Wait()

		if delErr != nil {
			t.Fatalf("ConfirmDelete() error = %v", delErr)
		}
		if editErr != nil && !errors.Is(editErr, ErrNotFound) {
			t.Fatalf("unexpected edit error %v", editErr)
		}
		if len(repo.tasks) != 0 {
			t.Fatalf("expected task removed, got %#v", repo.tasks)
		}
	}
}

func TestListMyTasksTabs(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "Assigned", AssignedTo: alice.Email, Actor: alice}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{Title: "Personal", Actor: alice}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{Title: "Someone else", Actor: Actor{UserID: "u-bob"}}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	cases := []struct {
		tab  TaskTab
		want []string
	}{
		{tab: TabAll, want: []string{"Assigned", "Personal"}},
		{tab: TabAssigned, want: []string{"Assigned"}},
		{tab: TabPersonal, want: []string{"Personal"}},
	}
	for _, tc := range cases {
		page, err := svc.ListMyTasks(ctx, alice, tc.tab, TaskQuery{})
		if err != nil {
			t.Fatalf("ListMyTasks(%q) error = %v", tc.tab, err)
		}
		got := taskTitles(page.Tasks)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("ListMyTasks(%q) = %v, want %v", tc.tab, got, tc.want)
		}
	}
	if _, err := svc.ListMyTasks(ctx, alice, "archived", TaskQuery{}); !errors.Is(err, ErrInvalidTab) {
		t.Fatalf("expected ErrInvalidTab, got %v", err)
	}
}

func TestProjectTasksBoardSortAndColumns(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	for _, in := range []CreateTaskInput{
		{Title: "low", Priority: domain.PriorityLow, DueDate: day(1)},
		{Title: "high-late", Priority: domain.PriorityHigh, DueDate: day(9)},
		{Title: "high-early", Priority: domain.PriorityHigh, DueDate: day(2)},
	} {
		in.ProjectID = project.ID
		in.AssignedTo = alice.Email
		in.Actor = alice
		if _, err := svc.CreateTask(ctx, in); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	page, err := svc.ProjectTasks(ctx, project.ID, TaskQuery{})
	if err != nil {
		t.Fatalf("ProjectTasks() error = %v", err)
	}
	if got := taskTitles(page.Tasks); !slices.Equal(got, []string{"high-early", "high-late", "low"}) {
		t.Fatalf("unexpected board order %v", got)
	}

	columns, err := svc.ProjectBoard(ctx, project.ID)
	if err != nil {
		t.Fatalf("ProjectBoard() error = %v", err)
	}
	if len(columns) != 3 || len(columns[0].Tasks) != 3 || len(columns[2].Tasks) != 0 {
		t.Fatalf("unexpected columns %#v", columns)
	}
	if _, err := svc.ProjectBoard(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMemberIdempotentByEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	first, err := svc.AddMember(ctx, project.ID, "jane.doe@example.com", alice)
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if !first.Created || first.Member.Name != "Jane Doe" || first.Member.Role != domain.RoleMember {
		t.Fatalf("unexpected member %#v", first)
	}
	again, err := svc.AddMember(ctx, project.ID, " Jane.Doe@Example.com ", alice)
	if err != nil {
		t.Fatalf("AddMember(repeat) error = %v", err)
	}
	if again.Created || again.Member.ID != first.Member.ID {
		t.Fatalf("expected idempotent add, got %#v", again)
	}
	invited, err := svc.InviteMember(ctx, project.ID, "jane.doe@example.com", alice)
	if err != nil {
		t.Fatalf("InviteMember() error = %v", err)
	}
	if invited.Created {
		t.Fatalf("expected invite of existing member to be a no-op")
	}
	members, _ := svc.ListMembers(ctx, project.ID)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if _, err := svc.AddMember(ctx, project.ID, "not-an-email", alice); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestJoinRequestReviewFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()
	bob := domain.Identity{UserID: "u-bob", Email: "bob@example.com", Avatar: "https://img/bob.png"}

	req, err := svc.SubmitJoinRequest(ctx, SubmitJoinRequestInput{ProjectID: project.ID, Requester: bob, Message: " let me in "})
	if err != nil {
		t.Fatalf("SubmitJoinRequest() error = %v", err)
	}
	if req.Status != domain.JoinRequestPending || req.Message != "let me in" {
		t.Fatalf("unexpected request %#v", req)
	}
	if _, err := svc.SubmitJoinRequest(ctx, SubmitJoinRequestInput{ProjectID: project.ID, Requester: bob}); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("expected ErrRequestPending, got %v", err)
	}

	result, err := svc.ReviewJoinRequest(ctx, req.ID, "approved", alice)
	if err != nil {
		t.Fatalf("ReviewJoinRequest() error = %v", err)
	}
	if result.Request.Status != domain.JoinRequestApproved || result.Member == nil || result.Member.Email != bob.Email {
		t.Fatalf("unexpected review result %#v", result)
	}
	if _, err := svc.ReviewJoinRequest(ctx, req.ID, "rejected", alice); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := svc.SubmitJoinRequest(ctx, SubmitJoinRequestInput{ProjectID: project.ID, Requester: bob}); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	members, _ := svc.ListMembers(ctx, project.ID)
	if len(members) != 2 {
		t.Fatalf("expected requester added once, got %d members", len(members))
	}
}

func TestRejectedJoinRequestAddsNoMember(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()
	req, err := svc.SubmitJoinRequest(ctx, SubmitJoinRequestInput{ProjectID: project.ID, Requester: domain.Identity{Email: "carol@example.com"}})
	if err != nil {
		t.Fatalf("SubmitJoinRequest() error = %v", err)
	}
	result, err := svc.ReviewJoinRequest(ctx, req.ID, "rejected", alice)
	if err != nil {
		t.Fatalf("ReviewJoinRequest() error = %v", err)
	}
	if result.Member != nil {
		t.Fatalf("rejection must not add a member")
	}
	if _, err := svc.ReviewJoinRequest(ctx, req.ID, "maybe", alice); !errors.Is(err, domain.ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestApproveJoinRequestLeavesRequestPendingOnFailure(t *testing.T) {
	svc, repo, clock := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	// A stored request without a usable email cannot become a member.
	repo.requests = append(repo.requests, domain.JoinRequest{
		ID:          "jr-broken",
		ProjectID:   project.ID,
		Requester:   domain.Identity{UserID: "u-x"},
		RequestDate: clock.Now(),
		Status:      domain.JoinRequestPending,
	})
	if _, err := svc.ReviewJoinRequest(ctx, "jr-broken", "approve", alice); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	stored, _ := repo.GetJoinRequest(ctx, "jr-broken")
	if stored.Status != domain.JoinRequestPending {
		t.Fatalf("failed approval must leave the request pending, got %q", stored.Status)
	}

	req, err := svc.SubmitJoinRequest(ctx, SubmitJoinRequestInput{ProjectID: project.ID, Requester: domain.Identity{Email: "dave@example.com"}})
	if err != nil {
		t.Fatalf("SubmitJoinRequest() error = %v", err)
	}
	repo.updateRequestErr = errors.New("disk full")
	if _, err := svc.ReviewJoinRequest(ctx, req.ID, "approve", alice); err == nil {
		t.Fatal("expected status write failure")
	}
	stored, _ = repo.GetJoinRequest(ctx, req.ID)
	if stored.Status != domain.JoinRequestPending {
		t.Fatalf("expected pending after failed status write, got %q", stored.Status)
	}

	result, err := svc.ReviewJoinRequest(ctx, req.ID, "approve", alice)
	if err != nil {
		t.Fatalf("retry ReviewJoinRequest() error = %v", err)
	}
	if result.Request.Status != domain.JoinRequestApproved || result.Member == nil || result.Member.Email != "dave@example.com" {
		t.Fatalf("unexpected retry result %#v", result)
	}
	members, _ := svc.ListMembers(ctx, project.ID)
	if len(members) != 2 {
		t.Fatalf("expected the requester added exactly once, got %d members", len(members))
	}
}

func TestCommentsSanitizedAndOrdered(t *testing.T) {
	repo := newFakeRepo()
	ids := 0
	svc := NewService(repo, func() string {
		ids++
		return fmt.Sprintf("c-%d", ids)
	}, func() time.Time {
		return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	}, ServiceConfig{Sanitize: func(s string) string { return "[" + s + "]" }})
	project := seedProject(t, svc)
	ctx := context.Background()

	for _, msg := range []string{"first", "second"} {
		if _, err := svc.AddComment(ctx, project.ID, msg, alice); err != nil {
			t.Fatalf("AddComment() error = %v", err)
		}
	}
	comments, err := svc.ListComments(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 || comments[0].Message != "[first]" || comments[1].AuthorName != "Alice" {
		t.Fatalf("unexpected comments %#v", comments)
	}
	if _, err := svc.AddComment(ctx, "missing", "hi", alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectDetailAndActivity(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()
	if _, err := svc.AddComment(ctx, project.ID, "hello", alice); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := svc.AddMember(ctx, project.ID, "dan@example.com", alice); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	detail, err := svc.GetProjectDetail(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProjectDetail() error = %v", err)
	}
	if len(detail.Members) != 2 || len(detail.Comments) != 1 || len(detail.Tasks) != 0 {
		t.Fatalf("unexpected detail %#v", detail)
	}

	events, err := svc.ListProjectActivity(ctx, project.ID, 1)
	if err != nil {
		t.Fatalf("ListProjectActivity() error = %v", err)
	}
	if len(events) != 1 || events[0].EntityType != domain.EntityMember {
		t.Fatalf("expected newest member event, got %#v", events)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, RegisterUserInput{Email: "Erin@Example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}
	if user.PasswordHash == "s3cret" || user.Email != "erin@example.com" {
		t.Fatalf("unexpected user %#v", user)
	}
	if _, err := svc.RegisterUser(ctx, RegisterUserInput{Email: "erin@example.com", Password: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	identity, err := svc.Authenticate(ctx, "erin@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if identity.UserID != user.ID || identity.Name != "Erin" {
		t.Fatalf("unexpected identity %#v", identity)
	}
	if _, err := svc.Authenticate(ctx, "erin@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown user, got %v", err)
	}

	byEmail, err := svc.LookupUserByEmail(ctx, " ERIN@example.com ")
	if err != nil {
		t.Fatalf("LookupUserByEmail() error = %v", err)
	}
	if byEmail.UserID != user.ID {
		t.Fatalf("unexpected identity by email %#v", byEmail)
	}
	if _, err := svc.LookupUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func taskTitles(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}
