package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evanschultz/taskdeck/internal/adapters/storage/memory"
	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
)

var owner = domain.Identity{UserID: "u-owner", Name: "Owner", Email: "owner@example.com"}

// newTestAdapter builds an adapter over an in-memory app service with deterministic ids.
func newTestAdapter(t *testing.T, now time.Time) *AppServiceAdapter {
	t.Helper()
	seq := 0
	svc := app.NewService(memory.New(), func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}, func() time.Time { return now }, app.ServiceConfig{})
	return NewAppServiceAdapter(svc)
}

// TestAdapterTaskWorkflowRoundTrip verifies pending actions survive the wire form.
func TestAdapterTaskWorkflowRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Roadmap"}, owner)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	task, err := adapter.CreateTask(ctx, CreateTaskRequest{
		ProjectID:  project.ID,
		Title:      "Ship",
		DueDate:    "2026-03-10",
		Priority:   "High",
		AssignedTo: owner.Email,
	}, owner)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.DueDate != "2026-03-10" || task.Priority != "high" || task.Status != "todo" || task.Personal {
		t.Fatalf("unexpected task %#v", task)
	}

	pending, err := adapter.RequestStatusChange(ctx, task.ID, "completed")
	if err != nil {
		t.Fatalf("RequestStatusChange() error = %v", err)
	}
	if pending.Kind != "status_change" || pending.Status != "completed" {
		t.Fatalf("unexpected pending action %#v", pending)
	}
	result, err := adapter.ConfirmAction(ctx, pending, owner)
	if err != nil {
		t.Fatalf("ConfirmAction() error = %v", err)
	}
	if result.Task.Status != "completed" || result.Deleted {
		t.Fatalf("unexpected action result %#v", result)
	}

	board, err := adapter.ProjectBoard(ctx, project.ID)
	if err != nil {
		t.Fatalf("ProjectBoard() error = %v", err)
	}
	if len(board) != 3 || len(board[2].Tasks) != 1 || board[2].Status != "completed" {
		t.Fatalf("unexpected board %#v", board)
	}

	del, err := adapter.RequestDelete(ctx, task.ID)
	if err != nil {
		t.Fatalf("RequestDelete() error = %v", err)
	}
	if _, err := adapter.ConfirmAction(ctx, del, owner); err != nil {
		t.Fatalf("ConfirmAction(delete) error = %v", err)
	}
	if _, err := adapter.TaskDraft(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestAdapterErrorMapping verifies app errors map onto transport sentinels.
func TestAdapterErrorMapping(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	if _, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "  "}, owner); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := adapter.GetProjectDetail(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := adapter.CreateTask(ctx, CreateTaskRequest{Title: "x", DueDate: "tomorrow"}, owner); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid due date to map to ErrInvalidRequest, got %v", err)
	}

	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Roadmap"}, owner)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	requester := domain.Identity{UserID: "u2", Name: "Bea", Email: "bea@example.com"}
	req, err := adapter.SubmitJoinRequest(ctx, project.ID, "let me in", requester)
	if err != nil {
		t.Fatalf("SubmitJoinRequest() error = %v", err)
	}
	review, err := adapter.ReviewJoinRequest(ctx, req.ID, "approved", owner)
	if err != nil {
		t.Fatalf("ReviewJoinRequest() error = %v", err)
	}
	if review.Member == nil || review.Member.Email != "bea@example.com" {
		t.Fatalf("expected approval to add member, got %#v", review)
	}
	if _, err := adapter.ReviewJoinRequest(ctx, req.ID, "rejected", owner); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

// TestAdapterListCriteria verifies raw list criteria are parsed leniently.
func TestAdapterListCriteria(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	for i, due := range []string{"2026-03-02", "2026-03-05", "2026-03-09"} {
		if _, err := adapter.CreateTask(ctx, CreateTaskRequest{Title: fmt.Sprintf("t%d", i), DueDate: due}, owner); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	page, err := adapter.MyTasks(ctx, owner, "personal", TaskListRequest{From: "2026-03-02", To: "2026-03-09"})
	if err != nil {
		t.Fatalf("MyTasks() error = %v", err)
	}
	if page.TotalItems != 1 || page.Tasks[0].Title != "t1" {
		t.Fatalf("expected exclusive range to keep only t1, got %#v", page)
	}

	page, err = adapter.MyTasks(ctx, owner, "", TaskListRequest{From: "garbage", To: "2026-03-09", Priority: "urgent"})
	if err != nil {
		t.Fatalf("MyTasks() error = %v", err)
	}
	if page.TotalItems != 3 {
		t.Fatalf("expected invalid criteria to mean no filter, got %d items", page.TotalItems)
	}

	if _, err := adapter.MyTasks(ctx, owner, "archived", TaskListRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid tab to fail, got %v", err)
	}
}
