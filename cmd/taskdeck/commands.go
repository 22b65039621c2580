package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	servercommon "github.com/evanschultz/taskdeck/internal/adapters/server/common"
	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
)

func newUserCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage login identities"}

	var name, email, password, avatar string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user with a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				user, err := b.svc.RegisterUser(ctx, app.RegisterUserInput{
					Name:     name,
					Email:    email,
					Avatar:   avatar,
					Password: password,
				})
				if err != nil {
					return fmt.Errorf("register user: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registered %s <%s> id=%s\n", user.Name, user.Email, user.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name (defaults to one derived from the email)")
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&password, "password", "", "login password")
	add.Flags().StringVar(&avatar, "avatar", "", "avatar URL")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}

func newProjectsCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "projects", Aliases: []string{"project"}, Short: "List, create, and inspect projects"}

	var projectSearch string
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				projects, err := b.adapter.ListProjects(ctx, projectSearch)
				if err != nil {
					return err
				}
				renderProjects(cmd.OutOrStdout(), projects)
				return nil
			})
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project; the acting user becomes its admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				project, err := b.adapter.CreateProject(ctx, servercommon.CreateProjectRequest{Name: args[0], Description: description}, actor)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created project %q id=%s\n", project.Name, project.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "project description")

	show := &cobra.Command{
		Use:   "show PROJECT_ID",
		Short: "Show a project with its members, comments, and join requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				detail, err := b.adapter.GetProjectDetail(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "%s (%s)\n", detail.Project.Name, detail.Project.ID)
				if detail.Project.Description != "" {
					_, _ = fmt.Fprintln(out, detail.Project.Description)
				}
				_, _ = fmt.Fprintln(out, "\nMembers")
				renderMembers(out, detail.Members)
				_, _ = fmt.Fprintln(out, "\nTasks")
				renderTasks(out, detail.Tasks)
				_, _ = fmt.Fprintln(out, "\nComments")
				renderComments(out, detail.Comments)
				_, _ = fmt.Fprintln(out, "\nJoin requests")
				renderJoinRequests(out, detail.JoinRequests)
				return nil
			})
		},
	}

	board := &cobra.Command{
		Use:   "board PROJECT_ID",
		Short: "Show project tasks grouped by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				columns, err := b.adapter.ProjectBoard(ctx, args[0])
				if err != nil {
					return err
				}
				renderBoard(cmd.OutOrStdout(), columns)
				return nil
			})
		},
	}

	var limit int
	activity := &cobra.Command{
		Use:   "activity PROJECT_ID",
		Short: "Show recent project activity, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				events, err := b.adapter.ProjectActivity(ctx, args[0], limit)
				if err != nil {
					return err
				}
				renderActivity(cmd.OutOrStdout(), events)
				return nil
			})
		},
	}
	activity.Flags().IntVar(&limit, "limit", 20, "maximum events to show")
	list.Flags().StringVar(&projectSearch, "search", "", "case-insensitive project name search")

	cmd.AddCommand(list, create, show, board, activity)
	return cmd
}

// taskListFlags holds shared list criteria flags.
type taskListFlags struct {
	search   string
	priority string
	from     string
	to       string
	page     int
}

func (f *taskListFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive title or description search")
	cmd.Flags().StringVar(&f.priority, "priority", "", "high, medium, or low")
	cmd.Flags().StringVar(&f.from, "from", "", "due after YYYY-MM-DD (exclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "due before YYYY-MM-DD (exclusive)")
	cmd.Flags().IntVar(&f.page, "page", 1, "1-based page number")
}

func (f taskListFlags) request() servercommon.TaskListRequest {
	return servercommon.TaskListRequest{
		Search:   f.search,
		Priority: f.priority,
		From:     f.from,
		To:       f.to,
		Page:     f.page,
	}
}

func newTasksCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "tasks", Aliases: []string{"task"}, Short: "Query and change tasks"}

	var (
		listFlags taskListFlags
		projectID string
		tab       string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List project tasks, or your own tasks by tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				var (
					page servercommon.TaskPage
					err  error
				)
				if strings.TrimSpace(projectID) != "" {
					page, err = b.adapter.ProjectTasks(ctx, projectID, listFlags.request())
				} else {
					actor, actorErr := state.actor(ctx, b)
					if actorErr != nil {
						return actorErr
					}
					page, err = b.adapter.MyTasks(ctx, actor, tab, listFlags.request())
				}
				if err != nil {
					return err
				}
				renderTaskPage(cmd.OutOrStdout(), page)
				return nil
			})
		},
	}
	listFlags.register(list)
	list.Flags().StringVar(&projectID, "project", "", "project id; omit to list your own tasks")
	list.Flags().StringVar(&tab, "tab", "all", "all, assigned, or personal")

	var create servercommon.CreateTaskRequest
	createCmd := &cobra.Command{
		Use:   "create TITLE",
		Short: "Create a project task, or a personal task without --project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				req := create
				req.Title = args[0]
				task, err := b.adapter.CreateTask(ctx, req, actor)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created task %q id=%s due=%s priority=%s\n", task.Title, task.ID, task.DueDate, task.Priority)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&create.ProjectID, "project", "", "project id")
	createCmd.Flags().StringVar(&create.Description, "description", "", "task description")
	createCmd.Flags().StringVar(&create.DueDate, "due", "", "due date YYYY-MM-DD (default today)")
	createCmd.Flags().StringVar(&create.Priority, "priority", "", "high, medium, or low (default medium)")
	createCmd.Flags().StringVar(&create.AssignedTo, "assign", "", "assignee member id or email (project tasks only)")

	var edit servercommon.EditTaskRequest
	editCmd := &cobra.Command{
		Use:   "edit TASK_ID",
		Short: "Edit task fields; unset flags keep their current values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				draft, err := b.adapter.TaskDraft(ctx, args[0])
				if err != nil {
					return err
				}
				req := servercommon.EditTaskRequest{
					TaskID:      args[0],
					Title:       draft.Title,
					Description: draft.Description,
					Priority:    draft.Priority,
					DueDate:     draft.DueDate,
				}
				flags := cmd.Flags()
				if flags.Changed("title") {
					req.Title = edit.Title
				}
				if flags.Changed("description") {
					req.Description = edit.Description
				}
				if flags.Changed("priority") {
					req.Priority = edit.Priority
				}
				if flags.Changed("due") {
					req.DueDate = edit.DueDate
				}
				task, err := b.adapter.EditTask(ctx, req, actor)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "updated task %q id=%s\n", task.Title, task.ID)
				return nil
			})
		},
	}
	editCmd.Flags().StringVar(&edit.Title, "title", "", "new title")
	editCmd.Flags().StringVar(&edit.Description, "description", "", "new description")
	editCmd.Flags().StringVar(&edit.Priority, "priority", "", "new priority")
	editCmd.Flags().StringVar(&edit.DueDate, "due", "", "new due date YYYY-MM-DD")

	var statusYes bool
	status := &cobra.Command{
		Use:   "status TASK_ID STATUS",
		Short: "Move a task to todo, in-progress, or completed after confirmation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				action, err := b.adapter.RequestStatusChange(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				prompt := fmt.Sprintf("Move task %s to %s? [y/N]: ", action.TaskID, action.Status)
				return confirmAndApply(ctx, cmd, b, action, actor, prompt, statusYes)
			})
		},
	}
	status.Flags().BoolVarP(&statusYes, "yes", "y", false, "confirm without prompting")

	var deleteYes bool
	deleteCmd := &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Delete a task after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				action, err := b.adapter.RequestDelete(ctx, args[0])
				if err != nil {
					return err
				}
				prompt := fmt.Sprintf("Delete task %s? [y/N]: ", action.TaskID)
				return confirmAndApply(ctx, cmd, b, action, actor, prompt, deleteYes)
			})
		},
	}
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "confirm without prompting")

	cmd.AddCommand(list, createCmd, editCmd, status, deleteCmd)
	return cmd
}

// confirmAndApply asks for confirmation unless skipped, then applies or discards the pending action.
func confirmAndApply(ctx context.Context, cmd *cobra.Command, b *backend, action servercommon.PendingAction, actor domain.Identity, prompt string, skip bool) error {
	out := cmd.OutOrStdout()
	if !skip {
		ok, err := promptYesNo(cmd.InOrStdin(), out, prompt)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(out, "cancelled; no changes made")
			return nil
		}
	}
	result, err := b.adapter.ConfirmAction(ctx, action, actor)
	if err != nil {
		return err
	}
	if result.Deleted {
		_, _ = fmt.Fprintf(out, "deleted task %s\n", action.TaskID)
		return nil
	}
	_, _ = fmt.Fprintf(out, "task %s is now %s\n", result.Task.ID, result.Task.Status)
	return nil
}

// promptYesNo reads one y/n answer, defaulting to no on empty input or EOF.
func promptYesNo(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func newMembersCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "members", Aliases: []string{"member"}, Short: "List and add project members"}

	list := &cobra.Command{
		Use:   "list PROJECT_ID",
		Short: "List project members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				members, err := b.adapter.ListMembers(ctx, args[0])
				if err != nil {
					return err
				}
				renderMembers(cmd.OutOrStdout(), members)
				return nil
			})
		},
	}

	var invite bool
	add := &cobra.Command{
		Use:   "add PROJECT_ID EMAIL",
		Short: "Add or invite a member by email; repeating an email is a no-op",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				addFn := b.adapter.AddMember
				if invite {
					addFn = b.adapter.InviteMember
				}
				result, err := addFn(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				verb := "already a member"
				if result.Created {
					verb = "added"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s <%s> id=%s\n", verb, result.Member.Name, result.Member.Email, result.Member.ID)
				return nil
			})
		},
	}
	add.Flags().BoolVar(&invite, "invite", false, "record the add as an invitation")

	cmd.AddCommand(list, add)
	return cmd
}

func newCommentsCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "comments", Aliases: []string{"comment"}, Short: "Read and post project comments"}

	list := &cobra.Command{
		Use:   "list PROJECT_ID",
		Short: "List project comments in posting order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				comments, err := b.adapter.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				renderComments(cmd.OutOrStdout(), comments)
				return nil
			})
		},
	}

	add := &cobra.Command{
		Use:   "add PROJECT_ID MESSAGE",
		Short: "Post a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				comment, err := b.adapter.AddComment(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "posted comment id=%s\n", comment.ID)
				return nil
			})
		},
	}

	cmd.AddCommand(list, add)
	return cmd
}

func newRequestsCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "requests", Aliases: []string{"request"}, Short: "Submit and review join requests"}

	list := &cobra.Command{
		Use:   "list PROJECT_ID",
		Short: "List join requests for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				requests, err := b.adapter.ListJoinRequests(ctx, args[0])
				if err != nil {
					return err
				}
				renderJoinRequests(cmd.OutOrStdout(), requests)
				return nil
			})
		},
	}

	var message string
	submit := &cobra.Command{
		Use:   "submit PROJECT_ID",
		Short: "Ask to join a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				req, err := b.adapter.SubmitJoinRequest(ctx, args[0], message, actor)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "submitted join request id=%s\n", req.ID)
				return nil
			})
		},
	}
	submit.Flags().StringVar(&message, "message", "", "note for the reviewers")

	review := &cobra.Command{
		Use:   "review REQUEST_ID approve|reject",
		Short: "Approve or reject a pending join request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				actor, err := state.actor(ctx, b)
				if err != nil {
					return err
				}
				result, err := b.adapter.ReviewJoinRequest(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "join request %s %s\n", result.Request.ID, result.Request.Status)
				if result.Member != nil {
					_, _ = fmt.Fprintf(out, "member %s <%s> id=%s\n", result.Member.Name, result.Member.Email, result.Member.ID)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, submit, review)
	return cmd
}
