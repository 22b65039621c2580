// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evanschultz/taskdeck/internal/adapters/server/common"
	"github.com/evanschultz/taskdeck/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the task workflow tools.
func NewHandler(cfg Config, service common.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("taskdeck service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerQueryTools(mcpSrv, service)
	registerWorkflowTools(mcpSrv, service)
	registerMembershipTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "taskdeck"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// actorOptions declares the optional caller identity carried by mutating tools.
func actorOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("actor_id", mcp.Description("Calling user id")),
		mcp.WithString("actor_name", mcp.Description("Calling user display name")),
		mcp.WithString("actor_email", mcp.Description("Calling user email")),
	}
}

// actorFrom reads the optional caller identity from tool arguments.
func actorFrom(req mcp.CallToolRequest) domain.Identity {
	return domain.Identity{
		UserID: strings.TrimSpace(req.GetString("actor_id", "")),
		Name:   strings.TrimSpace(req.GetString("actor_name", "")),
		Email:  strings.TrimSpace(req.GetString("actor_email", "")),
	}
}

// tool builds one tool definition with the shared actor options appended when asked.
func tool(name, description string, withActor bool, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)
	if withActor {
		all = append(all, actorOptions()...)
	}
	return mcp.NewTool(name, all...)
}

// jsonResult encodes one tool payload.
func jsonResult(name string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	return result, nil
}

// registerQueryTools registers `taskdeck.list_projects`, `taskdeck.query_tasks`, and `taskdeck.project_board`.
func registerQueryTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		tool("taskdeck.list_projects",
			"List projects in creation order, optionally narrowed by a case-insensitive name search.",
			false,
			mcp.WithString("search", mcp.Description("Case-insensitive project name substring")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projects, err := service.ListProjects(ctx, req.GetString("search", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_projects", map[string]any{"projects": projects})
		},
	)

	srv.AddTool(
		tool("taskdeck.query_tasks",
			"Filter and paginate tasks. With project_id, lists the project board-sorted; without it, lists the actor's assigned and personal tasks.",
			true,
			mcp.WithString("project_id", mcp.Description("Project identifier; omit for the actor's own tasks")),
			mcp.WithString("tab", mcp.Description("Own-task tab"), mcp.Enum("all", "assigned", "personal")),
			mcp.WithString("search", mcp.Description("Case-insensitive title/description substring")),
			mcp.WithString("priority", mcp.Description("Priority filter"), mcp.Enum("all", "high", "medium", "low")),
			mcp.WithString("from", mcp.Description("Exclusive lower due-date bound (YYYY-MM-DD)")),
			mcp.WithString("to", mcp.Description("Exclusive upper due-date bound (YYYY-MM-DD)")),
			mcp.WithNumber("page", mcp.Description("1-based page number")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list := common.TaskListRequest{
				Search:   req.GetString("search", ""),
				Priority: req.GetString("priority", ""),
				From:     req.GetString("from", ""),
				To:       req.GetString("to", ""),
				Page:     req.GetInt("page", 1),
			}
			var (
				page common.TaskPage
				err  error
			)
			if projectID := strings.TrimSpace(req.GetString("project_id", "")); projectID != "" {
				page, err = service.ProjectTasks(ctx, projectID, list)
			} else {
				actor := actorFrom(req)
				if actor.UserID == "" && actor.Email == "" {
					return mcp.NewToolResultError("invalid_request: project_id or actor_id/actor_email is required"), nil
				}
				page, err = service.MyTasks(ctx, actor, req.GetString("tab", ""), list)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("query_tasks", page)
		},
	)

	srv.AddTool(
		tool("taskdeck.project_board",
			"Return one project's tasks grouped into Todo, In Progress, and Completed columns.",
			false,
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			columns, err := service.ProjectBoard(ctx, projectID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("project_board", map[string]any{"columns": columns})
		},
	)
}

// registerWorkflowTools registers task creation and the two-phase status/delete tools.
func registerWorkflowTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		tool("taskdeck.create_task",
			"Create a project task assigned to a member, or a personal task when project_id is omitted.",
			true,
			mcp.WithString("project_id", mcp.Description("Project identifier; omit for a personal task")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("description", mcp.Description("Task description")),
			mcp.WithString("due_date", mcp.Description("Due date (YYYY-MM-DD); defaults to today")),
			mcp.WithString("priority", mcp.Description("Task priority"), mcp.Enum("high", "medium", "low")),
			mcp.WithString("assigned_to", mcp.Description("Member id or email; required for project tasks")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := service.CreateTask(ctx, common.CreateTaskRequest{
				ProjectID:   req.GetString("project_id", ""),
				Title:       title,
				Description: req.GetString("description", ""),
				DueDate:     req.GetString("due_date", ""),
				Priority:    req.GetString("priority", ""),
				AssignedTo:  req.GetString("assigned_to", ""),
			}, actorFrom(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_task", task)
		},
	)

	srv.AddTool(
		tool("taskdeck.request_status_change",
			"Validate a status change and return a pending action. Nothing changes until taskdeck.confirm_action.",
			false,
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target status"), mcp.Enum("todo", "in-progress", "completed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			status, err := req.RequireString("status")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			action, err := service.RequestStatusChange(ctx, taskID, status)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("request_status_change", action)
		},
	)

	srv.AddTool(
		tool("taskdeck.request_delete",
			"Return a pending delete for one task. Nothing is removed until taskdeck.confirm_action.",
			false,
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			action, err := service.RequestDelete(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("request_delete", action)
		},
	)

	srv.AddTool(
		tool("taskdeck.confirm_action",
			"Commit a pending action exactly as returned by a request_* tool.",
			true,
			mcp.WithString("kind", mcp.Required(), mcp.Description("Pending action kind"), mcp.Enum("status_change", "delete")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("status", mcp.Description("Target status for status_change")),
			mcp.WithString("requested_at", mcp.Required(), mcp.Description("RFC3339 request time")),
			mcp.WithString("expires_at", mcp.Required(), mcp.Description("RFC3339 expiry time")),
			mcp.WithString("signature", mcp.Required(), mcp.Description("Signature returned with the pending action")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			kind, err := req.RequireString("kind")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			requestedAt, err := parseOptionalRFC3339(req.GetString("requested_at", ""))
			if err != nil {
				return mcp.NewToolResultError("invalid_request: requested_at: " + err.Error()), nil
			}
			expiresAt, err := parseOptionalRFC3339(req.GetString("expires_at", ""))
			if err != nil {
				return mcp.NewToolResultError("invalid_request: expires_at: " + err.Error()), nil
			}
			result, err := service.ConfirmAction(ctx, common.PendingAction{
				Kind:        kind,
				TaskID:      taskID,
				Status:      req.GetString("status", ""),
				RequestedAt: requestedAt,
				ExpiresAt:   expiresAt,
				Signature:   req.GetString("signature", ""),
			}, actorFrom(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("confirm_action", result)
		},
	)
}

// registerMembershipTools registers member and join-request tools.
func registerMembershipTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		tool("taskdeck.add_member",
			"Add a member by email. Repeating an existing email returns the existing member.",
			true,
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("email", mcp.Required(), mcp.Description("Member email")),
			mcp.WithBoolean("invite", mcp.Description("Record the add as an invitation")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			email, err := req.RequireString("email")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			add := service.AddMember
			if req.GetBool("invite", false) {
				add = service.InviteMember
			}
			result, err := add(ctx, projectID, email, actorFrom(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_member", result)
		},
	)

	srv.AddTool(
		tool("taskdeck.review_join_request",
			"Approve or reject a pending join request. Approval adds the requester as a member.",
			true,
			mcp.WithString("request_id", mcp.Required(), mcp.Description("Join request identifier")),
			mcp.WithString("decision", mcp.Required(), mcp.Description("Decision"), mcp.Enum("approved", "rejected")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			requestID, err := req.RequireString("request_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			decision, err := req.RequireString("decision")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := service.ReviewJoinRequest(ctx, requestID, decision, actorFrom(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("review_join_request", result)
		},
	)
}

// parseOptionalRFC3339 parses one optional timestamp.
func parseOptionalRFC3339(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrInvalidStateTransition):
		return mcp.NewToolResultError("invalid_state_transition: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
