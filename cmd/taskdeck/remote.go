package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evanschultz/taskdeck/internal/adapters/auth"
	servercommon "github.com/evanschultz/taskdeck/internal/adapters/server/common"
	"github.com/evanschultz/taskdeck/internal/platform"
)

// remoteSession is the persisted login for remote commands.
type remoteSession struct {
	BaseURL string            `json:"base_url"`
	Tokens  auth.TokenPayload `json:"tokens"`
}

// loadRemoteSession reads the saved session file.
func loadRemoteSession(path string) (remoteSession, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return remoteSession{}, errors.New("not logged in; run `taskdeck remote login` first")
		}
		return remoteSession{}, fmt.Errorf("read session: %w", err)
	}
	var session remoteSession
	if err := json.Unmarshal(content, &session); err != nil {
		return remoteSession{}, fmt.Errorf("decode session: %w", err)
	}
	if session.BaseURL == "" || session.Tokens.RefreshToken == "" {
		return remoteSession{}, errors.New("session file is incomplete; log in again")
	}
	return session, nil
}

// saveRemoteSession writes the session file with owner-only permissions.
func saveRemoteSession(paths platform.Paths, session remoteSession) error {
	encoded, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := paths.EnsureSessionDir(); err != nil {
		return err
	}
	if err := os.WriteFile(paths.SessionPath, append(encoded, '\n'), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// remoteClient builds an auth client that persists rotated tokens back to the session file.
func (s *cliState) remoteClient() (*auth.Client, error) {
	session, err := loadRemoteSession(s.paths.SessionPath)
	if err != nil {
		return nil, err
	}
	return auth.NewClient(auth.ClientConfig{
		BaseURL: session.BaseURL,
		Logger:  s.logger.HTTP(),
		OnRefresh: func(tokens auth.TokenPayload) {
			session.Tokens = tokens
			if err := saveRemoteSession(s.paths, session); err != nil {
				s.logger.Warn("persist refreshed session failed", "err", err)
			}
		},
	}, session.Tokens), nil
}

func newRemoteCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "remote", Short: "Work against a running taskdeck server"}

	var baseURL, email, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := auth.NewClient(auth.ClientConfig{BaseURL: baseURL, Logger: state.logger.HTTP()}, auth.TokenPayload{})
			tokens, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			session := remoteSession{BaseURL: strings.TrimRight(baseURL, "/"), Tokens: tokens}
			if err := saveRemoteSession(state.paths, session); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s <%s>\n", tokens.User.Name, tokens.User.Email)
			return nil
		},
	}
	login.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base URL")
	login.Flags().StringVar(&email, "email", "", "login email")
	login.Flags().StringVar(&password, "password", "", "login password")
	_ = login.MarkFlagRequired("email")
	_ = login.MarkFlagRequired("password")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the saved session and remove it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := loadRemoteSession(state.paths.SessionPath)
			if err != nil {
				return err
			}
			client, err := state.remoteClient()
			if err != nil {
				return err
			}
			body := map[string]string{"refresh_token": session.Tokens.RefreshToken}
			if err := client.DoJSON(cmd.Context(), "POST", "/api/v1/auth/logout", body, nil); err != nil {
				state.logger.Warn("remote logout failed; removing local session anyway", "err", err)
			}
			if err := os.Remove(state.paths.SessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove session: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}

	projects := &cobra.Command{
		Use:   "projects",
		Short: "List projects on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := state.remoteClient()
			if err != nil {
				return err
			}
			var out struct {
				Projects []servercommon.Project `json:"projects"`
			}
			if err := client.DoJSON(cmd.Context(), "GET", "/api/v1/projects", nil, &out); err != nil {
				return err
			}
			renderProjects(cmd.OutOrStdout(), out.Projects)
			return nil
		},
	}

	var (
		listFlags taskListFlags
		projectID string
		tab       string
	)
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := state.remoteClient()
			if err != nil {
				return err
			}
			page, err := fetchRemoteTasks(cmd.Context(), client, projectID, tab, listFlags)
			if err != nil {
				return err
			}
			renderTaskPage(cmd.OutOrStdout(), page)
			return nil
		},
	}
	listFlags.register(tasks)
	tasks.Flags().StringVar(&projectID, "project", "", "project id; omit to list your own tasks")
	tasks.Flags().StringVar(&tab, "tab", "all", "all, assigned, or personal")

	cmd.AddCommand(login, logout, projects, tasks)
	return cmd
}

// fetchRemoteTasks lists project tasks or the caller's tasks through the REST API.
func fetchRemoteTasks(ctx context.Context, client *auth.Client, projectID, tab string, f taskListFlags) (servercommon.TaskPage, error) {
	query := url.Values{}
	for key, value := range map[string]string{"search": f.search, "priority": f.priority, "from": f.from, "to": f.to} {
		if strings.TrimSpace(value) != "" {
			query.Set(key, value)
		}
	}
	if f.page > 0 {
		query.Set("page", strconv.Itoa(f.page))
	}

	path := "/api/v1/me/tasks"
	if strings.TrimSpace(projectID) != "" {
		path = "/api/v1/projects/" + url.PathEscape(projectID) + "/tasks"
	} else if strings.TrimSpace(tab) != "" {
		query.Set("tab", tab)
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page servercommon.TaskPage
	if err := client.DoJSON(ctx, "GET", path, nil, &page); err != nil {
		return servercommon.TaskPage{}, err
	}
	return page, nil
}
