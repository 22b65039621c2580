package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "taskdeck.snapshot.v1"

// Snapshot is a portable copy of every entity in one store.
type Snapshot struct {
	Version      string                `json:"version"`
	ExportedAt   time.Time             `json:"exported_at"`
	Users        []SnapshotUser        `json:"users"`
	Projects     []SnapshotProject     `json:"projects"`
	Tasks        []SnapshotTask        `json:"tasks"`
	Members      []SnapshotMember      `json:"members"`
	Comments     []SnapshotComment     `json:"comments,omitempty"`
	JoinRequests []SnapshotJoinRequest `json:"join_requests,omitempty"`
}

// SnapshotUser carries the password hash so imported accounts can still log in.
type SnapshotUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type SnapshotProject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SnapshotTask stores due dates as calendar days; an empty project_id marks a personal task.
type SnapshotTask struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	DueDate     string          `json:"due_date"`
	Priority    domain.Priority `json:"priority"`
	Status      domain.Status   `json:"status"`
	AssignedBy  string          `json:"assigned_by,omitempty"`
	AssignedTo  string          `json:"assigned_to,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type SnapshotMember struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Avatar    string      `json:"avatar,omitempty"`
	Role      domain.Role `json:"role"`
	JoinedAt  time.Time   `json:"joined_at"`
}

type SnapshotComment struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type SnapshotJoinRequest struct {
	ID              string                   `json:"id"`
	ProjectID       string                   `json:"project_id"`
	RequesterID     string                   `json:"requester_id"`
	RequesterName   string                   `json:"requester_name"`
	RequesterEmail  string                   `json:"requester_email"`
	RequesterAvatar string                   `json:"requester_avatar,omitempty"`
	Message         string                   `json:"message,omitempty"`
	RequestDate     time.Time                `json:"request_date"`
	Status          domain.JoinRequestStatus `json:"status"`
	ReviewedBy      string                   `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time               `json:"reviewed_at,omitempty"`
}

// ExportSnapshot collects users, projects with their children, and every personal task.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, u := range users {
		snap.Users = append(snap.Users, snapshotUserFromDomain(u))
		personal, err := s.repo.ListPersonalTasks(ctx, u.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, t := range personal {
			snap.Tasks = append(snap.Tasks, snapshotTaskFromDomain(t))
		}
	}

	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, p := range projects {
		snap.Projects = append(snap.Projects, snapshotProjectFromDomain(p))

		tasks, err := s.repo.ListProjectTasks(ctx, p.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, t := range tasks {
			snap.Tasks = append(snap.Tasks, snapshotTaskFromDomain(t))
		}

		members, err := s.repo.ListMembers(ctx, p.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, m := range members {
			snap.Members = append(snap.Members, snapshotMemberFromDomain(m))
		}

		comments, err := s.repo.ListComments(ctx, p.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, c := range comments {
			snap.Comments = append(snap.Comments, snapshotCommentFromDomain(c))
		}

		requests, err := s.repo.ListJoinRequests(ctx, p.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, jr := range requests {
			snap.JoinRequests = append(snap.JoinRequests, snapshotJoinRequestFromDomain(jr))
		}
	}

	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts projects, tasks, and join requests. Users, members, and comments
// are append-only: entries whose id already exists are left untouched.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	for _, su := range snap.Users {
		if _, err := s.repo.GetUser(ctx, su.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateUser(ctx, su.toDomain()); err != nil {
			return fmt.Errorf("import user %s: %w", su.Email, err)
		}
	}

	for _, sp := range snap.Projects {
		p := sp.toDomain()
		if _, err := s.repo.GetProject(ctx, p.ID); err == nil {
			if err := s.repo.UpdateProject(ctx, p); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateProject(ctx, p); err != nil {
			return err
		}
	}

	for _, st := range snap.Tasks {
		t, err := st.toDomain()
		if err != nil {
			return err
		}
		if _, err := s.repo.GetTask(ctx, t.ID); err == nil {
			if err := s.repo.UpdateTask(ctx, t); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateTask(ctx, t); err != nil {
			return err
		}
	}

	for _, sm := range snap.Members {
		if _, err := s.repo.GetMember(ctx, sm.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.AddMember(ctx, sm.toDomain()); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}

	if err := s.importSnapshotComments(ctx, snap.Comments); err != nil {
		return err
	}

	for _, sr := range snap.JoinRequests {
		jr := sr.toDomain()
		if _, err := s.repo.GetJoinRequest(ctx, jr.ID); err == nil {
			if err := s.repo.UpdateJoinRequest(ctx, jr); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateJoinRequest(ctx, jr); err != nil {
			return err
		}
	}
	return nil
}

// importSnapshotComments inserts comments whose ids are not yet stored for their project.
func (s *Service) importSnapshotComments(ctx context.Context, comments []SnapshotComment) error {
	existing := map[string]map[string]struct{}{}
	for _, sc := range comments {
		seen, ok := existing[sc.ProjectID]
		if !ok {
			stored, err := s.repo.ListComments(ctx, sc.ProjectID)
			if err != nil {
				return err
			}
			seen = make(map[string]struct{}, len(stored))
			for _, c := range stored {
				seen[c.ID] = struct{}{}
			}
			existing[sc.ProjectID] = seen
		}
		if _, dup := seen[sc.ID]; dup {
			continue
		}
		if err := s.repo.CreateComment(ctx, sc.toDomain()); err != nil {
			return err
		}
		seen[sc.ID] = struct{}{}
	}
	return nil
}

// Validate checks ids, references, and enum values before anything is written.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	userIDs := map[string]struct{}{}
	for i, u := range s.Users {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("users[%d].id is required", i)
		}
		if _, err := domain.NormalizeEmail(u.Email); err != nil {
			return fmt.Errorf("users[%d].email: %w", i, err)
		}
		if strings.TrimSpace(u.PasswordHash) == "" {
			return fmt.Errorf("users[%d].password_hash is required", i)
		}
		if _, exists := userIDs[u.ID]; exists {
			return fmt.Errorf("duplicate user id: %q", u.ID)
		}
		userIDs[u.ID] = struct{}{}
	}

	projectIDs := map[string]struct{}{}
	for i, p := range s.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("projects[%d].id is required", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			return fmt.Errorf("projects[%d] timestamps are required", i)
		}
		if _, exists := projectIDs[p.ID]; exists {
			return fmt.Errorf("duplicate project id: %q", p.ID)
		}
		projectIDs[p.ID] = struct{}{}
	}

	taskIDs := map[string]struct{}{}
	for i, t := range s.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("tasks[%d].id is required", i)
		}
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("tasks[%d].title is required", i)
		}
		if t.ProjectID == "" {
			if _, ok := userIDs[t.CreatedBy]; !ok {
				return fmt.Errorf("tasks[%d] is personal but created_by %q is not a snapshot user", i, t.CreatedBy)
			}
		} else if _, ok := projectIDs[t.ProjectID]; !ok {
			return fmt.Errorf("tasks[%d] references unknown project_id %q", i, t.ProjectID)
		}
		if _, err := domain.ParsePriority(string(t.Priority)); err != nil {
			return fmt.Errorf("tasks[%d].priority: %w", i, err)
		}
		if _, err := domain.ParseStatus(string(t.Status)); err != nil {
			return fmt.Errorf("tasks[%d].status: %w", i, err)
		}
		if _, err := parseSnapshotDate(t.DueDate); err != nil {
			return fmt.Errorf("tasks[%d].due_date: %w", i, err)
		}
		if _, exists := taskIDs[t.ID]; exists {
			return fmt.Errorf("duplicate task id: %q", t.ID)
		}
		taskIDs[t.ID] = struct{}{}
	}

	memberIDs := map[string]struct{}{}
	for i, m := range s.Members {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("members[%d].id is required", i)
		}
		if _, ok := projectIDs[m.ProjectID]; !ok {
			return fmt.Errorf("members[%d] references unknown project_id %q", i, m.ProjectID)
		}
		if _, err := domain.ParseRole(string(m.Role)); err != nil {
			return fmt.Errorf("members[%d].role: %w", i, err)
		}
		if _, exists := memberIDs[m.ID]; exists {
			return fmt.Errorf("duplicate member id: %q", m.ID)
		}
		memberIDs[m.ID] = struct{}{}
	}

	for i, c := range s.Comments {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("comments[%d].id is required", i)
		}
		if _, ok := projectIDs[c.ProjectID]; !ok {
			return fmt.Errorf("comments[%d] references unknown project_id %q", i, c.ProjectID)
		}
		if strings.TrimSpace(c.Message) == "" {
			return fmt.Errorf("comments[%d].message is required", i)
		}
	}

	for i, jr := range s.JoinRequests {
		if strings.TrimSpace(jr.ID) == "" {
			return fmt.Errorf("join_requests[%d].id is required", i)
		}
		if _, ok := projectIDs[jr.ProjectID]; !ok {
			return fmt.Errorf("join_requests[%d] references unknown project_id %q", i, jr.ProjectID)
		}
		if _, err := domain.NormalizeEmail(jr.RequesterEmail); err != nil {
			return fmt.Errorf("join_requests[%d].requester_email: %w", i, err)
		}
		switch jr.Status {
		case domain.JoinRequestPending, domain.JoinRequestApproved, domain.JoinRequestRejected:
		default:
			return fmt.Errorf("join_requests[%d].status %q is invalid", i, jr.Status)
		}
	}
	return nil
}

// sort orders every collection deterministically so exports diff cleanly.
func (s *Snapshot) sort() {
	sort.SliceStable(s.Users, func(i, j int) bool {
		return s.Users[i].ID < s.Users[j].ID
	})
	sort.SliceStable(s.Projects, func(i, j int) bool {
		return s.Projects[i].ID < s.Projects[j].ID
	})
	sort.SliceStable(s.Tasks, func(i, j int) bool {
		a, b := s.Tasks[i], s.Tasks[j]
		if a.ProjectID == b.ProjectID {
			return a.ID < b.ID
		}
		return a.ProjectID < b.ProjectID
	})
	sort.SliceStable(s.Members, func(i, j int) bool {
		a, b := s.Members[i], s.Members[j]
		if a.ProjectID == b.ProjectID {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ProjectID < b.ProjectID
	})
	sort.SliceStable(s.Comments, func(i, j int) bool {
		a, b := s.Comments[i], s.Comments[j]
		if a.ProjectID == b.ProjectID {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ProjectID < b.ProjectID
	})
	sort.SliceStable(s.JoinRequests, func(i, j int) bool {
		return s.JoinRequests[i].ID < s.JoinRequests[j].ID
	})
}

func snapshotUserFromDomain(u domain.User) SnapshotUser {
	return SnapshotUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Avatar:       u.Avatar,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func snapshotProjectFromDomain(p domain.Project) SnapshotProject {
	return SnapshotProject{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func snapshotTaskFromDomain(t domain.Task) SnapshotTask {
	due := ""
	if !t.DueDate.IsZero() {
		due = t.DueDate.Format(time.DateOnly)
	}
	return SnapshotTask{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     due,
		Priority:    t.Priority,
		Status:      t.Status,
		AssignedBy:  t.AssignedBy,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

func snapshotMemberFromDomain(m domain.Member) SnapshotMember {
	return SnapshotMember{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Name:      m.Name,
		Email:     m.Email,
		Avatar:    m.Avatar,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt.UTC(),
	}
}

func snapshotCommentFromDomain(c domain.Comment) SnapshotComment {
	return SnapshotComment{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Message:    c.Message,
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

func snapshotJoinRequestFromDomain(jr domain.JoinRequest) SnapshotJoinRequest {
	return SnapshotJoinRequest{
		ID:              jr.ID,
		ProjectID:       jr.ProjectID,
		RequesterID:     jr.Requester.UserID,
		RequesterName:   jr.Requester.Name,
		RequesterEmail:  jr.Requester.Email,
		RequesterAvatar: jr.Requester.Avatar,
		Message:         jr.Message,
		RequestDate:     jr.RequestDate.UTC(),
		Status:          jr.Status,
		ReviewedBy:      jr.ReviewedBy,
		ReviewedAt:      copyTimePtr(jr.ReviewedAt),
	}
}

func (u SnapshotUser) toDomain() domain.User {
	email, _ := domain.NormalizeEmail(u.Email)
	return domain.User{
		ID:           strings.TrimSpace(u.ID),
		Name:         strings.TrimSpace(u.Name),
		Email:        email,
		Avatar:       u.Avatar,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func (p SnapshotProject) toDomain() domain.Project {
	return domain.Project{
		ID:          strings.TrimSpace(p.ID),
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (t SnapshotTask) toDomain() (domain.Task, error) {
	due, err := parseSnapshotDate(t.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	priority, err := domain.ParsePriority(string(t.Priority))
	if err != nil {
		return domain.Task{}, err
	}
	status, err := domain.ParseStatus(string(t.Status))
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          strings.TrimSpace(t.ID),
		ProjectID:   strings.TrimSpace(t.ProjectID),
		Title:       strings.TrimSpace(t.Title),
		Description: strings.TrimSpace(t.Description),
		DueDate:     due,
		Priority:    priority,
		Status:      status,
		AssignedBy:  t.AssignedBy,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}, nil
}

func (m SnapshotMember) toDomain() domain.Member {
	email, _ := domain.NormalizeEmail(m.Email)
	return domain.Member{
		ID:        strings.TrimSpace(m.ID),
		ProjectID: strings.TrimSpace(m.ProjectID),
		Name:      strings.TrimSpace(m.Name),
		Email:     email,
		Avatar:    m.Avatar,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt.UTC(),
	}
}

func (c SnapshotComment) toDomain() domain.Comment {
	return domain.Comment{
		ID:         strings.TrimSpace(c.ID),
		ProjectID:  strings.TrimSpace(c.ProjectID),
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Message:    strings.TrimSpace(c.Message),
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

func (r SnapshotJoinRequest) toDomain() domain.JoinRequest {
	email, _ := domain.NormalizeEmail(r.RequesterEmail)
	return domain.JoinRequest{
		ID:        strings.TrimSpace(r.ID),
		ProjectID: strings.TrimSpace(r.ProjectID),
		Requester: domain.Identity{
			UserID: r.RequesterID,
			Name:   r.RequesterName,
			Email:  email,
			Avatar: r.RequesterAvatar,
		},
		Message:     r.Message,
		RequestDate: r.RequestDate.UTC(),
		Status:      r.Status,
		ReviewedBy:  r.ReviewedBy,
		ReviewedAt:  copyTimePtr(r.ReviewedAt),
	}
}

// parseSnapshotDate reads a YYYY-MM-DD calendar day; empty means no due date.
func parseSnapshotDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	ts := in.UTC()
	return &ts
}
