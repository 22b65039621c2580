package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// DefaultPendingActionTTL bounds how long a requested status change or delete stays confirmable.
const DefaultPendingActionTTL = 5 * time.Minute

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	PageSize         int
	PendingActionTTL time.Duration
	// Sanitize cleans user-authored messages before they are stored.
	Sanitize func(string) string
	// ActionKey signs pending actions. Empty means a random per-process key,
	// so actions are then only confirmable by the process that issued them.
	ActionKey []byte
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Actor identifies the user performing a mutation. It is passed explicitly on every call.
type Actor struct {
	UserID string
	Name   string
	Email  string
}

// ActorFromIdentity converts a login identity into an actor.
func ActorFromIdentity(id domain.Identity) Actor {
	return Actor{UserID: id.UserID, Name: id.Name, Email: id.Email}
}

func (a Actor) displayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if email := strings.TrimSpace(a.Email); email != "" {
		return domain.NameFromEmail(email)
	}
	return strings.TrimSpace(a.UserID)
}

// Service implements the workflow controller and membership manager over one Repository.
type Service struct {
	repo      Repository
	idGen     IDGenerator
	clock     Clock
	pageSize  int
	actionTTL time.Duration
	sanitize  func(string) string
	actionKey []byte
	locks     *entityLocks
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PendingActionTTL <= 0 {
		cfg.PendingActionTTL = DefaultPendingActionTTL
	}
	if cfg.Sanitize == nil {
		cfg.Sanitize = strings.TrimSpace
	}
	actionKey := append([]byte(nil), cfg.ActionKey...)
	if len(actionKey) == 0 {
		actionKey = make([]byte, 32)
		_, _ = rand.Read(actionKey)
	}

	return &Service{
		repo:      repo,
		idGen:     idGen,
		clock:     clock,
		pageSize:  cfg.PageSize,
		actionTTL: cfg.PendingActionTTL,
		sanitize:  cfg.Sanitize,
		actionKey: actionKey,
		locks:     newEntityLocks(),
	}
}

// PageSize reports the configured page size.
func (s *Service) PageSize() int {
	return s.pageSize
}

// CreateProjectInput holds input values for create project operations.
type CreateProjectInput struct {
	Name        string
	Description string
	Creator     Actor
}

// CreateProject creates a project and seeds the creator as its admin member.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	now := s.clock()
	project, err := domain.NewProject(s.idGen(), in.Name, in.Description, in.Creator.UserID, now)
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(in.Creator.Email) == "" {
		return project, nil
	}
	member, err := domain.NewMember(domain.MemberInput{
		ID:        s.idGen(),
		ProjectID: project.ID,
		Name:      in.Creator.Name,
		Email:     in.Creator.Email,
		Role:      domain.RoleAdmin,
	}, now)
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return domain.Project{}, fmt.Errorf("seed project admin: %w", err)
	}
	return project, nil
}

// UpdateProjectInput holds input values for update project operations.
type UpdateProjectInput struct {
	ProjectID   string
	Name        string
	Description string
}

// UpdateProject updates state for the requested operation.
func (s *Service) UpdateProject(ctx context.Context, in UpdateProjectInput) (domain.Project, error) {
	unlock := s.locks.lock(in.ProjectID)
	defer unlock()

	project, err := s.repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.UpdateDetails(in.Name, in.Description, s.clock()); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ListProjects lists projects in creation order. A non-blank search keeps only
// projects whose name contains it, ignoring case.
func (s *Service) ListProjects(ctx context.Context, search string) ([]domain.Project, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return projects, nil
	}
	out := make([]domain.Project, 0, len(projects))
	for _, project := range projects {
		if strings.Contains(strings.ToLower(project.Name), search) {
			out = append(out, project)
		}
	}
	return out, nil
}

// ProjectDetail is the aggregate read view of one project.
type ProjectDetail struct {
	Project      domain.Project
	Members      []domain.Member
	Comments     []domain.Comment
	JoinRequests []domain.JoinRequest
	Tasks        []domain.Task
}

// GetProjectDetail loads a project with its members, comments, join requests, and board-sorted tasks.
func (s *Service) GetProjectDetail(ctx context.Context, projectID string) (ProjectDetail, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return ProjectDetail{}, err
	}
	members, err := s.repo.ListMembers(ctx, project.ID)
	if err != nil {
		return ProjectDetail{}, err
	}
	comments, err := s.repo.ListComments(ctx, project.ID)
	if err != nil {
		return ProjectDetail{}, err
	}
	requests, err := s.repo.ListJoinRequests(ctx, project.ID)
	if err != nil {
		return ProjectDetail{}, err
	}
	tasks, err := s.repo.ListProjectTasks(ctx, project.ID)
	if err != nil {
		return ProjectDetail{}, err
	}
	return ProjectDetail{
		Project:      project,
		Members:      members,
		Comments:     comments,
		JoinRequests: requests,
		Tasks:        SortBoard(tasks),
	}, nil
}

// ListProjectActivity returns the most recent change events, newest first.
func (s *Service) ListProjectActivity(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListChangeEvents(ctx, projectID, limit)
}

// record appends one activity entry for a committed mutation.
func (s *Service) record(ctx context.Context, event domain.ChangeEvent) error {
	if event.ProjectID == "" {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock().UTC()
	}
	if err := s.repo.AppendChangeEvent(ctx, event); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// isNotFound reports whether err is the store's not-found error.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// entityLocks serializes read-modify-write sequences per entity id.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: map[string]*entityLock{}}
}

// lock acquires the lock for id and returns its release func.
func (l *entityLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &entityLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
