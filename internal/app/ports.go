package app

import (
	"context"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// Repository is the Entity Store port. Mutations on unknown ids return ErrNotFound.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context) ([]domain.Project, error)

	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	DeleteTask(context.Context, string) error
	ListProjectTasks(context.Context, string) ([]domain.Task, error)
	ListPersonalTasks(context.Context, string) ([]domain.Task, error)
	ListAssignedTasks(context.Context, string) ([]domain.Task, error)

	// AddMember returns ErrDuplicate when the email is already on the project.
	AddMember(context.Context, domain.Member) error
	GetMember(context.Context, string) (domain.Member, error)
	ListMembers(context.Context, string) ([]domain.Member, error)

	CreateComment(context.Context, domain.Comment) error
	ListComments(context.Context, string) ([]domain.Comment, error)

	CreateJoinRequest(context.Context, domain.JoinRequest) error
	UpdateJoinRequest(context.Context, domain.JoinRequest) error
	GetJoinRequest(context.Context, string) (domain.JoinRequest, error)
	ListJoinRequests(context.Context, string) ([]domain.JoinRequest, error)

	CreateUser(context.Context, domain.User) error
	GetUser(context.Context, string) (domain.User, error)
	GetUserByEmail(context.Context, string) (domain.User, error)
	ListUsers(context.Context) ([]domain.User, error)

	AppendChangeEvent(context.Context, domain.ChangeEvent) error
	ListChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}
