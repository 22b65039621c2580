package app

import (
	"context"
	"errors"
	"strings"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// MemberResult reports a member write. Created is false when the email was already on the project.
type MemberResult struct {
	Member  domain.Member
	Created bool
}

// AddMember adds a member by email. An email already present returns the existing member.
func (s *Service) AddMember(ctx context.Context, projectID, email string, actor Actor) (MemberResult, error) {
	return s.ensureMember(ctx, projectID, domain.Identity{Email: email}, domain.RoleMember, actor)
}

// InviteMember follows the same idempotent-by-email policy as AddMember.
func (s *Service) InviteMember(ctx context.Context, projectID, email string, actor Actor) (MemberResult, error) {
	return s.ensureMember(ctx, projectID, domain.Identity{Email: email}, domain.RoleMember, actor)
}

// ensureMember inserts a member unless one with the same email exists.
func (s *Service) ensureMember(ctx context.Context, projectID string, who domain.Identity, role domain.Role, actor Actor) (MemberResult, error) {
	projectID = strings.TrimSpace(projectID)
	email, err := domain.NormalizeEmail(who.Email)
	if err != nil {
		return MemberResult{}, err
	}

	unlock := s.locks.lock("members:" + projectID)
	defer unlock()

	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return MemberResult{}, err
	}
	if existing, ok, err := s.findMemberByEmail(ctx, projectID, email); err != nil {
		return MemberResult{}, err
	} else if ok {
		return MemberResult{Member: existing}, nil
	}

	member, err := domain.NewMember(domain.MemberInput{
		ID:        s.idGen(),
		ProjectID: projectID,
		Name:      who.Name,
		Email:     email,
		Avatar:    who.Avatar,
		Role:      role,
	}, s.clock())
	if err != nil {
		return MemberResult{}, err
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		if errors.Is(err, ErrDuplicate) {
			existing, ok, findErr := s.findMemberByEmail(ctx, projectID, email)
			if findErr == nil && ok {
				return MemberResult{Member: existing}, nil
			}
		}
		return MemberResult{}, err
	}
	if err := s.record(ctx, domain.ChangeEvent{
		ProjectID:  projectID,
		EntityType: domain.EntityMember,
		EntityID:   member.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    actor.UserID,
		Metadata:   map[string]string{"email": member.Email, "role": string(member.Role)},
	}); err != nil {
		return MemberResult{}, err
	}
	return MemberResult{Member: member, Created: true}, nil
}

func (s *Service) findMemberByEmail(ctx context.Context, projectID, email string) (domain.Member, bool, error) {
	members, err := s.repo.ListMembers(ctx, projectID)
	if err != nil {
		return domain.Member{}, false, err
	}
	for _, member := range members {
		if member.Email == email {
			return member, true, nil
		}
	}
	return domain.Member{}, false, nil
}

// ListMembers lists project members in join order.
func (s *Service) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, projectID)
}

// SubmitJoinRequestInput holds input values for submit join request operations.
type SubmitJoinRequestInput struct {
	ProjectID string
	Requester domain.Identity
	Message   string
}

// SubmitJoinRequest records a non-member's request to join a project.
func (s *Service) SubmitJoinRequest(ctx context.Context, in SubmitJoinRequestInput) (domain.JoinRequest, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	email, err := domain.NormalizeEmail(in.Requester.Email)
	if err != nil {
		return domain.JoinRequest{}, err
	}

	unlock := s.locks.lock("members:" + projectID)
	defer unlock()

	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return domain.JoinRequest{}, err
	}
	if _, ok, err := s.findMemberByEmail(ctx, projectID, email); err != nil {
		return domain.JoinRequest{}, err
	} else if ok {
		return domain.JoinRequest{}, ErrAlreadyMember
	}
	requests, err := s.repo.ListJoinRequests(ctx, projectID)
	if err != nil {
		return domain.JoinRequest{}, err
	}
	for _, req := range requests {
		if req.Status == domain.JoinRequestPending && req.Requester.Email == email {
			return domain.JoinRequest{}, ErrRequestPending
		}
	}

	requester := in.Requester
	requester.Email = email
	req, err := domain.NewJoinRequest(domain.JoinRequestInput{
		ID:        s.idGen(),
		ProjectID: projectID,
		Requester: requester,
		Message:   s.sanitize(in.Message),
	}, s.clock())
	if err != nil {
		return domain.JoinRequest{}, err
	}
	if err := s.repo.CreateJoinRequest(ctx, req); err != nil {
		return domain.JoinRequest{}, err
	}
	if err := s.record(ctx, domain.ChangeEvent{
		ProjectID:  projectID,
		EntityType: domain.EntityJoinRequest,
		EntityID:   req.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    requester.UserID,
		Metadata:   map[string]string{"email": email},
	}); err != nil {
		return domain.JoinRequest{}, err
	}
	return req, nil
}

// ReviewResult reports a join-request decision and, on approval, the resulting member.
type ReviewResult struct {
	Request domain.JoinRequest
	Member  *domain.Member
}

// ReviewJoinRequest approves or rejects a pending request. Approval adds the requester as a member.
func (s *Service) ReviewJoinRequest(ctx context.Context, requestID, decision string, reviewer Actor) (ReviewResult, error) {
	status, err := domain.ParseDecision(decision)
	if err != nil {
		return ReviewResult{}, err
	}
	requestID = strings.TrimSpace(requestID)

	unlock := s.locks.lock(requestID)
	defer unlock()

	req, err := s.repo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return ReviewResult{}, err
	}
	if err := req.Review(status, reviewer.UserID, s.clock()); err != nil {
		return ReviewResult{}, err
	}

	result := ReviewResult{Request: req}
	// The member goes in before the status flips, so a failed status write leaves the
	// request pending and a retry finds the member already present.
	if status == domain.JoinRequestApproved {
		added, err := s.ensureMember(ctx, req.ProjectID, req.Requester, domain.RoleMember, reviewer)
		if err != nil {
			return ReviewResult{}, err
		}
		result.Member = &added.Member
	}
	if err := s.repo.UpdateJoinRequest(ctx, req); err != nil {
		return ReviewResult{}, err
	}
	if err := s.record(ctx, domain.ChangeEvent{
		ProjectID:  req.ProjectID,
		EntityType: domain.EntityJoinRequest,
		EntityID:   req.ID,
		Operation:  domain.ChangeOperationReview,
		ActorID:    reviewer.UserID,
		Metadata:   map[string]string{"decision": string(status)},
	}); err != nil {
		return ReviewResult{}, err
	}
	return result, nil
}

// ListJoinRequests lists a project's join requests in submission order.
func (s *Service) ListJoinRequests(ctx context.Context, projectID string) ([]domain.JoinRequest, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListJoinRequests(ctx, projectID)
}

// AddComment posts a sanitized comment to a project.
func (s *Service) AddComment(ctx context.Context, projectID, message string, author Actor) (domain.Comment, error) {
	projectID = strings.TrimSpace(projectID)
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return domain.Comment{}, err
	}
	comment, err := domain.NewComment(domain.CommentInput{
		ID:         s.idGen(),
		ProjectID:  projectID,
		AuthorID:   author.UserID,
		AuthorName: author.displayName(),
		Message:    s.sanitize(message),
	}, s.clock())
	if err != nil {
		return domain.Comment{}, err
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return domain.Comment{}, err
	}
	if err := s.record(ctx, domain.ChangeEvent{
		ProjectID:  projectID,
		EntityType: domain.EntityComment,
		EntityID:   comment.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    author.UserID,
	}); err != nil {
		return domain.Comment{}, err
	}
	return comment, nil
}

// ListComments lists a project's comments chronologically.
func (s *Service) ListComments(ctx context.Context, projectID string) ([]domain.Comment, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, projectID)
}
