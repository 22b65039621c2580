package domain

import (
	"fmt"
	"strings"
	"time"
)

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a non-member's ask to join a project.
type JoinRequest struct {
	ID          string
	ProjectID   string
	Requester   Identity
	Message     string
	RequestDate time.Time
	Status      JoinRequestStatus
	ReviewedBy  string
	ReviewedAt  *time.Time
}

type JoinRequestInput struct {
	ID        string
	ProjectID string
	Requester Identity
	Message   string
}

func NewJoinRequest(in JoinRequestInput, now time.Time) (JoinRequest, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return JoinRequest{}, ErrInvalidID
	}
	email, err := NormalizeEmail(in.Requester.Email)
	if err != nil {
		return JoinRequest{}, err
	}
	requester := Identity{
		UserID: strings.TrimSpace(in.Requester.UserID),
		Name:   strings.TrimSpace(in.Requester.Name),
		Email:  email,
		Avatar: strings.TrimSpace(in.Requester.Avatar),
	}
	if requester.Name == "" {
		requester.Name = NameFromEmail(email)
	}
	return JoinRequest{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		Requester:   requester,
		Message:     strings.TrimSpace(in.Message),
		RequestDate: now.UTC(),
		Status:      JoinRequestPending,
	}, nil
}

// ParseDecision accepts only the two terminal outcomes of a review, in status or verb form.
func ParseDecision(raw string) (JoinRequestStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(JoinRequestApproved), "approve":
		return JoinRequestApproved, nil
	case string(JoinRequestRejected), "reject":
		return JoinRequestRejected, nil
	default:
		return "", ErrInvalidDecision
	}
}

// Review records a decision. Only pending requests can be reviewed.
func (r *JoinRequest) Review(decision JoinRequestStatus, reviewer string, now time.Time) error {
	if decision != JoinRequestApproved && decision != JoinRequestRejected {
		return ErrInvalidDecision
	}
	if r.Status != JoinRequestPending {
		return fmt.Errorf("join request %s is already %s: %w", r.ID, r.Status, ErrInvalidStateTransition)
	}
	ts := now.UTC()
	r.Status = decision
	r.ReviewedBy = strings.TrimSpace(reviewer)
	r.ReviewedAt = &ts
	return nil
}
