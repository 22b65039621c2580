package domain

import (
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var validRoles = []Role{RoleAdmin, RoleMember}

// ParseRole normalizes user input into a known role.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !slices.Contains(validRoles, r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Identity describes a user as seen by membership and join-request flows.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Avatar string
}

// Member is one entry in a project's member list.
type Member struct {
	ID        string
	ProjectID string
	Name      string
	Email     string
	Avatar    string
	Role      Role
	JoinedAt  time.Time
}

type MemberInput struct {
	ID        string
	ProjectID string
	Name      string
	Email     string
	Avatar    string
	Role      Role
}

// NewMember builds a member; an empty name is derived from the email local part.
func NewMember(in MemberInput, now time.Time) (Member, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return Member{}, ErrInvalidID
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return Member{}, err
	}
	if in.Role == "" {
		in.Role = RoleMember
	}
	if !slices.Contains(validRoles, in.Role) {
		return Member{}, ErrInvalidRole
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = NameFromEmail(email)
	}
	return Member{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		Name:      name,
		Email:     email,
		Avatar:    strings.TrimSpace(in.Avatar),
		Role:      in.Role,
		JoinedAt:  now.UTC(),
	}, nil
}

// NormalizeEmail trims, lower-cases, and checks the address shape.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NameFromEmail derives a display name from the local part: "jane.doe" becomes "Jane Doe".
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	fields := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, f := range fields {
		runes := []rune(f)
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	if len(fields) == 0 {
		return local
	}
	return strings.Join(fields, " ")
}
