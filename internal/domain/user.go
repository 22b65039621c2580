package domain

import (
	"strings"
	"time"
)

// User is a login identity. PasswordHash holds a bcrypt digest, never the secret.
type User struct {
	ID           string
	Name         string
	Email        string
	Avatar       string
	PasswordHash string
	CreatedAt    time.Time
}

func NewUser(id, name, email, avatar, passwordHash string, now time.Time) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidID
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = NameFromEmail(normalized)
	}
	return User{
		ID:           id,
		Name:         name,
		Email:        normalized,
		Avatar:       strings.TrimSpace(avatar),
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
	}, nil
}

// Identity projects the user into the identity shape used by membership flows.
func (u User) Identity() Identity {
	return Identity{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
	}
}
