package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// RegisterUserInput holds input values for register user operations.
type RegisterUserInput struct {
	Name     string
	Email    string
	Avatar   string
	Password string
}

// RegisterUser stores a login identity with a bcrypt password hash.
func (s *Service) RegisterUser(ctx context.Context, in RegisterUserInput) (domain.User, error) {
	if strings.TrimSpace(in.Password) == "" {
		return domain.User{}, fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	email, err := domain.NormalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("user %s: %w", email, ErrDuplicate)
	} else if !isNotFound(err) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := domain.NewUser(s.idGen(), in.Name, email, in.Avatar, string(hash), s.clock())
	if err != nil {
		return domain.User{}, err
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate checks an email/password pair and returns the matching identity.
// Unknown users and wrong passwords both return ErrInvalidCredential.
func (s *Service) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.Identity{}, ErrInvalidCredential
	}
	user, err := s.repo.GetUserByEmail(ctx, normalized)
	if err != nil {
		if isNotFound(err) {
			return domain.Identity{}, ErrInvalidCredential
		}
		return domain.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.Identity{}, ErrInvalidCredential
		}
		return domain.Identity{}, fmt.Errorf("compare password: %w", err)
	}
	return user.Identity(), nil
}

// LookupUser returns the identity for a user id.
func (s *Service) LookupUser(ctx context.Context, userID string) (domain.Identity, error) {
	user, err := s.repo.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}

// LookupUserByEmail returns the identity registered under an email address.
func (s *Service) LookupUserByEmail(ctx context.Context, email string) (domain.Identity, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.Identity{}, err
	}
	user, err := s.repo.GetUserByEmail(ctx, normalized)
	if err != nil {
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}
