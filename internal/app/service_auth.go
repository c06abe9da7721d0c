package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wesp1nzee/crm-deploy/internal/authpw"
	"github.com/Wesp1nzee/crm-deploy/internal/session"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"go.uber.org/zap"
)

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// snapshotFor builds the cached session value. Later profile edits are not
// reflected until the user signs in again.
func snapshotFor(user store.User, company store.Company) session.Snapshot {
	settings := map[string]any{}
	if len(user.Settings) > 0 {
		_ = json.Unmarshal(user.Settings, &settings)
	}
	return session.Snapshot{
		UserID: user.ID,
		User: session.UserData{
			ID:              user.ID,
			Email:           user.Email,
			FullName:        user.FullName,
			Role:            user.Role,
			IsActive:        user.IsActive,
			CanAuthenticate: user.CanAuthenticate,
			Specialization:  user.Specialization,
			Settings:        settings,
		},
		Company: &session.CompanyData{
			ID:       company.ID,
			Name:     company.Name,
			IsActive: company.IsActive,
		},
	}
}

// Login verifies credentials, marks the user online and opens a session.
func (s *Service) Login(ctx context.Context, input LoginInput) (string, session.Snapshot, error) {
	if err := validateInput(input); err != nil {
		return "", session.Snapshot{}, err
	}
	user, err := s.passwords.SignIn(ctx, input.Email, input.Password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return "", session.Snapshot{}, unauthorized("Invalid email or password")
		}
		if errors.Is(err, authpw.ErrLoginDisabled) {
			return "", session.Snapshot{}, unauthorized("Login is disabled for this account")
		}
		return "", session.Snapshot{}, err
	}

	company, err := s.store.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return "", session.Snapshot{}, fmt.Errorf("load company: %w", err)
	}

	now := s.now().UTC()
	if err := s.store.MarkLogin(ctx, user.ID, now); err != nil {
		return "", session.Snapshot{}, err
	}
	user.IsActive = true
	user.LastLogin = &now

	return s.openSession(ctx, user, company)
}

func (s *Service) openSession(ctx context.Context, user store.User, company store.Company) (string, session.Snapshot, error) {
	snap := snapshotFor(user, company)
	token, err := s.sessions.Create(ctx, snap)
	if err != nil {
		return "", session.Snapshot{}, err
	}
	s.logger.Info("session opened", zap.String("user_id", user.ID), zap.String("company_id", company.ID))
	return token, snap, nil
}

// Logout revokes the session and marks the user offline.
func (s *Service) Logout(ctx context.Context, actor Actor) error {
	if err := s.sessions.Revoke(ctx, actor.Token); err != nil {
		return err
	}
	return s.store.MarkLogout(ctx, actor.UserID)
}

// Authenticate resolves a session token into the calling actor.
func (s *Service) Authenticate(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, unauthorized("Not authenticated")
	}
	snap, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return Actor{}, unauthorized("Session expired or invalid")
		}
		return Actor{}, err
	}
	return actorFromSnapshot(token, snap), nil
}
