package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/authpw"
	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
)

const suggestLimit = 5

type UserListInput struct {
	Role      string
	IsActive  *bool
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

type UserListView struct {
	Data       []UserView `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type CreateUserInput struct {
	Email          string  `json:"email" validate:"required,email,max=255"`
	Password       string  `json:"password" validate:"required"`
	FullName       string  `json:"full_name" validate:"required,max=255"`
	Role           string  `json:"role" validate:"required,oneof=admin ceo accountant expert"`
	Specialization *string `json:"specialization" validate:"omitempty,max=255"`
}

type UpdateUserInput struct {
	FullName       *string         `json:"full_name" validate:"omitempty,min=1,max=255"`
	Role           *string         `json:"role" validate:"omitempty,oneof=admin ceo accountant expert"`
	Specialization *string         `json:"specialization" validate:"omitempty,max=255"`
	Settings       json.RawMessage `json:"settings"`
}

type UserAccessInput struct {
	CanAuthenticate bool `json:"can_authenticate"`
}

// ListUsers returns the users of the caller's company whose role the caller
// may manage. The caller is never included.
func (s *Service) ListUsers(ctx context.Context, actor Actor, input UserListInput) (UserListView, error) {
	page, limit := store.NormalizePage(input.Page, input.Limit, store.DefaultPageSize)
	filter := store.UserFilter{
		CompanyID: actor.CompanyID,
		ExcludeID: actor.UserID,
		Roles:     rbac.Strings(rbac.ManageableRoles(actor.Role)),
		IsActive:  input.IsActive,
		Search:    input.Search,
		SortBy:    input.SortBy,
		SortOrder: input.SortOrder,
		Page:      page,
		Limit:     limit,
	}
	if input.Role != "" {
		role, ok := rbac.Parse(input.Role)
		if !ok {
			return UserListView{}, badRequest("Unknown role")
		}
		filter.Role = string(role)
	}

	users, total, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return UserListView{}, err
	}
	data := make([]UserView, 0, len(users))
	for _, u := range users {
		v := userView(u)
		count := u.CaseCount
		v.CountCase = &count
		data = append(data, v)
	}
	return UserListView{Data: data, Pagination: newPagination(total, page, limit)}, nil
}

func (s *Service) CreateUser(ctx context.Context, actor Actor, input CreateUserInput) (UserView, error) {
	if err := validateInput(input); err != nil {
		return UserView{}, err
	}
	role, _ := rbac.Parse(input.Role)
	if !rbac.CanManage(actor.Role, role) {
		return UserView{}, forbidden("You cannot create users with role " + string(role))
	}

	email := authpw.NormalizeEmail(input.Email)
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return UserView{}, badRequest("User with this email already exists")
	} else if !isNotFound(err) {
		return UserView{}, err
	}

	hash, err := s.passwords.HashPassword(input.Password, authpw.MinUserPassword)
	if err != nil {
		return UserView{}, err
	}
	created, err := s.store.InsertUser(ctx, store.User{
		CompanyID:       actor.CompanyID,
		Email:           email,
		PasswordHash:    hash,
		FullName:        strings.TrimSpace(input.FullName),
		Role:            string(role),
		CanAuthenticate: true,
		Specialization:  input.Specialization,
	})
	if err != nil {
		return UserView{}, err
	}
	return userView(created), nil
}

// manageableUser loads a user of the caller's company that the caller is
// allowed to administer.
func (s *Service) manageableUser(ctx context.Context, actor Actor, userID string) (store.User, error) {
	target, err := s.store.GetCompanyUser(ctx, actor.CompanyID, userID)
	if err != nil {
		return store.User{}, orNotFound(err, "User not found")
	}
	if !rbac.CanManage(actor.Role, rbac.Normalize(target.Role)) {
		return store.User{}, forbidden("You cannot manage this user")
	}
	return target, nil
}

func (s *Service) UpdateUser(ctx context.Context, actor Actor, userID string, input UpdateUserInput) (UserView, error) {
	if err := validateInput(input); err != nil {
		return UserView{}, err
	}
	target, err := s.manageableUser(ctx, actor, userID)
	if err != nil {
		return UserView{}, err
	}

	if input.FullName != nil {
		target.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.Role != nil {
		role, _ := rbac.Parse(*input.Role)
		if target.ID == actor.UserID && role != actor.Role {
			return UserView{}, badRequest("You cannot change your own role")
		}
		if !rbac.CanManage(actor.Role, role) {
			return UserView{}, forbidden("You cannot assign role " + string(role))
		}
		target.Role = string(role)
	}
	if input.Specialization != nil {
		target.Specialization = input.Specialization
	}
	if len(input.Settings) > 0 {
		var settings map[string]any
		if err := json.Unmarshal(input.Settings, &settings); err != nil || settings == nil {
			return UserView{}, badRequest("settings must be a JSON object")
		}
		target.Settings = input.Settings
	}

	updated, err := s.store.UpdateUser(ctx, target)
	if err != nil {
		return UserView{}, orNotFound(err, "User not found")
	}
	return userView(updated), nil
}

// SetUserAccess toggles whether the user may sign in.
func (s *Service) SetUserAccess(ctx context.Context, actor Actor, userID string, input UserAccessInput) (UserView, error) {
	if userID == actor.UserID {
		return UserView{}, badRequest("You cannot change your own access")
	}
	target, err := s.manageableUser(ctx, actor, userID)
	if err != nil {
		return UserView{}, err
	}
	target.CanAuthenticate = input.CanAuthenticate
	updated, err := s.store.UpdateUser(ctx, target)
	if err != nil {
		return UserView{}, orNotFound(err, "User not found")
	}
	return userView(updated), nil
}

func (s *Service) SuggestUsers(ctx context.Context, actor Actor, q string) ([]UserShortView, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return nil, badRequest("Query must contain at least 2 characters")
	}
	users, err := s.store.SuggestUsers(ctx, actor.CompanyID, q, suggestLimit)
	if err != nil {
		return nil, err
	}
	return userShortViews(users), nil
}

// companyUsers verifies that every id belongs to the caller's company.
func (s *Service) companyUsers(ctx context.Context, actor Actor, ids []string) ([]store.UserShort, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return []store.UserShort{}, nil
	}
	users, err := s.store.ListCompanyUsers(ctx, actor.CompanyID, ids)
	if err != nil {
		return nil, err
	}
	if len(users) != len(ids) {
		return nil, notFound("One or more users not found")
	}
	return users, nil
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, v := range items {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
