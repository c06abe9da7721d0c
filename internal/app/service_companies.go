package app

import (
	"context"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/authpw"
	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/session"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/shopspring/decimal"
)

type RegisterCompanyInput struct {
	CompanyName string `json:"company_name" validate:"required,max=255"`
	INN         string `json:"inn" validate:"required,inn"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Phone       string `json:"phone" validate:"omitempty,max=50"`
	Address     string `json:"address" validate:"omitempty,max=500"`
	FullName    string `json:"full_name" validate:"required,max=255"`
	Password    string `json:"password" validate:"required"`
}

type UpdateCompanyInput struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email   *string `json:"email" validate:"omitempty,email,max=255"`
	Phone   *string `json:"phone" validate:"omitempty,max=50"`
	Address *string `json:"address" validate:"omitempty,max=500"`
}

// RegisterCompany creates a tenant with its CEO account and signs the CEO in.
func (s *Service) RegisterCompany(ctx context.Context, input RegisterCompanyInput) (string, session.Snapshot, error) {
	if err := validateInput(input); err != nil {
		return "", session.Snapshot{}, err
	}

	if _, err := s.store.GetCompanyByINN(ctx, input.INN); err == nil {
		return "", session.Snapshot{}, badRequest("Company with this INN already exists")
	} else if !isNotFound(err) {
		return "", session.Snapshot{}, err
	}

	email := authpw.NormalizeEmail(input.Email)
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return "", session.Snapshot{}, badRequest("User with this email already exists")
	} else if !isNotFound(err) {
		return "", session.Snapshot{}, err
	}

	hash, err := s.passwords.HashPassword(input.Password, authpw.MinOwnerPassword)
	if err != nil {
		return "", session.Snapshot{}, err
	}

	company, owner, err := s.store.CreateCompanyWithOwner(ctx, store.Company{
		Name:     strings.TrimSpace(input.CompanyName),
		INN:      input.INN,
		Email:    email,
		Phone:    input.Phone,
		Address:  input.Address,
		Balance:  decimal.Zero,
		Currency: "RUB",
		IsActive: true,
		IsTrial:  true,
	}, store.User{
		Email:           email,
		PasswordHash:    hash,
		FullName:        strings.TrimSpace(input.FullName),
		Role:            string(rbac.RoleCEO),
		CanAuthenticate: true,
		IsActive:        true,
	})
	if err != nil {
		return "", session.Snapshot{}, err
	}

	now := s.now().UTC()
	if err := s.store.MarkLogin(ctx, owner.ID, now); err != nil {
		return "", session.Snapshot{}, err
	}
	owner.LastLogin = &now
	return s.openSession(ctx, owner, company)
}

func (s *Service) GetCompany(ctx context.Context, actor Actor) (CompanyView, error) {
	company, err := s.store.GetCompany(ctx, actor.CompanyID)
	if err != nil {
		return CompanyView{}, orNotFound(err, "Company not found")
	}
	return companyView(company), nil
}

func (s *Service) UpdateCompany(ctx context.Context, actor Actor, input UpdateCompanyInput) (CompanyView, error) {
	if !rbac.Can(actor.Role, rbac.ActionManageCompany) {
		return CompanyView{}, forbidden("Only administrators and CEOs can edit the company")
	}
	if err := validateInput(input); err != nil {
		return CompanyView{}, err
	}
	company, err := s.store.GetCompany(ctx, actor.CompanyID)
	if err != nil {
		return CompanyView{}, orNotFound(err, "Company not found")
	}
	if input.Name != nil {
		company.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		company.Email = *input.Email
	}
	if input.Phone != nil {
		company.Phone = *input.Phone
	}
	if input.Address != nil {
		company.Address = *input.Address
	}
	updated, err := s.store.UpdateCompany(ctx, company)
	if err != nil {
		return CompanyView{}, orNotFound(err, "Company not found")
	}
	return companyView(updated), nil
}
