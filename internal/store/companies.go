package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const companyColumns = `id, name, inn, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''),
	balance, currency, is_active, is_trial, created_at, updated_at`

func scanCompany(row rowScanner) (Company, error) {
	var item Company
	err := row.Scan(&item.ID, &item.Name, &item.INN, &item.Email, &item.Phone, &item.Address,
		&item.Balance, &item.Currency, &item.IsActive, &item.IsTrial, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id=$1`, companyID))
}

func (s *PostgresStore) GetCompanyByINN(ctx context.Context, inn string) (Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE inn=$1`, inn))
}

func insertCompany(ctx context.Context, q queryer, item Company) (Company, error) {
	currency := item.Currency
	if currency == "" {
		currency = "RUB"
	}
	created, err := scanCompany(q.QueryRowContext(ctx, `
		INSERT INTO companies (name, inn, email, phone, address, balance, currency, is_active, is_trial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+companyColumns,
		item.Name, item.INN, nullString(item.Email), nullString(item.Phone), nullString(item.Address),
		item.Balance, currency, item.IsActive, item.IsTrial,
	))
	if err != nil {
		return Company{}, fmt.Errorf("insert company: %w", err)
	}
	return created, nil
}

// CreateCompanyWithOwner inserts a company and its first user atomically.
func (s *PostgresStore) CreateCompanyWithOwner(ctx context.Context, company Company, owner User) (Company, User, error) {
	var (
		createdCompany Company
		createdUser    User
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		createdCompany, err = insertCompany(ctx, tx, company)
		if err != nil {
			return err
		}
		owner.CompanyID = createdCompany.ID
		createdUser, err = insertUser(ctx, tx, owner)
		return err
	})
	if err != nil {
		return Company{}, User{}, err
	}
	return createdCompany, createdUser, nil
}

// EnsureCompany returns the company with inn, creating it when absent.
func (s *PostgresStore) EnsureCompany(ctx context.Context, item Company) (Company, error) {
	existing, err := s.GetCompanyByINN(ctx, item.INN)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Company{}, fmt.Errorf("lookup company: %w", err)
	}
	return insertCompany(ctx, s.db, item)
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, item Company) (Company, error) {
	updated, err := scanCompany(s.db.QueryRowContext(ctx, `
		UPDATE companies SET name=$2, email=$3, phone=$4, address=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+companyColumns,
		item.ID, item.Name, nullString(item.Email), nullString(item.Phone), nullString(item.Address),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, err
	}
	if err != nil {
		return Company{}, fmt.Errorf("update company: %w", err)
	}
	return updated, nil
}
