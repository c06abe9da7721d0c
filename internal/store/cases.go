package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *PostgresStore) ListCases(ctx context.Context, scope CaseScope, filter CaseFilter, today time.Time) (CasePage, error) {
	page, limit := NormalizePage(filter.Page, filter.Limit, DefaultPageSize)

	base := scopeConditions(scope)
	filtered := base.clone()
	applyCaseFilter(filtered, filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+caseFrom+` WHERE `+filtered.sql(), filtered.args...).Scan(&total); err != nil {
		return CasePage{}, fmt.Errorf("count cases: %w", err)
	}

	listArgs := append([]any(nil), filtered.args...)
	listArgs = append(listArgs, limit, (page-1)*limit)
	query := fmt.Sprintf(`%s WHERE %s %s LIMIT $%d OFFSET $%d`,
		caseSelect, filtered.sql(), caseOrderBy(filter.SortBy, filter.SortOrder), len(listArgs)-1, len(listArgs))

	rows, err := s.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return CasePage{}, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	items := make([]Case, 0)
	for rows.Next() {
		item, err := scanCase(rows)
		if err != nil {
			return CasePage{}, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return CasePage{}, fmt.Errorf("iterate cases: %w", err)
	}

	summary, err := s.caseSummary(ctx, base, today)
	if err != nil {
		return CasePage{}, err
	}
	summary.Completed = total - summary.Active
	if summary.Completed < 0 {
		summary.Completed = 0
	}

	return CasePage{Items: items, Total: total, Summary: summary}, nil
}

// caseSummary counts active and overdue cases over the scope, ignoring list filters.
func (s *PostgresStore) caseSummary(ctx context.Context, scope *whereBuilder, today time.Time) (CaseSummary, error) {
	b := scope.clone()
	closed := b.bind(ClosedStatuses)
	day := b.bind(today)
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE c.status <> ALL(%[1]s)),
			COUNT(*) FILTER (WHERE c.status <> ALL(%[1]s) AND c.deadline < %[2]s::date)
		%[3]s
		WHERE %[4]s`, closed, day, caseFrom, b.sql())

	var summary CaseSummary
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&summary.Active, &summary.Overdue); err != nil {
		return CaseSummary{}, fmt.Errorf("summarize cases: %w", err)
	}
	return summary, nil
}

func (s *PostgresStore) SuggestCases(ctx context.Context, scope CaseScope, q string, limit int) ([]CaseSuggestion, error) {
	b := scopeConditions(scope)
	p := b.bind(likePattern(q))
	b.conds = append(b.conds, fmt.Sprintf("(c.number ILIKE %[1]s OR c.case_number ILIKE %[1]s)", p))
	lim := b.bind(limit)

	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.number, c.case_number`+caseFrom+
		` WHERE `+b.sql()+` ORDER BY c.updated_at DESC LIMIT `+lim, b.args...)
	if err != nil {
		return nil, fmt.Errorf("suggest cases: %w", err)
	}
	defer rows.Close()

	items := make([]CaseSuggestion, 0)
	for rows.Next() {
		var item CaseSuggestion
		if err := rows.Scan(&item.ID, &item.Number, &item.CaseNumber); err != nil {
			return nil, fmt.Errorf("scan case suggestion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case suggestions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CaseFinancials(ctx context.Context, scope CaseScope, today time.Time) (FinancialAggregate, error) {
	b := scopeConditions(scope)
	inWork := b.bind(StatusInWork)
	day := b.bind(today)
	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE c.status = %[1]s),
			COUNT(*) FILTER (WHERE c.status <> %[1]s),
			COUNT(*) FILTER (WHERE c.status = %[1]s AND c.deadline < %[2]s::date),
			COALESCE(SUM(c.cost) FILTER (WHERE c.status <> %[1]s), 0),
			COUNT(*) FILTER (WHERE c.remaining_debt > 0),
			COALESCE(SUM(c.remaining_debt) FILTER (WHERE c.remaining_debt > 0), 0)
		%[3]s
		WHERE %[4]s`, inWork, day, caseFrom, b.sql())

	var agg FinancialAggregate
	err := s.db.QueryRowContext(ctx, query, b.args...).Scan(
		&agg.TotalCases, &agg.ActiveCases, &agg.CompletedCases, &agg.OverdueCases,
		&agg.Revenue, &agg.PendingPayments, &agg.PendingAmount,
	)
	if err != nil {
		return FinancialAggregate{}, fmt.Errorf("aggregate case finances: %w", err)
	}
	return agg, nil
}

// GetCase returns a live case visible within scope, or sql.ErrNoRows.
func (s *PostgresStore) GetCase(ctx context.Context, scope CaseScope, caseID string) (Case, error) {
	b := scopeConditions(scope)
	b.add("c.id = %s", caseID)
	return scanCase(s.db.QueryRowContext(ctx, caseSelect+` WHERE `+b.sql(), b.args...))
}

// ListClientCases returns every live case of a client within the tenant.
func (s *PostgresStore) ListClientCases(ctx context.Context, companyID, clientID string) ([]Case, error) {
	b := scopeConditions(CaseScope{CompanyID: companyID})
	b.add("c.client_id = %s", clientID)
	rows, err := s.db.QueryContext(ctx, caseSelect+` WHERE `+b.sql()+` ORDER BY c.created_at`, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list client cases: %w", err)
	}
	defer rows.Close()

	var items []Case
	for rows.Next() {
		item, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) getCaseByID(ctx context.Context, q queryer, caseID string) (Case, error) {
	return scanCase(q.QueryRowContext(ctx, caseSelect+` WHERE c.id = $1`, caseID))
}

// CaseNumberConflict reports which unique identifier ("number" or
// "case_number") is already used by another case, or "" when both are free.
func (s *PostgresStore) CaseNumberConflict(ctx context.Context, number, caseNumber, excludeID string) (string, error) {
	var field string
	err := s.db.QueryRowContext(ctx, `
		SELECT CASE WHEN number = $1 THEN 'number' ELSE 'case_number' END
		FROM cases
		WHERE (number = $1 OR case_number = $2) AND ($3 = '' OR id::text <> $3)
		ORDER BY (number = $1) DESC
		LIMIT 1
	`, number, caseNumber, excludeID).Scan(&field)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check case numbers: %w", err)
	}
	return field, nil
}

func (s *PostgresStore) InsertCase(ctx context.Context, item Case) (Case, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cases (
			client_id, number, case_number, authority, case_type, object_type, object_address,
			status, assigned_user_id, start_date, deadline, completion_date, cost,
			bank_transfer_amount, cash_amount, remaining_debt, plaintiff, defendant,
			expert_painting, archive_status, remarks
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`,
		item.ClientID, item.Number, item.CaseNumber, item.Authority, item.CaseType, item.ObjectType, item.ObjectAddress,
		item.Status, nullID(item.AssignedUserID), item.StartDate, item.Deadline, item.CompletionDate, item.Cost,
		item.BankTransferAmount, item.CashAmount, item.RemainingDebt, item.Plaintiff, item.Defendant,
		item.ExpertPainting, item.ArchiveStatus, item.Remarks,
	).Scan(&id)
	if err != nil {
		return Case{}, fmt.Errorf("insert case: %w", err)
	}
	return s.getCaseByID(ctx, s.db, id)
}

// UpdateCase writes every mutable column of item. Missing or deleted cases
// yield sql.ErrNoRows.
func (s *PostgresStore) UpdateCase(ctx context.Context, item Case) (Case, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET
			client_id=$2, number=$3, case_number=$4, authority=$5, case_type=$6, object_type=$7,
			object_address=$8, status=$9, assigned_user_id=$10, start_date=$11, deadline=$12,
			completion_date=$13, cost=$14, bank_transfer_amount=$15, cash_amount=$16,
			remaining_debt=$17, plaintiff=$18, defendant=$19, expert_painting=$20,
			archive_status=$21, remarks=$22, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`,
		item.ID, item.ClientID, item.Number, item.CaseNumber, item.Authority, item.CaseType, item.ObjectType,
		item.ObjectAddress, item.Status, nullID(item.AssignedUserID), item.StartDate, item.Deadline,
		item.CompletionDate, item.Cost, item.BankTransferAmount, item.CashAmount,
		item.RemainingDebt, item.Plaintiff, item.Defendant, item.ExpertPainting,
		item.ArchiveStatus, item.Remarks,
	)
	if err != nil {
		return Case{}, fmt.Errorf("update case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Case{}, sql.ErrNoRows
	}
	return s.getCaseByID(ctx, s.db, item.ID)
}

func (s *PostgresStore) SoftDeleteCase(ctx context.Context, companyID, caseID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases c SET deleted_at = NOW(), updated_at = NOW()
		FROM clients cl
		WHERE cl.id = c.client_id AND cl.company_id = $1 AND c.id = $2 AND c.deleted_at IS NULL
	`, companyID, caseID)
	if err != nil {
		return false, fmt.Errorf("soft delete case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete case: %w", err)
	}
	return n > 0, nil
}
