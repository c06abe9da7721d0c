package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Postgres implements Searcher with ILIKE matching. It is the fallback when
// Meilisearch is down or unconfigured.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Healthy always returns true: without Postgres the API is down anyway.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return []Result{}, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{"%" + escapeLike(text) + "%", q.CompanyID}
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultCase {
		where := `c.deleted_at IS NULL AND cl.company_id = $2 AND (
			c.number ILIKE $1 OR c.case_number ILIKE $1 OR c.authority ILIKE $1 OR
			c.object_address ILIKE $1 OR c.plaintiff ILIKE $1 OR c.defendant ILIKE $1 OR cl.name ILIKE $1)`
		if q.AssigneeID != "" {
			args = append(args, q.AssigneeID)
			where += fmt.Sprintf(" AND c.assigned_user_id = $%d", len(args))
		}
		subQueries = append(subQueries, `
			SELECT 'case'::text AS type, c.id::text AS id, c.number AS title,
				COALESCE(cl.name, '') AS snippet, c.client_id::text AS client_id, c.status, c.updated_at
			FROM cases c
			JOIN clients cl ON cl.id = c.client_id
			WHERE `+where)
	}

	if q.FilterType == "" || q.FilterType == ResultClient {
		subQueries = append(subQueries, `
			SELECT 'client'::text AS type, cl.id::text AS id, cl.name AS title,
				COALESCE(cl.inn, cl.email, '') AS snippet, cl.id::text AS client_id, ''::text AS status, cl.updated_at
			FROM clients cl
			WHERE cl.company_id = $2 AND (cl.name ILIKE $1 OR cl.short_name ILIKE $1 OR cl.inn ILIKE $1 OR cl.email ILIKE $1)`)
	}

	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, client_id, status
		FROM (%s) sub
		ORDER BY updated_at DESC, id
		LIMIT %d OFFSET %d`, union, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ClientID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pg search iterate: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords returns every live case and client for a full reindex.
func (p *Postgres) LoadAllRecords(ctx context.Context) ([]CaseRecord, []ClientRecord, error) {
	caseRows, err := p.db.QueryContext(ctx, `
		SELECT c.id::text, cl.company_id::text, COALESCE(c.assigned_user_id::text, ''), c.client_id::text, cl.name,
			c.number, c.case_number, c.authority, c.object_address, c.plaintiff, c.defendant, c.status
		FROM cases c
		JOIN clients cl ON cl.id = c.client_id
		WHERE c.deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load cases: %w", err)
	}
	defer caseRows.Close()

	cases := make([]CaseRecord, 0)
	for caseRows.Next() {
		var r CaseRecord
		if err := caseRows.Scan(&r.ID, &r.CompanyID, &r.AssigneeID, &r.ClientID, &r.ClientName, &r.Number,
			&r.CaseNumber, &r.Authority, &r.ObjectAddress, &r.Plaintiff, &r.Defendant, &r.Status); err != nil {
			return nil, nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, r)
	}
	if err := caseRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cases: %w", err)
	}

	clientRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, company_id::text, name, COALESCE(short_name, ''), COALESCE(inn, ''), COALESCE(email, ''), type
		FROM clients
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load clients: %w", err)
	}
	defer clientRows.Close()

	clients := make([]ClientRecord, 0)
	for clientRows.Next() {
		var r ClientRecord
		if err := clientRows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.ShortName, &r.INN, &r.Email, &r.Type); err != nil {
			return nil, nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, r)
	}
	if err := clientRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate clients: %w", err)
	}

	return cases, clients, nil
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
