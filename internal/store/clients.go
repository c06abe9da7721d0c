package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type ClientFilter struct {
	CompanyID string
	Type      string
	Search    string
	Page      int
	Limit     int
}

const clientColumns = `cl.id, cl.company_id, cl.type, cl.name, COALESCE(cl.short_name, ''), COALESCE(cl.inn, ''),
	COALESCE(cl.email, ''), COALESCE(cl.phone, ''), COALESCE(cl.legal_address, ''), COALESCE(cl.actual_address, ''),
	cl.created_at, cl.updated_at`

const contactColumns = `id, client_id, name, COALESCE(position, ''), COALESCE(email, ''), COALESCE(phone, ''),
	is_main, contact_type, created_at, updated_at`

func scanClient(row rowScanner, extra ...any) (Client, error) {
	var item Client
	dest := []any{&item.ID, &item.CompanyID, &item.Type, &item.Name, &item.ShortName, &item.INN,
		&item.Email, &item.Phone, &item.LegalAddress, &item.ActualAddress, &item.CreatedAt, &item.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return item, err
}

func scanContact(row rowScanner) (Contact, error) {
	var item Contact
	err := row.Scan(&item.ID, &item.ClientID, &item.Name, &item.Position, &item.Email, &item.Phone,
		&item.IsMain, &item.ContactType, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// InsertClient creates a client and, when contact is non-nil, its first contact.
func (s *PostgresStore) InsertClient(ctx context.Context, item Client, contact *Contact) (Client, error) {
	var created Client
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = scanClient(tx.QueryRowContext(ctx, `
			INSERT INTO clients AS cl (company_id, type, name, short_name, inn, email, phone, legal_address, actual_address)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+clientColumns,
			item.CompanyID, item.Type, item.Name, nullString(item.ShortName), nullString(item.INN),
			nullString(item.Email), nullString(item.Phone), nullString(item.LegalAddress), nullString(item.ActualAddress),
		))
		if err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		created.Contacts = make([]Contact, 0, 1)
		if contact != nil {
			contact.ClientID = created.ID
			saved, err := insertContact(ctx, tx, *contact)
			if err != nil {
				return err
			}
			created.Contacts = append(created.Contacts, saved)
		}
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return created, nil
}

// GetClient returns the client with its contacts, main contact first.
func (s *PostgresStore) GetClient(ctx context.Context, companyID, clientID string) (Client, error) {
	item, err := scanClient(s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients cl WHERE cl.id = $1 AND cl.company_id = $2`, clientID, companyID))
	if err != nil {
		return Client{}, err
	}
	contacts, err := s.ListContacts(ctx, clientID)
	if err != nil {
		return Client{}, err
	}
	item.Contacts = contacts
	return item, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, clientID string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE client_id = $1 ORDER BY is_main DESC, created_at`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		item, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListClients(ctx context.Context, filter ClientFilter) ([]Client, int, error) {
	page, limit := NormalizePage(filter.Page, filter.Limit, DefaultPageSize)

	b := &whereBuilder{}
	b.add("cl.company_id = %s", filter.CompanyID)
	if filter.Type != "" {
		b.add("cl.type = %s", filter.Type)
	}
	if v := strings.TrimSpace(filter.Search); v != "" {
		p := b.bind(likePattern(v))
		b.conds = append(b.conds, fmt.Sprintf("(cl.name ILIKE %[1]s OR cl.inn ILIKE %[1]s)", p))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients cl WHERE `+b.sql(), b.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	args := append([]any(nil), b.args...)
	args = append(args, StatusInWork, limit, (page-1)*limit)
	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s,
			COUNT(c.id) FILTER (WHERE c.deleted_at IS NULL),
			COUNT(c.id) FILTER (WHERE c.deleted_at IS NULL AND c.status = $%d)
		FROM clients cl
		LEFT JOIN cases c ON c.client_id = cl.id
		WHERE %s
		GROUP BY cl.id
		ORDER BY cl.created_at DESC, cl.id
		LIMIT $%d OFFSET $%d`, clientColumns, n-2, b.sql(), n-1, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		var totalCases, activeCases int
		item, err := scanClient(rows, &totalCases, &activeCases)
		if err != nil {
			return nil, 0, fmt.Errorf("scan client: %w", err)
		}
		item.TotalCases = totalCases
		item.ActiveCases = activeCases
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate clients: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) SuggestClients(ctx context.Context, companyID, q string, limit int) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients cl
		WHERE cl.company_id = $1 AND (cl.name ILIKE $2 OR cl.short_name ILIKE $2)
		ORDER BY cl.name
		LIMIT $3
	`, companyID, prefixPattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("suggest clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		item, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, item Client) (Client, error) {
	updated, err := scanClient(s.db.QueryRowContext(ctx, `
		UPDATE clients cl SET type=$3, name=$4, short_name=$5, inn=$6, email=$7, phone=$8,
			legal_address=$9, actual_address=$10, updated_at=NOW()
		WHERE cl.id=$1 AND cl.company_id=$2
		RETURNING `+clientColumns,
		item.ID, item.CompanyID, item.Type, item.Name, nullString(item.ShortName), nullString(item.INN),
		nullString(item.Email), nullString(item.Phone), nullString(item.LegalAddress), nullString(item.ActualAddress),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, err
	}
	if err != nil {
		return Client{}, fmt.Errorf("update client: %w", err)
	}
	return updated, nil
}

// DeleteClient removes the client together with its contacts and cases and
// returns the ids of the removed cases.
func (s *PostgresStore) DeleteClient(ctx context.Context, companyID, clientID string) ([]string, bool, error) {
	var caseIDs []string
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			DELETE FROM cases c USING clients cl
			WHERE cl.id = c.client_id AND cl.company_id = $2 AND c.client_id = $1
			RETURNING c.id
		`, clientID, companyID)
		if err != nil {
			return fmt.Errorf("delete client cases: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan case id: %w", err)
			}
			caseIDs = append(caseIDs, id)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate case ids: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id=$1 AND company_id=$2`, clientID, companyID)
		if err != nil {
			return fmt.Errorf("delete client: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete client: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return caseIDs, deleted, nil
}

// insertContact keeps at most one main contact per client.
func insertContact(ctx context.Context, tx *sql.Tx, item Contact) (Contact, error) {
	if item.IsMain {
		if err := clearMainContact(ctx, tx, item.ClientID, ""); err != nil {
			return Contact{}, err
		}
	}
	if item.ContactType == "" {
		item.ContactType = "individual"
	}
	created, err := scanContact(tx.QueryRowContext(ctx, `
		INSERT INTO contacts (client_id, name, position, email, phone, is_main, contact_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+contactColumns,
		item.ClientID, item.Name, nullString(item.Position), nullString(item.Email), nullString(item.Phone),
		item.IsMain, item.ContactType,
	))
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return created, nil
}

func clearMainContact(ctx context.Context, tx *sql.Tx, clientID, exceptID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE contacts SET is_main=FALSE, updated_at=NOW()
		WHERE client_id=$1 AND is_main AND ($2 = '' OR id::text <> $2)
	`, clientID, exceptID); err != nil {
		return fmt.Errorf("clear main contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertContact(ctx context.Context, item Contact) (Contact, error) {
	var created Contact
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = insertContact(ctx, tx, item)
		return err
	})
	return created, err
}

func (s *PostgresStore) GetContact(ctx context.Context, clientID, contactID string) (Contact, error) {
	return scanContact(s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1 AND client_id=$2`, contactID, clientID))
}

func (s *PostgresStore) UpdateContact(ctx context.Context, item Contact) (Contact, error) {
	var updated Contact
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if item.IsMain {
			if err := clearMainContact(ctx, tx, item.ClientID, item.ID); err != nil {
				return err
			}
		}
		var err error
		updated, err = scanContact(tx.QueryRowContext(ctx, `
			UPDATE contacts SET name=$3, position=$4, email=$5, phone=$6, is_main=$7, contact_type=$8, updated_at=NOW()
			WHERE id=$1 AND client_id=$2
			RETURNING `+contactColumns,
			item.ID, item.ClientID, item.Name, nullString(item.Position), nullString(item.Email), nullString(item.Phone),
			item.IsMain, item.ContactType,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	})
	return updated, err
}

func (s *PostgresStore) DeleteContact(ctx context.Context, clientID, contactID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1 AND client_id=$2`, contactID, clientID)
	if err != nil {
		return false, fmt.Errorf("delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete contact: %w", err)
	}
	return n > 0, nil
}
