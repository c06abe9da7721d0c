package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EntryQuery selects the folders and documents shown in one listing.
type EntryQuery struct {
	CompanyID string
	// FolderID is the parent being browsed; nil means the root. Ignored when
	// Search is set.
	FolderID *string
	CaseID   string
	Search   string
	// ExpertID narrows results to items the expert created or that belong to
	// cases assigned to them.
	ExpertID string
	SortBy   string
	Order    string
	Limit    int
	Offset   int
}

// ParentLookup returns the parent of a folder in the current transaction.
// found is false when the folder does not exist in the tenant.
type ParentLookup func(ctx context.Context, folderID string) (parentID *string, found bool, err error)

const folderColumns = `f.id, f.company_id, f.name, f.parent_id, f.case_id, f.created_by_id,
	COALESCE(u.full_name, ''), f.created_at, f.updated_at`

const folderFrom = ` FROM folders f LEFT JOIN users u ON u.id = f.created_by_id`

func scanFolder(row rowScanner) (Folder, error) {
	var (
		item                        Folder
		parentID, caseID, createdBy nullableID
	)
	if err := row.Scan(&item.ID, &item.CompanyID, &item.Name, &parentID, &caseID, &createdBy,
		&item.CreatedByName, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Folder{}, err
	}
	item.ParentID = parentID.ptr()
	item.CaseID = caseID.ptr()
	item.CreatedByID = createdBy.ptr()
	return item, nil
}

func scanFolders(rows *sql.Rows) ([]Folder, error) {
	defer rows.Close()
	items := make([]Folder, 0)
	for rows.Next() {
		item, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, companyID, folderID string) (Folder, error) {
	return scanFolder(s.db.QueryRowContext(ctx, `SELECT `+folderColumns+folderFrom+` WHERE f.id = $1 AND f.company_id = $2`, folderID, companyID))
}

func (s *PostgresStore) InsertFolder(ctx context.Context, item Folder) (Folder, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO folders (company_id, name, parent_id, case_id, created_by_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, item.CompanyID, item.Name, nullID(item.ParentID), nullID(item.CaseID), nullID(item.CreatedByID)).Scan(&id)
	if err != nil {
		return Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	return s.GetFolder(ctx, item.CompanyID, id)
}

// UpdateFolder rewrites name, parent and case of item. Before writing, validate
// runs inside the same transaction while a per-tenant advisory lock is held, so
// concurrent moves in the tenant cannot interleave between the check and the
// write.
func (s *PostgresStore) UpdateFolder(ctx context.Context, item Folder, validate func(context.Context, ParentLookup) error) (Folder, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "folders:"+item.CompanyID); err != nil {
			return fmt.Errorf("lock folder tree: %w", err)
		}

		if validate != nil {
			lookup := func(ctx context.Context, folderID string) (*string, bool, error) {
				var parent nullableID
				err := tx.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id = $1 AND company_id = $2`,
					folderID, item.CompanyID).Scan(&parent)
				if errors.Is(err, sql.ErrNoRows) {
					return nil, false, nil
				}
				if err != nil {
					return nil, false, fmt.Errorf("lookup folder parent: %w", err)
				}
				return parent.ptr(), true, nil
			}
			if err := validate(ctx, lookup); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE folders SET name=$3, parent_id=$4, case_id=$5, updated_at=NOW()
			WHERE id=$1 AND company_id=$2
		`, item.ID, item.CompanyID, item.Name, nullID(item.ParentID), nullID(item.CaseID))
		if err != nil {
			return fmt.Errorf("update folder: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return Folder{}, err
	}
	return s.GetFolder(ctx, item.CompanyID, item.ID)
}

func (s *PostgresStore) ListChildFolders(ctx context.Context, companyID, parentID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+folderFrom+`
		WHERE f.company_id = $1 AND f.parent_id = $2 ORDER BY f.name`, companyID, parentID)
	if err != nil {
		return nil, fmt.Errorf("list child folders: %w", err)
	}
	return scanFolders(rows)
}

func (s *PostgresStore) ListFolderEntries(ctx context.Context, q EntryQuery) ([]Folder, error) {
	b := &whereBuilder{}
	b.add("f.company_id = %s", q.CompanyID)
	if search := strings.TrimSpace(q.Search); search != "" {
		b.add("f.name ILIKE %s", likePattern(search))
	} else if q.FolderID != nil {
		b.add("f.parent_id = %s", *q.FolderID)
	} else {
		b.conds = append(b.conds, "f.parent_id IS NULL")
	}
	if q.CaseID != "" {
		b.add("f.case_id = %s", q.CaseID)
	}
	if q.ExpertID != "" {
		e := b.bind(q.ExpertID)
		b.conds = append(b.conds, fmt.Sprintf(`(f.created_by_id = %[1]s OR EXISTS (
			SELECT 1 FROM cases c WHERE c.id = f.case_id AND c.assigned_user_id = %[1]s AND c.deleted_at IS NULL))`, e))
	}

	order := "f.created_at"
	switch q.SortBy {
	case "name":
		order = "f.name"
	}
	query := fmt.Sprintf(`SELECT %s%s WHERE %s ORDER BY %s %s, f.id LIMIT %s OFFSET %s`,
		folderColumns, folderFrom, b.sql(), order, sortDirection(q.Order), b.bind(q.Limit), b.bind(q.Offset))

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list folder entries: %w", err)
	}
	return scanFolders(rows)
}

// DeleteFolderTree deletes a folder, its subfolders and every document inside
// them. It returns the object keys of the deleted documents.
func (s *PostgresStore) DeleteFolderTree(ctx context.Context, companyID, folderID string) ([]string, bool, error) {
	keys := make([]string, 0)
	found := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			WITH RECURSIVE tree AS (
				SELECT id FROM folders WHERE id = $1 AND company_id = $2
				UNION
				SELECT f.id FROM folders f JOIN tree t ON f.parent_id = t.id
			)
			DELETE FROM documents WHERE folder_id IN (SELECT id FROM tree)
			RETURNING file_path
		`, folderID, companyID)
		if err != nil {
			return fmt.Errorf("delete folder documents: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return fmt.Errorf("scan document key: %w", err)
			}
			keys = append(keys, key)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate document keys: %w", err)
		}
		rows.Close()

		res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = $1 AND company_id = $2`, folderID, companyID)
		if err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		found = n > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return keys, found, nil
}
