package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const documentColumns = `d.id, d.company_id, d.case_id, d.folder_id, d.uploaded_by_id, COALESCE(u.full_name, ''),
	COALESCE(f.name, ''), d.title, d.original_filename, d.file_path, d.file_size, d.mime_type,
	d.file_extension, d.version, d.is_archived, d.created_at, d.updated_at`

const documentFrom = ` FROM documents d
	LEFT JOIN users u ON u.id = d.uploaded_by_id
	LEFT JOIN folders f ON f.id = d.folder_id`

func scanDocument(row rowScanner) (Document, error) {
	var (
		item                       Document
		caseID, folderID, uploader nullableID
	)
	if err := row.Scan(&item.ID, &item.CompanyID, &caseID, &folderID, &uploader, &item.UploadedByName,
		&item.FolderName, &item.Title, &item.OriginalFilename, &item.FilePath, &item.FileSize, &item.MimeType,
		&item.FileExtension, &item.Version, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Document{}, err
	}
	item.CaseID = caseID.ptr()
	item.FolderID = folderID.ptr()
	item.UploadedByID = uploader.ptr()
	return item, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, companyID, documentID string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+documentFrom+` WHERE d.id = $1 AND d.company_id = $2`, documentID, companyID))
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) (Document, error) {
	if item.Version == 0 {
		item.Version = 1
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (company_id, case_id, folder_id, uploaded_by_id, title, original_filename,
			file_path, file_size, mime_type, file_extension, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, item.CompanyID, nullID(item.CaseID), nullID(item.FolderID), nullID(item.UploadedByID), item.Title,
		item.OriginalFilename, item.FilePath, item.FileSize, item.MimeType, item.FileExtension, item.Version,
	).Scan(&id)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return s.GetDocument(ctx, item.CompanyID, id)
}

// UpdateDocument writes title, folder, case and archive flag.
func (s *PostgresStore) UpdateDocument(ctx context.Context, item Document) (Document, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET title=$3, folder_id=$4, case_id=$5, is_archived=$6, updated_at=NOW()
		WHERE id=$1 AND company_id=$2
	`, item.ID, item.CompanyID, item.Title, nullID(item.FolderID), nullID(item.CaseID), item.IsArchived)
	if err != nil {
		return Document{}, fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Document{}, sql.ErrNoRows
	}
	return s.GetDocument(ctx, item.CompanyID, item.ID)
}

// DeleteDocument removes the row and returns its object key.
func (s *PostgresStore) DeleteDocument(ctx context.Context, companyID, documentID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `DELETE FROM documents WHERE id=$1 AND company_id=$2 RETURNING file_path`,
		documentID, companyID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("delete document: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) ListFolderDocuments(ctx context.Context, companyID, folderID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+documentFrom+`
		WHERE d.company_id = $1 AND d.folder_id = $2 ORDER BY d.title`, companyID, folderID)
	if err != nil {
		return nil, fmt.Errorf("list folder documents: %w", err)
	}
	return scanDocuments(rows)
}

func (s *PostgresStore) ListCaseDocuments(ctx context.Context, companyID, caseID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+documentFrom+`
		WHERE d.company_id = $1 AND d.case_id = $2 ORDER BY d.created_at DESC`, companyID, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case documents: %w", err)
	}
	return scanDocuments(rows)
}

func (s *PostgresStore) ListDocumentEntries(ctx context.Context, q EntryQuery) ([]Document, error) {
	b := &whereBuilder{}
	b.add("d.company_id = %s", q.CompanyID)
	if search := strings.TrimSpace(q.Search); search != "" {
		p := b.bind(likePattern(search))
		b.conds = append(b.conds, fmt.Sprintf("(d.title ILIKE %[1]s OR d.original_filename ILIKE %[1]s)", p))
	} else if q.FolderID != nil {
		b.add("d.folder_id = %s", *q.FolderID)
	} else {
		b.conds = append(b.conds, "d.folder_id IS NULL")
	}
	if q.CaseID != "" {
		b.add("d.case_id = %s", q.CaseID)
	}
	if q.ExpertID != "" {
		e := b.bind(q.ExpertID)
		b.conds = append(b.conds, fmt.Sprintf(`(d.uploaded_by_id = %[1]s OR EXISTS (
			SELECT 1 FROM cases c WHERE c.id = d.case_id AND c.assigned_user_id = %[1]s AND c.deleted_at IS NULL))`, e))
	}

	order := "d.created_at"
	switch q.SortBy {
	case "name":
		order = "d.title"
	case "size":
		order = "d.file_size"
	}
	query := fmt.Sprintf(`SELECT %s%s WHERE %s ORDER BY %s %s, d.id LIMIT %s OFFSET %s`,
		documentColumns, documentFrom, b.sql(), order, sortDirection(q.Order), b.bind(q.Limit), b.bind(q.Offset))

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list document entries: %w", err)
	}
	return scanDocuments(rows)
}
