package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertMailMessage stores the message, its body and its recipients.
func (s *PostgresStore) InsertMailMessage(ctx context.Context, item MailMessage) (MailMessage, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO mail_messages (thread_id, user_id, case_id, sender_email, sender_name, subject,
				message_type, status, size_bytes, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at
		`, nullString(item.ThreadID), nullID(item.UserID), nullID(item.CaseID), item.SenderEmail, item.SenderName,
			item.Subject, item.MessageType, item.Status, item.SizeBytes, item.ProcessedAt,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert mail message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO mail_contents (message_id, body_text, body_html) VALUES ($1, $2, $3)`,
			item.ID, item.BodyText, item.BodyHTML); err != nil {
			return fmt.Errorf("insert mail content: %w", err)
		}
		for _, r := range item.Recipients {
			if _, err := tx.ExecContext(ctx, `INSERT INTO mail_recipients (message_id, email, name, recipient_type) VALUES ($1, $2, $3, $4)`,
				item.ID, r.Email, r.Name, r.Type); err != nil {
				return fmt.Errorf("insert mail recipient: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return MailMessage{}, err
	}
	return item, nil
}

// ListCaseMail returns the mail linked to a case, newest first, without recipients.
func (s *PostgresStore) ListCaseMail(ctx context.Context, caseID string) ([]MailMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, COALESCE(m.thread_id, ''), m.user_id, m.case_id, m.sender_email, m.sender_name, m.subject,
			m.message_type, m.status, COALESCE(mc.body_text, ''), COALESCE(mc.body_html, ''), m.size_bytes,
			m.processed_at, m.created_at
		FROM mail_messages m
		LEFT JOIN mail_contents mc ON mc.message_id = m.id
		WHERE m.case_id = $1
		ORDER BY m.created_at DESC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case mail: %w", err)
	}
	defer rows.Close()

	items := make([]MailMessage, 0)
	for rows.Next() {
		var (
			item           MailMessage
			userID, linked nullableID
		)
		if err := rows.Scan(&item.ID, &item.ThreadID, &userID, &linked, &item.SenderEmail, &item.SenderName,
			&item.Subject, &item.MessageType, &item.Status, &item.BodyText, &item.BodyHTML, &item.SizeBytes,
			&item.ProcessedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mail message: %w", err)
		}
		item.UserID = userID.ptr()
		item.CaseID = linked.ptr()
		item.Recipients = make([]MailRecipient, 0)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mail messages: %w", err)
	}
	return items, nil
}
