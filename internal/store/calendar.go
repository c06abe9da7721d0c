package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type ActivityFilter struct {
	CompanyID string
	From      *time.Time
	To        *time.Time
	// ParticipantID keeps activities the user created or attends.
	ParticipantID string
}

const activityColumns = `a.id, a.company_id, a.type, a.creator_id, a.title, a.description, a.color, a.start_at,
	a.end_at, a.all_day, a.is_completed, a.completed_at, a.location, a.status, a.case_id, a.client_id,
	a.created_at, a.updated_at`

func scanActivity(row rowScanner) (CalendarActivity, error) {
	var (
		item                      CalendarActivity
		creator, caseID, clientID nullableID
	)
	if err := row.Scan(&item.ID, &item.CompanyID, &item.Type, &creator, &item.Title, &item.Description,
		&item.Color, &item.StartAt, &item.EndAt, &item.AllDay, &item.IsCompleted, &item.CompletedAt,
		&item.Location, &item.Status, &caseID, &clientID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return CalendarActivity{}, err
	}
	item.CreatorID = creator.ptr()
	item.CaseID = caseID.ptr()
	item.ClientID = clientID.ptr()
	item.Attendees = make([]UserShort, 0)
	return item, nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]CalendarActivity, error) {
	b := &whereBuilder{}
	b.add("a.company_id = %s", filter.CompanyID)
	if filter.From != nil {
		b.add("COALESCE(a.end_at, a.start_at) >= %s", *filter.From)
	}
	if filter.To != nil {
		b.add("a.start_at < %s", *filter.To)
	}
	if filter.ParticipantID != "" {
		p := b.bind(filter.ParticipantID)
		b.conds = append(b.conds, fmt.Sprintf(`(a.creator_id = %[1]s OR EXISTS (
			SELECT 1 FROM calendar_event_attendees ea WHERE ea.activity_id = a.id AND ea.user_id = %[1]s))`, p))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+activityColumns+` FROM calendar_activities a WHERE `+b.sql()+
		` ORDER BY a.start_at, a.id`, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]CalendarActivity, 0)
	index := make(map[string]int)
	ids := make([]string, 0)
	for rows.Next() {
		item, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		index[item.ID] = len(items)
		ids = append(ids, item.ID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	attendees, err := s.db.QueryContext(ctx, `
		SELECT ea.activity_id, u.id, u.email, u.full_name
		FROM calendar_event_attendees ea
		JOIN users u ON u.id = ea.user_id
		WHERE ea.activity_id::text = ANY($1)
		ORDER BY u.full_name
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer attendees.Close()
	for attendees.Next() {
		var (
			activityID string
			user       UserShort
		)
		if err := attendees.Scan(&activityID, &user.ID, &user.Email, &user.FullName); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		if i, ok := index[activityID]; ok {
			items[i].Attendees = append(items[i].Attendees, user)
		}
	}
	if err := attendees.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendees: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, companyID, activityID string) (CalendarActivity, error) {
	return getActivity(ctx, s.db, companyID, activityID)
}

func getActivity(ctx context.Context, q queryer, companyID, activityID string) (CalendarActivity, error) {
	item, err := scanActivity(q.QueryRowContext(ctx, `SELECT `+activityColumns+
		` FROM calendar_activities a WHERE a.id = $1 AND a.company_id = $2`, activityID, companyID))
	if err != nil {
		return CalendarActivity{}, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT u.id, u.email, u.full_name
		FROM calendar_event_attendees ea
		JOIN users u ON u.id = ea.user_id
		WHERE ea.activity_id = $1
		ORDER BY u.full_name
	`, activityID)
	if err != nil {
		return CalendarActivity{}, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()
	item.Attendees, err = scanUserShorts(rows)
	if err != nil {
		return CalendarActivity{}, err
	}
	return item, nil
}

func replaceAttendees(ctx context.Context, tx *sql.Tx, activityID string, userIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_event_attendees WHERE activity_id = $1`, activityID); err != nil {
		return fmt.Errorf("clear attendees: %w", err)
	}
	if len(userIDs) == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO calendar_event_attendees (activity_id, user_id)
		SELECT $1, u::uuid FROM unnest($2::text[]) AS u
		ON CONFLICT DO NOTHING
	`, activityID, userIDs); err != nil {
		return fmt.Errorf("insert attendees: %w", err)
	}
	return nil
}

// InsertActivity creates the activity and its attendee rows in one transaction.
func (s *PostgresStore) InsertActivity(ctx context.Context, item CalendarActivity, attendeeIDs []string) (CalendarActivity, error) {
	var created CalendarActivity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO calendar_activities (company_id, type, creator_id, title, description, color, start_at,
				end_at, all_day, is_completed, completed_at, location, status, case_id, client_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id
		`, item.CompanyID, item.Type, nullID(item.CreatorID), item.Title, item.Description, item.Color, item.StartAt,
			item.EndAt, item.AllDay, item.IsCompleted, item.CompletedAt, item.Location, item.Status,
			nullID(item.CaseID), nullID(item.ClientID),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		if err := replaceAttendees(ctx, tx, id, attendeeIDs); err != nil {
			return err
		}
		created, err = getActivity(ctx, tx, item.CompanyID, id)
		return err
	})
	if err != nil {
		return CalendarActivity{}, err
	}
	return created, nil
}

// UpdateActivity rewrites the activity. Attendees are replaced only when
// attendeeIDs is non-nil.
func (s *PostgresStore) UpdateActivity(ctx context.Context, item CalendarActivity, attendeeIDs []string) (CalendarActivity, error) {
	var updated CalendarActivity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE calendar_activities SET title=$3, description=$4, color=$5, start_at=$6, end_at=$7,
				all_day=$8, is_completed=$9, completed_at=$10, location=$11, status=$12, case_id=$13,
				client_id=$14, updated_at=NOW()
			WHERE id=$1 AND company_id=$2
		`, item.ID, item.CompanyID, item.Title, item.Description, item.Color, item.StartAt, item.EndAt,
			item.AllDay, item.IsCompleted, item.CompletedAt, item.Location, item.Status,
			nullID(item.CaseID), nullID(item.ClientID))
		if err != nil {
			return fmt.Errorf("update activity: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		if attendeeIDs != nil {
			if err := replaceAttendees(ctx, tx, item.ID, attendeeIDs); err != nil {
				return err
			}
		}
		updated, err = getActivity(ctx, tx, item.CompanyID, item.ID)
		return err
	})
	if err != nil {
		return CalendarActivity{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, companyID, activityID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calendar_activities WHERE id=$1 AND company_id=$2`, activityID, companyID)
	if err != nil {
		return false, fmt.Errorf("delete activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete activity: %w", err)
	}
	return n > 0, nil
}
