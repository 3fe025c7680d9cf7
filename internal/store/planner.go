package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *PostgresStore) InsertContact(ctx context.Context, item Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, user_id, name, relationship, phone, email, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.UserID, item.Name, nullIfBlank(item.Relationship), nullIfBlank(item.Phone), nullIfBlank(item.Email), item.Priority)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, item Contact) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET name=$3, relationship=$4, phone=$5, email=$6, priority=$7, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, item.ID, item.UserID, item.Name, nullIfBlank(item.Relationship), nullIfBlank(item.Phone), nullIfBlank(item.Email), item.Priority)
	if err != nil {
		return false, fmt.Errorf("update contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update contact rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, userID string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(relationship, ''), COALESCE(phone, ''), COALESCE(email, ''), priority, created_at, updated_at
		FROM contacts
		WHERE user_id=$1
		ORDER BY priority, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		var item Contact
		err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Relationship, &item.Phone, &item.Email, &item.Priority, &item.CreatedAt, &item.UpdatedAt)
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

func (s *PostgresStore) GetContact(ctx context.Context, userID, contactID string) (Contact, error) {
	var item Contact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, COALESCE(relationship, ''), COALESCE(phone, ''), COALESCE(email, ''), priority, created_at, updated_at
		FROM contacts WHERE id=$1 AND user_id=$2
	`, contactID, userID).Scan(&item.ID, &item.UserID, &item.Name, &item.Relationship, &item.Phone, &item.Email, &item.Priority, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Contact{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteContact(ctx context.Context, userID, contactID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1 AND user_id=$2`, contactID, userID)
	if err != nil {
		return false, fmt.Errorf("delete contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete contact rows: %w", err)
	}
	return affected > 0, nil
}

func scanCalendarEvent(scan func(dest ...any) error) (CalendarEvent, error) {
	var item CalendarEvent
	var notes sql.NullString
	var endsAt, reminderSentAt sql.NullTime
	err := scan(&item.ID, &item.UserID, &item.Title, &notes, &item.StartsAt, &endsAt, &item.RemindMinutes, &reminderSentAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return CalendarEvent{}, err
	}
	item.Notes = notes.String
	if endsAt.Valid {
		t := endsAt.Time
		item.EndsAt = &t
	}
	if reminderSentAt.Valid {
		t := reminderSentAt.Time
		item.ReminderSentAt = &t
	}
	return item, nil
}

func (s *PostgresStore) InsertCalendarEvent(ctx context.Context, item CalendarEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, user_id, title, notes, starts_at, ends_at, remind_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.UserID, item.Title, nullIfBlank(item.Notes), item.StartsAt, item.EndsAt, item.RemindMinutes)
	if err != nil {
		return fmt.Errorf("insert calendar event: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCalendarEvent(ctx context.Context, item CalendarEvent) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE calendar_events
		SET title=$3, notes=$4, starts_at=$5, ends_at=$6, remind_minutes=$7,
		    reminder_sent_at=NULL, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, item.ID, item.UserID, item.Title, nullIfBlank(item.Notes), item.StartsAt, item.EndsAt, item.RemindMinutes)
	if err != nil {
		return false, fmt.Errorf("update calendar event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update calendar event rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListCalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, notes, starts_at, ends_at, remind_minutes, reminder_sent_at, created_at, updated_at
		FROM calendar_events
		WHERE user_id=$1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	items := make([]CalendarEvent, 0)
	for rows.Next() {
		item, err := scanCalendarEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar events: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCalendarEvent(ctx context.Context, userID, eventID string) (CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, notes, starts_at, ends_at, remind_minutes, reminder_sent_at, created_at, updated_at
		FROM calendar_events WHERE id=$1 AND user_id=$2
	`, eventID, userID)
	return scanCalendarEvent(row.Scan)
}

func (s *PostgresStore) DeleteCalendarEvent(ctx context.Context, userID, eventID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id=$1 AND user_id=$2`, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("delete calendar event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete calendar event rows: %w", err)
	}
	return affected > 0, nil
}

// DueReminders returns events whose reminder lead time has elapsed and that
// have not been notified yet. The join pulls the owner's address for dispatch.
func (s *PostgresStore) DueReminders(ctx context.Context, now time.Time) ([]DueReminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.user_id, u.email, u.display_name, e.title, e.starts_at
		FROM calendar_events e
		JOIN users u ON u.id = e.user_id AND u.deactivated_at IS NULL
		WHERE e.remind_minutes > 0
		  AND e.reminder_sent_at IS NULL
		  AND e.starts_at > $1
		  AND e.starts_at <= $1 + (e.remind_minutes * INTERVAL '1 minute')
		ORDER BY e.starts_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	due := make([]DueReminder, 0)
	for rows.Next() {
		var item DueReminder
		if err := rows.Scan(&item.EventID, &item.UserID, &item.Email, &item.UserName, &item.Title, &item.StartsAt); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		due = append(due, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due reminders: %w", err)
	}
	return due, nil
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, eventID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calendar_events SET reminder_sent_at=$2 WHERE id=$1 AND reminder_sent_at IS NULL
	`, eventID, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMemory(ctx context.Context, item Memory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, content, category, source, pinned)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.UserID, item.Content, nullIfBlank(item.Category), nullIfBlank(item.Source), item.Pinned)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMemory(ctx context.Context, item Memory) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET content=$3, category=$4, pinned=$5, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, item.ID, item.UserID, item.Content, nullIfBlank(item.Category), item.Pinned)
	if err != nil {
		return false, fmt.Errorf("update memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update memory rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListMemories(ctx context.Context, userID string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, COALESCE(category, ''), COALESCE(source, ''), pinned, created_at, updated_at
		FROM memories
		WHERE user_id=$1
		ORDER BY pinned DESC, updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	items := make([]Memory, 0)
	for rows.Next() {
		var item Memory
		err := rows.Scan(&item.ID, &item.UserID, &item.Content, &item.Category, &item.Source, &item.Pinned, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMemory(ctx context.Context, userID, memoryID string) (Memory, error) {
	var item Memory
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, COALESCE(category, ''), COALESCE(source, ''), pinned, created_at, updated_at
		FROM memories WHERE id=$1 AND user_id=$2
	`, memoryID, userID).Scan(&item.ID, &item.UserID, &item.Content, &item.Category, &item.Source, &item.Pinned, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Memory{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteMemory(ctx context.Context, userID, memoryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id=$1 AND user_id=$2`, memoryID, userID)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete memory rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) GetPrivacySettings(ctx context.Context, userID string) (PrivacySettings, error) {
	var settings PrivacySettings
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, memory_enabled, searchable, share_mood_with_contacts, data_retention_days, updated_at
		FROM privacy_settings WHERE user_id=$1
	`, userID).Scan(&settings.UserID, &settings.MemoryEnabled, &settings.Searchable,
		&settings.ShareMoodWithContacts, &settings.DataRetentionDays, &settings.UpdatedAt)
	if err != nil {
		return PrivacySettings{}, err
	}
	return settings, nil
}

func (s *PostgresStore) UpdatePrivacySettings(ctx context.Context, settings PrivacySettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO privacy_settings (user_id, memory_enabled, searchable, share_mood_with_contacts, data_retention_days)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET memory_enabled=EXCLUDED.memory_enabled, searchable=EXCLUDED.searchable,
		    share_mood_with_contacts=EXCLUDED.share_mood_with_contacts,
		    data_retention_days=EXCLUDED.data_retention_days, updated_at=NOW()
	`, settings.UserID, settings.MemoryEnabled, settings.Searchable, settings.ShareMoodWithContacts, settings.DataRetentionDays)
	if err != nil {
		return fmt.Errorf("update privacy settings: %w", err)
	}
	return nil
}

// PurgeExpiredReflections deletes entries older than each user's retention
// horizon. Users with retention 0 keep everything.
func (s *PostgresStore) PurgeExpiredReflections(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM reflections r
		USING privacy_settings p
		WHERE p.user_id = r.user_id
		  AND p.data_retention_days > 0
		  AND r.entry_date < $1::date - (p.data_retention_days * INTERVAL '1 day')
	`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired reflections: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired rows: %w", err)
	}
	return affected, nil
}
