package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const reflectionColumns = `id, user_id, title, body, mood, mood_score, tags, entry_date, created_at, updated_at`

func scanReflection(scan func(dest ...any) error) (Reflection, error) {
	var item Reflection
	var mood sql.NullString
	var moodScore sql.NullInt64
	var tagsJSON []byte
	err := scan(
		&item.ID, &item.UserID, &item.Title, &item.Body, &mood, &moodScore,
		&tagsJSON, &item.EntryDate, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Reflection{}, err
	}
	item.Mood = mood.String
	item.MoodScore = int(moodScore.Int64)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &item.Tags); err != nil {
			return Reflection{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return item, nil
}

func (s *PostgresStore) InsertReflection(ctx context.Context, item Reflection) error {
	tags, err := json.Marshal(nonNilTags(item.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reflections (id, user_id, title, body, mood, mood_score, tags, entry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.UserID, item.Title, item.Body, nullIfBlank(item.Mood), nullIfZero(item.MoodScore), tags, item.EntryDate)
	if err != nil {
		return fmt.Errorf("insert reflection: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateReflection(ctx context.Context, item Reflection) (bool, error) {
	tags, err := json.Marshal(nonNilTags(item.Tags))
	if err != nil {
		return false, fmt.Errorf("encode tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE reflections
		SET title=$3, body=$4, mood=$5, mood_score=$6, tags=$7, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, item.ID, item.UserID, item.Title, item.Body, nullIfBlank(item.Mood), nullIfZero(item.MoodScore), tags)
	if err != nil {
		return false, fmt.Errorf("update reflection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update reflection rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) GetReflection(ctx context.Context, userID, reflectionID string) (Reflection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reflectionColumns+` FROM reflections WHERE id=$1 AND user_id=$2
	`, reflectionID, userID)
	return scanReflection(row.Scan)
}

func (s *PostgresStore) ListReflections(ctx context.Context, userID string, limit, offset int) ([]Reflection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reflectionColumns+`
		FROM reflections
		WHERE user_id=$1
		ORDER BY entry_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	defer rows.Close()

	items := make([]Reflection, 0)
	for rows.Next() {
		item, err := scanReflection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reflections: %w", err)
	}
	return items, nil
}

// ListReflectionsBetween returns entries in the half-open range [from, to).
func (s *PostgresStore) ListReflectionsBetween(ctx context.Context, userID string, from, to time.Time) ([]Reflection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reflectionColumns+`
		FROM reflections
		WHERE user_id=$1 AND entry_date >= $2 AND entry_date < $3
		ORDER BY entry_date ASC, created_at ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list reflections between: %w", err)
	}
	defer rows.Close()

	items := make([]Reflection, 0)
	for rows.Next() {
		item, err := scanReflection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reflections: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteReflection(ctx context.Context, userID, reflectionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reflections WHERE id=$1 AND user_id=$2`, reflectionID, userID)
	if err != nil {
		return false, fmt.Errorf("delete reflection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reflection rows: %w", err)
	}
	return affected > 0, nil
}

// CountReflectionsInWindow counts entries whose entry_date falls in [from, to).
// Quest progress for reflection and mood quests is derived from this.
func (s *PostgresStore) CountReflectionsInWindow(ctx context.Context, userID string, from, to time.Time, requireMood bool) (int, error) {
	query := `
		SELECT COUNT(*) FROM reflections
		WHERE user_id=$1 AND entry_date >= $2 AND entry_date < $3
	`
	if requireMood {
		query += ` AND mood_score IS NOT NULL`
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reflections in window: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountReflections(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reflections WHERE user_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reflections: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, reflection_id, user_id, object_key, filename, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.ReflectionID, item.UserID, item.ObjectKey, item.Filename, item.ContentType, item.SizeBytes)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, userID, reflectionID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reflection_id, user_id, object_key, filename, content_type, size_bytes, created_at
		FROM attachments
		WHERE user_id=$1 AND reflection_id=$2
		ORDER BY created_at ASC
	`, userID, reflectionID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.ReflectionID, &item.UserID, &item.ObjectKey, &item.Filename, &item.ContentType, &item.SizeBytes, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, userID, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reflection_id, user_id, object_key, filename, content_type, size_bytes, created_at
		FROM attachments
		WHERE id=$1 AND user_id=$2
	`, attachmentID, userID).Scan(&item.ID, &item.ReflectionID, &item.UserID, &item.ObjectKey, &item.Filename, &item.ContentType, &item.SizeBytes, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, userID, attachmentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1 AND user_id=$2`, attachmentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete attachment rows: %w", err)
	}
	return affected > 0, nil
}

// ListUserObjectKeys returns every media object key the user owns, for purge on
// account deletion.
func (s *PostgresStore) ListUserObjectKeys(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT object_key FROM attachments WHERE user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list object keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object keys: %w", err)
	}
	return keys, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullIfZero(value int) any {
	if value == 0 {
		return nil
	}
	return value
}
