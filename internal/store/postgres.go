package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, display_name, email, password_hash, timezone, is_email_verified,
	verification_token, verification_expires_at, deactivated_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	var passwordHash, verificationToken sql.NullString
	err := row.Scan(
		&user.ID, &user.DisplayName, &user.Email, &passwordHash, &user.Timezone,
		&user.IsEmailVerified, &verificationToken, &user.VerificationExpiresAt,
		&user.DeactivatedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = passwordHash.String
	user.VerificationToken = verificationToken.String
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 AND deactivated_at IS NULL`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1) AND deactivated_at IS NULL`, email)
	return scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	timezone := user.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, timezone, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, timezone, user.IsEmailVerified, nullIfBlank(user.VerificationToken))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO privacy_settings (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, user.ID); err != nil {
		return fmt.Errorf("insert privacy defaults: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, displayName, timezone string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, timezone=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, displayName, timezone)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.timezone
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Timezone)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// DeleteUserData removes every row the user owns and deactivates the account.
// Used by account deletion; journal repos and media objects are purged by the
// caller.
func (s *PostgresStore) DeleteUserData(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"attachments", "reflections", "user_streaks", "quest_completions",
		"user_badges", "xp_events", "user_xp", "contacts", "calendar_events",
		"memories", "privacy_settings", "refresh_sessions", "password_resets",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id=$1`, userID); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users
		SET deactivated_at=NOW(), display_name='Deleted User', email=CONCAT('deleted+', id, '@invalid.local'),
			password_hash='', verification_token=NULL, updated_at=NOW()
		WHERE id=$1
	`, userID); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return tx.Commit()
}

func nullIfBlank(value string) any {
	if value == "" {
		return nil
	}
	return value
}
