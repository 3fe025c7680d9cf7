package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bloom/api/internal/gamify"
	"bloom/api/internal/util"
)

var (
	ErrInsufficientXP  = errors.New("not enough xp")
	ErrFreezeCapHit    = errors.New("freeze credit cap reached")
	ErrAlreadyComplete = errors.New("quest already completed this window")
	ErrQuestNotDue     = errors.New("quest target not met")
)

func (s *PostgresStore) GetStreak(ctx context.Context, userID string) (StreakState, error) {
	var state StreakState
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, current_length, longest_length, freeze_credits, last_activity_date, updated_at
		FROM user_streaks WHERE user_id=$1
	`, userID).Scan(&state.UserID, &state.Current, &state.Longest, &state.FreezeCredits, &last, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StreakState{UserID: userID}, nil
	}
	if err != nil {
		return StreakState{}, fmt.Errorf("get streak: %w", err)
	}
	if last.Valid {
		t := last.Time
		state.LastActivity = &t
	}
	return state, nil
}

// RecordActivity advances the user's streak by one qualifying activity on the
// given user-local day. The streak row is locked for the duration so two
// concurrent entries cannot both extend the streak. The returned change says
// whether the day counted and whether freeze credits were spent.
func (s *PostgresStore) RecordActivity(ctx context.Context, userID string, day time.Time) (gamify.StreakChange, error) {
	var change gamify.StreakChange
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		state, err := lockStreak(ctx, tx, userID)
		if err != nil {
			return err
		}
		change = gamify.AdvanceStreak(state, day)
		if !change.Counted {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE user_streaks
			SET current_length=$2, longest_length=$3, freeze_credits=$4, last_activity_date=$5, updated_at=NOW()
			WHERE user_id=$1
		`, userID, change.Current, change.Longest, change.FreezeCredits, change.LastActivity)
		if err != nil {
			return fmt.Errorf("update streak: %w", err)
		}
		return nil
	})
	if err != nil {
		return gamify.StreakChange{}, err
	}
	return change, nil
}

// PurchaseFreezeCredit spends XP for one freeze credit. Both the XP row and the
// streak row are locked so a double-submit cannot buy past the cap or spend the
// same XP twice.
func (s *PostgresStore) PurchaseFreezeCredit(ctx context.Context, userID string) (StreakState, error) {
	var state StreakState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		total, err := lockXP(ctx, tx, userID)
		if err != nil {
			return err
		}
		streak, err := lockStreak(ctx, tx, userID)
		if err != nil {
			return err
		}
		if streak.FreezeCredits >= gamify.MaxFreezeCredits {
			return ErrFreezeCapHit
		}
		if total < gamify.FreezeCreditCostXP {
			return ErrInsufficientXP
		}
		if err := addXPEvent(ctx, tx, userID, -gamify.FreezeCreditCostXP, "freeze_purchase", ""); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE user_streaks SET freeze_credits=freeze_credits+1, updated_at=NOW() WHERE user_id=$1
		`, userID)
		if err != nil {
			return fmt.Errorf("add freeze credit: %w", err)
		}
		state = StreakState{
			UserID:        userID,
			Current:       streak.Current,
			Longest:       streak.Longest,
			FreezeCredits: streak.FreezeCredits + 1,
		}
		if !streak.LastActivity.IsZero() {
			t := streak.LastActivity
			state.LastActivity = &t
		}
		return nil
	})
	if err != nil {
		return StreakState{}, err
	}
	return state, nil
}

// AwardXP records an XP event and returns the new lifetime total.
func (s *PostgresStore) AwardXP(ctx context.Context, userID string, amount int, reason, refID string) (int, error) {
	var total int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lockXP(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := addXPEvent(ctx, tx, userID, amount, reason, refID); err != nil {
			return err
		}
		total = current + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *PostgresStore) GetXPState(ctx context.Context, userID string) (XPState, error) {
	var state XPState
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_xp, updated_at FROM user_xp WHERE user_id=$1
	`, userID).Scan(&state.UserID, &state.TotalXP, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return XPState{UserID: userID}, nil
	}
	if err != nil {
		return XPState{}, fmt.Errorf("get xp: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) ListXPEvents(ctx context.Context, userID string, limit int) ([]XPEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, reason, COALESCE(ref_id, ''), created_at
		FROM xp_events
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list xp events: %w", err)
	}
	defer rows.Close()

	events := make([]XPEvent, 0)
	for rows.Next() {
		var event XPEvent
		if err := rows.Scan(&event.ID, &event.UserID, &event.Amount, &event.Reason, &event.RefID, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate xp events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) ListActiveQuests(ctx context.Context) ([]Quest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, title, description, kind, time_frame, target, xp_reward, freeze_reward, active
		FROM quests
		WHERE active
		ORDER BY time_frame, code
	`)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	quests := make([]Quest, 0)
	for rows.Next() {
		var quest Quest
		err := rows.Scan(&quest.ID, &quest.Code, &quest.Title, &quest.Description, &quest.Kind,
			&quest.TimeFrame, &quest.Target, &quest.XPReward, &quest.FreezeReward, &quest.Active)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, quest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quests: %w", err)
	}
	return quests, nil
}

func (s *PostgresStore) GetQuest(ctx context.Context, questID string) (Quest, error) {
	var quest Quest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, title, description, kind, time_frame, target, xp_reward, freeze_reward, active
		FROM quests WHERE id=$1
	`, questID).Scan(&quest.ID, &quest.Code, &quest.Title, &quest.Description, &quest.Kind,
		&quest.TimeFrame, &quest.Target, &quest.XPReward, &quest.FreezeReward, &quest.Active)
	if err != nil {
		return Quest{}, err
	}
	return quest, nil
}

// ListQuestCompletionsSince returns the user's completions whose window starts
// at or after the given time. Callers match them to quests by quest ID and the
// window start of the frame they are rendering.
func (s *PostgresStore) ListQuestCompletionsSince(ctx context.Context, userID string, since time.Time) ([]QuestCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, quest_id, window_start, progress, completed_at
		FROM quest_completions
		WHERE user_id=$1 AND window_start >= $2
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list quest completions: %w", err)
	}
	defer rows.Close()

	completions := make([]QuestCompletion, 0)
	for rows.Next() {
		var c QuestCompletion
		if err := rows.Scan(&c.ID, &c.UserID, &c.QuestID, &c.WindowStart, &c.Progress, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan quest completion: %w", err)
		}
		completions = append(completions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quest completions: %w", err)
	}
	return completions, nil
}

// CompleteQuest records one completion per (user, quest, window). The unique
// index makes repeat submissions a no-op; rewards are granted only on first
// insert, in the same transaction.
func (s *PostgresStore) CompleteQuest(ctx context.Context, c QuestCompletion, xpReward, freezeReward int) (bool, error) {
	inserted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO quest_completions (id, user_id, quest_id, window_start, progress)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, quest_id, window_start) DO NOTHING
		`, c.ID, c.UserID, c.QuestID, c.WindowStart, c.Progress)
		if err != nil {
			return fmt.Errorf("insert quest completion: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert quest completion rows: %w", err)
		}
		if affected == 0 {
			return nil
		}
		inserted = true
		if xpReward > 0 {
			if _, err := lockXP(ctx, tx, c.UserID); err != nil {
				return err
			}
			if err := addXPEvent(ctx, tx, c.UserID, xpReward, "quest", c.QuestID); err != nil {
				return err
			}
		}
		if freezeReward > 0 {
			_, err := tx.ExecContext(ctx, `
				UPDATE user_streaks
				SET freeze_credits=LEAST(freeze_credits+$2, $3), updated_at=NOW()
				WHERE user_id=$1
			`, c.UserID, freezeReward, gamify.MaxFreezeCredits)
			if err != nil {
				return fmt.Errorf("grant freeze reward: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *PostgresStore) CountQuestCompletions(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quest_completions WHERE user_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count quest completions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListBadges(ctx context.Context) ([]Badge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, title, description, event_type, threshold, icon
		FROM badges
		ORDER BY event_type, threshold
	`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	badges := make([]Badge, 0)
	for rows.Next() {
		var badge Badge
		err := rows.Scan(&badge.ID, &badge.Code, &badge.Title, &badge.Description, &badge.EventType, &badge.Threshold, &badge.Icon)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, badge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate badges: %w", err)
	}
	return badges, nil
}

func (s *PostgresStore) ListUserBadges(ctx context.Context, userID string) ([]UserBadge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT badge_id, awarded_at FROM user_badges WHERE user_id=$1 ORDER BY awarded_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	defer rows.Close()

	held := make([]UserBadge, 0)
	for rows.Next() {
		var ub UserBadge
		if err := rows.Scan(&ub.BadgeID, &ub.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan user badge: %w", err)
		}
		held = append(held, ub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user badges: %w", err)
	}
	return held, nil
}

// AwardBadges grants every badge of the given event type whose threshold the
// lifetime count has reached. Returns the badges newly awarded, in threshold
// order.
func (s *PostgresStore) AwardBadges(ctx context.Context, userID, eventType string, count int) ([]Badge, error) {
	var awarded []Badge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT b.id, b.code, b.title, b.description, b.event_type, b.threshold, b.icon,
			       (ub.badge_id IS NOT NULL)
			FROM badges b
			LEFT JOIN user_badges ub ON ub.badge_id = b.id AND ub.user_id = $1
			WHERE b.event_type = $2
		`, userID, eventType)
		if err != nil {
			return fmt.Errorf("load badge rules: %w", err)
		}
		byCode := make(map[string]Badge)
		held := make(map[string]bool)
		rules := make([]gamify.BadgeRule, 0)
		for rows.Next() {
			var badge Badge
			var has bool
			err := rows.Scan(&badge.ID, &badge.Code, &badge.Title, &badge.Description, &badge.EventType, &badge.Threshold, &badge.Icon, &has)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan badge rule: %w", err)
			}
			byCode[badge.Code] = badge
			held[badge.Code] = has
			rules = append(rules, gamify.BadgeRule{Code: badge.Code, EventType: badge.EventType, Threshold: badge.Threshold})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate badge rules: %w", err)
		}

		for _, code := range gamify.EarnedBadges(rules, eventType, count, held) {
			badge := byCode[code]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO user_badges (user_id, badge_id)
				VALUES ($1, $2)
				ON CONFLICT (user_id, badge_id) DO NOTHING
			`, userID, badge.ID)
			if err != nil {
				return fmt.Errorf("award badge: %w", err)
			}
			awarded = append(awarded, badge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

// SeedQuests upserts the quest catalog by code, keeping stable IDs for rows
// that already exist.
func (s *PostgresStore) SeedQuests(ctx context.Context, quests []Quest) error {
	for _, quest := range quests {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO quests (id, code, title, description, kind, time_frame, target, xp_reward, freeze_reward, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (code) DO UPDATE
			SET title=EXCLUDED.title, description=EXCLUDED.description, kind=EXCLUDED.kind,
			    time_frame=EXCLUDED.time_frame, target=EXCLUDED.target, xp_reward=EXCLUDED.xp_reward,
			    freeze_reward=EXCLUDED.freeze_reward, active=EXCLUDED.active
		`, quest.ID, quest.Code, quest.Title, quest.Description, quest.Kind, quest.TimeFrame,
			quest.Target, quest.XPReward, quest.FreezeReward, quest.Active)
		if err != nil {
			return fmt.Errorf("seed quest %s: %w", quest.Code, err)
		}
	}
	return nil
}

func (s *PostgresStore) SeedBadges(ctx context.Context, badges []Badge) error {
	for _, badge := range badges {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO badges (id, code, title, description, event_type, threshold, icon)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO UPDATE
			SET title=EXCLUDED.title, description=EXCLUDED.description,
			    event_type=EXCLUDED.event_type, threshold=EXCLUDED.threshold, icon=EXCLUDED.icon
		`, badge.ID, badge.Code, badge.Title, badge.Description, badge.EventType, badge.Threshold, badge.Icon)
		if err != nil {
			return fmt.Errorf("seed badge %s: %w", badge.Code, err)
		}
	}
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// lockStreak reads the user's streak row under FOR UPDATE, creating it first if
// the user has never been active.
func lockStreak(ctx context.Context, tx *sql.Tx, userID string) (gamify.Streak, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_streaks (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return gamify.Streak{}, fmt.Errorf("ensure streak row: %w", err)
	}
	var streak gamify.Streak
	var last sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT current_length, longest_length, freeze_credits, last_activity_date
		FROM user_streaks WHERE user_id=$1 FOR UPDATE
	`, userID).Scan(&streak.Current, &streak.Longest, &streak.FreezeCredits, &last)
	if err != nil {
		return gamify.Streak{}, fmt.Errorf("lock streak: %w", err)
	}
	if last.Valid {
		streak.LastActivity = last.Time
	}
	return streak, nil
}

// lockXP reads the user's XP total under FOR UPDATE, creating the row if
// missing.
func lockXP(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_xp (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("ensure xp row: %w", err)
	}
	var total int
	err = tx.QueryRowContext(ctx, `SELECT total_xp FROM user_xp WHERE user_id=$1 FOR UPDATE`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("lock xp: %w", err)
	}
	return total, nil
}

// addXPEvent appends a ledger entry and moves the running total. Caller must
// hold the user_xp row lock.
func addXPEvent(ctx context.Context, tx *sql.Tx, userID string, amount int, reason, refID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO xp_events (id, user_id, amount, reason, ref_id)
		VALUES ($1, $2, $3, $4, $5)
	`, util.NewID("xpe"), userID, amount, reason, nullIfBlank(refID))
	if err != nil {
		return fmt.Errorf("insert xp event: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE user_xp SET total_xp=total_xp+$2, updated_at=NOW() WHERE user_id=$1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("update xp total: %w", err)
	}
	return nil
}
