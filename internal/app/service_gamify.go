package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bloom/api/internal/gamify"
	"bloom/api/internal/store"
	"bloom/api/internal/util"
)

func (s *Service) StreakStatus(ctx context.Context, session Session) (map[string]any, error) {
	state, err := s.store.GetStreak(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return streakPayload(state), nil
}

func (s *Service) BuyFreezeCredit(ctx context.Context, session Session) (map[string]any, error) {
	state, err := s.store.PurchaseFreezeCredit(ctx, session.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientXP):
			return nil, domainError(http.StatusUnprocessableEntity, "INSUFFICIENT_XP", "Not enough XP for a freeze credit", map[string]any{"cost": gamify.FreezeCreditCostXP})
		case errors.Is(err, store.ErrFreezeCapHit):
			return nil, domainError(http.StatusConflict, "FREEZE_CAP", "Freeze credits are already at the maximum", map[string]any{"max": gamify.MaxFreezeCredits})
		}
		return nil, err
	}
	return streakPayload(state), nil
}

// Quests lists active quests with progress inside each quest's current window
// for the session's timezone.
func (s *Service) Quests(ctx context.Context, session Session) (map[string]any, error) {
	quests, err := s.store.ListActiveQuests(ctx)
	if err != nil {
		return nil, err
	}

	loc := s.userLocation(session)
	now := time.Now().In(loc)

	// One fetch covers every window; the monthly window start is the earliest.
	monthStart, _ := gamify.WindowFor(gamify.Monthly, now)
	completions, err := s.store.ListQuestCompletionsSince(ctx, session.UserID, monthStart)
	if err != nil {
		return nil, err
	}
	completedIn := make(map[string]time.Time, len(completions))
	for _, c := range completions {
		completedIn[c.QuestID+"|"+c.WindowStart.UTC().Format(time.RFC3339)] = c.CompletedAt
	}

	items := make([]map[string]any, 0, len(quests))
	for _, quest := range quests {
		start, end := gamify.WindowFor(gamify.TimeFrame(quest.TimeFrame), now)
		progress, err := s.questProgress(ctx, session, quest, start, end)
		if err != nil {
			return nil, err
		}

		item := map[string]any{
			"id":           quest.ID,
			"code":         quest.Code,
			"title":        quest.Title,
			"description":  quest.Description,
			"kind":         quest.Kind,
			"timeFrame":    quest.TimeFrame,
			"target":       quest.Target,
			"xpReward":     quest.XPReward,
			"freezeReward": quest.FreezeReward,
			"progress":     progress,
			"windowStart":  start.UTC().Format(time.RFC3339),
			"windowEnd":    end.UTC().Format(time.RFC3339),
			"completed":    false,
		}
		if at, ok := completedIn[quest.ID+"|"+start.UTC().Format(time.RFC3339)]; ok {
			item["completed"] = true
			item["completedAt"] = at.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return map[string]any{"quests": items}, nil
}

// CompleteQuest explicitly completes a quest once its window target is met.
// Completion is idempotent per (user, quest, window).
func (s *Service) CompleteQuest(ctx context.Context, session Session, questID string) (map[string]any, error) {
	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if !quest.Active {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Quest not found", nil)
	}

	loc := s.userLocation(session)
	now := time.Now().In(loc)
	start, end := gamify.WindowFor(gamify.TimeFrame(quest.TimeFrame), now)

	progress, err := s.questProgress(ctx, session, quest, start, end)
	if err != nil {
		return nil, err
	}
	if progress < quest.Target {
		return nil, domainError(http.StatusUnprocessableEntity, "QUEST_NOT_DUE", "Quest target not yet met", map[string]any{
			"progress": progress,
			"target":   quest.Target,
		})
	}

	inserted, err := s.store.CompleteQuest(ctx, store.QuestCompletion{
		ID:          util.NewID("qc"),
		UserID:      session.UserID,
		QuestID:     quest.ID,
		WindowStart: start,
		Progress:    progress,
	}, quest.XPReward, quest.FreezeReward)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domainError(http.StatusConflict, "ALREADY_COMPLETED", "Quest already completed this window", nil)
	}

	questCount, err := s.store.CountQuestCompletions(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	newBadges, err := s.store.AwardBadges(ctx, session.UserID, "quest", questCount)
	if err != nil {
		return nil, err
	}

	state, err := s.store.GetXPState(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"quest":        quest.Code,
		"xpAwarded":    quest.XPReward,
		"freezeReward": quest.FreezeReward,
		"xp":           state.TotalXP,
		"level":        gamify.LevelForXP(state.TotalXP),
		"newBadges":    badgePayloads(newBadges),
	}, nil
}

func (s *Service) Badges(ctx context.Context, session Session) (map[string]any, error) {
	catalog, err := s.store.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	held, err := s.store.ListUserBadges(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	awardedAt := make(map[string]time.Time, len(held))
	for _, b := range held {
		awardedAt[b.BadgeID] = b.AwardedAt
	}

	items := make([]map[string]any, 0, len(catalog))
	for _, badge := range catalog {
		item := map[string]any{
			"id":          badge.ID,
			"code":        badge.Code,
			"title":       badge.Title,
			"description": badge.Description,
			"icon":        badge.Icon,
			"threshold":   badge.Threshold,
			"held":        false,
		}
		if at, ok := awardedAt[badge.ID]; ok {
			item["held"] = true
			item["awardedAt"] = at.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return map[string]any{"badges": items}, nil
}

func (s *Service) XPStatus(ctx context.Context, session Session) (map[string]any, error) {
	state, err := s.store.GetXPState(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListXPEvents(ctx, session.UserID, 20)
	if err != nil {
		return nil, err
	}

	progress := gamify.ProgressForXP(state.TotalXP)
	recent := make([]map[string]any, 0, len(events))
	for _, event := range events {
		recent = append(recent, map[string]any{
			"amount":    event.Amount,
			"reason":    event.Reason,
			"refId":     event.RefID,
			"createdAt": event.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return map[string]any{
		"totalXp":   state.TotalXP,
		"level":     progress.Level,
		"intoLevel": progress.IntoLevel,
		"toNext":    progress.ToNext,
		"recent":    recent,
	}, nil
}

// questProgress counts qualifying events inside [start, end) for one quest.
func (s *Service) questProgress(ctx context.Context, session Session, quest store.Quest, start, end time.Time) (int, error) {
	switch quest.Kind {
	case "reflection":
		return s.store.CountReflectionsInWindow(ctx, session.UserID, start, end, false)
	case "mood":
		return s.store.CountReflectionsInWindow(ctx, session.UserID, start, end, true)
	case "calendar":
		events, err := s.store.ListCalendarEvents(ctx, session.UserID, start, end)
		if err != nil {
			return 0, err
		}
		return len(events), nil
	}
	return 0, nil
}

func streakPayload(state store.StreakState) map[string]any {
	payload := map[string]any{
		"current":       state.Current,
		"longest":       state.Longest,
		"freezeCredits": state.FreezeCredits,
		"maxFreezes":    gamify.MaxFreezeCredits,
		"freezeCostXp":  gamify.FreezeCreditCostXP,
		"lastActivity":  nil,
	}
	if state.LastActivity != nil {
		payload["lastActivity"] = state.LastActivity.Format(entryDateLayout)
	}
	return payload
}

func badgePayloads(badges []store.Badge) []map[string]any {
	items := make([]map[string]any, 0, len(badges))
	for _, badge := range badges {
		items = append(items, map[string]any{
			"code":  badge.Code,
			"title": badge.Title,
			"icon":  badge.Icon,
		})
	}
	return items
}
