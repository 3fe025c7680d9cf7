package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"bloom/api/internal/authpw"
	"bloom/api/internal/config"
	"bloom/api/internal/export"
	"bloom/api/internal/gamify"
	"bloom/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn              func(context.Context, string) (store.User, error)
	getUserByEmailFn           func(context.Context, string) (store.User, error)
	insertReflectionFn         func(context.Context, store.Reflection) error
	updateReflectionFn         func(context.Context, store.Reflection) (bool, error)
	getReflectionFn            func(context.Context, string, string) (store.Reflection, error)
	listReflectionsFn          func(context.Context, string, int, int) ([]store.Reflection, error)
	listReflectionsBetweenFn   func(context.Context, string, time.Time, time.Time) ([]store.Reflection, error)
	deleteReflectionFn         func(context.Context, string, string) (bool, error)
	countInWindowFn            func(context.Context, string, time.Time, time.Time, bool) (int, error)
	countReflectionsFn         func(context.Context, string) (int, error)
	recordActivityFn           func(context.Context, string, time.Time) (gamify.StreakChange, error)
	purchaseFreezeCreditFn     func(context.Context, string) (store.StreakState, error)
	awardXPFn                  func(context.Context, string, int, string, string) (int, error)
	getXPStateFn               func(context.Context, string) (store.XPState, error)
	listActiveQuestsFn         func(context.Context) ([]store.Quest, error)
	getQuestFn                 func(context.Context, string) (store.Quest, error)
	completeQuestFn            func(context.Context, store.QuestCompletion, int, int) (bool, error)
	awardBadgesFn              func(context.Context, string, string, int) ([]store.Badge, error)
	getPrivacySettingsFn       func(context.Context, string) (store.PrivacySettings, error)
	updatePrivacySettingsFn    func(context.Context, store.PrivacySettings) error
	insertMemoryFn             func(context.Context, store.Memory) error
	deleteUserDataFn           func(context.Context, string) error
	listUserObjectKeysFn       func(context.Context, string) ([]string, error)
	revokeAccessTokenFn        func(context.Context, string, time.Time) error
	isAccessTokenRevokedFn     func(context.Context, string) (bool, error)
	saveRefreshSessionFn       func(context.Context, string, string, time.Time) error
	lookupRefreshSessionFn     func(context.Context, string) (store.User, error)
	revokeRefreshSessionFn     func(context.Context, string) error
	listCalendarEventsFn       func(context.Context, string, time.Time, time.Time) ([]store.CalendarEvent, error)
	getContactFn               func(context.Context, string, string) (store.Contact, error)
	getCalendarEventFn         func(context.Context, string, string) (store.CalendarEvent, error)
	listQuestCompletionsSince  func(context.Context, string, time.Time) ([]store.QuestCompletion, error)
	countQuestCompletionsFn    func(context.Context, string) (int, error)
	updateUserProfileFn        func(context.Context, string, string, string) error
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: "Test User", Timezone: "UTC"}, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateUserProfile(ctx context.Context, userID, displayName, timezone string) error {
	if f.updateUserProfileFn != nil {
		return f.updateUserProfileFn(ctx, userID, displayName, timezone)
	}
	return nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if f.revokeAccessTokenFn != nil {
		return f.revokeAccessTokenFn(ctx, jti, exp)
	}
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) DeleteUserData(ctx context.Context, userID string) error {
	if f.deleteUserDataFn != nil {
		return f.deleteUserDataFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) InsertReflection(ctx context.Context, item store.Reflection) error {
	if f.insertReflectionFn != nil {
		return f.insertReflectionFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateReflection(ctx context.Context, item store.Reflection) (bool, error) {
	if f.updateReflectionFn != nil {
		return f.updateReflectionFn(ctx, item)
	}
	return true, nil
}

func (f *fakeStore) GetReflection(ctx context.Context, userID, reflectionID string) (store.Reflection, error) {
	if f.getReflectionFn != nil {
		return f.getReflectionFn(ctx, userID, reflectionID)
	}
	return store.Reflection{ID: reflectionID, UserID: userID, Body: "body", EntryDate: time.Now()}, nil
}

func (f *fakeStore) ListReflections(ctx context.Context, userID string, limit, offset int) ([]store.Reflection, error) {
	if f.listReflectionsFn != nil {
		return f.listReflectionsFn(ctx, userID, limit, offset)
	}
	return nil, nil
}

func (f *fakeStore) ListReflectionsBetween(ctx context.Context, userID string, from, to time.Time) ([]store.Reflection, error) {
	if f.listReflectionsBetweenFn != nil {
		return f.listReflectionsBetweenFn(ctx, userID, from, to)
	}
	return nil, nil
}

func (f *fakeStore) DeleteReflection(ctx context.Context, userID, reflectionID string) (bool, error) {
	if f.deleteReflectionFn != nil {
		return f.deleteReflectionFn(ctx, userID, reflectionID)
	}
	return true, nil
}

func (f *fakeStore) CountReflectionsInWindow(ctx context.Context, userID string, from, to time.Time, requireMood bool) (int, error) {
	if f.countInWindowFn != nil {
		return f.countInWindowFn(ctx, userID, from, to, requireMood)
	}
	return 0, nil
}

func (f *fakeStore) CountReflections(ctx context.Context, userID string) (int, error) {
	if f.countReflectionsFn != nil {
		return f.countReflectionsFn(ctx, userID)
	}
	return 1, nil
}

func (f *fakeStore) InsertAttachment(context.Context, store.Attachment) error { return nil }
func (f *fakeStore) ListAttachments(context.Context, string, string) ([]store.Attachment, error) {
	return nil, nil
}
func (f *fakeStore) GetAttachment(context.Context, string, string) (store.Attachment, error) {
	return store.Attachment{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteAttachment(context.Context, string, string) (bool, error) {
	return false, nil
}

func (f *fakeStore) ListUserObjectKeys(ctx context.Context, userID string) ([]string, error) {
	if f.listUserObjectKeysFn != nil {
		return f.listUserObjectKeysFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) GetStreak(context.Context, string) (store.StreakState, error) {
	return store.StreakState{}, nil
}

func (f *fakeStore) RecordActivity(ctx context.Context, userID string, day time.Time) (gamify.StreakChange, error) {
	if f.recordActivityFn != nil {
		return f.recordActivityFn(ctx, userID, day)
	}
	return gamify.StreakChange{Streak: gamify.Streak{Current: 1, Longest: 1}, Counted: true, Extended: true}, nil
}

func (f *fakeStore) PurchaseFreezeCredit(ctx context.Context, userID string) (store.StreakState, error) {
	if f.purchaseFreezeCreditFn != nil {
		return f.purchaseFreezeCreditFn(ctx, userID)
	}
	return store.StreakState{FreezeCredits: 1}, nil
}

func (f *fakeStore) AwardXP(ctx context.Context, userID string, amount int, reason, refID string) (int, error) {
	if f.awardXPFn != nil {
		return f.awardXPFn(ctx, userID, amount, reason, refID)
	}
	return amount, nil
}

func (f *fakeStore) GetXPState(ctx context.Context, userID string) (store.XPState, error) {
	if f.getXPStateFn != nil {
		return f.getXPStateFn(ctx, userID)
	}
	return store.XPState{}, nil
}

func (f *fakeStore) ListXPEvents(context.Context, string, int) ([]store.XPEvent, error) {
	return nil, nil
}

func (f *fakeStore) ListActiveQuests(ctx context.Context) ([]store.Quest, error) {
	if f.listActiveQuestsFn != nil {
		return f.listActiveQuestsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) GetQuest(ctx context.Context, questID string) (store.Quest, error) {
	if f.getQuestFn != nil {
		return f.getQuestFn(ctx, questID)
	}
	return store.Quest{}, sql.ErrNoRows
}

func (f *fakeStore) ListQuestCompletionsSince(ctx context.Context, userID string, since time.Time) ([]store.QuestCompletion, error) {
	if f.listQuestCompletionsSince != nil {
		return f.listQuestCompletionsSince(ctx, userID, since)
	}
	return nil, nil
}

func (f *fakeStore) CompleteQuest(ctx context.Context, c store.QuestCompletion, xpReward, freezeReward int) (bool, error) {
	if f.completeQuestFn != nil {
		return f.completeQuestFn(ctx, c, xpReward, freezeReward)
	}
	return true, nil
}

func (f *fakeStore) CountQuestCompletions(ctx context.Context, userID string) (int, error) {
	if f.countQuestCompletionsFn != nil {
		return f.countQuestCompletionsFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeStore) ListBadges(context.Context) ([]store.Badge, error)            { return nil, nil }
func (f *fakeStore) ListUserBadges(context.Context, string) ([]store.UserBadge, error) {
	return nil, nil
}

func (f *fakeStore) AwardBadges(ctx context.Context, userID, eventType string, count int) ([]store.Badge, error) {
	if f.awardBadgesFn != nil {
		return f.awardBadgesFn(ctx, userID, eventType, count)
	}
	return nil, nil
}

func (f *fakeStore) SeedQuests(context.Context, []store.Quest) error { return nil }
func (f *fakeStore) SeedBadges(context.Context, []store.Badge) error { return nil }

func (f *fakeStore) InsertContact(context.Context, store.Contact) error { return nil }
func (f *fakeStore) UpdateContact(context.Context, store.Contact) (bool, error) {
	return true, nil
}
func (f *fakeStore) ListContacts(context.Context, string) ([]store.Contact, error) {
	return nil, nil
}
func (f *fakeStore) GetContact(ctx context.Context, userID, contactID string) (store.Contact, error) {
	if f.getContactFn != nil {
		return f.getContactFn(ctx, userID, contactID)
	}
	return store.Contact{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteContact(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeStore) InsertCalendarEvent(context.Context, store.CalendarEvent) error { return nil }
func (f *fakeStore) UpdateCalendarEvent(context.Context, store.CalendarEvent) (bool, error) {
	return true, nil
}

func (f *fakeStore) ListCalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]store.CalendarEvent, error) {
	if f.listCalendarEventsFn != nil {
		return f.listCalendarEventsFn(ctx, userID, from, to)
	}
	return nil, nil
}

func (f *fakeStore) GetCalendarEvent(ctx context.Context, userID, eventID string) (store.CalendarEvent, error) {
	if f.getCalendarEventFn != nil {
		return f.getCalendarEventFn(ctx, userID, eventID)
	}
	return store.CalendarEvent{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteCalendarEvent(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeStore) InsertMemory(ctx context.Context, item store.Memory) error {
	if f.insertMemoryFn != nil {
		return f.insertMemoryFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateMemory(context.Context, store.Memory) (bool, error) { return true, nil }
func (f *fakeStore) ListMemories(context.Context, string) ([]store.Memory, error) {
	return nil, nil
}
func (f *fakeStore) GetMemory(context.Context, string, string) (store.Memory, error) {
	return store.Memory{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteMemory(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeStore) GetPrivacySettings(ctx context.Context, userID string) (store.PrivacySettings, error) {
	if f.getPrivacySettingsFn != nil {
		return f.getPrivacySettingsFn(ctx, userID)
	}
	return store.PrivacySettings{UserID: userID, MemoryEnabled: true, Searchable: true}, nil
}

func (f *fakeStore) UpdatePrivacySettings(ctx context.Context, settings store.PrivacySettings) error {
	if f.updatePrivacySettingsFn != nil {
		return f.updatePrivacySettingsFn(ctx, settings)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshSessionFn != nil {
		return f.saveRefreshSessionFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshSessionFn != nil {
		return f.lookupRefreshSessionFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshSessionFn != nil {
		return f.revokeRefreshSessionFn(ctx, tokenHash)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// authpw.UserStore methods beyond the dataStore surface.
func (f *fakeStore) CreateUser(context.Context, store.User) error { return nil }
func (f *fakeStore) UpdateUserVerificationToken(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) VerifyUserEmail(context.Context, string) error            { return nil }
func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }
func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: fs,
		export:   export.NewService(&exportStore{store: fs}),
		authpw:   authpw.NewService(fs),
	}
}

func testSession() Session {
	return Session{UserID: "usr_1", UserName: "Test User", Timezone: "UTC", JTI: "jti_1"}
}

func TestCreateReflectionValidatesBody(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateReflection(context.Background(), testSession(), ReflectionInput{Body: "   "})
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreateReflectionRunsGamificationPass(t *testing.T) {
	var recordedDay time.Time
	var xpReason string
	completions := 0

	fs := &fakeStore{
		recordActivityFn: func(_ context.Context, _ string, day time.Time) (gamify.StreakChange, error) {
			recordedDay = day
			return gamify.StreakChange{Streak: gamify.Streak{Current: 3, Longest: 5}, Counted: true, Extended: true}, nil
		},
		awardXPFn: func(_ context.Context, _ string, amount int, reason, _ string) (int, error) {
			xpReason = reason
			return 100 + amount, nil
		},
		listActiveQuestsFn: func(context.Context) ([]store.Quest, error) {
			return []store.Quest{
				{ID: "q1", Code: "daily_reflection", Kind: "reflection", TimeFrame: "daily", Target: 1, XPReward: 25},
			}, nil
		},
		countInWindowFn: func(context.Context, string, time.Time, time.Time, bool) (int, error) {
			return 1, nil
		},
		completeQuestFn: func(_ context.Context, c store.QuestCompletion, xpReward, _ int) (bool, error) {
			completions++
			if c.QuestID != "q1" {
				t.Fatalf("completed quest %q, want q1", c.QuestID)
			}
			if xpReward != 25 {
				t.Fatalf("quest xp reward = %d, want 25", xpReward)
			}
			return true, nil
		},
		getXPStateFn: func(context.Context, string) (store.XPState, error) {
			return store.XPState{TotalXP: 135}, nil
		},
	}

	svc := newTestService(fs)
	payload, err := svc.CreateReflection(context.Background(), testSession(), ReflectionInput{
		Body:      "Went for a long walk.",
		EntryDate: "2026-08-28",
	})
	if err != nil {
		t.Fatalf("create reflection: %v", err)
	}

	wantDay := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if !recordedDay.Equal(wantDay) {
		t.Fatalf("recorded activity day = %v, want %v", recordedDay, wantDay)
	}
	if xpReason != "reflection" {
		t.Fatalf("xp reason = %q, want reflection", xpReason)
	}
	if completions != 1 {
		t.Fatalf("quest completions = %d, want 1", completions)
	}

	gamification, ok := payload["gamification"].(map[string]any)
	if !ok {
		t.Fatal("payload missing gamification summary")
	}
	completed, _ := gamification["completedQuests"].([]string)
	if len(completed) != 1 || completed[0] != "daily_reflection" {
		t.Fatalf("completedQuests = %v, want [daily_reflection]", completed)
	}
	streak, _ := gamification["streak"].(map[string]any)
	if streak["current"] != 3 {
		t.Fatalf("streak current = %v, want 3", streak["current"])
	}
}

func TestCreateReflectionSkipsMoodQuestWithoutMood(t *testing.T) {
	progressChecks := 0
	fs := &fakeStore{
		listActiveQuestsFn: func(context.Context) ([]store.Quest, error) {
			return []store.Quest{
				{ID: "q1", Code: "daily_mood", Kind: "mood", TimeFrame: "daily", Target: 1},
			}, nil
		},
		countInWindowFn: func(context.Context, string, time.Time, time.Time, bool) (int, error) {
			progressChecks++
			return 1, nil
		},
	}

	svc := newTestService(fs)
	_, err := svc.CreateReflection(context.Background(), testSession(), ReflectionInput{Body: "No mood today."})
	if err != nil {
		t.Fatalf("create reflection: %v", err)
	}
	if progressChecks != 0 {
		t.Fatalf("mood quest progress was checked %d times for a moodless entry", progressChecks)
	}
}

func TestCompleteQuestRejectsWhenTargetNotMet(t *testing.T) {
	fs := &fakeStore{
		getQuestFn: func(context.Context, string) (store.Quest, error) {
			return store.Quest{ID: "q1", Kind: "reflection", TimeFrame: "weekly", Target: 5, Active: true}, nil
		},
		countInWindowFn: func(context.Context, string, time.Time, time.Time, bool) (int, error) {
			return 3, nil
		},
	}

	svc := newTestService(fs)
	_, err := svc.CompleteQuest(context.Background(), testSession(), "q1")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "QUEST_NOT_DUE" {
		t.Fatalf("expected QUEST_NOT_DUE, got %v", err)
	}
}

func TestCompleteQuestConflictsOnSecondCompletion(t *testing.T) {
	fs := &fakeStore{
		getQuestFn: func(context.Context, string) (store.Quest, error) {
			return store.Quest{ID: "q1", Kind: "reflection", TimeFrame: "daily", Target: 1, Active: true}, nil
		},
		countInWindowFn: func(context.Context, string, time.Time, time.Time, bool) (int, error) {
			return 1, nil
		},
		completeQuestFn: func(context.Context, store.QuestCompletion, int, int) (bool, error) {
			return false, nil
		},
	}

	svc := newTestService(fs)
	_, err := svc.CompleteQuest(context.Background(), testSession(), "q1")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "ALREADY_COMPLETED" {
		t.Fatalf("expected ALREADY_COMPLETED, got %v", err)
	}
	if domainErr.Status != 409 {
		t.Fatalf("status = %d, want 409", domainErr.Status)
	}
}

func TestBuyFreezeCreditMapsStoreErrors(t *testing.T) {
	cases := []struct {
		name     string
		storeErr error
		wantCode string
	}{
		{"insufficient xp", store.ErrInsufficientXP, "INSUFFICIENT_XP"},
		{"cap reached", store.ErrFreezeCapHit, "FREEZE_CAP"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{
				purchaseFreezeCreditFn: func(context.Context, string) (store.StreakState, error) {
					return store.StreakState{}, tc.storeErr
				},
			}
			svc := newTestService(fs)
			_, err := svc.BuyFreezeCredit(context.Background(), testSession())
			var domainErr *DomainError
			if !asDomainError(err, &domainErr) || domainErr.Code != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestUpdateProfileRejectsUnknownTimezone(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.UpdateProfile(context.Background(), testSession(), "New Name", "Mars/Olympus_Mons")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestGetContactScopedToOwner(t *testing.T) {
	fs := &fakeStore{
		getContactFn: func(_ context.Context, userID, contactID string) (store.Contact, error) {
			if userID != "usr_1" {
				t.Fatalf("lookup user = %q, want usr_1", userID)
			}
			return store.Contact{ID: contactID, UserID: userID, Name: "A Friend"}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.GetContact(context.Background(), testSession(), "ctc_1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if payload["name"] != "A Friend" {
		t.Fatalf("name = %v, want A Friend", payload["name"])
	}
}

func TestGetCalendarEventMissingIsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.GetCalendarEvent(context.Background(), testSession(), "evt_missing")
	if status, code, _, _ := mapError(err); status != 404 || code != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %s (%v)", status, code, err)
	}
}

func TestExportJournalUsesExclusiveUpperBound(t *testing.T) {
	var gotFrom, gotTo time.Time
	fs := &fakeStore{
		listReflectionsBetweenFn: func(_ context.Context, _ string, from, to time.Time) ([]store.Reflection, error) {
			gotFrom, gotTo = from, to
			return nil, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ExportJournal(context.Background(), testSession(), "2026-08-10", "2026-08-20", "pdf")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "NO_ENTRIES" {
		t.Fatalf("expected NO_ENTRIES for empty range, got %v", err)
	}

	wantFrom := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	if !gotFrom.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", gotFrom, wantFrom)
	}
	// The store treats the upper bound as exclusive, so the requested end
	// date is included by passing the day after it.
	wantTo := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	if !gotTo.Equal(wantTo) {
		t.Fatalf("to = %v, want %v", gotTo, wantTo)
	}
}

func TestSearchHonorsPrivacyOptOut(t *testing.T) {
	fs := &fakeStore{
		getPrivacySettingsFn: func(_ context.Context, userID string) (store.PrivacySettings, error) {
			return store.PrivacySettings{UserID: userID, Searchable: false}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.Search(context.Background(), testSession(), "walk", "", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if payload["total"] != 0 {
		t.Fatalf("total = %v, want 0 for opted-out user", payload["total"])
	}
}

func TestCreateMemoryBlockedWhenDisabled(t *testing.T) {
	fs := &fakeStore{
		getPrivacySettingsFn: func(_ context.Context, userID string) (store.PrivacySettings, error) {
			return store.PrivacySettings{UserID: userID, MemoryEnabled: false}, nil
		},
		insertMemoryFn: func(context.Context, store.Memory) error {
			t.Fatal("memory must not be stored when collection is disabled")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateMemory(context.Background(), testSession(), MemoryInput{Content: "Likes tea."})
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "MEMORY_DISABLED" {
		t.Fatalf("expected MEMORY_DISABLED, got %v", err)
	}
}

func TestDeleteAccountPurgesAndRevokes(t *testing.T) {
	deletedUser := ""
	revokedJTI := ""
	revokedRefresh := false

	fs := &fakeStore{
		deleteUserDataFn: func(_ context.Context, userID string) error {
			deletedUser = userID
			return nil
		},
		revokeAccessTokenFn: func(_ context.Context, jti string, _ time.Time) error {
			revokedJTI = jti
			return nil
		},
		revokeRefreshSessionFn: func(context.Context, string) error {
			revokedRefresh = true
			return nil
		},
	}
	svc := newTestService(fs)

	if err := svc.DeleteAccount(context.Background(), testSession(), "refresh-token"); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if deletedUser != "usr_1" {
		t.Fatalf("deleted user = %q, want usr_1", deletedUser)
	}
	if revokedJTI != "jti_1" {
		t.Fatalf("revoked JTI = %q, want jti_1", revokedJTI)
	}
	if !revokedRefresh {
		t.Fatal("refresh session was not revoked")
	}
}

func TestSessionLifecycle(t *testing.T) {
	saved := map[string]string{}
	fs := &fakeStore{
		saveRefreshSessionFn: func(_ context.Context, tokenHash, userID string, _ time.Time) error {
			saved[tokenHash] = userID
			return nil
		},
		lookupRefreshSessionFn: func(_ context.Context, tokenHash string) (store.User, error) {
			userID, ok := saved[tokenHash]
			if !ok {
				return store.User{}, sql.ErrNoRows
			}
			return store.User{ID: userID}, nil
		},
		revokeRefreshSessionFn: func(_ context.Context, tokenHash string) error {
			delete(saved, tokenHash)
			return nil
		},
	}
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("session missing tokens")
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if parsed.UserID != "usr_1" {
		t.Fatalf("parsed user = %q, want usr_1", parsed.UserID)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The old refresh token must be dead after rotation.
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected stale refresh token to be rejected")
	}
}

func asDomainError(err error, target **DomainError) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*DomainError)
	if !ok {
		return false
	}
	*target = de
	return true
}
