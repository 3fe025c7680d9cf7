package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"bloom/api/internal/auth"
	"bloom/api/internal/authpw"
	"bloom/api/internal/config"
	"bloom/api/internal/email"
	"bloom/api/internal/export"
	"bloom/api/internal/gamify"
	"bloom/api/internal/journal"
	"bloom/api/internal/media"
	"bloom/api/internal/search"
	"bloom/api/internal/session"
	"bloom/api/internal/store"
	"bloom/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Timezone     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	UpdateUserProfile(context.Context, string, string, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	DeleteUserData(context.Context, string) error

	InsertReflection(context.Context, store.Reflection) error
	UpdateReflection(context.Context, store.Reflection) (bool, error)
	GetReflection(context.Context, string, string) (store.Reflection, error)
	ListReflections(context.Context, string, int, int) ([]store.Reflection, error)
	ListReflectionsBetween(context.Context, string, time.Time, time.Time) ([]store.Reflection, error)
	DeleteReflection(context.Context, string, string) (bool, error)
	CountReflectionsInWindow(context.Context, string, time.Time, time.Time, bool) (int, error)
	CountReflections(context.Context, string) (int, error)

	InsertAttachment(context.Context, store.Attachment) error
	ListAttachments(context.Context, string, string) ([]store.Attachment, error)
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	DeleteAttachment(context.Context, string, string) (bool, error)
	ListUserObjectKeys(context.Context, string) ([]string, error)

	GetStreak(context.Context, string) (store.StreakState, error)
	RecordActivity(context.Context, string, time.Time) (gamify.StreakChange, error)
	PurchaseFreezeCredit(context.Context, string) (store.StreakState, error)
	AwardXP(context.Context, string, int, string, string) (int, error)
	GetXPState(context.Context, string) (store.XPState, error)
	ListXPEvents(context.Context, string, int) ([]store.XPEvent, error)
	ListActiveQuests(context.Context) ([]store.Quest, error)
	GetQuest(context.Context, string) (store.Quest, error)
	ListQuestCompletionsSince(context.Context, string, time.Time) ([]store.QuestCompletion, error)
	CompleteQuest(context.Context, store.QuestCompletion, int, int) (bool, error)
	CountQuestCompletions(context.Context, string) (int, error)
	ListBadges(context.Context) ([]store.Badge, error)
	ListUserBadges(context.Context, string) ([]store.UserBadge, error)
	AwardBadges(context.Context, string, string, int) ([]store.Badge, error)
	SeedQuests(context.Context, []store.Quest) error
	SeedBadges(context.Context, []store.Badge) error

	InsertContact(context.Context, store.Contact) error
	UpdateContact(context.Context, store.Contact) (bool, error)
	ListContacts(context.Context, string) ([]store.Contact, error)
	GetContact(context.Context, string, string) (store.Contact, error)
	DeleteContact(context.Context, string, string) (bool, error)

	InsertCalendarEvent(context.Context, store.CalendarEvent) error
	UpdateCalendarEvent(context.Context, store.CalendarEvent) (bool, error)
	ListCalendarEvents(context.Context, string, time.Time, time.Time) ([]store.CalendarEvent, error)
	GetCalendarEvent(context.Context, string, string) (store.CalendarEvent, error)
	DeleteCalendarEvent(context.Context, string, string) (bool, error)

	InsertMemory(context.Context, store.Memory) error
	UpdateMemory(context.Context, store.Memory) (bool, error)
	ListMemories(context.Context, string) ([]store.Memory, error)
	GetMemory(context.Context, string, string) (store.Memory, error)
	DeleteMemory(context.Context, string, string) (bool, error)

	GetPrivacySettings(context.Context, string) (store.PrivacySettings, error)
	UpdatePrivacySettings(context.Context, store.PrivacySettings) error

	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. Redis when configured, the Postgres
// store otherwise.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type journalService interface {
	EnsureUserRepo(userID string) error
	SaveEntry(userID, entryID string, entry journal.Entry, author, message string) (store.RevisionInfo, error)
	RemoveEntry(userID, entryID, author string) error
	History(userID, entryID string, limit int) ([]store.RevisionInfo, error)
	EntryAtRevision(userID, entryID, hash string) (journal.Entry, error)
	DeleteUserRepo(userID string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexReflection(r search.ReflectionRecord)
	IndexMemory(m search.MemoryRecord)
	DeleteReflection(id string)
	DeleteMemory(id string)
	ReindexAllFromPG(ctx context.Context)
}

type mediaStore interface {
	IsConfigured() bool
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PresignedGetURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
	RemoveAll(ctx context.Context, keys []string) error
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	journal  journalService
	search   searchIndex
	media    mediaStore
	email    mailer
	export   *export.Service
	authpw   *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, journalSvc *journal.Service, searchSvc *search.Service, mediaSvc *media.Service, emailSvc *email.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		journal:  journalSvc,
		search:   searchSvc,
		media:    mediaSvc,
		email:    emailSvc,
		export:   export.NewService(&exportStore{store: dataStore}),
		authpw:   authpw.NewService(dataStore),
	}
}

// NewWithSessionStore keeps refresh sessions in Redis instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, journalSvc *journal.Service, searchSvc *search.Service, mediaSvc *media.Service, emailSvc *email.Service) *Service {
	svc := New(cfg, dataStore, journalSvc, searchSvc, mediaSvc, emailSvc)
	svc.sessions = sessions
	return svc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationEmail dispatches the signup verification mail off the
// request path. Failures are logged; the dev bypass token still works.
func (s *Service) SendVerificationEmail(ctx context.Context, to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/verify-email?token=" + token
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("send verification email: %v", err)
		}
	}()
}

func (s *Service) SendPasswordResetEmail(ctx context.Context, to, token string) {
	if !s.SMTPConfigured() {
		return
	}
	userName := ""
	if user, err := s.store.GetUserByEmail(ctx, to); err == nil {
		userName = user.DisplayName
	}
	url := s.cfg.AppBaseURL + "/reset-password?token=" + token
	go func() {
		if err := s.email.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("send password reset email: %v", err)
		}
	}()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap upserts the quest and badge catalogs and rebuilds the search
// index. Safe to run on every start.
func (s *Service) Bootstrap(ctx context.Context) error {
	quests := []store.Quest{
		{ID: util.NewID("qst"), Code: "daily_reflection", Title: "Daily Reflection", Description: "Write one journal entry today.", Kind: "reflection", TimeFrame: string(gamify.Daily), Target: 1, XPReward: 25, Active: true},
		{ID: util.NewID("qst"), Code: "daily_mood", Title: "Mood Check-In", Description: "Log how you feel with today's entry.", Kind: "mood", TimeFrame: string(gamify.Daily), Target: 1, XPReward: 15, Active: true},
		{ID: util.NewID("qst"), Code: "weekly_reflections", Title: "Steady Week", Description: "Write five entries this week.", Kind: "reflection", TimeFrame: string(gamify.Weekly), Target: 5, XPReward: 100, FreezeReward: 1, Active: true},
		{ID: util.NewID("qst"), Code: "weekly_planner", Title: "Plan Ahead", Description: "Put three events on your calendar this week.", Kind: "calendar", TimeFrame: string(gamify.Weekly), Target: 3, XPReward: 50, Active: true},
		{ID: util.NewID("qst"), Code: "monthly_journal", Title: "Month of Growth", Description: "Write twenty entries this month.", Kind: "reflection", TimeFrame: string(gamify.Monthly), Target: 20, XPReward: 400, FreezeReward: 1, Active: true},
	}
	if err := s.store.SeedQuests(ctx, quests); err != nil {
		return err
	}

	badges := []store.Badge{
		{ID: util.NewID("bdg"), Code: "first_reflection", Title: "First Words", Description: "Wrote your first reflection.", EventType: "reflection", Threshold: 1, Icon: "seedling"},
		{ID: util.NewID("bdg"), Code: "reflections_10", Title: "Finding a Rhythm", Description: "Ten reflections written.", EventType: "reflection", Threshold: 10, Icon: "sprout"},
		{ID: util.NewID("bdg"), Code: "reflections_50", Title: "Deep Roots", Description: "Fifty reflections written.", EventType: "reflection", Threshold: 50, Icon: "tree"},
		{ID: util.NewID("bdg"), Code: "reflections_100", Title: "Centurion", Description: "One hundred reflections written.", EventType: "reflection", Threshold: 100, Icon: "forest"},
		{ID: util.NewID("bdg"), Code: "streak_3", Title: "Warming Up", Description: "Three-day streak.", EventType: "streak", Threshold: 3, Icon: "spark"},
		{ID: util.NewID("bdg"), Code: "streak_7", Title: "One Full Week", Description: "Seven-day streak.", EventType: "streak", Threshold: 7, Icon: "flame"},
		{ID: util.NewID("bdg"), Code: "streak_30", Title: "Unstoppable", Description: "Thirty-day streak.", EventType: "streak", Threshold: 30, Icon: "sun"},
		{ID: util.NewID("bdg"), Code: "quests_5", Title: "Quest Taker", Description: "Five quests completed.", EventType: "quest", Threshold: 5, Icon: "map"},
		{ID: util.NewID("bdg"), Code: "quests_25", Title: "Quest Master", Description: "Twenty-five quests completed.", EventType: "quest", Threshold: 25, Icon: "compass"},
	}
	if err := s.store.SeedBadges(ctx, badges); err != nil {
		return err
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The Redis backend stores only the user ID; re-resolve for fresh claims.
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Timezone:     user.Timezone,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Timezone:  user.Timezone,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Me(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"timezone":    user.Timezone,
		"verified":    user.IsEmailVerified,
		"createdAt":   user.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, displayName, timezone string) (map[string]any, error) {
	if displayName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "displayName is required", nil)
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "timezone must be a valid IANA zone", nil)
		}
	}
	if err := s.store.UpdateUserProfile(ctx, session.UserID, displayName, timezone); err != nil {
		return nil, err
	}
	return s.Me(ctx, session)
}

// userLocation resolves the session's stored IANA zone, falling back to UTC.
func (s *Service) userLocation(session Session) *time.Location {
	if session.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(session.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// exportStore adapts the data store to the export service's view of it.
type exportStore struct {
	store dataStore
}

func (e *exportStore) GetOwner(ctx context.Context, userID string) (export.OwnerInfo, error) {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return export.OwnerInfo{}, err
	}
	return export.OwnerInfo{ID: user.ID, DisplayName: user.DisplayName}, nil
}

func (e *exportStore) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]export.EntryInfo, error) {
	reflections, err := e.store.ListReflectionsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	entries := make([]export.EntryInfo, 0, len(reflections))
	for _, r := range reflections {
		entries = append(entries, export.EntryInfo{
			ID:        r.ID,
			Title:     r.Title,
			Body:      r.Body,
			Mood:      r.Mood,
			MoodScore: r.MoodScore,
			Tags:      r.Tags,
			EntryDate: r.EntryDate,
		})
	}
	return entries, nil
}
