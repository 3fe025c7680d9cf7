package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Timezone              string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Reflection struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	Mood      string
	MoodScore int
	Tags      []string
	// EntryDate is the user-local calendar date the entry counts toward.
	EntryDate time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Attachment struct {
	ID           string
	ReflectionID string
	UserID       string
	ObjectKey    string
	Filename     string
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

type StreakState struct {
	UserID        string
	Current       int
	Longest       int
	FreezeCredits int
	LastActivity  *time.Time
	UpdatedAt     time.Time
}

type Quest struct {
	ID           string
	Code         string
	Title        string
	Description  string
	Kind         string
	TimeFrame    string
	Target       int
	XPReward     int
	FreezeReward int
	Active       bool
}

type QuestCompletion struct {
	ID          string
	UserID      string
	QuestID     string
	WindowStart time.Time
	Progress    int
	CompletedAt time.Time
}

type Badge struct {
	ID          string
	Code        string
	Title       string
	Description string
	EventType   string
	Threshold   int
	Icon        string
}

type UserBadge struct {
	BadgeID   string
	AwardedAt time.Time
}

type XPEvent struct {
	ID        string
	UserID    string
	Amount    int
	Reason    string
	RefID     string
	CreatedAt time.Time
}

type XPState struct {
	UserID    string
	TotalXP   int
	UpdatedAt time.Time
}

type Contact struct {
	ID           string
	UserID       string
	Name         string
	Relationship string
	Phone        string
	Email        string
	Priority     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CalendarEvent struct {
	ID             string
	UserID         string
	Title          string
	Notes          string
	StartsAt       time.Time
	EndsAt         *time.Time
	RemindMinutes  int
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DueReminder joins a calendar event with the owner's email for dispatch.
type DueReminder struct {
	EventID  string
	UserID   string
	Email    string
	UserName string
	Title    string
	StartsAt time.Time
}

type Memory struct {
	ID        string
	UserID    string
	Content   string
	Category  string
	Source    string
	Pinned    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PrivacySettings struct {
	UserID                string
	MemoryEnabled         bool
	Searchable            bool
	ShareMoodWithContacts bool
	DataRetentionDays     int
	UpdatedAt             time.Time
}

// RevisionInfo describes one commit in a reflection's edit history.
type RevisionInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
