// Package remind dispatches calendar event reminders and runs periodic
// retention cleanup.
package remind

import (
	"context"
	"log"
	"time"

	"bloom/api/internal/store"

	"github.com/robfig/cron/v3"
)

// ReminderStore is the storage surface the scheduler needs.
type ReminderStore interface {
	DueReminders(ctx context.Context, now time.Time) ([]store.DueReminder, error)
	MarkReminderSent(ctx context.Context, eventID string, at time.Time) error
	PurgeExpiredReflections(ctx context.Context, now time.Time) (int64, error)
}

// Mailer sends reminder emails.
type Mailer interface {
	IsConfigured() bool
	SendReminderEmail(to, userName, eventTitle string, startsAt time.Time) error
}

// Scheduler checks for due reminders every minute and purges expired entries
// nightly.
type Scheduler struct {
	store  ReminderStore
	mailer Mailer
	cron   *cron.Cron
}

func NewScheduler(store ReminderStore, mailer Mailer) *Scheduler {
	return &Scheduler{
		store:  store,
		mailer: mailer,
		cron:   cron.New(),
	}
}

// Start registers the jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.dispatchDue); err != nil {
		return err
	}
	// Retention purge at 03:10 server time, off the minute boundary so it
	// never races the reminder job.
	if _, err := s.cron.AddFunc("10 3 * * *", s.purgeExpired); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) dispatchDue() {
	if !s.mailer.IsConfigured() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		log.Printf("remind: list due reminders: %v", err)
		return
	}

	for _, item := range due {
		if err := s.mailer.SendReminderEmail(item.Email, item.UserName, item.Title, item.StartsAt); err != nil {
			log.Printf("remind: send reminder for event %s: %v", item.EventID, err)
			continue
		}
		// Marked only after a successful send so a failed send retries on
		// the next tick.
		if err := s.store.MarkReminderSent(ctx, item.EventID, now); err != nil {
			log.Printf("remind: mark reminder sent for event %s: %v", item.EventID, err)
		}
	}
}

func (s *Scheduler) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	purged, err := s.store.PurgeExpiredReflections(ctx, time.Now())
	if err != nil {
		log.Printf("remind: retention purge: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("remind: retention purge removed %d entries", purged)
	}
}
