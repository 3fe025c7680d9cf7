package remind

import (
	"context"
	"errors"
	"testing"
	"time"

	"bloom/api/internal/store"
)

type fakeReminderStore struct {
	due       func(ctx context.Context, now time.Time) ([]store.DueReminder, error)
	marked    []string
	markErr   error
	purged    int64
	purgeErr  error
	purgeRuns int
}

func (f *fakeReminderStore) DueReminders(ctx context.Context, now time.Time) ([]store.DueReminder, error) {
	if f.due != nil {
		return f.due(ctx, now)
	}
	return nil, nil
}

func (f *fakeReminderStore) MarkReminderSent(ctx context.Context, eventID string, at time.Time) error {
	f.marked = append(f.marked, eventID)
	return f.markErr
}

func (f *fakeReminderStore) PurgeExpiredReflections(ctx context.Context, now time.Time) (int64, error) {
	f.purgeRuns++
	return f.purged, f.purgeErr
}

type fakeMailer struct {
	configured bool
	sent       []string
	failFor    string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendReminderEmail(to, userName, eventTitle string, startsAt time.Time) error {
	if to == f.failFor {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}

func TestDispatchDueSendsAndMarks(t *testing.T) {
	st := &fakeReminderStore{
		due: func(ctx context.Context, now time.Time) ([]store.DueReminder, error) {
			return []store.DueReminder{
				{EventID: "evt_1", Email: "a@example.com", UserName: "Ada", Title: "Therapy", StartsAt: now.Add(15 * time.Minute)},
				{EventID: "evt_2", Email: "b@example.com", UserName: "Ben", Title: "Walk", StartsAt: now.Add(30 * time.Minute)},
			}, nil
		},
	}
	mailer := &fakeMailer{configured: true}

	s := NewScheduler(st, mailer)
	s.dispatchDue()

	if len(mailer.sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(mailer.sent))
	}
	if len(st.marked) != 2 || st.marked[0] != "evt_1" || st.marked[1] != "evt_2" {
		t.Fatalf("marked = %v, want [evt_1 evt_2]", st.marked)
	}
}

func TestDispatchDueSkipsMarkOnSendFailure(t *testing.T) {
	st := &fakeReminderStore{
		due: func(ctx context.Context, now time.Time) ([]store.DueReminder, error) {
			return []store.DueReminder{
				{EventID: "evt_1", Email: "broken@example.com", Title: "Therapy"},
				{EventID: "evt_2", Email: "ok@example.com", Title: "Walk"},
			}, nil
		},
	}
	mailer := &fakeMailer{configured: true, failFor: "broken@example.com"}

	s := NewScheduler(st, mailer)
	s.dispatchDue()

	if len(st.marked) != 1 || st.marked[0] != "evt_2" {
		t.Fatalf("marked = %v, want [evt_2]", st.marked)
	}
}

func TestDispatchDueNoOpWhenMailerUnconfigured(t *testing.T) {
	st := &fakeReminderStore{
		due: func(ctx context.Context, now time.Time) ([]store.DueReminder, error) {
			t.Fatal("store should not be queried without a configured mailer")
			return nil, nil
		},
	}

	s := NewScheduler(st, &fakeMailer{configured: false})
	s.dispatchDue()
}

func TestPurgeExpiredRuns(t *testing.T) {
	st := &fakeReminderStore{purged: 3}

	s := NewScheduler(st, &fakeMailer{configured: true})
	s.purgeExpired()

	if st.purgeRuns != 1 {
		t.Fatalf("purge ran %d times, want 1", st.purgeRuns)
	}
}
