package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"bloom/api/internal/search"
	"bloom/api/internal/store"
	"bloom/api/internal/util"
)

type ContactInput struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Priority     int    `json:"priority"`
}

func (s *Service) CreateContact(ctx context.Context, session Session, input ContactInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	contact := store.Contact{
		ID:           util.NewID("ctc"),
		UserID:       session.UserID,
		Name:         strings.TrimSpace(input.Name),
		Relationship: strings.TrimSpace(input.Relationship),
		Phone:        strings.TrimSpace(input.Phone),
		Email:        strings.TrimSpace(input.Email),
		Priority:     input.Priority,
	}
	if err := s.store.InsertContact(ctx, contact); err != nil {
		return nil, err
	}
	return contactPayload(contact), nil
}

func (s *Service) ListContacts(ctx context.Context, session Session) (map[string]any, error) {
	contacts, err := s.store.ListContacts(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(contacts))
	for _, contact := range contacts {
		items = append(items, contactPayload(contact))
	}
	return map[string]any{"contacts": items}, nil
}

func (s *Service) GetContact(ctx context.Context, session Session, contactID string) (map[string]any, error) {
	contact, err := s.store.GetContact(ctx, session.UserID, contactID)
	if err != nil {
		return nil, err
	}
	return contactPayload(contact), nil
}

func (s *Service) UpdateContact(ctx context.Context, session Session, contactID string, input ContactInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	contact := store.Contact{
		ID:           contactID,
		UserID:       session.UserID,
		Name:         strings.TrimSpace(input.Name),
		Relationship: strings.TrimSpace(input.Relationship),
		Phone:        strings.TrimSpace(input.Phone),
		Email:        strings.TrimSpace(input.Email),
		Priority:     input.Priority,
	}
	updated, err := s.store.UpdateContact(ctx, contact)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Contact not found", nil)
	}
	return contactPayload(contact), nil
}

func (s *Service) DeleteContact(ctx context.Context, session Session, contactID string) error {
	deleted, err := s.store.DeleteContact(ctx, session.UserID, contactID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Contact not found", nil)
	}
	return nil
}

type CalendarEventInput struct {
	Title         string `json:"title"`
	Notes         string `json:"notes"`
	StartsAt      string `json:"startsAt"`
	EndsAt        string `json:"endsAt"`
	RemindMinutes int    `json:"remindMinutes"`
}

func (s *Service) CreateCalendarEvent(ctx context.Context, session Session, input CalendarEventInput) (map[string]any, error) {
	event, err := s.calendarEventFromInput(session, input)
	if err != nil {
		return nil, err
	}
	event.ID = util.NewID("evt")
	if err := s.store.InsertCalendarEvent(ctx, event); err != nil {
		return nil, err
	}
	return calendarEventPayload(event), nil
}

func (s *Service) ListCalendarEvents(ctx context.Context, session Session, fromStr, toStr string) (map[string]any, error) {
	loc := s.userLocation(session)
	now := time.Now().In(loc)

	from := now.AddDate(0, -1, 0)
	to := now.AddDate(0, 3, 0)
	if strings.TrimSpace(fromStr) != "" {
		parsed, err := time.ParseInLocation(entryDateLayout, fromStr, loc)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from must be YYYY-MM-DD", nil)
		}
		from = parsed
	}
	if strings.TrimSpace(toStr) != "" {
		parsed, err := time.ParseInLocation(entryDateLayout, toStr, loc)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "to must be YYYY-MM-DD", nil)
		}
		to = parsed.AddDate(0, 0, 1)
	}

	events, err := s.store.ListCalendarEvents(ctx, session.UserID, from, to)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		items = append(items, calendarEventPayload(event))
	}
	return map[string]any{"events": items}, nil
}

func (s *Service) GetCalendarEvent(ctx context.Context, session Session, eventID string) (map[string]any, error) {
	event, err := s.store.GetCalendarEvent(ctx, session.UserID, eventID)
	if err != nil {
		return nil, err
	}
	return calendarEventPayload(event), nil
}

func (s *Service) UpdateCalendarEvent(ctx context.Context, session Session, eventID string, input CalendarEventInput) (map[string]any, error) {
	event, err := s.calendarEventFromInput(session, input)
	if err != nil {
		return nil, err
	}
	event.ID = eventID
	updated, err := s.store.UpdateCalendarEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Event not found", nil)
	}
	return calendarEventPayload(event), nil
}

func (s *Service) DeleteCalendarEvent(ctx context.Context, session Session, eventID string) error {
	deleted, err := s.store.DeleteCalendarEvent(ctx, session.UserID, eventID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Event not found", nil)
	}
	return nil
}

func (s *Service) calendarEventFromInput(session Session, input CalendarEventInput) (store.CalendarEvent, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.CalendarEvent{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	startsAt, err := time.Parse(time.RFC3339, input.StartsAt)
	if err != nil {
		return store.CalendarEvent{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "startsAt must be RFC 3339", nil)
	}
	var endsAt *time.Time
	if strings.TrimSpace(input.EndsAt) != "" {
		parsed, err := time.Parse(time.RFC3339, input.EndsAt)
		if err != nil {
			return store.CalendarEvent{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "endsAt must be RFC 3339", nil)
		}
		if parsed.Before(startsAt) {
			return store.CalendarEvent{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "endsAt must not precede startsAt", nil)
		}
		endsAt = &parsed
	}
	if input.RemindMinutes < 0 {
		return store.CalendarEvent{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "remindMinutes must not be negative", nil)
	}
	return store.CalendarEvent{
		UserID:        session.UserID,
		Title:         strings.TrimSpace(input.Title),
		Notes:         input.Notes,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		RemindMinutes: input.RemindMinutes,
	}, nil
}

type MemoryInput struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	Pinned   bool   `json:"pinned"`
}

func (s *Service) CreateMemory(ctx context.Context, session Session, input MemoryInput) (map[string]any, error) {
	settings, err := s.store.GetPrivacySettings(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !settings.MemoryEnabled {
		return nil, domainError(http.StatusForbidden, "MEMORY_DISABLED", "Memory collection is disabled in privacy settings", nil)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	memory := store.Memory{
		ID:       util.NewID("mem"),
		UserID:   session.UserID,
		Content:  strings.TrimSpace(input.Content),
		Category: strings.TrimSpace(input.Category),
		Source:   "user",
		Pinned:   input.Pinned,
	}
	if err := s.store.InsertMemory(ctx, memory); err != nil {
		return nil, err
	}
	s.indexMemory(memory)
	return memoryPayload(memory), nil
}

func (s *Service) ListMemories(ctx context.Context, session Session) (map[string]any, error) {
	memories, err := s.store.ListMemories(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(memories))
	for _, memory := range memories {
		items = append(items, memoryPayload(memory))
	}
	return map[string]any{"memories": items}, nil
}

func (s *Service) UpdateMemory(ctx context.Context, session Session, memoryID string, input MemoryInput) (map[string]any, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	existing, err := s.store.GetMemory(ctx, session.UserID, memoryID)
	if err != nil {
		return nil, err
	}
	memory := store.Memory{
		ID:       existing.ID,
		UserID:   session.UserID,
		Content:  strings.TrimSpace(input.Content),
		Category: strings.TrimSpace(input.Category),
		Source:   existing.Source,
		Pinned:   input.Pinned,
	}
	updated, err := s.store.UpdateMemory(ctx, memory)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Memory not found", nil)
	}
	s.indexMemory(memory)
	return memoryPayload(memory), nil
}

func (s *Service) DeleteMemory(ctx context.Context, session Session, memoryID string) error {
	deleted, err := s.store.DeleteMemory(ctx, session.UserID, memoryID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Memory not found", nil)
	}
	if s.search != nil {
		s.search.DeleteMemory(memoryID)
	}
	return nil
}

func (s *Service) PrivacySettings(ctx context.Context, session Session) (map[string]any, error) {
	settings, err := s.store.GetPrivacySettings(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return privacyPayload(settings), nil
}

type PrivacyInput struct {
	MemoryEnabled         bool `json:"memoryEnabled"`
	Searchable            bool `json:"searchable"`
	ShareMoodWithContacts bool `json:"shareMoodWithContacts"`
	DataRetentionDays     int  `json:"dataRetentionDays"`
}

func (s *Service) UpdatePrivacySettings(ctx context.Context, session Session, input PrivacyInput) (map[string]any, error) {
	if input.DataRetentionDays < 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dataRetentionDays must not be negative", nil)
	}
	settings := store.PrivacySettings{
		UserID:                session.UserID,
		MemoryEnabled:         input.MemoryEnabled,
		Searchable:            input.Searchable,
		ShareMoodWithContacts: input.ShareMoodWithContacts,
		DataRetentionDays:     input.DataRetentionDays,
	}
	if err := s.store.UpdatePrivacySettings(ctx, settings); err != nil {
		return nil, err
	}
	return privacyPayload(settings), nil
}

// PrivacyExport bundles everything stored about the user as JSON.
func (s *Service) PrivacyExport(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	reflections, err := s.store.ListReflections(ctx, session.UserID, 10000, 0)
	if err != nil {
		return nil, err
	}
	contacts, err := s.store.ListContacts(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListCalendarEvents(ctx, session.UserID, time.Time{}, time.Now().AddDate(10, 0, 0))
	if err != nil {
		return nil, err
	}
	memories, err := s.store.ListMemories(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	streak, err := s.store.GetStreak(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	xp, err := s.store.GetXPState(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	xpEvents, err := s.store.ListXPEvents(ctx, session.UserID, 1000)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.GetPrivacySettings(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	reflectionItems := make([]map[string]any, 0, len(reflections))
	for _, r := range reflections {
		reflectionItems = append(reflectionItems, reflectionPayload(r))
	}
	contactItems := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		contactItems = append(contactItems, contactPayload(c))
	}
	eventItems := make([]map[string]any, 0, len(events))
	for _, e := range events {
		eventItems = append(eventItems, calendarEventPayload(e))
	}
	memoryItems := make([]map[string]any, 0, len(memories))
	for _, m := range memories {
		memoryItems = append(memoryItems, memoryPayload(m))
	}
	xpItems := make([]map[string]any, 0, len(xpEvents))
	for _, e := range xpEvents {
		xpItems = append(xpItems, map[string]any{
			"amount":    e.Amount,
			"reason":    e.Reason,
			"createdAt": e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return map[string]any{
		"exportedAt": time.Now().UTC().Format(time.RFC3339),
		"profile": map[string]any{
			"id":          user.ID,
			"displayName": user.DisplayName,
			"email":       user.Email,
			"timezone":    user.Timezone,
			"createdAt":   user.CreatedAt.UTC().Format(time.RFC3339),
		},
		"reflections":    reflectionItems,
		"contacts":       contactItems,
		"calendarEvents": eventItems,
		"memories":       memoryItems,
		"streak":         streakPayload(streak),
		"xp":             map[string]any{"total": xp.TotalXP, "events": xpItems},
		"privacy":        privacyPayload(settings),
	}, nil
}

// DeleteAccount removes every trace of the user: media objects, the journal
// repository, all database rows, and the active session.
func (s *Service) DeleteAccount(ctx context.Context, session Session, refreshToken string) error {
	if s.media != nil && s.media.IsConfigured() {
		keys, err := s.store.ListUserObjectKeys(ctx, session.UserID)
		if err != nil {
			return err
		}
		if err := s.media.RemoveAll(ctx, keys); err != nil {
			return err
		}
	}

	reflections, err := s.store.ListReflections(ctx, session.UserID, 10000, 0)
	if err != nil {
		return err
	}
	memories, err := s.store.ListMemories(ctx, session.UserID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteUserData(ctx, session.UserID); err != nil {
		return err
	}

	if s.journal != nil {
		if err := s.journal.DeleteUserRepo(session.UserID); err != nil {
			return err
		}
	}
	if s.search != nil {
		for _, r := range reflections {
			s.search.DeleteReflection(r.ID)
		}
		for _, m := range memories {
			s.search.DeleteMemory(m.ID)
		}
	}

	return s.Logout(ctx, session, refreshToken)
}

func (s *Service) indexMemory(memory store.Memory) {
	if s.search == nil {
		return
	}
	s.search.IndexMemory(search.MemoryRecord{
		ID:       memory.ID,
		UserID:   memory.UserID,
		Content:  memory.Content,
		Category: memory.Category,
	})
}

func contactPayload(c store.Contact) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"name":         c.Name,
		"relationship": c.Relationship,
		"phone":        c.Phone,
		"email":        c.Email,
		"priority":     c.Priority,
	}
}

func calendarEventPayload(e store.CalendarEvent) map[string]any {
	payload := map[string]any{
		"id":            e.ID,
		"title":         e.Title,
		"notes":         e.Notes,
		"startsAt":      e.StartsAt.UTC().Format(time.RFC3339),
		"endsAt":        nil,
		"remindMinutes": e.RemindMinutes,
		"reminderSent":  e.ReminderSentAt != nil,
	}
	if e.EndsAt != nil {
		payload["endsAt"] = e.EndsAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func memoryPayload(m store.Memory) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"content":   m.Content,
		"category":  m.Category,
		"source":    m.Source,
		"pinned":    m.Pinned,
		"createdAt": m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func privacyPayload(p store.PrivacySettings) map[string]any {
	return map[string]any{
		"memoryEnabled":         p.MemoryEnabled,
		"searchable":            p.Searchable,
		"shareMoodWithContacts": p.ShareMoodWithContacts,
		"dataRetentionDays":     p.DataRetentionDays,
	}
}
