package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"bloom/api/internal/export"
	"bloom/api/internal/gamify"
	"bloom/api/internal/journal"
	"bloom/api/internal/search"
	"bloom/api/internal/store"
	"bloom/api/internal/util"
)

// ReflectionInput carries the writable fields of a journal entry.
type ReflectionInput struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Mood      string   `json:"mood"`
	MoodScore int      `json:"moodScore"`
	Tags      []string `json:"tags"`
	EntryDate string   `json:"entryDate"`
}

const entryDateLayout = "2006-01-02"

func (s *Service) CreateReflection(ctx context.Context, session Session, input ReflectionInput) (map[string]any, error) {
	if strings.TrimSpace(input.Body) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	if input.MoodScore < 0 || input.MoodScore > 10 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "moodScore must be between 0 and 10", nil)
	}

	loc := s.userLocation(session)
	entryDate, err := resolveEntryDate(input.EntryDate, loc)
	if err != nil {
		return nil, err
	}

	reflection := store.Reflection{
		ID:        util.NewID("rfl"),
		UserID:    session.UserID,
		Title:     strings.TrimSpace(input.Title),
		Body:      input.Body,
		Mood:      strings.TrimSpace(input.Mood),
		MoodScore: input.MoodScore,
		Tags:      input.Tags,
		EntryDate: entryDate,
	}
	if err := s.store.InsertReflection(ctx, reflection); err != nil {
		return nil, err
	}

	if err := s.commitReflection(session, reflection, "Create entry"); err != nil {
		return nil, err
	}

	progress, err := s.reconcileAfterReflection(ctx, session, reflection)
	if err != nil {
		return nil, err
	}

	s.indexReflection(reflection)

	payload := reflectionPayload(reflection)
	payload["gamification"] = progress
	return payload, nil
}

func (s *Service) ListReflections(ctx context.Context, session Session, limit, offset int) (map[string]any, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	reflections, err := s.store.ListReflections(ctx, session.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountReflections(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(reflections))
	for _, r := range reflections {
		items = append(items, reflectionPayload(r))
	}
	return map[string]any{"reflections": items, "total": total}, nil
}

func (s *Service) GetReflection(ctx context.Context, session Session, reflectionID string) (map[string]any, error) {
	reflection, err := s.store.GetReflection(ctx, session.UserID, reflectionID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, session.UserID, reflectionID)
	if err != nil {
		return nil, err
	}
	payload := reflectionPayload(reflection)
	payload["attachments"] = s.attachmentPayloads(ctx, attachments)
	return payload, nil
}

func (s *Service) UpdateReflection(ctx context.Context, session Session, reflectionID string, input ReflectionInput) (map[string]any, error) {
	if strings.TrimSpace(input.Body) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	if input.MoodScore < 0 || input.MoodScore > 10 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "moodScore must be between 0 and 10", nil)
	}

	existing, err := s.store.GetReflection(ctx, session.UserID, reflectionID)
	if err != nil {
		return nil, err
	}

	loc := s.userLocation(session)
	entryDate := existing.EntryDate
	if strings.TrimSpace(input.EntryDate) != "" {
		entryDate, err = resolveEntryDate(input.EntryDate, loc)
		if err != nil {
			return nil, err
		}
	}

	reflection := store.Reflection{
		ID:        existing.ID,
		UserID:    session.UserID,
		Title:     strings.TrimSpace(input.Title),
		Body:      input.Body,
		Mood:      strings.TrimSpace(input.Mood),
		MoodScore: input.MoodScore,
		Tags:      input.Tags,
		EntryDate: entryDate,
	}
	updated, err := s.store.UpdateReflection(ctx, reflection)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Reflection not found", nil)
	}

	if err := s.commitReflection(session, reflection, "Update entry"); err != nil {
		return nil, err
	}

	s.indexReflection(reflection)
	return reflectionPayload(reflection), nil
}

func (s *Service) DeleteReflection(ctx context.Context, session Session, reflectionID string) error {
	attachments, err := s.store.ListAttachments(ctx, session.UserID, reflectionID)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteReflection(ctx, session.UserID, reflectionID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Reflection not found", nil)
	}

	if s.journal != nil {
		if err := s.journal.RemoveEntry(session.UserID, reflectionID, session.UserName); err != nil {
			return err
		}
	}
	if s.media != nil && s.media.IsConfigured() {
		for _, attachment := range attachments {
			_ = s.media.Remove(ctx, attachment.ObjectKey)
		}
	}
	if s.search != nil {
		s.search.DeleteReflection(reflectionID)
	}
	return nil
}

// ReflectionHistory lists the git revisions for one entry. History is read
// from the user's own repository, so deleted entries stay recoverable.
func (s *Service) ReflectionHistory(ctx context.Context, session Session, reflectionID string) (map[string]any, error) {
	if s.journal == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Edit history is not configured", nil)
	}
	revisions, err := s.journal.History(session.UserID, reflectionID, 50)
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No history for this entry", nil)
	}
	items := make([]map[string]any, 0, len(revisions))
	for _, rev := range revisions {
		items = append(items, map[string]any{
			"hash":      rev.Hash,
			"message":   rev.Message,
			"author":    rev.Author,
			"createdAt": rev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{"revisions": items}, nil
}

func (s *Service) ReflectionAtRevision(ctx context.Context, session Session, reflectionID, hash string) (map[string]any, error) {
	if s.journal == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Edit history is not configured", nil)
	}
	entry, err := s.journal.EntryAtRevision(session.UserID, reflectionID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return map[string]any{
		"id":        reflectionID,
		"hash":      hash,
		"title":     entry.Title,
		"body":      entry.Body,
		"mood":      entry.Mood,
		"moodScore": entry.MoodScore,
		"tags":      entry.Tags,
		"entryDate": entry.EntryDate,
	}, nil
}

func (s *Service) Search(ctx context.Context, session Session, q, filterType string, limit, offset int) (map[string]any, error) {
	settings, err := s.store.GetPrivacySettings(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	empty := map[string]any{"results": []any{}, "total": 0, "query": q}
	if !settings.Searchable || s.search == nil {
		return empty, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	response := s.search.Search(search.Query{
		UserID:     session.UserID,
		Text:       q,
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

func (s *Service) ExportJournal(ctx context.Context, session Session, fromStr, toStr, format string) (*export.Result, error) {
	loc := s.userLocation(session)
	now := time.Now().In(loc)

	to := gamify.DateOnly(now).AddDate(0, 0, 1)
	if strings.TrimSpace(toStr) != "" {
		parsed, err := time.ParseInLocation(entryDateLayout, toStr, loc)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "to must be YYYY-MM-DD", nil)
		}
		to = parsed.AddDate(0, 0, 1)
	}
	from := to.AddDate(0, 0, -31)
	if strings.TrimSpace(fromStr) != "" {
		parsed, err := time.ParseInLocation(entryDateLayout, fromStr, loc)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from must be YYYY-MM-DD", nil)
		}
		from = parsed
	}
	if !from.Before(to) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from must be before to", nil)
	}

	outFormat := export.Format(strings.ToLower(strings.TrimSpace(format)))
	if outFormat == "" {
		outFormat = export.FormatPDF
	}
	if outFormat != export.FormatPDF && outFormat != export.FormatDOCX {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf or docx", nil)
	}

	result, err := s.export.Export(ctx, export.Request{
		UserID: session.UserID,
		From:   from,
		To:     to,
		Format: outFormat,
	})
	if err != nil {
		switch {
		case err == export.ErrNoEntries:
			return nil, domainError(http.StatusNotFound, "NO_ENTRIES", "No entries in the requested range", nil)
		case err == export.ErrPDFDependencyMissing, err == export.ErrDOCXDependencyMissing:
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export renderer is not available", nil)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) AddAttachment(ctx context.Context, session Session, reflectionID, filename, contentType string, size int64, reader io.Reader) (map[string]any, error) {
	if s.media == nil || !s.media.IsConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Attachment storage is not configured", nil)
	}
	if _, err := s.store.GetReflection(ctx, session.UserID, reflectionID); err != nil {
		return nil, err
	}

	attachment := store.Attachment{
		ID:           util.NewID("att"),
		ReflectionID: reflectionID,
		UserID:       session.UserID,
		Filename:     filename,
		ContentType:  contentType,
		SizeBytes:    size,
	}
	attachment.ObjectKey = session.UserID + "/" + attachment.ID

	if err := s.media.Put(ctx, attachment.ObjectKey, reader, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		_ = s.media.Remove(ctx, attachment.ObjectKey)
		return nil, err
	}
	return s.attachmentPayload(ctx, attachment), nil
}

func (s *Service) ListReflectionAttachments(ctx context.Context, session Session, reflectionID string) (map[string]any, error) {
	if _, err := s.store.GetReflection(ctx, session.UserID, reflectionID); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, session.UserID, reflectionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"attachments": s.attachmentPayloads(ctx, attachments)}, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.store.GetAttachment(ctx, session.UserID, attachmentID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteAttachment(ctx, session.UserID, attachmentID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Attachment not found", nil)
	}
	if s.media != nil && s.media.IsConfigured() {
		_ = s.media.Remove(ctx, attachment.ObjectKey)
	}
	return nil
}

// reconcileAfterReflection runs the gamification pass for a new entry: streak
// advance, XP, badge awards, and idempotent auto-completion of any quest whose
// window target the entry just met.
func (s *Service) reconcileAfterReflection(ctx context.Context, session Session, reflection store.Reflection) (map[string]any, error) {
	loc := s.userLocation(session)
	day := localDay(reflection.EntryDate, loc)

	change, err := s.store.RecordActivity(ctx, session.UserID, day)
	if err != nil {
		return nil, err
	}

	newBadges := []store.Badge{}
	if change.Counted {
		awarded, err := s.store.AwardBadges(ctx, session.UserID, "streak", change.Current)
		if err != nil {
			return nil, err
		}
		newBadges = append(newBadges, awarded...)
	}

	totalXP, err := s.store.AwardXP(ctx, session.UserID, reflectionXP, "reflection", reflection.ID)
	if err != nil {
		return nil, err
	}

	lifetime, err := s.store.CountReflections(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	awarded, err := s.store.AwardBadges(ctx, session.UserID, "reflection", lifetime)
	if err != nil {
		return nil, err
	}
	newBadges = append(newBadges, awarded...)

	completed, err := s.autoCompleteQuests(ctx, session, reflection)
	if err != nil {
		return nil, err
	}
	if len(completed) > 0 {
		questCount, err := s.store.CountQuestCompletions(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		awarded, err := s.store.AwardBadges(ctx, session.UserID, "quest", questCount)
		if err != nil {
			return nil, err
		}
		newBadges = append(newBadges, awarded...)
		state, err := s.store.GetXPState(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		totalXP = state.TotalXP
	}

	return map[string]any{
		"streak": map[string]any{
			"current":      change.Current,
			"longest":      change.Longest,
			"extended":     change.Extended,
			"frozen":       change.Frozen,
			"reset":        change.Reset,
			"creditsSpent": change.CreditsSpent,
		},
		"xp":              totalXP,
		"level":           gamify.LevelForXP(totalXP),
		"completedQuests": completed,
		"newBadges":       badgePayloads(newBadges),
	}, nil
}

const reflectionXP = 10

// autoCompleteQuests completes every active reflection or mood quest whose
// current-window progress reached its target with this entry.
func (s *Service) autoCompleteQuests(ctx context.Context, session Session, reflection store.Reflection) ([]string, error) {
	quests, err := s.store.ListActiveQuests(ctx)
	if err != nil {
		return nil, err
	}

	loc := s.userLocation(session)
	at := localDay(reflection.EntryDate, loc)
	completed := []string{}

	for _, quest := range quests {
		requireMood := false
		switch quest.Kind {
		case "reflection":
		case "mood":
			if reflection.Mood == "" && reflection.MoodScore == 0 {
				continue
			}
			requireMood = true
		default:
			continue
		}

		start, end := gamify.WindowFor(gamify.TimeFrame(quest.TimeFrame), at)
		progress, err := s.store.CountReflectionsInWindow(ctx, session.UserID, start, end, requireMood)
		if err != nil {
			return nil, err
		}
		if progress < quest.Target {
			continue
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
		if inserted {
			completed = append(completed, quest.Code)
		}
	}
	return completed, nil
}

func (s *Service) commitReflection(session Session, reflection store.Reflection, message string) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.EnsureUserRepo(session.UserID); err != nil {
		return err
	}
	entry := journal.Entry{
		Title:     reflection.Title,
		Body:      reflection.Body,
		Mood:      reflection.Mood,
		MoodScore: reflection.MoodScore,
		Tags:      reflection.Tags,
		EntryDate: reflection.EntryDate.Format(entryDateLayout),
	}
	_, err := s.journal.SaveEntry(session.UserID, reflection.ID, entry, session.UserName, message)
	return err
}

func (s *Service) indexReflection(reflection store.Reflection) {
	if s.search == nil {
		return
	}
	s.search.IndexReflection(search.ReflectionRecord{
		ID:        reflection.ID,
		UserID:    reflection.UserID,
		Title:     reflection.Title,
		Body:      reflection.Body,
		Mood:      reflection.Mood,
		Tags:      reflection.Tags,
		EntryDate: reflection.EntryDate.Format(entryDateLayout),
	})
}

func (s *Service) attachmentPayload(ctx context.Context, attachment store.Attachment) map[string]any {
	payload := map[string]any{
		"id":           attachment.ID,
		"reflectionId": attachment.ReflectionID,
		"filename":     attachment.Filename,
		"contentType":  attachment.ContentType,
		"sizeBytes":    attachment.SizeBytes,
		"createdAt":    attachment.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.media != nil && s.media.IsConfigured() {
		if url, err := s.media.PresignedGetURL(ctx, attachment.ObjectKey, attachment.Filename, 15*time.Minute); err == nil {
			payload["url"] = url
		}
	}
	return payload
}

func (s *Service) attachmentPayloads(ctx context.Context, attachments []store.Attachment) []map[string]any {
	items := make([]map[string]any, 0, len(attachments))
	for _, attachment := range attachments {
		items = append(items, s.attachmentPayload(ctx, attachment))
	}
	return items
}

func reflectionPayload(r store.Reflection) map[string]any {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":        r.ID,
		"title":     r.Title,
		"body":      r.Body,
		"mood":      r.Mood,
		"moodScore": r.MoodScore,
		"tags":      tags,
		"entryDate": r.EntryDate.Format(entryDateLayout),
		"createdAt": r.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt": r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// localDay rebuilds a stored calendar date as midnight in the user's zone.
// DATE columns scan back at UTC midnight, so converting the instant would
// shift the day for zones behind UTC.
func localDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func resolveEntryDate(raw string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return gamify.DateOnly(time.Now().In(loc)), nil
	}
	parsed, err := time.ParseInLocation(entryDateLayout, raw, loc)
	if err != nil {
		return time.Time{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "entryDate must be YYYY-MM-DD", nil)
	}
	return parsed, nil
}
