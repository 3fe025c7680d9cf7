package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetOwner(ctx context.Context, userID string) (OwnerInfo, error)
	ListEntries(ctx context.Context, userID string, from, to time.Time) ([]EntryInfo, error)
}

// OwnerInfo holds the exporting user's display data
type OwnerInfo struct {
	ID          string
	DisplayName string
}

// EntryInfo holds one journal entry for export
type EntryInfo struct {
	ID        string
	Title     string
	Body      string
	Mood      string
	MoodScore int
	Tags      []string
	EntryDate time.Time
}

// Service provides journal export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export of the user's entries in the half-open range
// [From, To) in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	owner, err := s.store.GetOwner(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}

	entries, err := s.store.ListEntries(ctx, req.UserID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	data := TemplateData{
		OwnerName: owner.DisplayName,
		From:      req.From,
		To:        req.To,
		Entries:   make([]TemplateEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		data.Entries = append(data.Entries, TemplateEntry{
			Date:      entry.EntryDate,
			Title:     entry.Title,
			Mood:      entry.Mood,
			MoodScore: entry.MoodScore,
			Tags:      entry.Tags,
			BodyHTML:  bodyToHTML(entry.Body),
		})
	}

	html, err := RenderJournalHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := fmt.Sprintf("journal-%s-%s", req.From.Format("2006-01-02"), req.To.Format("2006-01-02"))
	switch req.Format {
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
