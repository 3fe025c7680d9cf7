package search

import (
	"context"
	"encoding/json"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexReflection indexes a journal entry (fire-and-forget to Meilisearch).
func (s *Service) IndexReflection(r ReflectionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexReflection(r); err != nil {
			log.Printf("search: index reflection %s: %v", r.ID, err)
		}
	}()
}

// IndexMemory indexes a memory (fire-and-forget to Meilisearch).
func (s *Service) IndexMemory(m MemoryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexMemory(m); err != nil {
			log.Printf("search: index memory %s: %v", m.ID, err)
		}
	}()
}

// DeleteReflection removes a journal entry from the search index (fire-and-forget).
func (s *Service) DeleteReflection(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteReflection(id); err != nil {
			log.Printf("search: delete reflection %s: %v", id, err)
		}
	}()
}

// DeleteMemory removes a memory from the search index (fire-and-forget).
func (s *Service) DeleteMemory(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteMemory(id); err != nil {
			log.Printf("search: delete memory %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into
// Meilisearch. Called during Bootstrap if Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	reflections, memories, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(reflections) > 0 {
		if err := s.meili.IndexReflections(reflections); err != nil {
			log.Printf("search: reindex reflections: %v", err)
		}
	}
	if len(memories) > 0 {
		if err := s.meili.IndexMemories(memories); err != nil {
			log.Printf("search: reindex memories: %v", err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

func decodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
