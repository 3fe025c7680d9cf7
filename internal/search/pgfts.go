package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across reflections and memories using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Everything is
// scoped to the querying user.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.UserID == "" {
		return nil, 0, fmt.Errorf("search without user scope")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.UserID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultReflection {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'reflection'::text AS type, r.id, r.title,
				ts_headline('english', coalesce(r.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(r.search_vector, %s) AS rank
			FROM reflections r
			WHERE r.user_id = $2 AND r.search_vector @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultMemory {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'memory'::text AS type, m.id, coalesce(m.category, '') AS title,
				ts_headline('english', coalesce(m.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(m.search_vector, %s) AS rank
			FROM memories m
			WHERE m.user_id = $2 AND m.search_vector @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ReflectionRecord, []MemoryRecord, error) {
	reflectionRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, title, body, coalesce(mood, ''), tags, entry_date::text
		FROM reflections
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load reflections: %w", err)
	}
	defer reflectionRows.Close()

	reflections := make([]ReflectionRecord, 0)
	for reflectionRows.Next() {
		var r ReflectionRecord
		var tagsJSON []byte
		if err := reflectionRows.Scan(&r.ID, &r.UserID, &r.Title, &r.Body, &r.Mood, &tagsJSON, &r.EntryDate); err != nil {
			return nil, nil, fmt.Errorf("scan reflection: %w", err)
		}
		r.Tags = decodeTags(tagsJSON)
		reflections = append(reflections, r)
	}
	if err := reflectionRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate reflections: %w", err)
	}

	memoryRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, content, coalesce(category, '')
		FROM memories
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load memories: %w", err)
	}
	defer memoryRows.Close()

	memories := make([]MemoryRecord, 0)
	for memoryRows.Next() {
		var m MemoryRecord
		if err := memoryRows.Scan(&m.ID, &m.UserID, &m.Content, &m.Category); err != nil {
			return nil, nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := memoryRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate memories: %w", err)
	}

	return reflections, memories, nil
}
