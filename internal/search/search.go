package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultReflection ResultType = "reflection"
	ResultMemory     ResultType = "memory"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request. UserID is mandatory; results never cross
// user boundaries.
type Query struct {
	UserID     string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ReflectionRecord is the data we index for a journal entry.
type ReflectionRecord struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Mood      string   `json:"mood"`
	Tags      []string `json:"tags"`
	EntryDate string   `json:"entryDate"`
}

// MemoryRecord is the data we index for a stored memory.
type MemoryRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Content  string `json:"content"`
	Category string `json:"category"`
}
