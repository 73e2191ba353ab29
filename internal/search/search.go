package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultComment  ResultType = "comment"
	ResultConflict ResultType = "conflict"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	SessionID string     `json:"sessionId"`
	FileID    string     `json:"fileId"`
	AuthorID  string     `json:"authorId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterSessionID string
	Limit           int
	Offset          int
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

// Indexer can push entities into a search index.
type Indexer interface {
	IndexComment(c CommentRecord) error
	IndexConflict(c ConflictRecord) error
	DeleteComment(id string) error
	DeleteConflict(id string) error
}

// CommentRecord is the data we index for a comment thread.
type CommentRecord struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	SessionID string `json:"sessionId"`
	FileID    string `json:"fileId"`
	AuthorID  string `json:"authorId"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
}

// ConflictRecord is the data we index for a settled or pending conflict.
type ConflictRecord struct {
	ID            string `json:"id"`
	Justification string `json:"justification"`
	SessionID     string `json:"sessionId"`
	FileID        string `json:"fileId"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	ResolvedBy    string `json:"resolvedBy"`
}
