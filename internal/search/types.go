package search

import "time"

// Hit is one message in a result page.
type Hit struct {
	MessageID int64     `json:"message_id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Permalink string    `json:"permalink"`
}

// Result is one page of hits plus the total match count across all pages.
type Result struct {
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	Hits     []Hit  `json:"hits"`
}

// Empty reports whether the page holds no hits.
func (r *Result) Empty() bool {
	return r == nil || len(r.Hits) == 0
}

// Stats counts service activity since start.
type Stats struct {
	DocumentsAdded int64     `json:"documents_added"`
	DuplicatesSeen int64     `json:"duplicates_seen"`
	IngestFailures int64     `json:"ingest_failures"`
	QueriesServed  int64     `json:"queries_served"`
	QueryFailures  int64     `json:"query_failures"`
	KnownIndexes   int       `json:"known_indexes"`
	StartedAt      time.Time `json:"started_at"`
}
