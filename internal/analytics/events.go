package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventIndexDoc   EventType = "index_document"
	EventZeroResult EventType = "zero_result"
)

// SearchEvent is emitted once per served /search request.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Terms        []string  `json:"terms"`
	Alpha        float64   `json:"alpha"`
	Beta         float64   `json:"beta"`
	Gamma        float64   `json:"gamma"`
	Page         int       `json:"page"`
	TotalResults int       `json:"total_results"`
	Returned     int       `json:"returned"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

// IndexEvent is emitted by the indexer for every document written.
type IndexEvent struct {
	Type       EventType `json:"type"`
	DocID      int64     `json:"doc_id"`
	TokenCount int       `json:"token_count"`
	LinkCount  int       `json:"link_count"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e IndexEvent) partitionKey() string { return "index" }

func (e SearchEvent) partitionKey() string { return "search" }
