package domain

import "time"

// NetworkState is the connectivity as seen by the loader.
type NetworkState int

const (
	StateUnknown NetworkState = iota
	StateOnline
	StateOffline
)

func (s NetworkState) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Status describes where the articles of a Feed came from.
type Status string

const (
	StatusLive   Status = "live"
	StatusCached Status = "cached"
	StatusEmpty  Status = "empty"
)

// Feed is what the loader serves for a category.
type Feed struct {
	Category  string
	Articles  []Article
	Status    Status
	Message   string
	FetchedAt time.Time
}

// CacheEvent is published after the cache for a category was rewritten.
type CacheEvent struct {
	Action    string    `json:"action"` // "refreshed"
	Category  string    `json:"category"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
