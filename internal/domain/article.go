package domain

import "time"

// Source identifies the publisher of an article.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Article is a headline as returned by the remote source.
type Article struct {
	Source      Source `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"` // kept verbatim, never reparsed
	Content     string `json:"content"`
}

// ID returns the article identity used by every store. Articles are keyed by
// their canonical URL.
func (a Article) ID() string {
	return a.URL
}

// CachedArticle is an article cache row. Timestamp and Expiration are epoch
// milliseconds; the row is dead once Expiration <= now.
type CachedArticle struct {
	Article
	Category   string `json:"category"`
	Timestamp  int64  `json:"timestamp"`
	Expiration int64  `json:"expiration"`
}

// NewCachedArticle stamps an article for the cache.
func NewCachedArticle(a Article, category string, now, expiration time.Time) CachedArticle {
	return CachedArticle{
		Article:    a,
		Category:   category,
		Timestamp:  now.UnixMilli(),
		Expiration: expiration.UnixMilli(),
	}
}

// Expired reports whether the row is logically dead at now.
func (c CachedArticle) Expired(now time.Time) bool {
	return c.Expiration <= now.UnixMilli()
}

// FavoriteArticle is a user-marked article. Favorites never expire.
type FavoriteArticle struct {
	Article
	Category  string `json:"category"`
	Timestamp int64  `json:"timestamp"`
}

// Setting is an opaque key/value pair, last write wins.
type Setting struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Page is one response of the remote source.
type Page struct {
	Status       string
	TotalResults int
	Articles     []Article
}

// Articles strips cache metadata from rows.
func Articles(rows []CachedArticle) []Article {
	out := make([]Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Article)
	}
	return out
}
