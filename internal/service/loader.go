package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"news_cache/internal/config"
	"news_cache/internal/domain"
)

var (
	ErrDebounced   = errors.New("load debounced")
	ErrOffline     = errors.New("network offline")
	ErrEmptyResult = errors.New("remote returned no articles")
)

const (
	msgOffline     = "Offline: showing cached news"
	msgFetchFailed = "Could not reach news service: showing cached news"
	msgNoFresh     = "No fresh news: showing cached news"
	msgNoCache     = "No cached news available"
	msgCacheFailed = "Cached news unavailable"
)

type Option func(*NewsLoader)

func WithClock(now func() time.Time) Option {
	return func(l *NewsLoader) {
		l.now = now
	}
}

// NewsLoader serves headlines for a category from the remote source when
// online and from the cache otherwise.
//
// Every request takes a token from a generation counter. Only the request
// holding the newest token may replace the current feed; a request holding
// the in-flight token blocks other debounced requests until it finishes.
type NewsLoader struct {
	source    Source
	cache     Cache
	memory    MemoryCache
	network   Connectivity
	publisher Publisher
	logger    *slog.Logger
	config    config.LoaderConfig
	now       func() time.Time

	mu         sync.Mutex
	generation uint64
	inflight   uint64
	finishedAt time.Time
	state      domain.NetworkState
	category   string
	feed       *domain.Feed

	writes sync.WaitGroup
}

// NewNewsLoader builds a loader. memory and publisher may be nil.
func NewNewsLoader(
	source Source,
	cache Cache,
	memory MemoryCache,
	network Connectivity,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.LoaderConfig,
	opts ...Option,
) *NewsLoader {
	l := &NewsLoader{
		source:    source,
		cache:     cache,
		memory:    memory,
		network:   network,
		publisher: publisher,
		logger:    logger.With("component", "news_loader"),
		config:    cfg,
		now:       time.Now,
		category:  cfg.Category,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load serves category. It returns ErrDebounced without doing anything when
// another request is in flight or the previous one finished less than the
// cooldown ago. Remote failures fall back to the cache and are not returned.
func (l *NewsLoader) Load(ctx context.Context, category string) (*domain.Feed, error) {
	category = l.resolve(category)

	token, ok := l.begin(category, false, false)
	if !ok {
		l.logger.Debug("load debounced", "category", category)
		return nil, ErrDebounced
	}
	defer l.finish(token)

	if !l.checkOnline(ctx) {
		return l.commit(token, l.serveCache(ctx, category, msgOffline)), nil
	}

	return l.commit(token, l.fetch(ctx, category)), nil
}

// Refresh always asks the remote source and overwrites the cache. It refuses
// when offline and reports remote failures instead of serving the cache.
func (l *NewsLoader) Refresh(ctx context.Context, category string) (*domain.Feed, error) {
	category = l.resolve(category)

	// refusing does not claim a token, so no cooldown starts
	if !l.checkOnline(ctx) {
		return nil, ErrOffline
	}

	token, _ := l.begin(category, true, true)
	defer l.finish(token)

	page, err := l.source.TopHeadlines(ctx, l.config.Country, category)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", category, err)
	}
	if len(page.Articles) == 0 {
		return nil, fmt.Errorf("refresh %s: %w", category, ErrEmptyResult)
	}

	if l.cache.Write(ctx, page.Articles, category, l.config.CacheTTL) {
		l.invalidate(category)
		l.announce(ctx, category, len(page.Articles))
	} else {
		l.logger.Warn("refreshed articles not cached", "category", category)
	}

	return l.commit(token, l.liveFeed(category, page.Articles)), nil
}

// HandleNetworkChange reacts to a connectivity transition. Regaining the
// network refetches the current category, losing it serves the cache. Any
// other observation only updates the state and returns a nil feed.
func (l *NewsLoader) HandleNetworkChange(ctx context.Context, online bool) (*domain.Feed, error) {
	l.mu.Lock()
	prev := l.state
	if online {
		l.state = domain.StateOnline
	} else {
		l.state = domain.StateOffline
	}
	category := l.category
	l.mu.Unlock()

	switch {
	case online && prev == domain.StateOffline:
		l.logger.Info("network restored", "category", category)

		token, ok := l.begin(category, true, false)
		if !ok {
			return nil, ErrDebounced
		}
		defer l.finish(token)

		return l.commit(token, l.fetch(ctx, category)), nil

	case !online && prev != domain.StateOffline:
		l.logger.Info("network lost", "category", category)

		token := l.supersede()
		return l.commit(token, l.serveCache(ctx, category, msgOffline)), nil
	}

	return nil, nil
}

// ClearCache drops every cached article, including the in-session copies.
func (l *NewsLoader) ClearCache(ctx context.Context) bool {
	if l.memory != nil {
		l.memory.Purge()
	}
	return l.cache.ClearAll(ctx)
}

// Wait blocks until every pending write-through has finished.
func (l *NewsLoader) Wait() {
	l.writes.Wait()
}

func (l *NewsLoader) Feed() *domain.Feed {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feed
}

func (l *NewsLoader) State() domain.NetworkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *NewsLoader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight != 0
}

// Category is the category of the most recent request.
func (l *NewsLoader) Category() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.category
}

func (l *NewsLoader) resolve(category string) string {
	if category == "" {
		return l.Category()
	}
	return category
}

func (l *NewsLoader) begin(category string, skipCooldown, skipInflight bool) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight != 0 && !skipInflight {
		return 0, false
	}
	if !skipCooldown && !l.finishedAt.IsZero() && l.now().Sub(l.finishedAt) < l.config.Cooldown {
		return 0, false
	}

	l.generation++
	l.inflight = l.generation
	l.category = category
	return l.generation, true
}

func (l *NewsLoader) finish(token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight == token {
		l.inflight = 0
		l.finishedAt = l.now()
	}
}

// supersede invalidates pending results without claiming the in-flight slot.
func (l *NewsLoader) supersede() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	return l.generation
}

func (l *NewsLoader) commit(token uint64, feed *domain.Feed) *domain.Feed {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token != l.generation {
		l.logger.Debug("stale result dropped", "category", feed.Category, "status", feed.Status)
		return feed
	}
	l.feed = feed
	return feed
}

func (l *NewsLoader) checkOnline(ctx context.Context) bool {
	online := l.network.Online(ctx)

	l.mu.Lock()
	if online {
		l.state = domain.StateOnline
	} else {
		l.state = domain.StateOffline
	}
	l.mu.Unlock()

	return online
}

func (l *NewsLoader) fetch(ctx context.Context, category string) *domain.Feed {
	page, err := l.source.TopHeadlines(ctx, l.config.Country, category)
	if err != nil {
		l.logger.Warn("fetch failed, falling back to cache", "category", category, "error", err)
		return l.serveCache(ctx, category, msgFetchFailed)
	}
	if len(page.Articles) == 0 {
		l.logger.Info("remote returned no articles, falling back to cache", "category", category)
		return l.serveCache(ctx, category, msgNoFresh)
	}

	l.writeThrough(ctx, category, page.Articles)

	return l.liveFeed(category, page.Articles)
}

func (l *NewsLoader) writeThrough(ctx context.Context, category string, articles []domain.Article) {
	ctx = context.WithoutCancel(ctx)

	l.writes.Go(func() {
		writeCtx, cancel := context.WithTimeout(ctx, l.config.WriteThroughTimeout)
		defer cancel()

		if !l.cache.Write(writeCtx, articles, category, l.config.CacheTTL) {
			l.logger.Warn("write-through failed", "category", category, "count", len(articles))
			return
		}

		l.invalidate(category)
		l.announce(writeCtx, category, len(articles))
	})
}

func (l *NewsLoader) serveCache(ctx context.Context, category, message string) *domain.Feed {
	feed := &domain.Feed{
		Category:  category,
		Status:    domain.StatusCached,
		Message:   message,
		FetchedAt: l.now(),
	}

	if l.memory != nil {
		if articles, ok := l.memory.Get(category); ok {
			feed.Articles = articles
			return feed
		}
	}

	rows, err := l.cache.Read(ctx, category)
	if err != nil {
		l.logger.Error("cache read failed", "category", category, "error", err)
		feed.Status = domain.StatusEmpty
		feed.Message = msgCacheFailed
		feed.Articles = []domain.Article{}
		return feed
	}
	if len(rows) == 0 {
		feed.Status = domain.StatusEmpty
		feed.Message = msgNoCache
		feed.Articles = []domain.Article{}
		return feed
	}

	feed.Articles = domain.Articles(rows)
	if l.memory != nil {
		l.memory.SetUntil(category, feed.Articles, earliestExpiration(rows))
	}
	return feed
}

// earliestExpiration is the moment the first of rows dies.
func earliestExpiration(rows []domain.CachedArticle) time.Time {
	earliest := rows[0].Expiration
	for _, r := range rows[1:] {
		earliest = min(earliest, r.Expiration)
	}
	return time.UnixMilli(earliest)
}

func (l *NewsLoader) liveFeed(category string, articles []domain.Article) *domain.Feed {
	return &domain.Feed{
		Category:  category,
		Articles:  articles,
		Status:    domain.StatusLive,
		FetchedAt: l.now(),
	}
}

func (l *NewsLoader) invalidate(category string) {
	if l.memory != nil {
		l.memory.Invalidate(category)
	}
}

func (l *NewsLoader) announce(ctx context.Context, category string, count int) {
	if l.publisher == nil {
		return
	}

	event := &domain.CacheEvent{
		Action:    "refreshed",
		Category:  category,
		Count:     count,
		Timestamp: l.now().UTC(),
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("failed to publish cache event", "category", category, "error", err)
	}
}
