package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"news_cache/internal/config"
	"news_cache/internal/domain"
	"news_cache/internal/memcache"
	"news_cache/internal/service/mocks"
	memstore "news_cache/internal/storage/memory"
	"news_cache/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type NewsLoaderTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	cache     *mocks.MockCache
	memory    *mocks.MockMemoryCache
	network   *mocks.MockConnectivity
	publisher *mocks.MockPublisher

	clock  *fakeClock
	cfg    config.LoaderConfig
	logger *slog.Logger
}

func (s *NewsLoaderTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.cache = mocks.NewMockCache(s.ctrl)
	s.memory = mocks.NewMockMemoryCache(s.ctrl)
	s.network = mocks.NewMockConnectivity(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.clock = &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.cfg = config.LoaderConfig{
		Country:             "us",
		Category:            "general",
		CacheTTL:            30 * time.Minute,
		Cooldown:            5 * time.Second,
		WriteThroughTimeout: time.Second,
	}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *NewsLoaderTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestNewsLoaderTestSuite(t *testing.T) {
	suite.Run(t, new(NewsLoaderTestSuite))
}

// newLoader builds a loader without the memory layer and publisher unless
// the test asks for them.
func (s *NewsLoaderTestSuite) newLoader(memory MemoryCache, publisher Publisher) *NewsLoader {
	return NewNewsLoader(s.source, s.cache, memory, s.network, publisher, s.logger, s.cfg, WithClock(s.clock.Now))
}

func headlines(urls ...string) []domain.Article {
	out := make([]domain.Article, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.Article{URL: u, Title: "title " + u})
	}
	return out
}

func rows(category string, articles []domain.Article) []domain.CachedArticle {
	out := make([]domain.CachedArticle, 0, len(articles))
	for _, a := range articles {
		out = append(out, domain.CachedArticle{Article: a, Category: category})
	}
	return out
}

func (s *NewsLoaderTestSuite) TestLoad_OfflineServesCacheWithoutRemote() {
	ctx := context.Background()
	cached := headlines("https://a", "https://b")

	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.cache.EXPECT().Read(gomock.Any(), "sports").Return(rows("sports", cached), nil)
	s.source.EXPECT().TopHeadlines(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	loader := s.newLoader(nil, nil)
	feed, err := loader.Load(ctx, "sports")

	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Equal(msgOffline, feed.Message)
	s.Equal(cached, feed.Articles)
	s.Equal(domain.StateOffline, loader.State())
	s.Equal(feed, loader.Feed())
	s.Equal("sports", loader.Category())
}

func (s *NewsLoaderTestSuite) TestLoad_RemoteFailureFallsBackToCache() {
	ctx := context.Background()
	cached := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(nil, errors.New("connection refused"))
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(rows("general", cached), nil)

	feed, err := s.newLoader(nil, nil).Load(ctx, "general")

	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Equal(msgFetchFailed, feed.Message)
	s.Equal(cached, feed.Articles)
}

func (s *NewsLoaderTestSuite) TestLoad_EmptyRemoteFallsBackToCache() {
	ctx := context.Background()

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Status: "ok"}, nil)
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(nil, nil)

	feed, err := s.newLoader(nil, nil).Load(ctx, "general")

	s.Require().NoError(err)
	s.Equal(domain.StatusEmpty, feed.Status)
	s.Equal(msgNoCache, feed.Message)
	s.Empty(feed.Articles)
}

func (s *NewsLoaderTestSuite) TestLoad_CacheReadFailureIsEmptyFeed() {
	ctx := context.Background()

	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(nil, errors.New("disk I/O error"))

	feed, err := s.newLoader(nil, nil).Load(ctx, "")

	s.Require().NoError(err)
	s.Equal(domain.StatusEmpty, feed.Status)
	s.Equal(msgCacheFailed, feed.Message)
	s.NotNil(feed.Articles)
}

func (s *NewsLoaderTestSuite) TestLoad_LiveWritesThrough() {
	ctx := context.Background()
	fresh := headlines("https://a", "https://b", "https://c")

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "sports").
		Return(&domain.Page{Status: "ok", TotalResults: 3, Articles: fresh}, nil)
	s.cache.EXPECT().Write(gomock.Any(), fresh, "sports", 30*time.Minute).Return(true)
	s.memory.EXPECT().Invalidate("sports")
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event *domain.CacheEvent) error {
			s.Equal("refreshed", event.Action)
			s.Equal("sports", event.Category)
			s.Equal(3, event.Count)
			return nil
		})

	loader := s.newLoader(s.memory, s.publisher)
	feed, err := loader.Load(ctx, "sports")
	loader.Wait()

	s.Require().NoError(err)
	s.Equal(domain.StatusLive, feed.Status)
	s.Equal(fresh, feed.Articles)
	s.Equal(domain.StateOnline, loader.State())
	s.False(loader.Loading())
}

func (s *NewsLoaderTestSuite) TestLoad_WriteThroughFailureIsNotSurfaced() {
	ctx := context.Background()
	fresh := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Articles: fresh}, nil)
	s.cache.EXPECT().Write(gomock.Any(), fresh, "general", gomock.Any()).Return(false)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	loader := s.newLoader(nil, s.publisher)
	feed, err := loader.Load(ctx, "general")
	loader.Wait()

	s.Require().NoError(err)
	s.Equal(domain.StatusLive, feed.Status)
}

func (s *NewsLoaderTestSuite) TestLoad_WriteThroughOutlivesCallerContext() {
	ctx, cancel := context.WithCancel(context.Background())
	fresh := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Articles: fresh}, nil)
	s.cache.EXPECT().Write(gomock.Any(), fresh, "general", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []domain.Article, _ string, _ time.Duration) bool {
			s.NoError(ctx.Err())
			return true
		})

	loader := s.newLoader(nil, nil)
	_, err := loader.Load(ctx, "general")
	cancel()
	loader.Wait()

	s.Require().NoError(err)
}

func (s *NewsLoaderTestSuite) TestLoad_DebouncedWithinCooldown() {
	ctx := context.Background()
	fresh := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(true).Times(2)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Articles: fresh}, nil).Times(2)
	s.cache.EXPECT().Write(gomock.Any(), fresh, "general", gomock.Any()).Return(true).Times(2)

	loader := s.newLoader(nil, nil)

	first, err := loader.Load(ctx, "general")
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Second)
	second, err := loader.Load(ctx, "general")
	s.ErrorIs(err, ErrDebounced)
	s.Nil(second)
	s.Same(first, loader.Feed())

	s.clock.Advance(4 * time.Second)
	third, err := loader.Load(ctx, "general")
	s.Require().NoError(err)
	s.Same(third, loader.Feed())

	loader.Wait()
}

func (s *NewsLoaderTestSuite) TestLoad_DroppedWhileInFlight() {
	ctx := context.Background()
	fresh := headlines("https://a")
	release := make(chan struct{})
	started := make(chan struct{})

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").DoAndReturn(
		func(context.Context, string, string) (*domain.Page, error) {
			close(started)
			<-release
			return &domain.Page{Articles: fresh}, nil
		})
	s.cache.EXPECT().Write(gomock.Any(), fresh, "general", gomock.Any()).Return(true)

	loader := s.newLoader(nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := loader.Load(ctx, "general")
		done <- err
	}()

	<-started
	s.True(loader.Loading())

	_, err := loader.Load(ctx, "general")
	s.ErrorIs(err, ErrDebounced)

	close(release)
	s.NoError(<-done)
	loader.Wait()
	s.False(loader.Loading())
}

func (s *NewsLoaderTestSuite) TestLoad_MemoryHitSkipsCache() {
	ctx := context.Background()
	cached := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.memory.EXPECT().Get("general").Return(cached, true)
	s.cache.EXPECT().Read(gomock.Any(), gomock.Any()).Times(0)

	feed, err := s.newLoader(s.memory, nil).Load(ctx, "general")

	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Equal(cached, feed.Articles)
}

func (s *NewsLoaderTestSuite) TestLoad_MemoryMissIsFilledFromCache() {
	ctx := context.Background()
	cached := headlines("https://a")

	stored := rows("general", cached)
	stored[0].Expiration = s.clock.Now().Add(time.Minute).UnixMilli()

	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.memory.EXPECT().Get("general").Return(nil, false)
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(stored, nil)
	s.memory.EXPECT().SetUntil("general", cached, time.UnixMilli(stored[0].Expiration))

	feed, err := s.newLoader(s.memory, nil).Load(ctx, "general")

	s.Require().NoError(err)
	s.Equal(cached, feed.Articles)
}

func (s *NewsLoaderTestSuite) TestHandleNetworkChange_OnlineToOfflineServesCache() {
	ctx := context.Background()
	cached := headlines("https://a", "https://b")

	s.source.EXPECT().TopHeadlines(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(rows("general", cached), nil).Times(2)
	s.network.EXPECT().Online(gomock.Any()).Return(false)

	loader := s.newLoader(nil, nil)

	feed, err := loader.HandleNetworkChange(ctx, true)
	s.Require().NoError(err)
	s.Nil(feed)
	s.Equal(domain.StateOnline, loader.State())

	feed, err = loader.HandleNetworkChange(ctx, false)
	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Equal(cached, feed.Articles)
	s.Equal(domain.StateOffline, loader.State())

	feed, err = loader.Load(ctx, "general")
	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Equal(msgOffline, feed.Message)
	s.Equal(cached, feed.Articles)
}

func (s *NewsLoaderTestSuite) TestHandleNetworkChange_OfflineToOnlineRefetches() {
	ctx := context.Background()
	fresh := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.cache.EXPECT().Read(gomock.Any(), "sports").Return(nil, nil)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "sports").Return(&domain.Page{Articles: fresh}, nil)
	s.cache.EXPECT().Write(gomock.Any(), fresh, "sports", gomock.Any()).Return(true)

	loader := s.newLoader(nil, nil)

	feed, err := loader.Load(ctx, "sports")
	s.Require().NoError(err)
	s.Equal(domain.StatusEmpty, feed.Status)

	// within the cooldown, regaining the network still refetches
	feed, err = loader.HandleNetworkChange(ctx, true)
	s.Require().NoError(err)
	s.Equal(domain.StatusLive, feed.Status)
	s.Equal("sports", feed.Category)
	s.Same(feed, loader.Feed())

	loader.Wait()
}

func (s *NewsLoaderTestSuite) TestHandleNetworkChange_RepeatedObservationIsNoop() {
	loader := s.newLoader(nil, nil)

	s.cache.EXPECT().Read(gomock.Any(), "general").Return(nil, nil)

	_, err := loader.HandleNetworkChange(context.Background(), false)
	s.Require().NoError(err)

	feed, err := loader.HandleNetworkChange(context.Background(), false)
	s.Require().NoError(err)
	s.Nil(feed)
}

func (s *NewsLoaderTestSuite) TestRefresh_OfflineRefuses() {
	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.source.EXPECT().TopHeadlines(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	feed, err := s.newLoader(nil, nil).Refresh(context.Background(), "general")

	s.ErrorIs(err, ErrOffline)
	s.Nil(feed)
}

func (s *NewsLoaderTestSuite) TestRefresh_FailureDoesNotFallBack() {
	remoteErr := errors.New("upstream 502")

	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(nil, remoteErr)
	s.cache.EXPECT().Read(gomock.Any(), gomock.Any()).Times(0)

	loader := s.newLoader(nil, nil)
	feed, err := loader.Refresh(context.Background(), "general")

	s.ErrorIs(err, remoteErr)
	s.Nil(feed)
	s.Nil(loader.Feed())
}

func (s *NewsLoaderTestSuite) TestRefresh_EmptyResult() {
	s.network.EXPECT().Online(gomock.Any()).Return(true)
	s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Status: "ok"}, nil)

	_, err := s.newLoader(nil, nil).Refresh(context.Background(), "general")

	s.ErrorIs(err, ErrEmptyResult)
}

func (s *NewsLoaderTestSuite) TestRefresh_BypassesCooldownAndOverwritesCache() {
	ctx := context.Background()
	first := headlines("https://a")
	second := headlines("https://b")

	s.network.EXPECT().Online(gomock.Any()).Return(true).Times(2)
	gomock.InOrder(
		s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Articles: first}, nil),
		s.source.EXPECT().TopHeadlines(gomock.Any(), "us", "general").Return(&domain.Page{Articles: second}, nil),
	)
	s.cache.EXPECT().Write(gomock.Any(), first, "general", gomock.Any()).Return(true)
	s.cache.EXPECT().Write(gomock.Any(), second, "general", gomock.Any()).Return(true)
	s.memory.EXPECT().Invalidate("general").Times(2)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed")).Times(2)

	loader := s.newLoader(s.memory, s.publisher)

	_, err := loader.Load(ctx, "general")
	s.Require().NoError(err)
	loader.Wait()

	feed, err := loader.Refresh(ctx, "general")
	s.Require().NoError(err)
	s.Equal(domain.StatusLive, feed.Status)
	s.Equal(second, feed.Articles)
	s.Same(feed, loader.Feed())
}

func (s *NewsLoaderTestSuite) TestLoad_MemoryEntryCappedAtEarliestExpiration() {
	ctx := context.Background()
	now := s.clock.Now()
	stored := rows("general", headlines("https://a", "https://b"))
	stored[0].Expiration = now.Add(10 * time.Minute).UnixMilli()
	stored[1].Expiration = now.Add(2 * time.Minute).UnixMilli()

	s.network.EXPECT().Online(gomock.Any()).Return(false)
	s.memory.EXPECT().Get("general").Return(nil, false)
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(stored, nil)
	s.memory.EXPECT().SetUntil("general", gomock.Any(), now.Add(2*time.Minute))

	_, err := s.newLoader(s.memory, nil).Load(ctx, "general")
	s.Require().NoError(err)
}

func (s *NewsLoaderTestSuite) TestLoad_MemoryLayerNeverServesExpiredRows() {
	ctx := context.Background()

	backend := memstore.New(nil, s.logger)
	gate := store.NewGate()
	s.Require().NoError(gate.Open(ctx, backend, s.logger))

	cacheStore := store.NewCacheStore(backend, gate, s.logger, store.WithClock(s.clock.Now))
	mem := memcache.New[[]domain.Article](memcache.DefaultMaxEntries, 5*time.Minute, memcache.WithClock(s.clock.Now))

	s.network.EXPECT().Online(gomock.Any()).Return(false).AnyTimes()

	loader := NewNewsLoader(s.source, cacheStore, mem, s.network, nil, s.logger, s.cfg, WithClock(s.clock.Now))

	articles := headlines("https://a", "https://b", "https://c")
	s.Require().True(cacheStore.Write(ctx, articles, "sports", time.Minute))

	feed, err := loader.Load(ctx, "sports")
	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Len(feed.Articles, 3)

	s.clock.Advance(30 * time.Second)
	feed, err = loader.Load(ctx, "sports")
	s.Require().NoError(err)
	s.Len(feed.Articles, 3)

	// past the rows' expiration but well inside the memory TTL
	s.clock.Advance(90 * time.Second)
	feed, err = loader.Load(ctx, "sports")
	s.Require().NoError(err)
	s.Equal(domain.StatusEmpty, feed.Status)
	s.Empty(feed.Articles)
	s.Zero(backend.ArticleCount("sports"))
}

func (s *NewsLoaderTestSuite) TestClearCache_PurgesMemoryLayer() {
	s.memory.EXPECT().Purge()
	s.cache.EXPECT().ClearAll(gomock.Any()).Return(true)

	s.True(s.newLoader(s.memory, nil).ClearCache(context.Background()))
}

func (s *NewsLoaderTestSuite) TestClearCache_WithoutMemoryLayer() {
	s.cache.EXPECT().ClearAll(gomock.Any()).Return(false)

	s.False(s.newLoader(nil, nil).ClearCache(context.Background()))
}

func (s *NewsLoaderTestSuite) TestRefresh_RefusalDoesNotDebounceNextLoad() {
	ctx := context.Background()
	cached := headlines("https://a")

	s.network.EXPECT().Online(gomock.Any()).Return(false).Times(2)
	s.source.EXPECT().TopHeadlines(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	s.cache.EXPECT().Read(gomock.Any(), "general").Return(rows("general", cached), nil)

	loader := s.newLoader(nil, nil)

	_, err := loader.Refresh(ctx, "general")
	s.Require().ErrorIs(err, ErrOffline)
	s.False(loader.Loading())

	feed, err := loader.Load(ctx, "general")
	s.Require().NoError(err)
	s.Equal(domain.StatusCached, feed.Status)
	s.Equal(cached, feed.Articles)
}
