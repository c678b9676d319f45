package memory

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"sync"

	"news_cache/internal/domain"
)

// Backend is the fallback backend. The maps are the source of truth for the
// session; every mutation is mirrored best-effort so that a later process can
// restore the state.
type Backend struct {
	mirror Mirror
	logger *slog.Logger

	mu        sync.RWMutex
	opened    bool
	articles  map[string]domain.CachedArticle
	favorites map[string]domain.FavoriteArticle
	settings  map[string]string
}

// New returns a fallback backend. A nil mirror keeps everything in memory.
func New(mirror Mirror, logger *slog.Logger) *Backend {
	return &Backend{
		mirror:    mirror,
		logger:    logger.With("backend", "memory"),
		articles:  make(map[string]domain.CachedArticle),
		favorites: make(map[string]domain.FavoriteArticle),
		settings:  make(map[string]string),
	}
}

func (b *Backend) Kind() string {
	return "memory"
}

// Open restores the mirrored state once. Corrupt or missing slots are
// ignored.
func (b *Backend) Open(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened {
		return nil
	}
	b.opened = true

	if b.mirror == nil {
		return nil
	}

	restored := b.restoreArticles()
	b.restoreFavorites()
	b.restoreSettings()

	b.logger.Info("restored mirrored state",
		"articles", restored,
		"favorites", len(b.favorites),
		"settings", len(b.settings),
	)
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) UpsertArticle(_ context.Context, article *domain.CachedArticle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := article.ID()
	prev, existed := b.articles[id]
	b.articles[id] = *article

	b.persistCategory(article.Category)
	if existed && prev.Category != article.Category {
		b.persistCategory(prev.Category)
	}
	return nil
}

func (b *Backend) QueryArticles(_ context.Context, category string, now int64) ([]domain.CachedArticle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := make([]domain.CachedArticle, 0)
	for _, a := range b.articles {
		if a.Category == category && a.Expiration > now {
			rows = append(rows, a)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PublishedAt != rows[j].PublishedAt {
			return rows[i].PublishedAt > rows[j].PublishedAt
		}
		return rows[i].ID() < rows[j].ID()
	})
	return rows, nil
}

func (b *Backend) DeleteExpiredArticles(_ context.Context, category string, now int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	touched := make(map[string]struct{})
	var n int64
	for id, a := range b.articles {
		if category != "" && a.Category != category {
			continue
		}
		if a.Expiration <= now {
			delete(b.articles, id)
			touched[a.Category] = struct{}{}
			n++
		}
	}

	for c := range touched {
		b.persistCategory(c)
	}
	return n, nil
}

func (b *Backend) ClearArticles(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.articles = make(map[string]domain.CachedArticle)

	if b.mirror == nil {
		return nil
	}
	for _, key := range b.slotKeys() {
		if isNewsSlot(key) {
			b.erase(key)
		}
	}
	return nil
}

func (b *Backend) UpsertFavorite(_ context.Context, favorite *domain.FavoriteArticle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.favorites[favorite.ID()] = *favorite
	b.persistFavorites()
	return nil
}

func (b *Backend) DeleteFavorite(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.favorites[id]; !ok {
		return false, nil
	}
	delete(b.favorites, id)
	b.persistFavorites()
	return true, nil
}

func (b *Backend) HasFavorite(_ context.Context, id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.favorites[id]
	return ok, nil
}

func (b *Backend) QueryFavorites(_ context.Context) ([]domain.FavoriteArticle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.sortedFavorites(), nil
}

func (b *Backend) GetSetting(_ context.Context, id string) (*domain.Setting, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, ok := b.settings[id]
	if !ok {
		return nil, nil
	}
	return &domain.Setting{ID: id, Value: value}, nil
}

func (b *Backend) PutSetting(_ context.Context, setting *domain.Setting) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.settings[setting.ID] = setting.Value
	b.persistSettings()
	return nil
}

// ArticleCount returns the number of stored rows of category, dead or alive.
func (b *Backend) ArticleCount(category string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, a := range b.articles {
		if a.Category == category {
			n++
		}
	}
	return n
}

func (b *Backend) sortedFavorites() []domain.FavoriteArticle {
	out := make([]domain.FavoriteArticle, 0, len(b.favorites))
	for _, f := range b.favorites {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// persistCategory rewrites the slot of category. Callers hold b.mu.
func (b *Backend) persistCategory(category string) {
	if b.mirror == nil {
		return
	}

	var rows []domain.CachedArticle
	for _, a := range b.articles {
		if a.Category == category {
			rows = append(rows, a)
		}
	}

	key := newsSlotKey(category)
	if len(rows) == 0 {
		b.erase(key)
		return
	}

	data, err := encodeNewsSlot(rows)
	if err != nil {
		b.logger.Warn("failed to encode mirror slot", "slot", key, "error", err)
		return
	}
	b.write(key, data)
}

func (b *Backend) persistFavorites() {
	if b.mirror == nil {
		return
	}
	data, err := json.Marshal(b.sortedFavorites())
	if err != nil {
		b.logger.Warn("failed to encode favorites", "error", err)
		return
	}
	b.write(favoritesSlot, data)
}

func (b *Backend) persistSettings() {
	if b.mirror == nil {
		return
	}
	data, err := json.Marshal(b.settings)
	if err != nil {
		b.logger.Warn("failed to encode settings", "error", err)
		return
	}
	b.write(settingsSlot, data)
}

func (b *Backend) write(key string, data []byte) {
	if err := b.mirror.Write(key, data); err != nil {
		b.logger.Warn("failed to write mirror slot", "slot", key, "error", err)
	}
}

func (b *Backend) erase(key string) {
	if err := b.mirror.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.logger.Warn("failed to erase mirror slot", "slot", key, "error", err)
	}
}

func (b *Backend) slotKeys() []string {
	var keys []string
	for key := range b.mirror.KeysPrefix("", nil) {
		keys = append(keys, key)
	}
	return keys
}

func (b *Backend) restoreArticles() int {
	n := 0
	for _, key := range b.slotKeys() {
		if !isNewsSlot(key) {
			continue
		}

		data, err := b.mirror.Read(key)
		if err != nil {
			b.logger.Warn("failed to read mirror slot", "slot", key, "error", err)
			continue
		}
		rows, err := decodeNewsSlot(data)
		if err != nil {
			b.logger.Warn("ignoring corrupt mirror slot", "slot", key, "error", err)
			continue
		}

		for _, r := range rows {
			id := r.ID()
			if id == "" {
				continue
			}
			if prev, ok := b.articles[id]; ok && prev.Timestamp > r.Timestamp {
				continue
			}
			b.articles[id] = r
			n++
		}
	}
	return n
}

func (b *Backend) restoreFavorites() {
	data, err := b.mirror.Read(favoritesSlot)
	if err != nil {
		return
	}

	var favorites []domain.FavoriteArticle
	if err := json.Unmarshal(data, &favorites); err != nil {
		b.logger.Warn("ignoring corrupt mirror slot", "slot", favoritesSlot, "error", err)
		return
	}
	for _, f := range favorites {
		if f.ID() != "" {
			b.favorites[f.ID()] = f
		}
	}
}

func (b *Backend) restoreSettings() {
	data, err := b.mirror.Read(settingsSlot)
	if err != nil {
		return
	}

	var settings map[string]string
	if err := json.Unmarshal(data, &settings); err != nil {
		b.logger.Warn("ignoring corrupt mirror slot", "slot", settingsSlot, "error", err)
		return
	}
	for id, v := range settings {
		b.settings[id] = v
	}
}
