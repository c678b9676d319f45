package memory

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"news_cache/internal/domain"
)

// Mirror is the persistent key/value slot store behind the fallback backend.
// *diskv.Diskv satisfies it.
type Mirror interface {
	Read(key string) ([]byte, error)
	Write(key string, val []byte) error
	Erase(key string) error
	KeysPrefix(prefix string, cancel <-chan struct{}) <-chan string
}

const (
	newsSlotPrefix = "news_"
	favoritesSlot  = "favorites"
	settingsSlot   = "settings"
)

// NewDiskMirror returns a mirror storing one file per slot under dir.
func NewDiskMirror(dir string) *diskv.Diskv {
	return diskv.New(diskv.Options{
		BasePath:     dir,
		CacheSizeMax: 1 << 20,
	})
}

// newsSlot is the persisted form of one category.
type newsSlot struct {
	Timestamp  int64                  `json:"timestamp"`
	Expiration int64                  `json:"expiration"`
	Data       []domain.CachedArticle `json:"data"`
}

func newsSlotKey(category string) string {
	return newsSlotPrefix + url.PathEscape(category)
}

func isNewsSlot(key string) bool {
	return strings.HasPrefix(key, newsSlotPrefix)
}

func encodeNewsSlot(rows []domain.CachedArticle) ([]byte, error) {
	slot := newsSlot{Data: rows}
	for _, r := range rows {
		slot.Timestamp = max(slot.Timestamp, r.Timestamp)
		slot.Expiration = max(slot.Expiration, r.Expiration)
	}
	return json.Marshal(slot)
}

func decodeNewsSlot(data []byte) ([]domain.CachedArticle, error) {
	var slot newsSlot
	if err := json.Unmarshal(data, &slot); err != nil {
		return nil, err
	}
	return slot.Data, nil
}
