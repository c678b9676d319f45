package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"news_cache/internal/domain"
)

type SettingsStore struct {
	backend Backend
	gate    *Gate
	logger  *slog.Logger
}

func NewSettingsStore(backend Backend, gate *Gate, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{
		backend: backend,
		gate:    gate,
		logger:  logger.With("component", "settings_store"),
	}
}

// Save stores value under id. Strings are kept verbatim, anything else is
// JSON-encoded.
func (s *SettingsStore) Save(ctx context.Context, id string, value any) bool {
	var encoded string
	switch v := value.(type) {
	case string:
		encoded = v
	case []byte:
		encoded = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("failed to encode setting", "id", id, "error", err)
			return false
		}
		encoded = string(data)
	}

	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return false
	}

	if err := s.backend.PutSetting(ctx, &domain.Setting{ID: id, Value: encoded}); err != nil {
		s.logger.Error("failed to save setting", "id", id, "error", err)
		return false
	}
	return true
}

// Get returns the raw stored value and whether it exists.
func (s *SettingsStore) Get(ctx context.Context, id string) (string, bool) {
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Error("backend not ready", "error", err)
		return "", false
	}

	setting, err := s.backend.GetSetting(ctx, id)
	if err != nil {
		s.logger.Error("failed to read setting", "id", id, "error", err)
		return "", false
	}
	if setting == nil {
		return "", false
	}
	return setting.Value, true
}

// Decode JSON-decodes the stored value into dest.
func (s *SettingsStore) Decode(ctx context.Context, id string, dest any) bool {
	raw, ok := s.Get(ctx, id)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn("setting is not valid json", "id", id, "error", err)
		return false
	}
	return true
}
