package sqldb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"news_cache/internal/domain"
)

// GetSetting returns nil when id has never been written.
func (b *Backend) GetSetting(ctx context.Context, id string) (*domain.Setting, error) {
	exec, err := b.executor(ctx)
	if err != nil {
		return nil, err
	}

	var setting domain.Setting
	err = sqlx.GetContext(ctx, exec, &setting, exec.Rebind(`SELECT id, value FROM settings WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (b *Backend) PutSetting(ctx context.Context, setting *domain.Setting) error {
	exec, err := b.executor(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO settings (id, value)
		VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET
			value = EXCLUDED.value`

	_, err = exec.ExecContext(ctx, exec.Rebind(query), setting.ID, setting.Value)
	return err
}
