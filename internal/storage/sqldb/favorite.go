package sqldb

import (
	"context"

	"github.com/jmoiron/sqlx"

	"news_cache/internal/domain"
)

func (b *Backend) UpsertFavorite(ctx context.Context, favorite *domain.FavoriteArticle) error {
	exec, err := b.executor(ctx)
	if err != nil {
		return err
	}

	source, err := encodeSource(favorite.Source)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO favorites (` + articleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			url_to_image = EXCLUDED.url_to_image,
			published_at = EXCLUDED.published_at,
			content = EXCLUDED.content,
			author = EXCLUDED.author,
			category = EXCLUDED.category,
			source = EXCLUDED.source,
			timestamp = EXCLUDED.timestamp`

	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		favorite.ID(),
		favorite.Title,
		favorite.Description,
		favorite.URL,
		favorite.URLToImage,
		favorite.PublishedAt,
		favorite.Content,
		favorite.Author,
		favorite.Category,
		source,
		favorite.Timestamp,
	)
	return err
}

func (b *Backend) DeleteFavorite(ctx context.Context, id string) (bool, error) {
	exec, err := b.executor(ctx)
	if err != nil {
		return false, err
	}

	res, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM favorites WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) HasFavorite(ctx context.Context, id string) (bool, error) {
	exec, err := b.executor(ctx)
	if err != nil {
		return false, err
	}

	var count int
	err = sqlx.GetContext(ctx, exec, &count, exec.Rebind(`SELECT COUNT(*) FROM favorites WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (b *Backend) QueryFavorites(ctx context.Context) ([]domain.FavoriteArticle, error) {
	exec, err := b.executor(ctx)
	if err != nil {
		return nil, err
	}

	var rows []articleRow
	query := `SELECT ` + articleColumns + ` FROM favorites ORDER BY timestamp DESC, id`
	if err := sqlx.SelectContext(ctx, exec, &rows, query); err != nil {
		return nil, err
	}

	result := make([]domain.FavoriteArticle, 0, len(rows))
	for _, r := range rows {
		a, err := r.article()
		if err != nil {
			b.logger.Warn("skipping favorite", "id", r.ID, "error", err)
			continue
		}
		result = append(result, domain.FavoriteArticle{
			Article:   a,
			Category:  r.Category,
			Timestamp: r.Timestamp,
		})
	}
	return result, nil
}
