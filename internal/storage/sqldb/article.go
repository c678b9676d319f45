package sqldb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"news_cache/internal/domain"
)

// articleColumns is shared by the news and favorites tables.
const articleColumns = `id, title, description, url, url_to_image, published_at, content, author, category, source, timestamp`

type articleRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	URL         string `db:"url"`
	URLToImage  string `db:"url_to_image"`
	PublishedAt string `db:"published_at"`
	Content     string `db:"content"`
	Author      string `db:"author"`
	Category    string `db:"category"`
	Source      string `db:"source"`
	Timestamp   int64  `db:"timestamp"`
}

type newsRow struct {
	articleRow
	Expiration int64 `db:"expiration"`
}

func (r articleRow) article() (domain.Article, error) {
	source, err := decodeSource(r.Source)
	if err != nil {
		return domain.Article{}, err
	}
	return domain.Article{
		Source:      source,
		Author:      r.Author,
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
		URLToImage:  r.URLToImage,
		PublishedAt: r.PublishedAt,
		Content:     r.Content,
	}, nil
}

func encodeSource(s domain.Source) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode source: %w", err)
	}
	return string(data), nil
}

func decodeSource(raw string) (domain.Source, error) {
	var s domain.Source
	if raw == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("decode source: %w", err)
	}
	return s, nil
}

func (b *Backend) UpsertArticle(ctx context.Context, article *domain.CachedArticle) error {
	exec, err := b.executor(ctx)
	if err != nil {
		return err
	}

	source, err := encodeSource(article.Source)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO news (` + articleColumns + `, expiration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
			timestamp = EXCLUDED.timestamp,
			expiration = EXCLUDED.expiration`

	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		article.ID(),
		article.Title,
		article.Description,
		article.URL,
		article.URLToImage,
		article.PublishedAt,
		article.Content,
		article.Author,
		article.Category,
		source,
		article.Timestamp,
		article.Expiration,
	)
	return err
}

// QueryArticles returns live rows of category ordered by published_at
// descending. Rows whose source cannot be decoded are skipped.
func (b *Backend) QueryArticles(ctx context.Context, category string, now int64) ([]domain.CachedArticle, error) {
	exec, err := b.executor(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + articleColumns + `, expiration
		FROM news
		WHERE category = ? AND expiration > ?
		ORDER BY published_at DESC, id`

	var rows []newsRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), category, now); err != nil {
		return nil, err
	}

	result := make([]domain.CachedArticle, 0, len(rows))
	for _, r := range rows {
		a, err := r.article()
		if err != nil {
			b.logger.Warn("skipping cached article", "id", r.ID, "error", err)
			continue
		}
		result = append(result, domain.CachedArticle{
			Article:    a,
			Category:   r.Category,
			Timestamp:  r.Timestamp,
			Expiration: r.Expiration,
		})
	}
	return result, nil
}

func (b *Backend) DeleteExpiredArticles(ctx context.Context, category string, now int64) (int64, error) {
	exec, err := b.executor(ctx)
	if err != nil {
		return 0, err
	}

	query := `DELETE FROM news WHERE expiration <= ?`
	args := []any{now}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}

	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *Backend) ClearArticles(ctx context.Context) error {
	exec, err := b.executor(ctx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `DELETE FROM news`)
	return err
}
