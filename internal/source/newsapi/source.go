package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"news_cache/internal/domain"
)

const SourceID = "newsapi"

// Config holds NewsAPI client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches top headlines from NewsAPI.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new NewsAPI source.
func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		pageSize:       cfg.PageSize,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// TopHeadlines fetches one page of headlines for country and category.
func (s *Source) TopHeadlines(ctx context.Context, country, category string) (*domain.Page, error) {
	query := url.Values{}
	query.Set("country", country)
	query.Set("category", category)
	query.Set("pageSize", strconv.Itoa(s.pageSize))
	endpoint := s.baseURL + "?" + query.Encode()

	var resp *APIResponse
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err = s.doRequest(ctx, endpoint)
		if err == nil {
			break
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return nil, err
		}

		if attempt == s.maxAttempts {
			return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	s.logger.Debug("fetched headlines",
		"country", country,
		"category", category,
		"articles", len(resp.Articles),
		"total", resp.TotalResults,
	)

	return &domain.Page{
		Status:       resp.Status,
		TotalResults: resp.TotalResults,
		Articles:     transform(resp.Articles),
	}, nil
}

func (s *Source) doRequest(ctx context.Context, endpoint string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "NewsCache/1.0")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var apiResp APIResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp)

	if apiResp.Status == "error" {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: apiResp.Code, Message: apiResp.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}

	return &apiResp, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func transform(items []APIArticle) []domain.Article {
	articles := make([]domain.Article, 0, len(items))

	for _, a := range items {
		articles = append(articles, domain.Article{
			Source: domain.Source{
				ID:   deref(a.Source.ID),
				Name: a.Source.Name,
			},
			Author:      deref(a.Author),
			Title:       a.Title,
			Description: deref(a.Description),
			URL:         a.URL,
			URLToImage:  deref(a.URLToImage),
			PublishedAt: a.PublishedAt,
			Content:     deref(a.Content),
		})
	}

	return articles
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
