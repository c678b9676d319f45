package newsapi

import "fmt"

// APIResponse is the NewsAPI top-headlines payload.
type APIResponse struct {
	Status       string       `json:"status"`
	TotalResults int          `json:"totalResults"`
	Articles     []APIArticle `json:"articles"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
}

type APIArticle struct {
	Source      APISource `json:"source"`
	Author      *string   `json:"author"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	URL         string    `json:"url"`
	URLToImage  *string   `json:"urlToImage"`
	PublishedAt string    `json:"publishedAt"`
	Content     *string   `json:"content"`
}

type APISource struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

// APIError is an error reported by the API itself (status "error").
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("newsapi %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether retrying can help.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
