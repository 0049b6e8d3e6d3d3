package discovery

import (
	"context"
	"time"
)

// Item is one candidate parsed from a listing page.
type Item struct {
	ID          string
	Title       string
	PublishedAt time.Time
	Rating      float64
	SourceRef   string
	Thumbnail   string
	Duration    string
}

// Page is the result of fetching one listing page.
type Page struct {
	Token   string
	URL     string
	Items   []Item
	Skipped int
	Next    string
}

// Source yields listing pages. Errors carry a services marker so callers
// can tell transient failures from fatal ones.
type Source interface {
	FetchPage(ctx context.Context, token string) (Page, error)
}
