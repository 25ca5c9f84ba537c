// Package feed aggregates RSS/Atom sources into digest items.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"mtbot/internal/digest"
	logx "mtbot/pkg/logx"
)

// Source is one configured feed plus its filtering rules.
type Source struct {
	Name     string
	URL      string
	Category digest.Category
	Emoji    string
	// Keywords filter items by title; empty means take everything.
	Keywords []string
	// Limit caps items taken per fetch (default 10).
	Limit int
}

const defaultLimit = 10

// Service fetches all configured sources concurrently and returns their
// items in configuration order, so the rendered digest is stable.
type Service struct {
	sources []Source
	client  *http.Client
	log     logx.Logger
}

func New(sources []Source, timeout time.Duration, log logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		sources: sources,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Fetch pulls every source. One broken feed only costs its own items; the
// error return is non-nil only when every source failed.
func (s *Service) Fetch(ctx context.Context) ([]digest.Item, error) {
	if len(s.sources) == 0 {
		return nil, nil
	}

	results := make([][]digest.Item, len(s.sources))
	errs := make([]error, len(s.sources))

	var wg sync.WaitGroup
	for i := range s.sources {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.fetchOne(ctx, s.sources[i])
		}(i)
	}
	wg.Wait()

	var out []digest.Item
	failed := 0
	for i := range s.sources {
		if errs[i] != nil {
			failed++
			s.log.Warn("feed fetch failed",
				logx.String("source", s.sources[i].Name),
				logx.Err(errs[i]))
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == len(s.sources) {
		return nil, fmt.Errorf("all %d feeds failed: %w", failed, errors.Join(errs...))
	}
	return out, nil
}

func (s *Service) fetchOne(ctx context.Context, src Source) ([]digest.Item, error) {
	parser := gofeed.NewParser()
	parser.Client = s.client

	f, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, err
	}

	limit := src.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var items []digest.Item
	for _, entry := range f.Items {
		if len(items) >= limit {
			break
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			continue
		}
		if !matchKeywords(title, src.Keywords) {
			continue
		}
		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}
		items = append(items, digest.Item{
			ID:        digest.ItemID(title),
			Title:     title,
			URL:       strings.TrimSpace(entry.Link),
			Source:    src.Name,
			Emoji:     src.Emoji,
			Category:  src.Category,
			Published: published,
		})
	}
	return items, nil
}

// matchKeywords does a case-insensitive substring match of any keyword
// against the title.
func matchKeywords(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
