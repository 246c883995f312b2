package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

const (
	feedSourceName   = "feed"
	feedFetchTimeout = 30 * time.Second
	feedUserAgent    = "Mozilla/5.0 (compatible; signalrelay/1.0; +https://github.com/ppiankov/signalrelay)"
)

// FeedFetcher reads posts from an RSS/Atom feed.
type FeedFetcher struct {
	url     string
	timeout time.Duration
	log     zerolog.Logger
}

// NewFeed creates a feed fetcher for a single RSS/Atom URL.
func NewFeed(feedURL string, timeout time.Duration, log zerolog.Logger) (*FeedFetcher, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, errors.New("feed: url is required")
	}
	if timeout <= 0 {
		timeout = feedFetchTimeout
	}
	return &FeedFetcher{
		url:     feedURL,
		timeout: timeout,
		log:     log.With().Str("source", feedSourceName).Logger(),
	}, nil
}

func (f *FeedFetcher) Name() string {
	return feedSourceName
}

// feedTransport injects a User-Agent header into every request.
type feedTransport struct {
	base http.RoundTripper
}

func (t *feedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", feedUserAgent)
	return t.base.RoundTrip(req)
}

func (f *FeedFetcher) Fetch(ctx context.Context) ([]Post, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout:   f.timeout,
		Transport: &feedTransport{base: http.DefaultTransport},
	}
	feed, err := fp.ParseURLWithContext(f.url, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			f.log.Warn().Int("status", httpErr.StatusCode).Msg("Feed returned non-success status")
			return []Post{}, nil
		}
		return nil, fmt.Errorf("feed: fetch %s: %w", f.url, err)
	}

	return postsFromFeed(feed), nil
}

func postsFromFeed(feed *gofeed.Feed) []Post {
	posts := []Post{}
	for _, item := range feed.Items {
		id := itemID(item)
		if id == "" {
			continue
		}

		p := Post{
			ID:          id,
			Description: itemBody(item),
			CreatedAt:   itemCreatedAt(item),
		}
		if item.Image != nil && item.Image.URL != "" {
			p.ImageURL = item.Image.URL
		}
		for _, enc := range item.Enclosures {
			if enc == nil || enc.URL == "" {
				continue
			}
			switch {
			case strings.HasPrefix(enc.Type, "image/"):
				if p.ImageURL == "" {
					p.ImageURL = enc.URL
				}
			case strings.HasPrefix(enc.Type, "video/"):
				if p.Video == "" {
					p.Video = enc.URL
				}
			case enc.Type == "application/pdf":
				if p.PDFFile == "" {
					p.PDFFile = enc.URL
				}
			}
		}
		posts = append(posts, p)
	}
	return posts
}

func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func itemBody(item *gofeed.Item) string {
	body := item.Content
	if body == "" {
		body = item.Description
	}
	if item.Title != "" && !strings.Contains(body, item.Title) {
		body = "<p><strong>" + item.Title + "</strong></p>" + body
	}
	return body
}

func itemCreatedAt(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	default:
		return item.Published
	}
}
