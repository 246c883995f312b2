// Package upstream fetches posts from the content source the relay forwards.
package upstream

import "context"

// Post is one upstream content item. It is never mutated after fetch.
type Post struct {
	ID          string `json:"_id"`
	Description string `json:"description"` // HTML body
	CreatedAt   string `json:"createdAt"`   // ISO-8601 as sent by the API
	ImageTitle  string `json:"imageTitle,omitempty"`
	ImageFormat string `json:"imageFormat,omitempty"`
	Video       string `json:"video,omitempty"`
	PDFFile     string `json:"pdfFile,omitempty"`

	// ImageURL is set by sources that carry a full image URL instead of
	// the title/format pair. Takes precedence over the pair when non-empty.
	ImageURL string `json:"-"`
}

// HasImage reports whether the post carries an image reference.
func (p Post) HasImage() bool {
	return p.ImageURL != "" || (p.ImageTitle != "" && p.ImageFormat != "")
}

// Fetcher returns the current snapshot of posts.
//
// An empty result means "no new information this cycle", never "all posts
// were deleted". Errors are reserved for transport-level faults.
type Fetcher interface {
	// Name returns the source identifier (e.g. "api").
	Name() string

	// Fetch returns the current page of posts.
	Fetch(ctx context.Context) ([]Post, error)
}
