// Package messenger is the outbound chat capability: sending text and media
// to destination channels and listing the channels available.
package messenger

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned once the connection has been closed for good.
	ErrClosed = errors.New("messenger: connection closed")
	// ErrUnauthorized marks a rejected credential; it is never retried.
	ErrUnauthorized = errors.New("messenger: unauthorized")
)

// AttachmentKind selects how a media attachment is presented.
type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindVideo    AttachmentKind = "video"
	KindDocument AttachmentKind = "document"
)

// Attachment is a media item fetched from URL and posted to a destination.
type Attachment struct {
	Kind     AttachmentKind
	URL      string
	Caption  string
	FileName string
	MIMEType string
}

// MessageRef identifies a sent message so later sends can quote it.
type MessageRef struct {
	ID          string
	Destination string
}

// Destination is a chat channel that can receive messages.
type Destination struct {
	ID          string
	DisplayName string
}

// Sender delivers messages. Implementations are safe for concurrent use.
type Sender interface {
	SendText(ctx context.Context, dest, text string) (MessageRef, error)
	SendAttachment(ctx context.Context, dest string, a Attachment, quoted MessageRef) error
}

// Directory lists the destinations the account can post to.
type Directory interface {
	Destinations(ctx context.Context) ([]Destination, error)
}
