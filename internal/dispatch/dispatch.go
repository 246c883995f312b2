// Package dispatch delivers one post to one destination: the formatted text
// first, then any media parts as replies to it.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/signalrelay/internal/format"
	"github.com/ppiankov/signalrelay/internal/messenger"
	"github.com/ppiankov/signalrelay/internal/metrics"
	"github.com/ppiankov/signalrelay/internal/store"
	"github.com/ppiankov/signalrelay/internal/upstream"
)

const (
	DefaultAssetBaseURL = "https://s3.us-east-2.amazonaws.com/waqarzaka.net/waqarzakaMainContent/uploadedImages"
	DefaultSendTimeout  = 60 * time.Second

	ImageCaption = "Image for this signal."
	VideoCaption = "Video for this signal."
	PDFMIMEType  = "application/pdf"
)

// Part names one message of a delivery.
type Part string

const (
	PartText  Part = "text"
	PartImage Part = "image"
	PartVideo Part = "video"
	PartPDF   Part = "pdf"
)

// Recorder receives every part outcome, e.g. for delivery history.
type Recorder interface {
	RecordDelivery(ctx context.Context, d store.Delivery) error
}

// PartResult is the outcome of one attachment send.
type PartResult struct {
	Part Part
	Err  error
}

// Outcome summarizes a delivery of one post to one destination.
type Outcome struct {
	PostID      string
	Destination string
	Ref         messenger.MessageRef
	// Text is the error from the lead text send. When set, no attachment
	// was attempted.
	Text        error
	Attachments []PartResult
}

// OK reports whether every attempted part succeeded.
func (o Outcome) OK() bool {
	return o.Text == nil && len(o.Failed()) == 0
}

// Failed lists the parts that failed.
func (o Outcome) Failed() []Part {
	var out []Part
	if o.Text != nil {
		out = append(out, PartText)
	}
	for _, r := range o.Attachments {
		if r.Err != nil {
			out = append(out, r.Part)
		}
	}
	return out
}

// Options tune a Dispatcher. Zero values select the defaults.
type Options struct {
	AssetBaseURL string
	SendTimeout  time.Duration
	Recorder     Recorder
	Metrics      *metrics.Metrics
}

// Dispatcher fans a post out as text plus media parts.
type Dispatcher struct {
	sender      messenger.Sender
	formatter   *format.Formatter
	assetBase   string
	sendTimeout time.Duration
	recorder    Recorder
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// New creates a dispatcher.
func New(sender messenger.Sender, formatter *format.Formatter, opts Options, log zerolog.Logger) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("dispatch: sender is required")
	}
	if formatter == nil {
		return nil, errors.New("dispatch: formatter is required")
	}

	base := strings.TrimRight(strings.TrimSpace(opts.AssetBaseURL), "/")
	if base == "" {
		base = DefaultAssetBaseURL
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	return &Dispatcher{
		sender:      sender,
		formatter:   formatter,
		assetBase:   base,
		sendTimeout: timeout,
		recorder:    opts.Recorder,
		metrics:     opts.Metrics,
		log:         log,
		now:         time.Now,
	}, nil
}

// Attachment pairs a part with what is sent for it.
type Attachment struct {
	Part       Part
	Attachment messenger.Attachment
}

// Attachments lists the media parts of post in send order: image, video,
// PDF.
func (d *Dispatcher) Attachments(post upstream.Post) []Attachment {
	var out []Attachment
	if u := d.ImageURL(post); u != "" {
		out = append(out, Attachment{Part: PartImage, Attachment: messenger.Attachment{
			Kind:    messenger.KindImage,
			URL:     u,
			Caption: ImageCaption,
		}})
	}
	if post.Video != "" {
		out = append(out, Attachment{Part: PartVideo, Attachment: messenger.Attachment{
			Kind:    messenger.KindVideo,
			URL:     post.Video,
			Caption: VideoCaption,
		}})
	}
	if post.PDFFile != "" {
		out = append(out, Attachment{Part: PartPDF, Attachment: messenger.Attachment{
			Kind:     messenger.KindDocument,
			URL:      post.PDFFile,
			FileName: "signal-" + post.ID + ".pdf",
			MIMEType: PDFMIMEType,
		}})
	}
	return out
}

// ImageURL returns the image location for post, or "" when it has none.
func (d *Dispatcher) ImageURL(post upstream.Post) string {
	if post.ImageURL != "" {
		return post.ImageURL
	}
	if post.ImageTitle == "" || post.ImageFormat == "" {
		return ""
	}
	return d.assetBase + "/img_" + post.ImageTitle + "." + post.ImageFormat
}

// Deliver sends post to dest. A failed text send aborts the delivery; a
// failed attachment is recorded and the remaining parts are still sent.
func (d *Dispatcher) Deliver(ctx context.Context, dest string, post upstream.Post) Outcome {
	log := d.log.With().Str("post_id", post.ID).Str("destination", dest).Logger()
	out := Outcome{PostID: post.ID, Destination: dest}

	ref, err := d.sendText(ctx, dest, d.formatter.Post(post))
	d.record(ctx, post.ID, dest, PartText, err)
	if err != nil {
		log.Error().Err(err).Str("part", string(PartText)).Msg("send failed, skipping attachments")
		out.Text = err
		return out
	}
	out.Ref = ref

	for _, a := range d.Attachments(post) {
		err := d.sendAttachment(ctx, dest, a.Attachment, ref)
		d.record(ctx, post.ID, dest, a.Part, err)
		if err != nil {
			log.Error().Err(err).Str("part", string(a.Part)).Str("url", a.Attachment.URL).Msg("send failed")
		}
		out.Attachments = append(out.Attachments, PartResult{Part: a.Part, Err: err})
	}

	log.Debug().Int("attachments", len(out.Attachments)).Bool("ok", out.OK()).Msg("delivered")
	return out
}

func (d *Dispatcher) sendText(ctx context.Context, dest, text string) (messenger.MessageRef, error) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.SendText(ctx, dest, text)
}

func (d *Dispatcher) sendAttachment(ctx context.Context, dest string, a messenger.Attachment, quoted messenger.MessageRef) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.SendAttachment(ctx, dest, a, quoted)
}

func (d *Dispatcher) record(ctx context.Context, postID, dest string, part Part, err error) {
	d.metrics.Send(string(part), err)
	if d.recorder == nil {
		return
	}

	rec := store.Delivery{
		PostID:      postID,
		Destination: dest,
		Part:        string(part),
		OK:          err == nil,
		At:          d.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if rerr := d.recorder.RecordDelivery(ctx, rec); rerr != nil {
		d.log.Warn().Err(rerr).Str("post_id", postID).Msg("record delivery failed")
	}
}
