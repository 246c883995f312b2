// Package mirror forwards messages from a secondary platform to the
// destination channels. There is no dedup and no persistence.
package mirror

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/signalrelay/internal/format"
	"github.com/ppiankov/signalrelay/internal/messenger"
	"github.com/ppiankov/signalrelay/internal/metrics"
	"github.com/ppiankov/signalrelay/internal/privacy"
)

const defaultSendTimeout = 60 * time.Second

// Message is one inbound message from a mirror source.
type Message struct {
	Source  string
	Channel string
	ID      string
	Text    string
	At      time.Time
}

// Handler is called for every inbound message.
type Handler func(ctx context.Context, msg Message)

// Source is an inbound subscription. Subscribe blocks until ctx ends (nil)
// or a fatal error occurs.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, h Handler) error
}

// Options tune a Relay.
type Options struct {
	Redactor    *privacy.Redactor
	SendTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Relay sends every non-empty inbound message to each destination.
type Relay struct {
	source      Source
	sender      messenger.Sender
	formatter   *format.Formatter
	dests       []string
	redactor    *privacy.Redactor
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// New creates a mirror relay.
func New(src Source, sender messenger.Sender, formatter *format.Formatter, dests []string, opts Options, log zerolog.Logger) (*Relay, error) {
	switch {
	case src == nil:
		return nil, errors.New("mirror: source is required")
	case sender == nil:
		return nil, errors.New("mirror: sender is required")
	case formatter == nil:
		return nil, errors.New("mirror: formatter is required")
	case len(dests) == 0:
		return nil, errors.New("mirror: at least one destination is required")
	}

	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	return &Relay{
		source:      src,
		sender:      sender,
		formatter:   formatter,
		dests:       append([]string(nil), dests...),
		redactor:    opts.Redactor,
		sendTimeout: timeout,
		metrics:     opts.Metrics,
		log:         log.With().Str("source", src.Name()).Logger(),
	}, nil
}

// Run subscribes to the source and forwards until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().Int("destinations", len(r.dests)).Msg("mirror listening")
	return r.source.Subscribe(ctx, r.Forward)
}

// Forward sends msg to every destination in order. Failures are logged per
// destination and never returned.
func (r *Relay) Forward(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		r.log.Debug().Str("msg_id", msg.ID).Msg("skipping empty message")
		return
	}

	redacted, n := r.redactor.Apply(text)
	if n > 0 {
		r.log.Debug().Str("msg_id", msg.ID).Int("redactions", n).Msg("redacted mirrored text")
	}
	text = redacted

	body := r.formatter.Mirror(text)
	for _, dest := range r.dests {
		err := r.send(ctx, dest, body)
		r.metrics.Mirror(err)
		if err != nil {
			r.log.Error().Err(err).Str("msg_id", msg.ID).Str("destination", dest).Msg("mirror send failed")
			continue
		}
		r.log.Debug().Str("msg_id", msg.ID).Str("destination", dest).Msg("mirrored")
	}
}

func (r *Relay) send(ctx context.Context, dest, body string) error {
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	_, err := r.sender.SendText(ctx, dest, body)
	return err
}
