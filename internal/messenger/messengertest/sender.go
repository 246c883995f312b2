// Package messengertest provides an in-memory messenger.Sender for tests.
package messengertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/signalrelay/internal/messenger"
)

// Call records one send.
type Call struct {
	Dest       string
	Text       string
	Attachment *messenger.Attachment
	Quoted     messenger.MessageRef
}

// Sender records sends and fails on demand. Configure the exported fields
// before first use.
type Sender struct {
	// TextErr fails every text send.
	TextErr error
	// DestErr fails every send to a destination.
	DestErr map[string]error
	// KindErr fails attachment sends of a kind.
	KindErr map[messenger.AttachmentKind]error
	// Delay is slept before each send, honoring ctx.
	Delay time.Duration

	mu    sync.Mutex
	calls []Call
	seq   int
}

// SendText records a text send.
func (s *Sender) SendText(ctx context.Context, dest, text string) (messenger.MessageRef, error) {
	if err := s.wait(ctx); err != nil {
		return messenger.MessageRef{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Dest: dest, Text: text})

	if err := s.DestErr[dest]; err != nil {
		return messenger.MessageRef{}, err
	}
	if s.TextErr != nil {
		return messenger.MessageRef{}, s.TextErr
	}
	s.seq++
	return messenger.MessageRef{ID: fmt.Sprintf("msg-%d", s.seq), Destination: dest}, nil
}

// SendAttachment records an attachment send.
func (s *Sender) SendAttachment(ctx context.Context, dest string, a messenger.Attachment, quoted messenger.MessageRef) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	att := a
	s.calls = append(s.calls, Call{Dest: dest, Attachment: &att, Quoted: quoted})

	if err := s.DestErr[dest]; err != nil {
		return err
	}
	return s.KindErr[a.Kind]
}

func (s *Sender) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Calls returns every recorded send in order.
func (s *Sender) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Texts returns only the text sends.
func (s *Sender) Texts() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Attachment == nil {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
