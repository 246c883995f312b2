package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Set names used by backends.
const (
	KnownSet = "known_posts"
	SentSet  = "sent_posts"
)

// ErrCorrupt is wrapped by backends when persisted data cannot be parsed.
var ErrCorrupt = errors.New("state: corrupt data")

// Backend persists named ID sets.
type Backend interface {
	// Load returns the IDs saved under name, or nil, nil when nothing was saved.
	Load(ctx context.Context, name string) ([]string, error)
	// Save replaces the IDs stored under name.
	Save(ctx context.Context, name string, ids []string) error
	Close() error
}

// Store owns the Known and Sent sets and writes them through a Backend.
// It performs no locking; the owner serializes mutation batches.
type Store struct {
	Known *Set
	Sent  *Set

	backend Backend
	log     zerolog.Logger
}

// Open loads both sets from backend. Missing or corrupt data yields an
// empty set and a warning. Any other load failure is returned, so committed
// history is never overwritten by a partial in-memory set.
func Open(ctx context.Context, backend Backend, log zerolog.Logger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("state: backend is required")
	}

	s := &Store{backend: backend, log: log}
	var err error
	if s.Known, err = s.load(ctx, KnownSet); err != nil {
		return nil, err
	}
	if s.Sent, err = s.load(ctx, SentSet); err != nil {
		return nil, err
	}

	log.Debug().Int("known", s.Known.Len()).Int("sent", s.Sent.Len()).Msg("state loaded")
	return s, nil
}

func (s *Store) load(ctx context.Context, name string) (*Set, error) {
	ids, err := s.backend.Load(ctx, name)
	switch {
	case errors.Is(err, ErrCorrupt):
		s.log.Warn().Err(err).Str("set", name).Msg("persisted set is corrupt, starting empty")
		return NewSet(), nil
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return NewSet(ids...), nil
}

// Flush rewrites both sets in full.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.backend.Save(ctx, KnownSet, s.Known.IDs()); err != nil {
		return fmt.Errorf("save %s: %w", KnownSet, err)
	}
	if err := s.backend.Save(ctx, SentSet, s.Sent.IDs()); err != nil {
		return fmt.Errorf("save %s: %w", SentSet, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
