// Package storage provides the key-value slots the calendar state is
// persisted to. Each slot holds one JSON document that is overwritten
// wholesale on every save.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Slot keys shared by every backend.
const (
	EventsKey    = "journey-calendar-events"
	CalendarsKey = "journey-calendar-calendars"
)

// ErrNotFound is returned by Load when the slot has never been written.
var ErrNotFound = errors.New("storage: slot not found")

// Backend loads and saves opaque slot payloads.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Options selects and configures a backend.
type Options struct {
	// Driver is "file", "redis" or "memory".
	Driver   string
	Dir      string
	RedisURL string
	Prefix   string
}

// Open builds the backend described by opts. The returned close function
// releases network resources and is never nil.
func Open(ctx context.Context, opts Options) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(opts.Driver) {
	case "", "file":
		b, err := NewFileBackend(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case "redis":
		b, err := NewRedisBackend(ctx, opts.RedisURL, opts.Prefix)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	case "memory":
		return NewMemoryBackend(), noop, nil
	default:
		return nil, noop, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
