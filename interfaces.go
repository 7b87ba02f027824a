// Package leafprefs defines interfaces for storage, notification and logging used by leaves and hosts.
package leafprefs

import (
	"context"
)

// Storage defines the methods required for a preference storage backend.
// A container is a namespace holding one key -> token mapping.
type Storage interface {
	// Get returns the token stored under key, or ErrNotFound.
	Get(ctx context.Context, container, key string) (string, error)
	// SetAll merges values into the container, leaving other keys untouched.
	SetAll(ctx context.Context, container string, values map[string]string) error
	// LoadAll returns the whole container, or nil when it holds no data.
	LoadAll(ctx context.Context, container string) (map[string]string, error)
	Close() error
}

// Handler receives a payload published on a channel.
type Handler func(channel, payload string)

// Subscription is a registered handler. It must be released with Unsubscribe.
type Subscription interface {
	Channel() string
	Unsubscribe() error
}

// Bus is a string-keyed publish/subscribe channel shared between processes.
type Bus interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(channel string, handler Handler) (Subscription, error)
}

// Logger defines the methods required for logging within leafprefs.
// The args should be alternating key-value pairs, similar to slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
