package leafprefs

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// PreferenceOption configures a Preference at construction.
type PreferenceOption func(*Preference)

// WithDefault sets the value returned while nothing is stored.
func WithDefault(v Value) PreferenceOption {
	return func(p *Preference) {
		p.defaultValue = v
		p.hasDefault = true
	}
}

// WithDescription sets the user-facing description.
func WithDescription(description string) PreferenceOption {
	return func(p *Preference) {
		p.description = description
	}
}

// OnSet registers a callback invoked with every change notification for the
// preference, including the ones this process published itself.
func OnSet(fn func(Value)) PreferenceOption {
	return func(p *Preference) {
		p.onSet = fn
	}
}

// Preference is a single named setting stored under id in container.
type Preference struct {
	manager *Manager

	id           string
	name         string
	description  string
	kind         Kind
	container    string
	defaultValue Value
	hasDefault   bool
	onSet        func(Value)

	closeOnce sync.Once
	sub       Subscription
}

// NewPreference declares a preference and subscribes to its change channel.
func (m *Manager) NewPreference(id, name string, kind Kind, container string, opts ...PreferenceOption) *Preference {
	p := &Preference{
		manager:   m,
		id:        id,
		name:      name,
		kind:      kind,
		container: container,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.sub = m.subscribe(id, p.handleChange)
	return p
}

func (p *Preference) handleChange(_, payload string) {
	if p.onSet == nil {
		return
	}
	p.onSet(Decode(payload))
}

// ID returns the preference id.
func (p *Preference) ID() string { return p.id }

// Name returns the display name.
func (p *Preference) Name() string { return p.name }

// Description returns the description, which may be empty.
func (p *Preference) Description() string { return p.description }

// Kind returns the declared kind.
func (p *Preference) Kind() Kind { return p.kind }

// Container returns the namespace the preference is stored in.
func (p *Preference) Container() string { return p.container }

// Default returns the declared default and whether one was declared.
func (p *Preference) Default() (Value, bool) { return p.defaultValue, p.hasDefault }

// Value returns the stored value, falling back to the declared default.
// ok is false when neither exists.
func (p *Preference) Value(ctx context.Context) (Value, bool) {
	if v, ok := p.manager.ValueForKey(ctx, p.id, p.container); ok {
		return v, true
	}
	return p.defaultValue, p.hasDefault
}

// SetValue stores v and broadcasts it on the preference channel. Setting the
// value already in effect does nothing.
func (p *Preference) SetValue(ctx context.Context, v Value) {
	token := v.Encode()
	if current, ok := p.Value(ctx); ok && current.Encode() == token {
		return
	}

	p.manager.SaveValue(ctx, v, p.id, p.container)
	p.manager.publish(ctx, p.id, token)
}

// Equal reports whether both preferences share an id.
func (p *Preference) Equal(other *Preference) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.id == other.id
}

// Hash combines id, name and description.
func (p *Preference) Hash() uint64 {
	return hashFields(p.id, p.name, p.description)
}

// Close releases the change subscription.
func (p *Preference) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.sub != nil {
			err = p.sub.Unsubscribe()
		}
	})
	return err
}

func hashFields(fields ...string) uint64 {
	d := xxhash.New()
	for _, f := range fields {
		_, _ = d.WriteString(f)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
