package leafprefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PreferenceFactory builds a preference for the container it is declared in.
type PreferenceFactory func(container string) *Preference

// GroupBuilder assembles a PreferenceGroup. Every With call appends; nothing is replaced.
type GroupBuilder struct {
	manager     *Manager
	id          string
	name        string
	description string
	container   string
	shownKey    string
	onShown     func(bool)
	preferences []*Preference
	errs        []error
}

// NewGroup starts a group of preferences stored in container.
func (m *Manager) NewGroup(id, name, container string) *GroupBuilder {
	return &GroupBuilder{
		manager:   m,
		id:        id,
		name:      name,
		container: container,
	}
}

// WithDescription sets the group description.
func (b *GroupBuilder) WithDescription(description string) *GroupBuilder {
	b.description = description
	return b
}

// WithPreference appends the preference produced by factory for the group's container.
func (b *GroupBuilder) WithPreference(factory PreferenceFactory) *GroupBuilder {
	p := factory(b.container)
	if p == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: group %q: factory returned no preference", ErrInvalidKey, b.id))
		return b
	}
	for _, existing := range b.preferences {
		if existing.Equal(p) {
			_ = p.Close()
			b.errs = append(b.errs, fmt.Errorf("%w: %q in group %q", ErrDuplicateKey, p.ID(), b.id))
			return b
		}
	}
	b.preferences = append(b.preferences, p)
	return b
}

// WithShownKey makes the group visible only while the bool preference key is true.
func (b *GroupBuilder) WithShownKey(key string) *GroupBuilder {
	b.shownKey = key
	return b
}

// OnShownChange registers an observer for visibility updates.
func (b *GroupBuilder) OnShownChange(fn func(bool)) *GroupBuilder {
	b.onShown = fn
	return b
}

// Build creates the group. A group with a shown key reads its initial
// visibility from storage and follows change notifications on that key.
func (b *GroupBuilder) Build(ctx context.Context) (*PreferenceGroup, error) {
	if len(b.errs) > 0 {
		b.closePreferences()
		return nil, errors.Join(b.errs...)
	}
	if err := ValidateKey(b.id); err != nil {
		b.closePreferences()
		return nil, fmt.Errorf("group: %w", err)
	}

	g := &PreferenceGroup{
		manager:     b.manager,
		id:          b.id,
		name:        b.name,
		description: b.description,
		container:   b.container,
		shownKey:    b.shownKey,
		onShown:     b.onShown,
	}
	if len(b.preferences) > 0 {
		g.preferences = append([]*Preference(nil), b.preferences...)
	}
	g.startGating(ctx)
	return g, nil
}

// closePreferences releases the members of a group that will not be built.
func (b *GroupBuilder) closePreferences() {
	for _, p := range b.preferences {
		_ = p.Close()
	}
}

// PreferenceGroup is an ordered set of preferences shown together, optionally
// gated on a bool preference.
type PreferenceGroup struct {
	manager     *Manager
	id          string
	name        string
	description string
	container   string
	preferences []*Preference
	shownKey    string
	onShown     func(bool)

	canShow   atomic.Bool
	sub       Subscription
	closeOnce sync.Once
}

func (g *PreferenceGroup) startGating(ctx context.Context) {
	if g.shownKey == "" {
		g.canShow.Store(true)
		return
	}

	if v, ok := g.manager.ValueForKey(ctx, g.shownKey, g.container); ok {
		shown, _ := v.Bool()
		g.canShow.Store(shown)
	}
	g.sub = g.manager.subscribe(g.shownKey, g.handleShownChange)
}

func (g *PreferenceGroup) handleShownChange(_, payload string) {
	shown, ok := Decode(payload).Bool()
	if !ok {
		return
	}
	g.canShow.Store(shown)
	if g.onShown != nil {
		g.onShown(shown)
	}
}

// ID returns the group id.
func (g *PreferenceGroup) ID() string { return g.id }

// Name returns the display name.
func (g *PreferenceGroup) Name() string { return g.name }

// Description returns the description, which may be empty.
func (g *PreferenceGroup) Description() string { return g.description }

// Container returns the namespace of the group's preferences.
func (g *PreferenceGroup) Container() string { return g.container }

// ShownKey returns the gating key, empty when the group is always shown.
func (g *PreferenceGroup) ShownKey() string { return g.shownKey }

// Preferences returns the member preferences in declaration order.
func (g *PreferenceGroup) Preferences() []*Preference {
	return append([]*Preference(nil), g.preferences...)
}

// CanShow reports whether the group is currently visible.
func (g *PreferenceGroup) CanShow() bool { return g.canShow.Load() }

// Equal reports whether both groups share an id.
func (g *PreferenceGroup) Equal(other *PreferenceGroup) bool {
	if g == nil || other == nil {
		return g == other
	}
	return g.id == other.id
}

// Hash combines id and name.
func (g *PreferenceGroup) Hash() uint64 {
	return hashFields(g.id, g.name)
}

// Close releases the gating subscription and closes every member preference.
func (g *PreferenceGroup) Close() error {
	var errs []error
	g.closeOnce.Do(func() {
		if g.sub != nil {
			errs = append(errs, g.sub.Unsubscribe())
		}
		for _, p := range g.preferences {
			errs = append(errs, p.Close())
		}
	})
	return errors.Join(errs...)
}
