package leafprefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// GroupFactory builds a group for the container it is declared in.
type GroupFactory func(container string) *GroupBuilder

// PreferencesBuilder assembles the root Preferences of a leaf.
type PreferencesBuilder struct {
	manager     *Manager
	bundle      string
	preferences []*Preference
	groups      []*GroupBuilder
	errs        []error
}

// NewPreferences starts the preference tree of bundle. The bundle identifier
// doubles as the container of every preference declared through the builder.
func (m *Manager) NewPreferences(bundle string) *PreferencesBuilder {
	return &PreferencesBuilder{
		manager: m,
		bundle:  bundle,
	}
}

// WithPreference appends an ungrouped preference.
func (b *PreferencesBuilder) WithPreference(factory PreferenceFactory) *PreferencesBuilder {
	p := factory(b.bundle)
	if p == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %q: factory returned no preference", ErrInvalidKey, b.bundle))
		return b
	}
	for _, existing := range b.preferences {
		if existing.Equal(p) {
			_ = p.Close()
			b.errs = append(b.errs, fmt.Errorf("%w: %q in %q", ErrDuplicateKey, p.ID(), b.bundle))
			return b
		}
	}
	b.preferences = append(b.preferences, p)
	return b
}

// WithGroup appends a group.
func (b *PreferencesBuilder) WithGroup(factory GroupFactory) *PreferencesBuilder {
	g := factory(b.bundle)
	if g == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %q: factory returned no group", ErrInvalidKey, b.bundle))
		return b
	}
	for _, existing := range b.groups {
		if existing.id == g.id {
			for _, pref := range g.preferences {
				_ = pref.Close()
			}
			b.errs = append(b.errs, fmt.Errorf("%w: group %q in %q", ErrDuplicateKey, g.id, b.bundle))
			return b
		}
	}
	b.groups = append(b.groups, g)
	return b
}

// Build creates the tree, building every group. Errors collected while
// declaring are returned together.
func (b *PreferencesBuilder) Build(ctx context.Context) (*Preferences, error) {
	errs := append([]error(nil), b.errs...)
	if err := ValidateContainer(b.bundle); err != nil {
		errs = append(errs, err)
	}

	prefs := &Preferences{
		manager: b.manager,
		bundle:  b.bundle,
	}
	if len(b.preferences) > 0 {
		prefs.preferences = append([]*Preference(nil), b.preferences...)
	}
	for _, gb := range b.groups {
		g, err := gb.Build(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		prefs.groups = append(prefs.groups, g)
	}

	if len(errs) > 0 {
		_ = prefs.Close()
		return nil, errors.Join(errs...)
	}
	return prefs, nil
}

// Preferences is the declarative preference tree of one leaf bundle.
// Both child lists stay nil until something is added.
type Preferences struct {
	manager     *Manager
	bundle      string
	preferences []*Preference
	groups      []*PreferenceGroup
	closeOnce   sync.Once
}

// BundleIdentifier returns the bundle, which is also the storage container.
func (p *Preferences) BundleIdentifier() string { return p.bundle }

// Preferences returns the ungrouped preferences in declaration order.
func (p *Preferences) Preferences() []*Preference {
	return append([]*Preference(nil), p.preferences...)
}

// Groups returns the groups in declaration order.
func (p *Preferences) Groups() []*PreferenceGroup {
	return append([]*PreferenceGroup(nil), p.groups...)
}

// Preference looks up a declared preference by id, grouped or not.
func (p *Preferences) Preference(id string) (*Preference, bool) {
	for _, pref := range p.preferences {
		if pref.ID() == id {
			return pref, true
		}
	}
	for _, g := range p.groups {
		for _, pref := range g.preferences {
			if pref.ID() == id {
				return pref, true
			}
		}
	}
	return nil, false
}

// ValueForKey reads id directly from the bundle's storage container.
func (p *Preferences) ValueForKey(ctx context.Context, id string) (Value, bool) {
	return p.manager.ValueForKey(ctx, id, p.bundle)
}

// ExpensiveValueForKey asks the host for id in the bundle's container.
// See Manager.ExpensiveValueForKey.
func (p *Preferences) ExpensiveValueForKey(ctx context.Context, id string, completion Completion) error {
	return p.manager.ExpensiveValueForKey(ctx, id, p.bundle, completion)
}

// Close releases every subscription in the tree.
func (p *Preferences) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, pref := range p.preferences {
			errs = append(errs, pref.Close())
		}
		for _, g := range p.groups {
			errs = append(errs, g.Close())
		}
	})
	return errors.Join(errs...)
}
