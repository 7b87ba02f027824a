package leafprefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// exportPreference is the declarative form of a Preference. Live values are never exported.
type exportPreference struct {
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	ID             string  `json:"id"`
	ContainerName  string  `json:"containerName"`
	DefaultValue   *Value  `json:"defaultValue,omitempty"`
	PreferenceType Kind    `json:"preferenceType"`
}

type exportGroup struct {
	ContainerName      string             `json:"containerName"`
	Preferences        []exportPreference `json:"preferences"`
	Name               string             `json:"name"`
	Description        *string            `json:"description,omitempty"`
	ID                 string             `json:"id"`
	OptionallyShownKey *string            `json:"optionallyShownKey,omitempty"`
}

type exportTree struct {
	GeneralPreferences []exportPreference `json:"generalPreferences,omitempty"`
	PreferenceGroups   []exportGroup      `json:"preferenceGroups,omitempty"`
	BundleIdentifier   string             `json:"bundleIdentifier"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func exportOf(p *Preference) exportPreference {
	ep := exportPreference{
		Name:           p.name,
		Description:    optional(p.description),
		ID:             p.id,
		ContainerName:  p.container,
		PreferenceType: p.kind,
	}
	if p.hasDefault {
		def := p.defaultValue
		ep.DefaultValue = &def
	}
	return ep
}

// MarshalJSON renders the declarative tree read by the host.
func (p *Preferences) MarshalJSON() ([]byte, error) {
	tree := exportTree{BundleIdentifier: p.bundle}
	for _, pref := range p.preferences {
		tree.GeneralPreferences = append(tree.GeneralPreferences, exportOf(pref))
	}
	for _, g := range p.groups {
		eg := exportGroup{
			ContainerName:      g.container,
			Preferences:        []exportPreference{},
			Name:               g.name,
			Description:        optional(g.description),
			ID:                 g.id,
			OptionallyShownKey: optional(g.shownKey),
		}
		for _, pref := range g.preferences {
			eg.Preferences = append(eg.Preferences, exportOf(pref))
		}
		tree.PreferenceGroups = append(tree.PreferenceGroups, eg)
	}
	return json.Marshal(tree)
}

// Export writes the declarative tree to path. Failures are logged and otherwise ignored.
func (p *Preferences) Export(path string) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		p.manager.config.logger.Error("Failed to serialize preferences", "bundle", p.bundle, "error", err)
		return
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			p.manager.config.logger.Error("Failed to create export directory", "path", path, "error", err)
			return
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.manager.config.logger.Error("Failed to write preferences export", "path", path, "error", err)
		return
	}
	p.manager.config.logger.Debug("Exported preferences", "bundle", p.bundle, "path", path)
}

// LoadExport reads a file written by Export into a live tree. Groups recompute
// their visibility from storage and subscribe like freshly declared ones.
func (m *Manager) LoadExport(ctx context.Context, path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preferences export: %w", err)
	}
	return m.DecodeExport(ctx, data)
}

// DecodeExport builds a live tree from exported JSON.
func (m *Manager) DecodeExport(ctx context.Context, data []byte) (*Preferences, error) {
	var tree exportTree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("%w: preferences export: %v", ErrSerialization, err)
	}

	b := m.NewPreferences(tree.BundleIdentifier)
	for _, ep := range tree.GeneralPreferences {
		b.WithPreference(m.importPreference(ep))
	}
	for _, eg := range tree.PreferenceGroups {
		eg := eg
		b.WithGroup(func(string) *GroupBuilder {
			gb := m.NewGroup(eg.ID, eg.Name, eg.ContainerName)
			if eg.Description != nil {
				gb.WithDescription(*eg.Description)
			}
			if eg.OptionallyShownKey != nil {
				gb.WithShownKey(*eg.OptionallyShownKey)
			}
			for _, ep := range eg.Preferences {
				gb.WithPreference(m.importPreference(ep))
			}
			return gb
		})
	}
	return b.Build(ctx)
}

func (m *Manager) importPreference(ep exportPreference) PreferenceFactory {
	return func(container string) *Preference {
		if ep.ContainerName != "" {
			container = ep.ContainerName
		}
		var opts []PreferenceOption
		if ep.Description != nil {
			opts = append(opts, WithDescription(*ep.Description))
		}
		if ep.DefaultValue != nil {
			opts = append(opts, WithDefault(*ep.DefaultValue))
		}
		return m.NewPreference(ep.ID, ep.Name, ep.PreferenceType, container, opts...)
	}
}
