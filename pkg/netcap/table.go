// Package netcap answers capability questions for the dispatcher:
// which networks are currently enabled and which provider methods
// each supports. The table holds no state of its own; it re-reads
// the settings snapshot on every query, since users can change
// enabled networks at any time.
package netcap

import (
	"context"
	"fmt"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

// SettingsSource provides the current wallet settings. Implementations
// belong to the settings collaborator; the core only reads snapshots.
type SettingsSource interface {
	Snapshot(ctx context.Context) (Settings, error)
}

// Settings is one consistent view of the configured networks.
type Settings struct {
	// Networks lists every enabled network with its method set.
	Networks []contracts.Network
	// DefaultNetwork names the default by genesis hash or genesis id.
	// Empty means the first configured network is the default.
	DefaultNetwork string
}

// Table is the capability/network lookup used by the dispatcher.
type Table struct {
	source SettingsSource
}

// New builds a table over a settings source.
func New(source SettingsSource) *Table {
	return &Table{source: source}
}

// Resolve returns the enabled network that ref names (by genesis hash
// or genesis id), or nil when ref is unknown or disabled.
func (t *Table) Resolve(ctx context.Context, ref string) (*contracts.Network, error) {
	s, err := t.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings snapshot: %w", err)
	}
	for _, n := range s.Networks {
		if n.Matches(ref) {
			cp := n
			return &cp, nil
		}
	}
	return nil, nil
}

// IsSupported reports whether ref names an enabled network.
func (t *Table) IsSupported(ctx context.Context, ref string) (bool, error) {
	n, err := t.Resolve(ctx, ref)
	return n != nil, err
}

// ResolveDefault returns the default network, or nil when no network
// is configured.
func (t *Table) ResolveDefault(ctx context.Context) (*contracts.Network, error) {
	s, err := t.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings snapshot: %w", err)
	}
	if len(s.Networks) == 0 {
		return nil, nil
	}
	if s.DefaultNetwork != "" {
		for _, n := range s.Networks {
			if n.Matches(s.DefaultNetwork) {
				cp := n
				return &cp, nil
			}
		}
	}
	cp := s.Networks[0]
	return &cp, nil
}

// SupportedNetworks returns every enabled network annotated with its
// supported methods.
func (t *Table) SupportedNetworks(ctx context.Context) ([]contracts.Network, error) {
	s, err := t.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings snapshot: %w", err)
	}
	out := make([]contracts.Network, len(s.Networks))
	copy(out, s.Networks)
	return out, nil
}

// Static is a fixed in-memory settings source, used by tests and by
// the daemon after loading its settings file.
type Static struct {
	settings Settings
}

// NewStatic wraps a settings value as a source.
func NewStatic(s Settings) *Static {
	return &Static{settings: s}
}

func (s *Static) Snapshot(_ context.Context) (Settings, error) {
	return s.settings, nil
}

// Update replaces the settings snapshot. Callers coordinate their own
// publication; Static itself is not safe for concurrent mutation.
func (s *Static) Update(next Settings) {
	s.settings = next
}
