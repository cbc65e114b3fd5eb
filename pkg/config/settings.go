package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Aegis-Wallet/aegis/pkg/accounts"
	"github.com/Aegis-Wallet/aegis/pkg/contracts"
	"github.com/Aegis-Wallet/aegis/pkg/netcap"
)

// SettingsFile is the on-disk shape of the wallet settings the daemon
// reads at boot: the enabled networks and the tracked accounts.
type SettingsFile struct {
	DefaultNetwork string         `yaml:"default_network"`
	Networks       []NetworkEntry `yaml:"networks"`
	Accounts       []AccountEntry `yaml:"accounts"`
}

// NetworkEntry is one enabled network.
type NetworkEntry struct {
	GenesisHash string   `yaml:"genesis_hash"`
	GenesisID   string   `yaml:"genesis_id"`
	Methods     []string `yaml:"methods"`
}

// AccountEntry is one tracked account.
type AccountEntry struct {
	Address   string `yaml:"address"`
	Name      string `yaml:"name"`
	WatchOnly bool   `yaml:"watch_only"`
}

// LoadSettings parses path into a capability snapshot and the account
// list.
func LoadSettings(path string) (netcap.Settings, []accounts.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return netcap.Settings{}, nil, fmt.Errorf("read settings file %s: %w", path, err)
	}
	var f SettingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return netcap.Settings{}, nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}

	s := netcap.Settings{DefaultNetwork: f.DefaultNetwork}
	for _, e := range f.Networks {
		if e.GenesisHash == "" || e.GenesisID == "" {
			return netcap.Settings{}, nil, fmt.Errorf("network entry in %s is missing its genesis pair", path)
		}
		n := contracts.Network{GenesisHash: e.GenesisHash, GenesisID: e.GenesisID}
		if len(e.Methods) == 0 {
			n.Methods = contracts.Kinds()
		} else {
			for _, m := range e.Methods {
				k := contracts.Kind(m)
				if !k.Valid() {
					return netcap.Settings{}, nil, fmt.Errorf("network %s declares unknown method %q", e.GenesisID, m)
				}
				n.Methods = append(n.Methods, k)
			}
		}
		s.Networks = append(s.Networks, n)
	}

	accts := make([]accounts.Account, 0, len(f.Accounts))
	for _, a := range f.Accounts {
		if a.Address == "" {
			return netcap.Settings{}, nil, fmt.Errorf("account entry in %s is missing its address", path)
		}
		accts = append(accts, accounts.Account{Address: a.Address, Name: a.Name, WatchOnly: a.WatchOnly})
	}
	return s, accts, nil
}
