package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `
default_network: mainnet-v1
networks:
  - genesis_hash: gh-main
    genesis_id: mainnet-v1
  - genesis_hash: gh-test
    genesis_id: testnet-v1
    methods: [discover, enable]
accounts:
  - address: ADDR1
    name: Alice
  - address: ADDR2
    watch_only: true
`)

	settings, accts, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "mainnet-v1", settings.DefaultNetwork)
	require.Len(t, settings.Networks, 2)
	// Omitted methods default to the full method set.
	assert.Equal(t, contracts.Kinds(), settings.Networks[0].Methods)
	assert.Equal(t, []contracts.Kind{contracts.KindDiscover, contracts.KindEnable}, settings.Networks[1].Methods)

	require.Len(t, accts, 2)
	assert.Equal(t, "Alice", accts[0].Name)
	assert.True(t, accts[1].WatchOnly)
}

func TestLoadSettingsRejectsMissingGenesisPair(t *testing.T) {
	path := writeSettings(t, `
networks:
  - genesis_id: mainnet-v1
`)
	_, _, err := LoadSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "genesis pair")
}

func TestLoadSettingsRejectsUnknownMethod(t *testing.T) {
	path := writeSettings(t, `
networks:
  - genesis_hash: gh-main
    genesis_id: mainnet-v1
    methods: [teleport]
`)
	_, _, err := LoadSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestLoadSettingsRejectsAccountWithoutAddress(t *testing.T) {
	path := writeSettings(t, `
accounts:
  - name: Nameless
`)
	_, _, err := LoadSettings(path)
	require.Error(t, err)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
