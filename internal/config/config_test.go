package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[chain]
name = "mainnet"
chain_id = 1
rpc_url = "https://example.invalid/rpc"

[[entry_points]]
address = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
min_stake = "1000000000000000000"
min_unstake_delay = 86400

[bundling]
beneficiary = "0xAB7e2cbFcFb6A5F33A75aD745C3E5fB48d689B54"
interval = "10s"
block_gas_target = 15000000
max_bundle_size = 64
send_mode = "auto"

[storage]
data_dir = "/tmp/aabundler-test"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.Chain.ChainID)
	require.Len(t, cfg.EntryPoints, 1)
	require.Equal(t, "1000000000000000000", cfg.EntryPoints[0].MinStake.String())
	require.Equal(t, 64, cfg.Bundling.MaxBundleSize)
}

func TestLoadRejectsMissingChainID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	bad := `
[chain]
name = "mainnet"
rpc_url = "https://example.invalid/rpc"

[[entry_points]]
address = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
min_unstake_delay = 86400

[bundling]
beneficiary = "0xAB7e2cbFcFb6A5F33A75aD745C3E5fB48d689B54"
interval = "10s"
block_gas_target = 15000000
max_bundle_size = 64
send_mode = "auto"

[storage]
data_dir = "/tmp/aabundler-test"
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultIsNotIndividuallyValid(t *testing.T) {
	cfg := Default()
	require.Error(t, Validate(&cfg), "Default() omits chain/entry_points/storage, which are required")
}
