package rpcapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/bundler"
	"github.com/aabundler/bundler/reputation"
)

// DebugBundlerAPI implements the debug_bundler_* namespace (spec
// §4.H). The server registers it with Namespace "debug_bundler", so
// e.g. ClearState is exposed as debug_bundler_clearState.
type DebugBundlerAPI struct {
	backend *Backend
}

// NewDebugBundlerAPI wraps backend for registration with an rpc.Server.
func NewDebugBundlerAPI(backend *Backend) *DebugBundlerAPI { return &DebugBundlerAPI{backend: backend} }

// wireReputationEntry is the JSON-RPC wire form of a reputation.Entry.
type wireReputationEntry struct {
	Address     common.Address `json:"address"`
	OpsSeen     uint64         `json:"opsSeen"`
	OpsIncluded uint64         `json:"opsIncluded"`
	Status      string         `json:"status"`
}

// wireMempoolEntry is the JSON-RPC wire form of one dumped mempool entry.
type wireMempoolEntry struct {
	Hash          common.Hash        `json:"hash"`
	UserOperation *wireUserOperation `json:"userOperation"`
}

// ClearState empties the mempool (debug_bundler_clearState).
func (api *DebugBundlerAPI) ClearState() error {
	api.backend.Pool.Clear()
	return nil
}

// DumpMempool returns every pending operation (debug_bundler_dumpMempool).
func (api *DebugBundlerAPI) DumpMempool() []wireMempoolEntry {
	entries := api.backend.Pool.GetSorted()
	out := make([]wireMempoolEntry, len(entries))
	for i, e := range entries {
		out[i] = wireMempoolEntry{Hash: e.Hash, UserOperation: toWire(e.Op)}
	}
	return out
}

// SetReputation overwrites reputation rows wholesale
// (debug_bundler_setReputation).
func (api *DebugBundlerAPI) SetReputation(entries []wireReputationEntry) error {
	rows := make([]reputation.Entry, len(entries))
	for i, e := range entries {
		rows[i] = reputation.Entry{Address: e.Address, OpsSeen: e.OpsSeen, OpsIncluded: e.OpsIncluded}
	}
	api.backend.Pool.SetReputation(rows)
	return nil
}

// DumpReputation returns every known reputation row
// (debug_bundler_dumpReputation).
func (api *DebugBundlerAPI) DumpReputation() []wireReputationEntry {
	rows := api.backend.Pool.DumpReputation()
	out := make([]wireReputationEntry, len(rows))
	for i, e := range rows {
		out[i] = wireReputationEntry{
			Address:     e.Address,
			OpsSeen:     e.OpsSeen,
			OpsIncluded: e.OpsIncluded,
			Status:      reputationStatusString(e.Status),
		}
	}
	return out
}

// SetBundlingMode switches the bundler between "auto" and "manual"
// (debug_bundler_setBundlingMode).
func (api *DebugBundlerAPI) SetBundlingMode(mode string) error {
	switch mode {
	case "auto":
		api.backend.Bundler.SetMode(bundler.ModeAuto)
	case "manual":
		api.backend.Bundler.SetMode(bundler.ModeManual)
	default:
		return &rpcError{msg: "rpcapi: bundling mode must be \"auto\" or \"manual\"", code: -32602}
	}
	return nil
}

// SendBundleNow forces one bundle-formation pass regardless of mode
// (debug_bundler_sendBundleNow).
func (api *DebugBundlerAPI) SendBundleNow(ctx context.Context) (common.Hash, error) {
	hash, err := api.backend.Bundler.SendBundleNow(ctx)
	if err != nil {
		return common.Hash{}, codeFor(err)
	}
	return hash, nil
}
