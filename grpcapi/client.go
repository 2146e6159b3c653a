package grpcapi

import (
	"context"
	"fmt"
	"math/big"

	"google.golang.org/grpc"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uop"
	"github.com/aabundler/bundler/validate"
)

// UoPoolClient is the client-side counterpart of UoPoolServer, dialed
// by a process running the "rpc" or "bundler" CLI subcommand against
// a remote "uopool" process (spec §6 CLI surface: these are separate
// binaries sharing one pool over this internal gRPC service).
type UoPoolClient struct {
	conn       *grpc.ClientConn
	entryPoint common.Address
	chainID    *big.Int
}

// NewUoPoolClient wraps conn, an already-dialed connection to a
// uopool process's gRPC listener. entryPoint/chainID are needed to
// re-derive *uop.Entry values locally from the wire-level hash/op
// pairs the server returns.
func NewUoPoolClient(conn *grpc.ClientConn, entryPoint common.Address, chainID *big.Int) *UoPoolClient {
	return &UoPoolClient{conn: conn, entryPoint: entryPoint, chainID: chainID}
}

func (c *UoPoolClient) invoke(ctx context.Context, method string, req, reply interface{}) error {
	return c.conn.Invoke(ctx, method, req, reply, grpc.CallContentSubtype(codecName))
}

func (c *UoPoolClient) toEntry(hash common.Hash, w *wireOp) (*uop.Entry, error) {
	op, err := w.toOp()
	if err != nil {
		return nil, err
	}
	entry, err := uop.NewEntry(op, c.entryPoint, c.chainID)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash
	return entry, nil
}

// Add implements rpcapi.PoolAPI. mode is not sent over the wire: the
// remote uopool process always validates with the mode it was started
// with, matching the single-admission-policy-per-process design of
// the split-binary topology.
func (c *UoPoolClient) Add(ctx context.Context, op *uop.UserOperation, _ validate.Mode) (common.Hash, error) {
	req := &AddRequest{EntryPoint: c.entryPoint, Op: fromOp(op)}
	var reply AddReply
	if err := c.invoke(ctx, "/aabundler.uopool.UoPool/Add", req, &reply); err != nil {
		return common.Hash{}, fmt.Errorf("grpcapi: remote add: %w", err)
	}
	return reply.Hash, nil
}

// Remove implements bundler.PoolView.
func (c *UoPoolClient) Remove(hash common.Hash) bool {
	req := &RemoveRequest{Hash: hash}
	var reply RemoveReply
	if err := c.invoke(context.Background(), "/aabundler.uopool.UoPool/Remove", req, &reply); err != nil {
		return false
	}
	return reply.Removed
}

// Get implements rpcapi.PoolAPI.
func (c *UoPoolClient) Get(hash common.Hash) (*uop.Entry, bool) {
	req := &GetRequest{Hash: hash}
	var reply GetReply
	if err := c.invoke(context.Background(), "/aabundler.uopool.UoPool/Get", req, &reply); err != nil || !reply.Found {
		return nil, false
	}
	entry, err := c.toEntry(reply.Entry.Hash, reply.Entry.Op)
	if err != nil {
		return nil, false
	}
	return entry, true
}

// GetSorted implements rpcapi.PoolAPI.
func (c *UoPoolClient) GetSorted() []*uop.Entry {
	var reply GetSortedReply
	if err := c.invoke(context.Background(), "/aabundler.uopool.UoPool/GetSorted", &Empty{}, &reply); err != nil {
		return nil
	}
	out := make([]*uop.Entry, 0, len(reply.Entries))
	for _, we := range reply.Entries {
		entry, err := c.toEntry(we.Hash, we.Op)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// RankedCandidates implements bundler.PoolView.
func (c *UoPoolClient) RankedCandidates(limit int) []*uop.Entry {
	req := &RankedCandidatesRequest{Limit: limit}
	var reply RankedCandidatesReply
	if err := c.invoke(context.Background(), "/aabundler.uopool.UoPool/RankedCandidates", req, &reply); err != nil {
		return nil
	}
	out := make([]*uop.Entry, 0, len(reply.Entries))
	for _, we := range reply.Entries {
		entry, err := c.toEntry(we.Hash, we.Op)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Clear implements rpcapi.PoolAPI.
func (c *UoPoolClient) Clear() {
	_ = c.invoke(context.Background(), "/aabundler.uopool.UoPool/Clear", &Empty{}, &Empty{})
}

// DumpReputation implements rpcapi.PoolAPI.
func (c *UoPoolClient) DumpReputation() []reputation.Entry {
	var reply ReputationReply
	if err := c.invoke(context.Background(), "/aabundler.uopool.UoPool/DumpReputation", &Empty{}, &reply); err != nil {
		return nil
	}
	return reply.Entries
}

// SetReputation implements rpcapi.PoolAPI.
func (c *UoPoolClient) SetReputation(entries []reputation.Entry) {
	req := &SetReputationRequest{Entries: entries}
	_ = c.invoke(context.Background(), "/aabundler.uopool.UoPool/SetReputation", req, &Empty{})
}

// BundlerClient is the client-side counterpart of BundlerServer, used
// by the "debug" CLI subcommand to drive a remote bundler process's
// mode switch and manual trigger without going through JSON-RPC.
type BundlerClient struct {
	conn *grpc.ClientConn
}

// NewBundlerClient wraps an already-dialed connection to a bundler
// process's gRPC listener.
func NewBundlerClient(conn *grpc.ClientConn) *BundlerClient {
	return &BundlerClient{conn: conn}
}

// SetMode switches the remote bundler between "auto" and "manual".
func (c *BundlerClient) SetMode(ctx context.Context, mode string) error {
	req := &SetModeRequest{Mode: mode}
	return c.conn.Invoke(ctx, "/aabundler.bundler.Bundler/SetMode", req, &Empty{}, grpc.CallContentSubtype(codecName))
}

// SendBundleNow forces one bundle-formation pass on the remote bundler.
func (c *BundlerClient) SendBundleNow(ctx context.Context) (common.Hash, error) {
	var reply SendBundleNowReply
	if err := c.conn.Invoke(ctx, "/aabundler.bundler.Bundler/SendBundleNow", &Empty{}, &reply, grpc.CallContentSubtype(codecName)); err != nil {
		return common.Hash{}, fmt.Errorf("grpcapi: remote send_bundle_now: %w", err)
	}
	return reply.Hash, nil
}
