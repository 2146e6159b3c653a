package bundler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/metachris/flashbotsrpc"
)

// DirectSender is the subset of an execution-client connection a
// DirectTransport submits through.
type DirectSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// DirectTransport submits the signed handleOps transaction straight
// to the execution client's public mempool via eth_sendRawTransaction
// (spec §4.G.5).
type DirectTransport struct {
	backend DirectSender
}

// NewDirectTransport wraps backend as a Transport.
func NewDirectTransport(backend DirectSender) *DirectTransport {
	return &DirectTransport{backend: backend}
}

// Submit implements Transport.
func (t *DirectTransport) Submit(ctx context.Context, tx *types.Transaction) error {
	if err := t.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("bundler: direct send_transaction: %w", err)
	}
	return nil
}

// HeaderSource is the subset of chain access FlashbotsTransport needs
// to target the next block.
type HeaderSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// FlashbotsTransport submits the signed handleOps transaction as a
// single-transaction bundle to a Flashbots-style private-orderflow
// relay (spec §4.G.5, §9 Open Questions: the wire encoding of the
// relay protocol is not mandated by this core spec, only the
// SubmitBundle trait is; this transport fills that trait with the
// real flashbotsrpc client used across the retrieval pack's bundler
// manifests).
type FlashbotsTransport struct {
	rpc        *flashbotsrpc.FlashbotsRPC
	chain      HeaderSource
	signingKey string
}

// NewFlashbotsTransport dials relayURL. signingKey is the ECDSA key
// hex used to authenticate the bundle submission to the relay (a
// distinct reputation key from the bundle signer per Flashbots
// convention, not a fund-holding key).
func NewFlashbotsTransport(relayURL string, chain HeaderSource, signingKey string) *FlashbotsTransport {
	return &FlashbotsTransport{
		rpc:        flashbotsrpc.New(relayURL),
		chain:      chain,
		signingKey: signingKey,
	}
}

// Submit implements Transport: wraps tx as a one-transaction bundle
// targeting the next block only; no timestamp bounds are set.
func (t *FlashbotsTransport) Submit(ctx context.Context, tx *types.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("bundler: marshal tx for relay: %w", err)
	}
	blockNumber, err := t.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("bundler: block_number: %w", err)
	}
	target := blockNumber + 1

	resp, err := t.rpc.FlashbotsSendBundle(flashbotsrpc.FlashbotsSendBundleRequest{
		Txs:         []string{hexutil.Encode(raw)},
		BlockNumber: hexutil.EncodeUint64(target),
	}, t.signingKey)
	if err != nil {
		return fmt.Errorf("bundler: flashbots send_bundle: %w", err)
	}
	log.Info("bundler: submitted bundle to relay", "tx", tx.Hash(), "target_block", target, "bundle_hash", resp.BundleHash)
	return nil
}
