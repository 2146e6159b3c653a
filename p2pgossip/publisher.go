package p2pgossip

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/aabundler/bundler/uop"
)

// PubSub is the narrow publish surface a concrete libp2p gossipsub
// instance provides; wiring an actual pubsub.Topic is left to the
// node's transport setup (a Non-goal here, per the gossip-protocol
// exclusion in spec §6).
type PubSub interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// Publisher adapts a PubSub to uopool's Sink interface, encoding every
// admitted operation as ssz_snappy before handing it to the transport.
type Publisher struct {
	pubsub    PubSub
	mempoolID common.Hash
}

// NewPublisher builds a Publisher that gossips on GossipTopic(mempoolID).
func NewPublisher(pubsub PubSub, mempoolID common.Hash) *Publisher {
	return &Publisher{pubsub: pubsub, mempoolID: mempoolID}
}

// Publish implements uopool.Sink.
func (p *Publisher) Publish(ctx context.Context, entryPoint common.Address, op *uop.UserOperation) error {
	msg := &VerifiedUserOperation{EntryPoint: entryPoint, Op: op}
	data, err := EncodeSSZSnappy(msg)
	if err != nil {
		return fmt.Errorf("p2pgossip: encode verified user operation: %w", err)
	}
	topic := GossipTopic(p.mempoolID)
	if err := p.pubsub.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("p2pgossip: publish on %s: %w", topic, err)
	}
	log.Debug("p2pgossip: published user operation", "topic", topic, "sender", op.Sender)
	return nil
}
