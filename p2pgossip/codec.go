package p2pgossip

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/snappy"
)

// sszMarshaler is satisfied by every message type this package frames
// for the wire.
type sszMarshaler interface {
	MarshalSSZ() ([]byte, error)
}

type sszUnmarshaler interface {
	UnmarshalSSZ([]byte) error
}

// EncodeSSZSnappy SSZ-marshals msg then snappy-compresses the result,
// matching the ssz_snappy suffix on every topic/protocol name in spec
// §6.
func EncodeSSZSnappy(msg sszMarshaler) ([]byte, error) {
	raw, err := msg.MarshalSSZ()
	if err != nil {
		return nil, fmt.Errorf("p2pgossip: marshal ssz: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeSSZSnappy snappy-decompresses data then SSZ-unmarshals it into msg.
func DecodeSSZSnappy(data []byte, msg sszUnmarshaler) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("p2pgossip: snappy decode: %w", err)
	}
	if err := msg.UnmarshalSSZ(raw); err != nil {
		return fmt.Errorf("p2pgossip: unmarshal ssz: %w", err)
	}
	return nil
}

// GossipTopic returns the pub/sub topic name operations for mempoolID
// are gossiped on (spec §6).
func GossipTopic(mempoolID common.Hash) string {
	return fmt.Sprintf("/account_abstraction/0x%x/user_ops_with_entry_point/ssz_snappy", mempoolID[:])
}

// ReqRespProtocol returns the libp2p protocol ID for one of the named
// request/response sub-protocols (spec §6): status, goodbye, ping,
// metadata, pooled_user_op_hashes, pooled_user_ops_by_hash.
func ReqRespProtocol(name string) string {
	return fmt.Sprintf("/account_abstraction/req/%s/1/ssz_snappy", name)
}
