// Package p2pgossip implements the wire codec for the ERC-4337 gossip
// messages named in spec §6: VerifiedUserOperation on the per-mempool
// pub/sub topic, plus the req/resp message bodies exchanged over the
// status/goodbye/ping/metadata/pooled_user_op_hashes/
// pooled_user_ops_by_hash sub-protocols. The actual libp2p transport
// (peer scoring, topic subscription machinery, stream multiplexing) is
// a Non-goal; this package only encodes and decodes the bytes that
// cross that transport.
//
// Encoding follows the SSZ container rules fastssz's generated code
// implements (fixed-size fields serialized in field order, each
// variable-size field represented there by a little-endian uint32 byte
// offset measured from the start of the container, followed by the
// contents of the variable-size fields in order) —
// hand-written here since no sszgen pass runs in this environment.
package p2pgossip

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/uop"
)

// offsetSize is the width of one SSZ variable-field offset pointer.
const offsetSize = 4

// VerifiedUserOperation is the payload gossiped on
// /account_abstraction/<mempool_id>/user_ops_with_entry_point/ssz_snappy
// once an operation has passed local validation (spec §6).
type VerifiedUserOperation struct {
	EntryPoint common.Address
	Op         *uop.UserOperation
}

// MarshalSSZ encodes v per the container layout:
//
//	entry_point   [20]byte              (fixed)
//	op            offset -> UserOperationSSZ (variable)
func (v *VerifiedUserOperation) MarshalSSZ() ([]byte, error) {
	opBytes, err := marshalUserOp(v.Op)
	if err != nil {
		return nil, err
	}
	fixedLen := common.AddressLength + offsetSize
	buf := make([]byte, fixedLen, fixedLen+len(opBytes))
	copy(buf[:common.AddressLength], v.EntryPoint[:])
	binary.LittleEndian.PutUint32(buf[common.AddressLength:fixedLen], uint32(fixedLen))
	buf = append(buf, opBytes...)
	return buf, nil
}

// UnmarshalSSZ decodes buf into v, the inverse of MarshalSSZ.
func (v *VerifiedUserOperation) UnmarshalSSZ(buf []byte) error {
	fixedLen := common.AddressLength + offsetSize
	if len(buf) < fixedLen {
		return fmt.Errorf("p2pgossip: VerifiedUserOperation too short: %d bytes", len(buf))
	}
	copy(v.EntryPoint[:], buf[:common.AddressLength])
	off := binary.LittleEndian.Uint32(buf[common.AddressLength:fixedLen])
	if int(off) != fixedLen || int(off) > len(buf) {
		return fmt.Errorf("p2pgossip: VerifiedUserOperation: bad op offset %d", off)
	}
	op, err := unmarshalUserOp(buf[off:])
	if err != nil {
		return err
	}
	v.Op = op
	return nil
}

// userOpFixedSlots is the number of offset slots in UserOperationSSZ's
// fixed part, one per variable-length byte field.
const userOpFixedSlots = 4

// marshalUserOp encodes a UserOperation as the container:
//
//	sender                  [20]byte
//	nonce                   [32]byte (little-endian, zero-padded)
//	call_gas_limit          [32]byte
//	verification_gas_limit  [32]byte
//	pre_verification_gas    [32]byte
//	max_fee_per_gas         [32]byte
//	max_priority_fee_per_gas [32]byte
//	init_code               offset -> bytes
//	call_data               offset -> bytes
//	paymaster_and_data      offset -> bytes
//	signature               offset -> bytes
func marshalUserOp(op *uop.UserOperation) ([]byte, error) {
	if op == nil {
		return nil, fmt.Errorf("p2pgossip: nil user operation")
	}
	const fixedLen = common.AddressLength + 6*32 + 4*offsetSize
	buf := make([]byte, fixedLen)
	pos := 0
	copy(buf[pos:pos+common.AddressLength], op.Sender[:])
	pos += common.AddressLength

	for _, n := range []*bigIntField{
		{op.Nonce}, {op.CallGasLimit}, {op.VerificationGasLimit},
		{op.PreVerificationGas}, {op.MaxFeePerGas}, {op.MaxPriorityFeePerGas},
	} {
		n.putInto(buf[pos : pos+32])
		pos += 32
	}

	variable := [][]byte{op.InitCode, op.CallData, op.PaymasterAndData, op.Signature}
	tail := make([]byte, 0, 256)
	for _, v := range variable {
		binary.LittleEndian.PutUint32(buf[pos:pos+offsetSize], uint32(fixedLen+len(tail)))
		pos += offsetSize
		tail = append(tail, v...)
	}
	return append(buf, tail...), nil
}

func unmarshalUserOp(buf []byte) (*uop.UserOperation, error) {
	const fixedLen = common.AddressLength + 6*32 + 4*offsetSize
	if len(buf) < fixedLen {
		return nil, fmt.Errorf("p2pgossip: UserOperation too short: %d bytes", len(buf))
	}
	op := &uop.UserOperation{}
	pos := 0
	copy(op.Sender[:], buf[pos:pos+common.AddressLength])
	pos += common.AddressLength

	ints := make([]*bigIntFieldPtr, 6)
	for i := range ints {
		ints[i] = &bigIntFieldPtr{}
		ints[i].takeFrom(buf[pos : pos+32])
		pos += 32
	}
	op.Nonce, op.CallGasLimit, op.VerificationGasLimit = ints[0].v, ints[1].v, ints[2].v
	op.PreVerificationGas, op.MaxFeePerGas, op.MaxPriorityFeePerGas = ints[3].v, ints[4].v, ints[5].v

	offsets := make([]uint32, 4)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(buf[pos : pos+offsetSize])
		pos += offsetSize
	}
	bounds := append(append([]uint32{}, offsets...), uint32(len(buf)))
	slices := make([][]byte, 4)
	for i := range slices {
		start, end := bounds[i], bounds[i+1]
		if start > end || int(end) > len(buf) {
			return nil, fmt.Errorf("p2pgossip: UserOperation: bad variable-field bounds")
		}
		slices[i] = append([]byte(nil), buf[start:end]...)
	}
	op.InitCode, op.CallData, op.PaymasterAndData, op.Signature = slices[0], slices[1], slices[2], slices[3]
	return op, nil
}
