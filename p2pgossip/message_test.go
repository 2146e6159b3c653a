package p2pgossip

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/uop"
)

func testOp() *uop.UserOperation {
	return &uop.UserOperation{
		Sender:               common.HexToAddress("0xAB7e2cbFcFb6A5F33A75aD745C3E5fB48d689B54"),
		Nonce:                big.NewInt(7),
		InitCode:             common.FromHex("0x9abc"),
		CallData:             common.FromHex("0x80c5c7d0"),
		CallGasLimit:         big.NewInt(21900),
		VerificationGasLimit: big.NewInt(1218343),
		PreVerificationGas:   big.NewInt(50780),
		MaxFeePerGas:         big.NewInt(10064120791),
		MaxPriorityFeePerGas: big.NewInt(1620899097),
		PaymasterAndData:     nil,
		Signature:            common.FromHex("0x4e69eb5e"),
	}
}

func TestVerifiedUserOperationRoundTrip(t *testing.T) {
	want := &VerifiedUserOperation{
		EntryPoint: common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
		Op:         testOp(),
	}
	encoded, err := EncodeSSZSnappy(want)
	if err != nil {
		t.Fatalf("EncodeSSZSnappy: %v", err)
	}

	got := &VerifiedUserOperation{}
	if err := DecodeSSZSnappy(encoded, got); err != nil {
		t.Fatalf("DecodeSSZSnappy: %v", err)
	}

	if got.EntryPoint != want.EntryPoint {
		t.Errorf("entry point: got %s, want %s", got.EntryPoint, want.EntryPoint)
	}
	if got.Op.Sender != want.Op.Sender {
		t.Errorf("sender: got %s, want %s", got.Op.Sender, want.Op.Sender)
	}
	if got.Op.Nonce.Cmp(want.Op.Nonce) != 0 {
		t.Errorf("nonce: got %s, want %s", got.Op.Nonce, want.Op.Nonce)
	}
	if got.Op.MaxFeePerGas.Cmp(want.Op.MaxFeePerGas) != 0 {
		t.Errorf("max fee per gas: got %s, want %s", got.Op.MaxFeePerGas, want.Op.MaxFeePerGas)
	}
	if string(got.Op.CallData) != string(want.Op.CallData) {
		t.Errorf("call data: got %x, want %x", got.Op.CallData, want.Op.CallData)
	}
	if string(got.Op.Signature) != string(want.Op.Signature) {
		t.Errorf("signature: got %x, want %x", got.Op.Signature, want.Op.Signature)
	}
}

func TestPooledUserOpHashesRoundTrip(t *testing.T) {
	want := &PooledUserOpHashesResponse{
		Hashes:     []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2")},
		NextCursor: 42,
	}
	raw, err := want.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	got := &PooledUserOpHashesResponse{}
	if err := got.UnmarshalSSZ(raw); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got.NextCursor != want.NextCursor {
		t.Errorf("next cursor: got %d, want %d", got.NextCursor, want.NextCursor)
	}
	if len(got.Hashes) != len(want.Hashes) {
		t.Fatalf("hashes: got %d, want %d", len(got.Hashes), len(want.Hashes))
	}
	for i := range want.Hashes {
		if got.Hashes[i] != want.Hashes[i] {
			t.Errorf("hash %d: got %s, want %s", i, got.Hashes[i], want.Hashes[i])
		}
	}
}

func TestPooledUserOpsByHashRoundTrip(t *testing.T) {
	want := &PooledUserOpsByHashResponse{
		Ops: []*VerifiedUserOperation{
			{EntryPoint: common.HexToAddress("0x1"), Op: testOp()},
			{EntryPoint: common.HexToAddress("0x2"), Op: testOp()},
		},
	}
	raw, err := want.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	got := &PooledUserOpsByHashResponse{}
	if err := got.UnmarshalSSZ(raw); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if len(got.Ops) != len(want.Ops) {
		t.Fatalf("ops: got %d, want %d", len(got.Ops), len(want.Ops))
	}
	for i := range want.Ops {
		if got.Ops[i].EntryPoint != want.Ops[i].EntryPoint {
			t.Errorf("op %d entry point: got %s, want %s", i, got.Ops[i].EntryPoint, want.Ops[i].EntryPoint)
		}
	}
}
