package uop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0xAB7e2cbFcFb6A5F33A75aD745C3E5fB48d689B54"),
		Nonce:                big.NewInt(0),
		InitCode:             common.FromHex("0xe19e9755942bb0bd0cccce25b1742596b8a8250b3bf2c3e70000000000000000000000001d9a2cb3638c2fc8bf9c01d088b79e75cd188b17000000000000000000000000789d9058feecf1948af429793e7f1eb4a75db2220000000000000000000000000000000000000000000000000000000000000000"),
		CallData:             common.FromHex("0x80c5c7d0000000000000000000000000ab7e2cbfcfb6a5f33a75ad745c3e5fb48d689b5400000000000000000000000000000000000000000000000002c68af0bb14000000000000000000000000000000000000000000000000000000000000000000600000000000000000000000000000000000000000000000000000000000000000"),
		CallGasLimit:         big.NewInt(21900),
		VerificationGasLimit: big.NewInt(1218343),
		PreVerificationGas:   big.NewInt(50780),
		MaxFeePerGas:         big.NewInt(10064120791),
		MaxPriorityFeePerGas: big.NewInt(1620899097),
		PaymasterAndData:     nil,
		Signature:            common.FromHex("0x4e69eb5e02d47ba28878655d61c59c20c3e9a2e6905381305626f6a5a2892ec12bd8dd59179f0642731e0e853af54a71ce422a1a234548c9dd1c559bd07df4461c"),
	}
}

func TestPreVerificationGasCalculation(t *testing.T) {
	op := testOp()
	got, err := DefaultGasOverhead.PreVerificationGas(op)
	if err != nil {
		t.Fatalf("PreVerificationGas: %v", err)
	}
	if got.Cmp(big.NewInt(45336)) != 0 {
		t.Errorf("got %s, want 45336", got)
	}
}

func TestHashStability(t *testing.T) {
	op := testOp()
	ep := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	chainID := big.NewInt(1)

	h1, err := op.Hash(ep, chainID)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := op.Hash(ep, chainID)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %s != %s", h1, h2)
	}

	other := op.Clone()
	other.Nonce = big.NewInt(1)
	h3, err := other.Hash(ep, chainID)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 == h3 {
		t.Errorf("hash did not change with nonce")
	}
}

func TestFactoryPaymaster(t *testing.T) {
	op := testOp()
	if !op.HasFactory() {
		t.Fatal("expected factory")
	}
	factory, ok := op.Factory()
	if !ok || factory != common.HexToAddress("0xe19e9755942bb0bd0cccce25b1742596b8a8250b") {
		t.Errorf("unexpected factory: %s", factory)
	}
	if op.HasPaymaster() {
		t.Fatal("did not expect paymaster")
	}
	if _, ok := op.Paymaster(); ok {
		t.Fatal("did not expect paymaster")
	}
}

func TestMempoolIDDeterministic(t *testing.T) {
	ep := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	a := MempoolID(ep, big.NewInt(1))
	b := MempoolID(ep, big.NewInt(1))
	if a != b {
		t.Errorf("mempool id not deterministic")
	}
	c := MempoolID(ep, big.NewInt(5))
	if a == c {
		t.Errorf("mempool id should differ by chain id")
	}
}
