package tracer

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTraceFrameUnmarshal(t *testing.T) {
	raw := `{
		"callsFromEntryPoint": [
			{
				"topLevelMethodSig": "0x3a871cdd",
				"access": {
					"0x1111111111111111111111111111111111111111": {
						"reads": {"0x01": null},
						"writes": {"0x02": "0x03"}
					}
				},
				"opcodes": {"SLOAD": 1, "SSTORE": 1},
				"contractSize": {"0x2222222222222222222222222222222222222222": 120}
			}
		],
		"keccak": ["0xdeadbeef"],
		"calls": [{"type": "CALL", "to": "0x1111111111111111111111111111111111111111", "method": "0x3a871cdd"}],
		"logs": [],
		"debug": [],
		"output": "0x",
		"error": "",
		"reverts": [],
		"validationOOG": false,
		"executionOOG": false,
		"executionGasLimit": 45000
	}`

	var frame TraceFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(frame.CallsFromEntryPoint) != 1 {
		t.Fatalf("expected 1 call info, got %d", len(frame.CallsFromEntryPoint))
	}
	ci := frame.CallsFromEntryPoint[0]
	if ci.Opcodes["SLOAD"] != 1 || ci.Opcodes["SSTORE"] != 1 {
		t.Fatalf("unexpected opcode counts: %+v", ci.Opcodes)
	}
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	access, ok := ci.Access[addr]
	if !ok {
		t.Fatalf("missing access entry for %s", addr)
	}
	if len(access.Reads) != 1 || len(access.Writes) != 1 {
		t.Fatalf("unexpected access shape: %+v", access)
	}
	if frame.ExecutionGasLimit != 45000 {
		t.Fatalf("executionGasLimit = %d, want 45000", frame.ExecutionGasLimit)
	}
	if sel := ci.Selector(); common.Bytes2Hex(sel[:]) != "3a871cdd" {
		t.Fatalf("selector = %x, want 3a871cdd", sel)
	}
}
