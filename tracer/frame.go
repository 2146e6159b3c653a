package tracer

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// StorageAccess is one address's observed reads/writes during a
// validation phase. Reads map a slot to nil (the tracer never needs
// the pre-image value, only that it was touched); writes map a slot to
// the value stored.
type StorageAccess struct {
	Reads  map[common.Hash]*common.Hash `json:"reads"`
	Writes map[common.Hash]*common.Hash `json:"writes"`
}

// CallInfo is one validation phase's aggregated trace data: the
// top-level entry-point-invoked call's selector, every address's
// storage access, opcode counts at depth > 1, and contract sizes
// observed via EXTCODESIZE/EXTCODEHASH/EXTCODECOPY (spec §4.B).
type CallInfo struct {
	TopLevelMethodSig string                            `json:"topLevelMethodSig"`
	Access            map[common.Address]*StorageAccess `json:"access"`
	Opcodes           map[string]uint64                 `json:"opcodes"`
	ContractSize      map[common.Address]uint64         `json:"contractSize"`
}

// Selector returns the 4-byte function selector of this phase's
// top-level call, or the zero selector if none was observed.
func (c *CallInfo) Selector() [4]byte {
	var sel [4]byte
	if len(c.TopLevelMethodSig) >= 10 {
		copy(sel[:], common.FromHex(c.TopLevelMethodSig))
	}
	return sel
}

// Call is one entry in the raw CALL/STATICCALL/DELEGATECALL/CREATE
// (enter) or RETURN/REVERT (exit) call-stack log.
type Call struct {
	Type    string `json:"type"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Method  string `json:"method,omitempty"`
	Gas     uint64 `json:"gas,omitempty"`
	Value   string `json:"value,omitempty"`
	GasUsed uint64 `json:"gasUsed,omitempty"`
	Data    string `json:"data,omitempty"`
}

// LogEntry is a captured LOG* whose first topic matched the
// UserOperationEvent or UserOperationRevertReason signature.
type LogEntry struct {
	Kind   string   `json:"kind"`
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}

// TraceFrame is the decoded result of a simulateValidation call run
// under ValidationTracerJS.
type TraceFrame struct {
	CallsFromEntryPoint []*CallInfo `json:"callsFromEntryPoint"`
	Keccak              []string    `json:"keccak"`
	Calls               []Call      `json:"calls"`
	Logs                []LogEntry  `json:"logs"`
	Debug               []string    `json:"debug"`
	Output              string      `json:"output"`
	Error               string      `json:"error"`
	Reverts             []string    `json:"reverts"`
	ValidationOOG       bool        `json:"validationOOG"`
	ExecutionOOG        bool        `json:"executionOOG"`
	ExecutionGasLimit   uint64      `json:"executionGasLimit"`
}

// UnmarshalJSON decodes the tracer's raw hex-keyed maps into typed
// common.Address/common.Hash keys.
func (f *TraceFrame) UnmarshalJSON(data []byte) error {
	type callInfoRaw struct {
		TopLevelMethodSig string `json:"topLevelMethodSig"`
		Access             map[string]struct {
			Reads  map[string]*string `json:"reads"`
			Writes map[string]*string `json:"writes"`
		} `json:"access"`
		Opcodes      map[string]uint64 `json:"opcodes"`
		ContractSize map[string]uint64 `json:"contractSize"`
	}
	type frameRaw struct {
		CallsFromEntryPoint []*callInfoRaw `json:"callsFromEntryPoint"`
		Keccak              []string       `json:"keccak"`
		Calls               []Call         `json:"calls"`
		Logs                []LogEntry     `json:"logs"`
		Debug               []string       `json:"debug"`
		Output              string         `json:"output"`
		Error               string         `json:"error"`
		Reverts             []string       `json:"reverts"`
		ValidationOOG       bool           `json:"validationOOG"`
		ExecutionOOG        bool           `json:"executionOOG"`
		ExecutionGasLimit   uint64         `json:"executionGasLimit"`
	}

	var raw frameRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Keccak = raw.Keccak
	f.Calls = raw.Calls
	f.Logs = raw.Logs
	f.Debug = raw.Debug
	f.Output = raw.Output
	f.Error = raw.Error
	f.Reverts = raw.Reverts
	f.ValidationOOG = raw.ValidationOOG
	f.ExecutionOOG = raw.ExecutionOOG
	f.ExecutionGasLimit = raw.ExecutionGasLimit

	f.CallsFromEntryPoint = make([]*CallInfo, len(raw.CallsFromEntryPoint))
	for i, rc := range raw.CallsFromEntryPoint {
		ci := &CallInfo{
			TopLevelMethodSig: rc.TopLevelMethodSig,
			Access:            make(map[common.Address]*StorageAccess, len(rc.Access)),
			Opcodes:           rc.Opcodes,
			ContractSize:      make(map[common.Address]uint64, len(rc.ContractSize)),
		}
		for addrHex, acc := range rc.Access {
			sa := &StorageAccess{
				Reads:  make(map[common.Hash]*common.Hash, len(acc.Reads)),
				Writes: make(map[common.Hash]*common.Hash, len(acc.Writes)),
			}
			for slotHex, v := range acc.Reads {
				sa.Reads[hashFromHex(slotHex)] = hashPtr(v)
			}
			for slotHex, v := range acc.Writes {
				sa.Writes[hashFromHex(slotHex)] = hashPtr(v)
			}
			ci.Access[common.HexToAddress(addrHex)] = sa
		}
		for addrHex, size := range rc.ContractSize {
			ci.ContractSize[common.HexToAddress(addrHex)] = size
		}
		f.CallsFromEntryPoint[i] = ci
	}
	return nil
}

func hashFromHex(s string) common.Hash {
	if len(s) < 2 || s[:2] != "0x" {
		s = "0x" + s
	}
	return common.HexToHash(s)
}

func hashPtr(s *string) *common.Hash {
	if s == nil {
		return nil
	}
	h := hashFromHex(*s)
	return &h
}
