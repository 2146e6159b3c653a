package rpcapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// userOpSchemaSrc describes the raw eth_sendUserOperation param shape
// before any ABI-level decoding happens, so malformed requests (wrong
// types, missing required fields) are rejected with -32602 cheaply
// rather than surfacing a confusing panic or decode error deeper in
// the stack (spec §6, §7 InvalidOperation.Sanity).
const userOpSchemaSrc = `{
  "type": "object",
  "required": ["sender", "nonce", "initCode", "callData", "callGasLimit",
    "verificationGasLimit", "preVerificationGas", "maxFeePerGas",
    "maxPriorityFeePerGas", "paymasterAndData", "signature"],
  "properties": {
    "sender": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "nonce": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "initCode": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "callData": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "callGasLimit": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "verificationGasLimit": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "preVerificationGas": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "maxFeePerGas": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "maxPriorityFeePerGas": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "paymasterAndData": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"},
    "signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]*$"}
  }
}`

var userOpSchema = compileUserOpSchema()

func compileUserOpSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("useroperation.json", strings.NewReader(userOpSchemaSrc)); err != nil {
		panic(fmt.Sprintf("rpcapi: compile useroperation schema: %v", err))
	}
	schema, err := compiler.Compile("useroperation.json")
	if err != nil {
		panic(fmt.Sprintf("rpcapi: compile useroperation schema: %v", err))
	}
	return schema
}

// validateUserOpShape re-decodes raw into a generic JSON value and
// validates it against userOpSchema before any ABI-aware decoding is
// attempted.
func validateUserOpShape(raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("rpcapi: malformed user operation json: %w", err)
	}
	if err := userOpSchema.Validate(v); err != nil {
		return fmt.Errorf("rpcapi: user operation failed schema validation: %w", err)
	}
	return nil
}
