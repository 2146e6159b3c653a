// Package tracer supplies the embedded JS debug tracer run against
// simulateValidation via debug_traceCall, and the Go types that decode
// its result (spec §4.B).
package tracer

// ValidationTracerJS partitions a simulateValidation trace by
// validation phase (one NUMBER opcode at depth 1 advances the phase:
// the EntryPoint calls NUMBER once between validateUserOp,
// validatePaymasterUserOp, and the post-validation execution phase)
// and, within each phase, records per-call opcode counts (depth > 1
// only; the EntryPoint's own depth-1 opcodes are trusted), storage
// reads/writes, and observed contract sizes. Gas accounting for
// execution_gas_limit follows the EVM's 63/64 forwarding rule so that
// the number reported is what re-execution will actually need.
const ValidationTracerJS = `
{
	callsFromEntryPoint: [],
	currentLevel: null,
	keccak: [],
	calls: [],
	logs: [],
	debug: [],
	output: '0x',
	error: '',
	reverts: [],
	validationOOG: false,
	executionOOG: false,
	executionGasLimit: 0,

	_marker: 0,
	_validationMarker: 1,
	_executionMarker: 3,
	_gasStack: [],
	_userOpEventTopic: '49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f',
	_userOpRevertTopic: '1c4fada7374c0a9ee8841fc38afe82932dc0f8e69012e927f061a8bae611a201',

	_top: function () {
		return this.callsFromEntryPoint[this.callsFromEntryPoint.length - 1]
	},

	_isValidation: function () {
		return this._marker >= this._validationMarker && this._marker < this._executionMarker
	},

	_isExecution: function () {
		return this._marker === this._executionMarker
	},

	fault: function (log, db) {
		this.debug.push('fault depth=' + log.getDepth() + ' err=' + log.getError())
	},

	result: function (ctx, db) {
		return {
			callsFromEntryPoint: this.callsFromEntryPoint,
			keccak: this.keccak,
			calls: this.calls,
			logs: this.logs,
			debug: this.debug,
			output: toHex(ctx.output),
			error: ctx.error === undefined ? '' : ctx.error,
			reverts: this.reverts,
			validationOOG: this.validationOOG,
			executionOOG: this.executionOOG,
			executionGasLimit: this.executionGasLimit,
		}
	},

	enter: function (frame) {
		this.calls.push({
			type: frame.getType(),
			from: toHex(frame.getFrom()),
			to: toHex(frame.getTo()),
			method: toHex(frame.getInput()).slice(0, 10),
			gas: frame.getGas(),
			value: frame.getValue() === undefined ? '0x0' : '0x' + frame.getValue().toString(16),
		})
		if (this._isExecution()) {
			this._gasStack.push({ used: 0, required: 0 })
		}
	},

	exit: function (frame) {
		var errored = frame.getError() !== undefined
		this.calls.push({
			type: errored ? 'REVERT' : 'RETURN',
			gasUsed: frame.getGasUsed(),
			data: toHex(frame.getOutput()),
		})
		if (errored) {
			this.reverts.push(toHex(frame.getOutput()))
		}
		if (this._isExecution() && this._gasStack.length > 0) {
			var nested = this._gasStack.pop()
			var used = frame.getGasUsed()
			var parent = this._gasStack[this._gasStack.length - 1]
			if (parent !== undefined) {
				parent.used += used
				parent.required += used - nested.used + Math.ceil((nested.required * 64) / 63)
				this.executionGasLimit = parent.required
			} else {
				this.executionGasLimit = used + Math.ceil((nested.required * 64) / 63)
			}
		}
	},

	_matchesTopic: function (log, topic) {
		return log.stack.peek(2).toString(16) === topic
	},

	_captureLog: function (opcode, log) {
		var count = parseInt(opcode.substring(3))
		var ofs = parseInt(log.stack.peek(0).toString())
		var len = parseInt(log.stack.peek(1).toString())
		var topics = []
		for (var i = 0; i < count; i++) {
			topics.push('0x' + log.stack.peek(2 + i).toString(16))
		}
		return { topics: topics, data: toHex(log.memory.slice(ofs, ofs + len)) }
	},

	step: function (log, db) {
		var depth = log.getDepth()
		var opcode = log.op.toString()

		if (depth === 1) {
			if (opcode === 'NUMBER') {
				this._marker++
				this.currentLevel = { topLevelMethodSig: '0x', access: {}, opcodes: {}, contractSize: {} }
				this.callsFromEntryPoint.push(this.currentLevel)
			}
			if (log.getGas() < log.getCost()) {
				if (this._isValidation()) this.validationOOG = true
				if (this._isExecution()) this.executionOOG = true
			}
			return
		}

		if (log.getGas() < log.getCost()) {
			if (this._isValidation()) this.validationOOG = true
			if (this._isExecution()) this.executionOOG = true
		}

		if (opcode.startsWith('LOG')) {
			if (this._matchesTopic(log, this._userOpEventTopic)) {
				this.logs.push(Object.assign({ kind: 'UserOperationEvent' }, this._captureLog(opcode, log)))
			} else if (this._matchesTopic(log, this._userOpRevertTopic)) {
				this.logs.push(Object.assign({ kind: 'UserOperationRevertReason' }, this._captureLog(opcode, log)))
			}
		}

		if (opcode === 'KECCAK256') {
			var ofs = parseInt(log.stack.peek(0).toString())
			var len = parseInt(log.stack.peek(1).toString())
			this.keccak.push(toHex(log.memory.slice(ofs, ofs + len)))
		}

		if (this.currentLevel === null) return

		if (depth > 1) {
			this.currentLevel.opcodes[opcode] = (this.currentLevel.opcodes[opcode] || 0) + 1
		}

		if (this.currentLevel.topLevelMethodSig === '0x' && depth === 2 && this.calls.length > 0) {
			var lastCall = this.calls[this.calls.length - 1]
			if (lastCall.method !== undefined) this.currentLevel.topLevelMethodSig = lastCall.method
		}

		var addr
		if (opcode === 'SLOAD' || opcode === 'SSTORE') {
			addr = toHex(log.contract.getAddress())
			if (this.currentLevel.access[addr] === undefined) {
				this.currentLevel.access[addr] = { reads: {}, writes: {} }
			}
			var slot = log.stack.peek(0).toString(16)
			if (opcode === 'SLOAD') {
				this.currentLevel.access[addr].reads[slot] = null
			} else {
				this.currentLevel.access[addr].writes[slot] = log.stack.peek(1).toString(16)
			}
		}

		if (opcode === 'EXTCODESIZE' || opcode === 'EXTCODEHASH' || opcode === 'EXTCODECOPY') {
			var target = toAddress(log.stack.peek(0).toString(16))
			this.currentLevel.contractSize[toHex(target)] = db.getCode(target).length
		}
	},
}
`
