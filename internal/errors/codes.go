package errors

// Error codes for the aster backend.
// These codes are used in diagnostics and documentation to provide
// consistent error identification across the toolchain.
//
// Error code ranges:
// E0800-E0899: Backend invariant violations (internal compiler errors)
// E0900-E0999: SSA lowering errors
// E1000-E1099: Manifest/configuration errors

const (
	// E0801: A basic block does not end in exactly one terminator
	ErrorUnterminatedBlock = "E0801"

	// E0802: An instruction appears after a terminator inside a block
	ErrorInstrAfterTerminator = "E0802"

	// E0803: An instruction references a variable id never declared
	ErrorUndeclaredVariable = "E0803"

	// E0804: A branch or switch targets a block that does not exist
	ErrorBadBlockTarget = "E0804"

	// E0805: A CFG was handed to the emitter without any blocks
	ErrorEmptyGraph = "E0805"

	// E0901: A variable is read on some path before any definition
	ErrorUndefinedRead = "E0901"

	// E1001: The contract manifest is malformed
	ErrorBadManifest = "E1001"

	// E1002: A function signature cannot be parsed
	ErrorBadSignature = "E1002"

	// E1003: Two functions in the same dispatch group share a selector
	ErrorDuplicateSelector = "E1003"
)
