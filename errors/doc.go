// Package errors provides structured error types for the wasm-decoder library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the section name, the absolute byte
// offset in the module image and the offending opcode when they are known.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidOpcode).
//		Section("code").
//		At(42).
//		Opcode(0xfc12).
//		Detail("unknown misc sub-opcode").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Truncated("import", 17, io.ErrUnexpectedEOF)
//	err := errors.OutOfBounds(errors.PhaseDecode, "function", 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so callers can test for a category:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindUnsupported}) {
//		// skip module that uses an unsupported proposal
//	}
package errors
