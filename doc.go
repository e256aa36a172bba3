// Package wasmdecoder decodes WebAssembly binary modules and lowers their
// structured control flow for code generators.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmdecoder/         Root package (documentation only)
//	├── leb128/          LEB128 variable-length integer codec
//	├── wasm/            Module data model, binary reader, expression decoder
//	├── visitor/         Control-flow visitor: type stack, labels, local layout
//	├── flat/            Linear programs with resolved jump targets
//	├── engine/          wazero cross-check and invocation
//	├── errors/          Structured error types for debugging
//	└── cmd/wasmdump/    Command line dumper and interactive browser
//
// # Quick Start
//
// Decode a module and walk one of its functions:
//
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fn, err := m.ExportedFunction("main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = visitor.Accept(m, fn, myVisitor)
//
// A visitor receives every non-control instruction with its stack shape,
// plus Goto, GotoIf, GotoTable and Label calls in place of block, loop, if
// and br. Blocks are gone by the time the visitor sees them: a backend
// emitting jumps and labels needs nothing else.
//
// flat.Compile performs the same traversal and returns a Program whose jump
// targets are op indices:
//
//	p, err := flat.Compile(m, fn)
//	fmt.Print(p)
//
// # Index Spaces
//
// Functions, tables, memories and globals each form one index space in
// which imports come first, in import order, followed by local definitions.
// Module.ImportedCount reports where the local definitions start.
//
// # Supported Features
//
// The decoder covers the MVP instruction set plus sign extension,
// non-trapping float-to-int conversion, bulk memory, reference types and
// multi-value function results. SIMD, threads and GC instructions, and
// type-indexed block types, are rejected with a KindUnsupported error.
//
// # Thread Safety
//
// A decoded Module is read-only and may be shared. Each traversal owns its
// Context, so different functions can be visited in parallel.
package wasmdecoder
