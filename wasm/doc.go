// Package wasm decodes WebAssembly binary modules into an in-memory data
// model.
//
// # Supported Features
//
//	WebAssembly 1.0 (MVP) plus:
//	  - Sign extension operators
//	  - Saturating float-to-int truncation (0xFC 0-7)
//	  - Bulk memory and table operations (0xFC 8-17)
//	  - Reference types in instructions (ref.null, ref.is_null, ref.func, typed select)
//	  - Passive and declarative element segments with function indices
//	  - Passive data segments and the data count section
//
//	Reported as unsupported (errors.KindUnsupported):
//	  - GC types and instructions (0xFB)
//	  - SIMD instructions (0xFD)
//	  - Threads and atomics (0xFE), shared memories
//	  - Memory64, externref tables, element expressions
//	  - Type-indexed (multi-value) block types
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Index Spaces
//
// Functions, tables, memories and globals each form an index space. Imports
// are placed first, in import order, followed by local definitions:
//
//	module.ImportedCount(wasm.KindFunc) // number of imported functions
//	module.Functions[i].Import          // non-nil for imported functions
//	module.Functions[i].Code            // body, non-nil for local functions
//
// # Instructions
//
// Function bodies are decoded into a tree of Instruction values. Block, Loop
// and If own their nested bodies; an else branch is folded into If.Else.
//
//	for _, in := range fn.Code.Body.Instrs {
//	    fmt.Println(wasm.Format(in))
//	}
//
// # Logging
//
// Skipped custom and unknown sections are reported through a zap logger,
// silent by default:
//
//	wasm.SetLogger(zap.NewExample())
package wasm
