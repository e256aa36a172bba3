// Package engine runs decoded modules on wazero.
//
// The decoder and wazero read the same bytes independently, which makes
// wazero a useful second opinion: Crosscheck compiles a module with wazero
// and reports every place where the two disagree about exported and
// imported function signatures. Invoke instantiates a module and calls one
// of its exported functions, converting textual arguments and results with
// the signature the decoder produced.
//
//	eng, err := engine.NewEngine(ctx, nil)
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	report, err := eng.Crosscheck(ctx, data, module)
//	results, err := eng.Invoke(ctx, data, module, "add", []string{"2", "40"})
//
// Function imports are satisfied with host functions registered through
// Define. Any other unresolved import makes Invoke fail with an
// *errors.MissingImportsError listing every missing import.
package engine
