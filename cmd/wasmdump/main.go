package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-decoder/engine"
	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/flat"
	"github.com/wippyai/wasm-decoder/visitor"
	"github.com/wippyai/wasm-decoder/wasm"
)

type options struct {
	wasmFile string
	funcName string
	invoke   string
	args     string
	list     bool
	check    bool
	verbose  bool
}

func main() {
	var (
		opts        options
		interactive bool
	)
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&opts.funcName, "func", "", "Only list this function (name or index)")
	flag.BoolVar(&opts.list, "list", false, "Print the module summary and exit")
	flag.BoolVar(&opts.check, "check", false, "Cross-check the decoded module against wazero")
	flag.StringVar(&opts.invoke, "invoke", "", "Exported function to call with wazero")
	flag.StringVar(&opts.args, "args", "", "Arguments for -invoke (comma-separated)")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmdump -wasm <file.wasm> [-func name|index] [-v]")
		fmt.Fprintln(os.Stderr, "       wasmdump -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       wasmdump -wasm <file.wasm> -check")
		fmt.Fprintln(os.Stderr, "       wasmdump -wasm <file.wasm> -invoke name [-args 1,2]")
		fmt.Fprintln(os.Stderr, "       wasmdump -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	var log *zap.Logger
	if opts.verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
		wasm.SetLogger(log)
		engine.SetLogger(log)
	} else {
		log = zap.NewNop()
	}

	if interactive {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if err := runInteractive(opts.wasmFile, log); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		log.Warn("stdout is not a terminal, falling back to plain output")
	}

	if err := run(context.Background(), os.Stdout, opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, opts options, log *zap.Logger) error {
	data, m, err := load(opts.wasmFile)
	if err != nil {
		return err
	}

	printSummary(w, opts.wasmFile, len(data), m)
	if opts.list {
		return nil
	}

	if opts.check || opts.invoke != "" {
		eng, err := engine.NewEngine(ctx, nil)
		if err != nil {
			return fmt.Errorf("create engine: %w", err)
		}
		defer eng.Close(ctx)

		if opts.check {
			report, err := eng.Crosscheck(ctx, data, m)
			if err != nil {
				return fmt.Errorf("crosscheck: %w", err)
			}
			printReport(w, report)
		}
		if opts.invoke != "" {
			var args []string
			if opts.args != "" {
				args = strings.Split(opts.args, ",")
			}
			results, err := eng.Invoke(ctx, data, m, opts.invoke, args)
			if err != nil {
				return fmt.Errorf("invoke %s: %w", opts.invoke, err)
			}
			fmt.Fprintf(w, "\n%s(%s) = %s\n", opts.invoke, strings.Join(args, ", "), strings.Join(results, ", "))
		}
		return nil
	}

	funcs := m.LocalFunctions()
	if opts.funcName != "" {
		fn, err := findFunction(m, opts.funcName)
		if err != nil {
			return err
		}
		funcs = []*wasm.Function{fn}
	}

	for _, fn := range funcs {
		p, err := flat.Compile(m, fn, visitor.WithLogger(log))
		if err != nil {
			return fmt.Errorf("function %d (%s): %w", fn.Index, fn.Name(), err)
		}
		fmt.Fprintf(w, "\n%s", p)
	}
	return nil
}

func load(path string) ([]byte, *wasm.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Load("read file", err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode: %w", err)
	}
	return data, m, nil
}

// findFunction resolves a function by export name, import name or index.
// Only locally defined functions have a listing.
func findFunction(m *wasm.Module, name string) (*wasm.Function, error) {
	var fn *wasm.Function
	if idx, err := strconv.ParseUint(name, 10, 32); err == nil {
		f, err := m.Function(uint32(idx))
		if err != nil {
			return nil, err
		}
		fn = f
	} else {
		for _, f := range m.Functions {
			if f.Name() == name {
				fn = f
				break
			}
		}
		if fn == nil {
			if f, err := m.ExportedFunction(name); err == nil {
				fn = f
			}
		}
	}
	if fn == nil {
		return nil, fmt.Errorf("function %q not found", name)
	}
	if fn.IsImported() {
		return nil, fmt.Errorf("function %q is imported from %s", name, fn.Import.Module)
	}
	return fn, nil
}

func printSummary(w io.Writer, path string, size int, m *wasm.Module) {
	fmt.Fprintf(w, "Module: %s (%d bytes)\n", path, size)
	fmt.Fprintf(w, "Types: %d\n", len(m.Types))
	fmt.Fprintf(w, "Functions: %d (%d imported)\n", len(m.Functions), m.ImportedCount(wasm.KindFunc))
	fmt.Fprintf(w, "Tables: %d  Memories: %d  Globals: %d\n", len(m.Tables), len(m.Memories), len(m.Globals))
	fmt.Fprintf(w, "Elements: %d  Data: %d  Custom: %d\n", len(m.Elements), len(m.Data), len(m.CustomSections))
	if m.Start != nil {
		fmt.Fprintf(w, "Start: %d\n", *m.Start)
	}

	if len(m.Imports) > 0 {
		fmt.Fprintf(w, "\nImports:\n")
		for _, imp := range m.Imports {
			fmt.Fprintf(w, "  %-6s %s.%s%s\n", imp.Kind, imp.Module, imp.Name, importDetail(m, imp))
		}
	}

	if len(m.Exports) > 0 {
		fmt.Fprintf(w, "\nExports:\n")
		for _, exp := range m.Exports {
			fmt.Fprintf(w, "  %-6s %s -> %d\n", exp.Kind, exp.Name, exp.Index)
		}
	}

	fmt.Fprintf(w, "\nFunctions:\n")
	for _, fn := range m.Functions {
		if fn.IsImported() {
			fmt.Fprintf(w, "  [%d] %s %s (imported)\n", fn.Index, fn.Name(), fn.Type)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s %s locals=%d\n", fn.Index, fn.Name(), fn.Type, len(fn.Code.FlatLocals()))
	}
}

func importDetail(m *wasm.Module, imp wasm.Import) string {
	switch imp.Kind {
	case wasm.KindFunc:
		if t, err := m.Type(imp.TypeIndex); err == nil {
			return " " + t.String()
		}
	case wasm.KindMemory:
		if imp.Memory != nil {
			return " " + imp.Memory.String()
		}
	case wasm.KindGlobal:
		if imp.Global != nil && imp.Global.Mutable {
			return " mut " + imp.Global.Type.String()
		} else if imp.Global != nil {
			return " " + imp.Global.Type.String()
		}
	}
	return ""
}

func printReport(w io.Writer, r *engine.Report) {
	switch {
	case r.Rejected != "":
		fmt.Fprintf(w, "\nwazero rejected the module: %s\n", r.Rejected)
	case r.OK():
		fmt.Fprintf(w, "\nwazero agrees with the decoded module\n")
	default:
		fmt.Fprintf(w, "\n%d mismatch(es) with wazero:\n", len(r.Mismatches))
		for _, msg := range r.Mismatches {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
}
