package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-decoder/wasm"
)

// Report lists the differences between the decoded module and wazero's
// view of the same bytes.
type Report struct {
	Mismatches []string
	// Rejected holds wazero's compile error when it refused the module.
	Rejected string
}

// OK reports whether wazero accepted the module and agreed on every
// compared signature.
func (r *Report) OK() bool {
	return r.Rejected == "" && len(r.Mismatches) == 0
}

func (r *Report) addf(format string, args ...any) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

// Crosscheck compiles data with wazero and compares its exported and
// imported functions against m, which must have been decoded from data.
// A compile failure is not an error: it is recorded in Report.Rejected.
func (e *Engine) Crosscheck(ctx context.Context, data []byte, m *wasm.Module) (*Report, error) {
	report := &Report{}

	compiled, err := e.compile(ctx, data)
	if err != nil {
		report.Rejected = err.Error()
		Logger().Debug("crosscheck rejected", zap.Error(err))
		return report, nil
	}
	defer compiled.Close(ctx)

	checkExports(report, m, compiled.ExportedFunctions())
	checkImports(report, m, compiled.ImportedFunctions())

	Logger().Debug("crosscheck complete",
		zap.Int("mismatches", len(report.Mismatches)))
	return report, nil
}

func checkExports(report *Report, m *wasm.Module, theirs map[string]api.FunctionDefinition) {
	seen := make(map[string]bool, len(theirs))
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		seen[exp.Name] = true
		def, ok := theirs[exp.Name]
		if !ok {
			report.addf("export %q: not a function export in wazero", exp.Name)
			continue
		}
		fn, err := m.Function(exp.Index)
		if err != nil {
			report.addf("export %q: %v", exp.Name, err)
			continue
		}
		compareSignature(report, "export "+quote(exp.Name), fn.Type, def)
	}

	var extra []string
	for name := range theirs {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		report.addf("export %q: missing from decoded module", name)
	}
}

func checkImports(report *Report, m *wasm.Module, theirs []api.FunctionDefinition) {
	ours := m.Functions[:m.ImportedCount(wasm.KindFunc)]
	if len(ours) != len(theirs) {
		report.addf("imported functions: decoded %d, wazero %d", len(ours), len(theirs))
	}

	for i := 0; i < len(ours) && i < len(theirs); i++ {
		fn := ours[i]
		mod, name, _ := theirs[i].Import()
		what := fmt.Sprintf("import %d (%s.%s)", i, fn.Import.Module, fn.Import.Name)
		if mod != fn.Import.Module || name != fn.Import.Name {
			report.addf("%s: wazero names it %s.%s", what, mod, name)
			continue
		}
		compareSignature(report, what, fn.Type, theirs[i])
	}
}

func compareSignature(report *Report, what string, ft wasm.FuncType, def api.FunctionDefinition) {
	if !slices.Equal(valueTypes(ft.Params), def.ParamTypes()) {
		report.addf("%s: params %s, wazero %s", what, typeList(ft.Params), apiTypeList(def.ParamTypes()))
	}
	if !slices.Equal(valueTypes(ft.Results), def.ResultTypes()) {
		report.addf("%s: results %s, wazero %s", what, typeList(ft.Results), apiTypeList(def.ResultTypes()))
	}
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}

func typeList(ts []wasm.ValType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func apiTypeList(ts []api.ValueType) string {
	out := make([]wasm.ValType, len(ts))
	for i, t := range ts {
		out[i] = wasm.ValType(t)
	}
	return typeList(out)
}
