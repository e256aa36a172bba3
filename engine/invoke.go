package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/wasm"
)

// Invoke instantiates data and calls the function exported as name. args
// are parsed according to the decoded signature and results are formatted
// the same way. The instance and its host modules are closed before Invoke
// returns.
func (e *Engine) Invoke(ctx context.Context, data []byte, m *wasm.Module, name string, args []string) ([]string, error) {
	fn, err := m.ExportedFunction(name)
	if err != nil {
		return nil, err
	}
	params, err := ParseArgs(fn.Type.Params, args)
	if err != nil {
		return nil, err
	}
	if missing := e.missingImports(m); len(missing) > 0 {
		return nil, errors.NewMissingImportsError(missing)
	}

	e.invokeMu.Lock()
	defer e.invokeMu.Unlock()

	compiled, err := e.compile(ctx, data)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	hosts, err := e.instantiateHosts(ctx, m)
	defer func() {
		for _, h := range hosts {
			_ = h.Close(ctx)
		}
	}()
	if err != nil {
		return nil, err
	}

	inst, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "instantiate module")
	}
	defer inst.Close(ctx)

	export := inst.ExportedFunction(name)
	if export == nil {
		return nil, errors.Mismatch(fmt.Sprintf("wazero has no export %q", name))
	}

	Logger().Debug("invoking export",
		zap.String("name", name),
		zap.Uint32("index", fn.Index),
		zap.Strings("args", args))

	raw, err := export.Call(ctx, params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "call "+name)
	}
	return FormatResults(fn.Type.Results, raw), nil
}

// missingImports returns "module#name" keys for every import without a
// provider. Only function imports can be satisfied, through Define.
func (e *Engine) missingImports(m *wasm.Module) []string {
	var missing []string
	for _, imp := range m.Imports {
		if imp.Kind == wasm.KindFunc && e.host(imp.Module, imp.Name) != nil {
			continue
		}
		missing = append(missing, imp.Module+"#"+imp.Name)
	}
	return missing
}

// instantiateHosts builds one host module per imported module name,
// exporting the Define'd functions with the signatures m declares.
func (e *Engine) instantiateHosts(ctx context.Context, m *wasm.Module) ([]api.Module, error) {
	builders := make(map[string]wazero.HostModuleBuilder)
	var order []string
	exported := make(map[string]bool)

	for _, fn := range m.Functions[:m.ImportedCount(wasm.KindFunc)] {
		imp := fn.Import
		key := imp.Module + "#" + imp.Name
		if exported[key] {
			continue
		}
		exported[key] = true

		b, ok := builders[imp.Module]
		if !ok {
			b = e.runtime.NewHostModuleBuilder(imp.Module)
			builders[imp.Module] = b
			order = append(order, imp.Module)
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(e.host(imp.Module, imp.Name), valueTypes(fn.Type.Params), valueTypes(fn.Type.Results)).
			WithName(imp.Name).
			Export(imp.Name)
	}

	var hosts []api.Module
	for _, name := range order {
		h, err := builders[name].Instantiate(ctx)
		if err != nil {
			return hosts, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "instantiate host module "+name)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// ParseArgs converts textual arguments to wazero's uint64 encoding. Integers
// accept any base understood by strconv with a 0 base; i32 and i64 also
// accept unsigned values up to the type's width.
func ParseArgs(types []wasm.ValType, args []string) ([]uint64, error) {
	if len(args) != len(types) {
		return nil, errors.New(errors.PhaseEngine, errors.KindInvalidData).
			Detail("expected %d argument(s), got %d", len(types), len(args)).
			Build()
	}

	out := make([]uint64, len(args))
	for i, arg := range args {
		v, err := parseValue(types[i], strings.TrimSpace(arg))
		if err != nil {
			return nil, errors.New(errors.PhaseEngine, errors.KindInvalidData).
				Value(arg).
				Cause(err).
				Detail("argument %d: cannot parse %q as %s", i, arg, types[i]).
				Build()
		}
		out[i] = v
	}
	return out, nil
}

func parseValue(t wasm.ValType, s string) (uint64, error) {
	switch t {
	case wasm.ValI32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return api.EncodeI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeU32(uint32(v)), nil
	case wasm.ValI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return api.EncodeI64(v), nil
		}
		return strconv.ParseUint(s, 0, 64)
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	default:
		return 0, errors.Unsupported(errors.PhaseEngine, t.String()+" arguments")
	}
}

// FormatResults renders raw wazero results according to types.
func FormatResults(types []wasm.ValType, raw []uint64) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		t := wasm.ValVoid
		if i < len(types) {
			t = types[i]
		}
		out[i] = formatValue(t, v)
	}
	return out
}

func formatValue(t wasm.ValType, v uint64) string {
	switch t {
	case wasm.ValI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case wasm.ValI64:
		return strconv.FormatInt(int64(v), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("%#x", v)
	}
}
