package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/wasm"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Engine wraps a wazero runtime.
type Engine struct {
	runtime wazero.Runtime

	// hosts maps import module -> name -> implementation.
	hostsMu sync.RWMutex
	hosts   map[string]map[string]api.GoModuleFunc

	// Host modules are instantiated under their import names, which must be
	// unique within the runtime.
	invokeMu sync.Mutex
}

// NewEngine creates a wazero runtime. cfg may be nil.
func NewEngine(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		hosts:   make(map[string]map[string]api.GoModuleFunc),
	}, nil
}

// Define registers a host implementation for the function import
// module.name. The signature is taken from the importing module at
// instantiation time.
func (e *Engine) Define(module, name string, fn api.GoModuleFunc) {
	e.hostsMu.Lock()
	defer e.hostsMu.Unlock()
	if e.hosts[module] == nil {
		e.hosts[module] = make(map[string]api.GoModuleFunc)
	}
	e.hosts[module][name] = fn
}

// Close releases the runtime and every module compiled by it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func (e *Engine) host(module, name string) api.GoModuleFunc {
	e.hostsMu.RLock()
	defer e.hostsMu.RUnlock()
	return e.hosts[module][name]
}

func (e *Engine) compile(ctx context.Context, data []byte) (wazero.CompiledModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "wazero rejected module")
	}
	Logger().Debug("compiled module",
		zap.Int("size", len(data)),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Int("imports", len(compiled.ImportedFunctions())))
	return compiled, nil
}

// valueTypes converts decoder value types to wazero's. Both use the binary
// format's type bytes.
func valueTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}
