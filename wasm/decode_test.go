package wasm_test

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/internal/wasmtest"
	"github.com/wippyai/wasm-decoder/wasm"
)

func ptrTo[T any](v T) *T { return &v }

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
)

func expectKind(t *testing.T, err error, want errors.Kind) *errors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if e.Kind != want {
		t.Fatalf("kind = %s, want %s (%v)", e.Kind, want, err)
	}
	return e
}

func TestParseMinimalModule(t *testing.T) {
	m, err := wasm.ParseModule(wasmtest.Header())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.Functions) != 0 || len(m.Types) != 0 {
		t.Errorf("expected empty module, got %d functions, %d types", len(m.Functions), len(m.Types))
	}
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}},
		{"truncated magic", []byte{0x00, 0x61, 0x73}},
		{"truncated version", []byte{0x00, 0x61, 0x73, 0x6D, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := wasm.ParseModule(tt.data)
			if m != nil {
				t.Error("expected nil module on failure")
			}
			e := expectKind(t, err, errors.KindFraming)
			if e.Section != "header" {
				t.Errorf("section = %q, want header", e.Section)
			}
		})
	}
}

func TestParseEndToEnd(t *testing.T) {
	b := wasmtest.New()
	logType := b.Type([]wasm.ValType{i32}, nil)
	runType := b.Type(nil, nil)
	logFn := b.ImportFunc("env", "log", logType)
	run := b.Func(runType, nil,
		0x41, 0x2a, // i32.const 42
		0x10, byte(logFn), // call 0
		0x0b,
	)
	b.Export("run", wasm.KindFunc, run)

	m, err := wasm.ParseModule(b.Bytes())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(m.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(m.Functions))
	}
	imp := m.Functions[0]
	if !imp.IsImported() || imp.Code != nil {
		t.Errorf("function 0 should be an import without code")
	}
	if imp.Import.Module != "env" || imp.Import.Name != "log" {
		t.Errorf("import = %s.%s", imp.Import.Module, imp.Import.Name)
	}
	if !imp.Type.Equal(wasm.FuncType{Params: []wasm.ValType{i32}}) {
		t.Errorf("import type = %s", imp.Type)
	}

	fn, err := m.ExportedFunction("run")
	if err != nil {
		t.Fatalf("ExportedFunction: %v", err)
	}
	if fn.Index != 1 || fn != m.Functions[1] {
		t.Errorf("run resolved to function %d", fn.Index)
	}
	if fn.Name() != "run" {
		t.Errorf("Name = %q, want run", fn.Name())
	}
	if fn.Code == nil || fn.Code.Body.Len() != 2 {
		t.Fatalf("unexpected body: %+v", fn.Code)
	}
	c, ok := fn.Code.Body.Instrs[0].(*wasm.I32Const)
	if !ok || c.Value != 42 {
		t.Errorf("instr 0 = %#v", fn.Code.Body.Instrs[0])
	}
	call, ok := fn.Code.Body.Instrs[1].(*wasm.Call)
	if !ok || call.Func != 0 {
		t.Errorf("instr 1 = %#v", fn.Code.Body.Instrs[1])
	}
}

func TestIndexSpacePartitioning(t *testing.T) {
	b := wasmtest.New()
	v := b.Type(nil, nil)
	b.ImportFunc("env", "a", v)
	b.ImportGlobal("env", "g", i64, false)
	b.ImportFunc("env", "b", v)
	b.ImportMemory("env", "mem", 1)
	for i := 0; i < 3; i++ {
		b.Func(v, nil, 0x0b)
	}
	b.Global(i32, true, 0x41, 0x00, 0x0b)
	b.Table(1)

	m, err := wasm.ParseModule(b.Bytes())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if got := m.ImportedCount(wasm.KindFunc); got != 2 {
		t.Errorf("imported functions = %d, want 2", got)
	}
	if got := m.ImportedCount(wasm.KindGlobal); got != 1 {
		t.Errorf("imported globals = %d, want 1", got)
	}
	if got := m.ImportedCount(wasm.KindMemory); got != 1 {
		t.Errorf("imported memories = %d, want 1", got)
	}
	if len(m.Functions) != 5 {
		t.Fatalf("functions = %d, want 5", len(m.Functions))
	}
	for i, fn := range m.Functions {
		if fn.Index != uint32(i) {
			t.Errorf("function %d has Index %d", i, fn.Index)
		}
		if i < 2 && (fn.Import == nil || fn.Code != nil) {
			t.Errorf("function %d should be imported", i)
		}
		if i >= 2 && (fn.Import != nil || fn.Code == nil) {
			t.Errorf("function %d should be local with code", i)
		}
	}
	if m.Functions[1].Import.Index != 1 {
		t.Errorf("second function import has Index %d", m.Functions[1].Import.Index)
	}
	if len(m.Globals) != 2 || m.Globals[0].Import == nil || m.Globals[1].Import != nil {
		t.Errorf("globals not partitioned: %+v", m.Globals)
	}
	if m.Globals[1].Index != 1 || !m.Globals[1].Type.Mutable {
		t.Errorf("local global = %+v", m.Globals[1])
	}
	if len(m.Memories) != 1 || len(m.Tables) != 1 {
		t.Errorf("memories=%d tables=%d", len(m.Memories), len(m.Tables))
	}
	if got := len(m.LocalFunctions()); got != 3 {
		t.Errorf("LocalFunctions = %d, want 3", got)
	}
}

func TestParseSectionLengthMismatch(t *testing.T) {
	// type section with one () -> () entry plus a stray byte
	data := wasmtest.Module([]byte{wasm.SectionType, 0x01, 0x60, 0x00, 0x00, 0xff})
	_, err := wasm.ParseModule(data)
	e := expectKind(t, err, errors.KindFraming)
	if e.Section != "type" {
		t.Errorf("section = %q, want type", e.Section)
	}
	if e.Offset != len(data)-1 {
		t.Errorf("offset = %d, want %d", e.Offset, len(data)-1)
	}
}

func TestParseSectionOverrun(t *testing.T) {
	// type section claims two entries but holds one
	data := wasmtest.Module([]byte{wasm.SectionType, 0x02, 0x60, 0x00, 0x00})
	_, err := wasm.ParseModule(data)
	expectKind(t, err, errors.KindTruncated)
}

func TestParseTruncatedSectionBody(t *testing.T) {
	data := append(wasmtest.Header(), wasm.SectionType, 0x10, 0x01, 0x60)
	_, err := wasm.ParseModule(data)
	e := expectKind(t, err, errors.KindTruncated)
	if e.Offset != 8 {
		t.Errorf("offset = %d, want 8", e.Offset)
	}
}

func TestParseSectionOrdering(t *testing.T) {
	data := wasmtest.Module(
		[]byte{wasm.SectionFunction, 0x00},
		[]byte{wasm.SectionType, 0x00},
	)
	_, err := wasm.ParseModule(data)
	expectKind(t, err, errors.KindFraming)

	dup := wasmtest.Module(
		[]byte{wasm.SectionType, 0x00},
		[]byte{wasm.SectionType, 0x00},
	)
	_, err = wasm.ParseModule(dup)
	expectKind(t, err, errors.KindFraming)
}

func TestParseSkipsCustomAndUnknownSections(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	wasm.SetLogger(zap.New(core))
	defer wasm.SetLogger(nil)

	b := wasmtest.New()
	b.Custom("producers", []byte{0x01, 0x02})
	b.Type(nil, nil)
	b.Section(0x20, []byte{0xde, 0xad, 0xbe, 0xef})

	m, err := wasm.ParseModule(b.Bytes())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.CustomSections) != 1 || m.CustomSections[0].Name != "producers" {
		t.Fatalf("custom sections = %+v", m.CustomSections)
	}
	if !bytes.Equal(m.CustomSections[0].Data, []byte{0x01, 0x02}) {
		t.Errorf("custom payload = %x", m.CustomSections[0].Data)
	}
	if len(m.Types) != 1 {
		t.Errorf("types = %d, want 1", len(m.Types))
	}
	if n := logs.FilterMessage("skipping custom section").Len(); n != 1 {
		t.Errorf("custom section warnings = %d, want 1", n)
	}
	unknown := logs.FilterMessage("skipping unknown section").All()
	if len(unknown) != 1 {
		t.Fatalf("unknown section warnings = %d, want 1", len(unknown))
	}
	if id := unknown[0].ContextMap()["id"]; id != uint8(0x20) {
		t.Errorf("logged id = %v, want 0x20", id)
	}
}

func TestParseExportErrors(t *testing.T) {
	t.Run("out of range", func(t *testing.T) {
		b := wasmtest.New()
		v := b.Type(nil, nil)
		b.Func(v, nil, 0x0b)
		b.Export("missing", wasm.KindFunc, 7)
		_, err := wasm.ParseModule(b.Bytes())
		e := expectKind(t, err, errors.KindOutOfBounds)
		if e.Section != "export" {
			t.Errorf("section = %q, want export", e.Section)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		b := wasmtest.New()
		v := b.Type(nil, nil)
		f := b.Func(v, nil, 0x0b)
		b.Export("f", wasm.KindFunc, f)
		b.Export("f", wasm.KindFunc, f)
		_, err := wasm.ParseModule(b.Bytes())
		expectKind(t, err, errors.KindInvalidData)
	})

	t.Run("memory and global", func(t *testing.T) {
		b := wasmtest.New()
		b.Memory(1, ptrTo(uint32(2)))
		g := b.Global(i32, false, 0x41, 0x07, 0x0b)
		b.Export("mem", wasm.KindMemory, 0)
		b.Export("g", wasm.KindGlobal, g)
		m, err := wasm.ParseModule(b.Bytes())
		if err != nil {
			t.Fatalf("ParseModule: %v", err)
		}
		if e, ok := m.ResolveExport("g"); !ok || e.Kind != wasm.KindGlobal {
			t.Errorf("ResolveExport(g) = %+v, %v", e, ok)
		}
		if _, err := m.ExportedFunction("g"); err == nil {
			t.Error("global export resolved as function")
		}
		if *m.Memories[0].Max != 2 {
			t.Errorf("memory max = %d", *m.Memories[0].Max)
		}
	})
}

func TestParseCodeCountMismatch(t *testing.T) {
	data := wasmtest.Module(
		[]byte{wasm.SectionType, 0x01, 0x60, 0x00, 0x00},
		[]byte{wasm.SectionFunction, 0x02, 0x00, 0x00},
		[]byte{wasm.SectionCode, 0x01, 0x02, 0x00, 0x0b},
	)
	_, err := wasm.ParseModule(data)
	e := expectKind(t, err, errors.KindInvalidData)
	if e.Section != "code" {
		t.Errorf("section = %q, want code", e.Section)
	}
}

func TestParseMissingCodeSection(t *testing.T) {
	data := wasmtest.Module(
		[]byte{wasm.SectionType, 0x01, 0x60, 0x00, 0x00},
		[]byte{wasm.SectionFunction, 0x01, 0x00},
	)
	_, err := wasm.ParseModule(data)
	expectKind(t, err, errors.KindInvalidData)
}

func TestParseBodySizeMismatch(t *testing.T) {
	// body declares 4 bytes but end arrives after 2
	data := wasmtest.Module(
		[]byte{wasm.SectionType, 0x01, 0x60, 0x00, 0x00},
		[]byte{wasm.SectionFunction, 0x01, 0x00},
		[]byte{wasm.SectionCode, 0x01, 0x04, 0x00, 0x0b, 0x01, 0x01},
	)
	_, err := wasm.ParseModule(data)
	expectKind(t, err, errors.KindFraming)
}

func TestParseLocals(t *testing.T) {
	b := wasmtest.New()
	v := b.Type([]wasm.ValType{i32}, nil)
	b.Func(v, []wasm.LocalEntry{{Count: 2, Type: i64}, {Count: 1, Type: wasm.ValF64}}, 0x0b)
	m, err := wasm.ParseModule(b.Bytes())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	got := m.Functions[0].Locals()
	want := []wasm.ValType{i32, i64, i64, wasm.ValF64}
	if len(got) != len(want) {
		t.Fatalf("locals = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("local %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseTooManyLocals(t *testing.T) {
	b := wasmtest.New()
	v := b.Type(nil, nil)
	b.Func(v, []wasm.LocalEntry{{Count: 40000, Type: i32}, {Count: 10001, Type: i32}}, 0x0b)
	_, err := wasm.ParseModule(b.Bytes())
	expectKind(t, err, errors.KindInvalidData)
}

func TestParseElementsAndData(t *testing.T) {
	b := wasmtest.New()
	v := b.Type(nil, nil)
	f0 := b.Func(v, nil, 0x0b)
	f1 := b.Func(v, nil, 0x0b)
	b.Table(2)
	b.Memory(1, nil)
	b.Elem(0, f1, f0)
	b.Data(16, []byte("hi"))
	b.Start(f0)

	m, err := wasm.ParseModule(b.Bytes())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if m.Start == nil || *m.Start != f0 {
		t.Errorf("start = %v", m.Start)
	}
	if len(m.Elements) != 1 {
		t.Fatalf("elements = %d", len(m.Elements))
	}
	fns, err := m.Elements[0].Functions(m)
	if err != nil {
		t.Fatalf("Element.Functions: %v", err)
	}
	if len(fns) != 2 || fns[0].Index != f1 || fns[1].Index != f0 {
		t.Errorf("element functions = %v", fns)
	}
	off, ok := m.Elements[0].Offset.Instrs[0].(*wasm.I32Const)
	if !ok || off.Value != 0 {
		t.Errorf("element offset = %#v", m.Elements[0].Offset)
	}
	if len(m.Data) != 1 || string(m.Data[0].Init) != "hi" || m.Data[0].Passive {
		t.Fatalf("data = %+v", m.Data)
	}
	if c := m.Data[0].Offset.Instrs[0].(*wasm.I32Const); c.Value != 16 {
		t.Errorf("data offset = %d", c.Value)
	}
}

func TestParsePassiveSegments(t *testing.T) {
	data := wasmtest.Module(
		[]byte{wasm.SectionType, 0x01, 0x60, 0x00, 0x00},
		[]byte{wasm.SectionFunction, 0x01, 0x00},
		// flags 1: passive, elemkind funcref, [0]
		[]byte{wasm.SectionElement, 0x01, 0x01, 0x00, 0x01, 0x00},
		[]byte{wasm.SectionDataCount, 0x01},
		[]byte{wasm.SectionCode, 0x01, 0x02, 0x00, 0x0b},
		// flags 1: passive, "ab"
		[]byte{wasm.SectionData, 0x01, 0x01, 0x02, 'a', 'b'},
	)
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if !m.Elements[0].Passive || m.Elements[0].Offset.Len() != 0 {
		t.Errorf("element = %+v", m.Elements[0])
	}
	if m.DataCount == nil || *m.DataCount != 1 {
		t.Errorf("data count = %v", m.DataCount)
	}
	if !m.Data[0].Passive || string(m.Data[0].Init) != "ab" {
		t.Errorf("data = %+v", m.Data[0])
	}
}

func TestParseUnsupportedFeatures(t *testing.T) {
	tests := []struct {
		name    string
		section []byte
	}{
		{"externref table", []byte{wasm.SectionTable, 0x01, 0x6f, 0x00, 0x01}},
		{"shared memory", []byte{wasm.SectionMemory, 0x01, 0x03, 0x01, 0x02}},
		{"memory64", []byte{wasm.SectionMemory, 0x01, 0x04, 0x01}},
		{"gc struct type", []byte{wasm.SectionType, 0x01, 0x5f, 0x00}},
		{"element expressions", []byte{wasm.SectionElement, 0x01, 0x05, 0x70, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.ParseModule(wasmtest.Module(tt.section))
			expectKind(t, err, errors.KindUnsupported)
			if !errors.IsUnsupported(err) {
				t.Error("IsUnsupported = false")
			}
		})
	}
}

func TestParseInvalidImportKind(t *testing.T) {
	data := wasmtest.Module([]byte{wasm.SectionImport, 0x01, 0x01, 'm', 0x01, 'n', 0x04, 0x00})
	_, err := wasm.ParseModule(data)
	e := expectKind(t, err, errors.KindInvalidData)
	if e.Section != "import" {
		t.Errorf("section = %q", e.Section)
	}
}

func TestParseImportTypeOutOfRange(t *testing.T) {
	data := wasmtest.Module([]byte{wasm.SectionImport, 0x01, 0x01, 'm', 0x01, 'n', 0x00, 0x03})
	_, err := wasm.ParseModule(data)
	expectKind(t, err, errors.KindOutOfBounds)
}

func TestParseInvalidUTF8Name(t *testing.T) {
	data := wasmtest.Module([]byte{wasm.SectionImport, 0x01, 0x01, 0xff, 0x01, 'n', 0x00, 0x00})
	_, err := wasm.ParseModule(data)
	expectKind(t, err, errors.KindInvalidData)
}

func TestGlobalOffsets(t *testing.T) {
	b := wasmtest.New()
	b.ImportGlobal("env", "a", i32, false)
	b.Global(i64, true, 0x42, 0x00, 0x0b)
	b.Global(wasm.ValF32, false, 0x43, 0x00, 0x00, 0x00, 0x00, 0x0b)
	m, err := wasm.ParseModule(b.Bytes())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	offsets, size := m.GlobalOffsets()
	want := []uint32{0, 4, 12}
	for i, o := range want {
		if offsets[i] != o {
			t.Errorf("global %d offset = %d, want %d", i, offsets[i], o)
		}
	}
	if size != 16 {
		t.Errorf("size = %d, want 16", size)
	}
}
