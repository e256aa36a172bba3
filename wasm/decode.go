package wasm

import (
	stderrors "errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/leb128"
	"github.com/wippyai/wasm-decoder/wasm/internal/binary"
)

// ParseModule parses a WebAssembly binary module. Decoding is all or
// nothing: on failure no partial module is returned and the error is an
// *errors.Error carrying the section and absolute byte offset.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data, 0)
	log := Logger()

	magic, err := r.ReadU32LE()
	if err != nil || magic != Magic {
		return nil, errors.Framing("header", 0, "not a valid module: bad magic number")
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Framing("header", 4, "not a valid module: missing version")
	}
	if version != Version {
		return nil, errors.New(errors.PhaseDecode, errors.KindFraming).
			Section("header").At(4).Value(version).
			Detail("not a valid module: unsupported version %d", version).
			Build()
	}

	m := &Module{}

	// Track section ordering using canonical order, not section IDs
	var lastSectionOrder int

	for r.Len() > 0 {
		start := r.Offset()
		sectionID, _ := r.ReadByte()
		name := SectionName(sectionID)

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, wrapErr(name, start, err)
		}
		sr, err := r.Sub(int(sectionSize))
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindTruncated).
				Section(name).At(start).Cause(err).
				Detail("section declares %d bytes, %d available", sectionSize, r.Len()).
				Build()
		}

		if sectionID != SectionCustom && sectionID <= SectionDataCount {
			order := sectionOrder(sectionID)
			if order <= lastSectionOrder {
				return nil, errors.Framing(name, start, "section out of order or duplicated")
			}
			lastSectionOrder = order
		}

		log.Debug("decoding section",
			zap.String("section", name),
			zap.Int("offset", start),
			zap.Uint32("size", sectionSize))

		if err := parseSection(sectionID, sr, m); err != nil {
			return nil, wrapErr(name, sr.Offset(), err)
		}
		if sr.Len() != 0 {
			return nil, errors.Framing(name, sr.Offset(),
				fmt.Sprintf("section length mismatch: %d bytes left unread", sr.Len()))
		}
	}

	if err := checkBodies(m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseSection(id byte, r *binary.Reader, m *Module) error {
	switch id {
	case SectionCustom:
		return parseCustomSection(r, m)
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		return parseStartSection(r, m)
	case SectionElement:
		return parseElementSection(r, m)
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	case SectionDataCount:
		return parseDataCountSection(r, m)
	default:
		Logger().Warn("skipping unknown section",
			zap.Uint8("id", id),
			zap.Int("offset", r.Offset()),
			zap.Int("size", r.Len()))
		r.ReadRemaining()
		return nil
	}
}

// sectionOrder returns the canonical ordering for a section ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10 // DataCount must come before Code
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return 100
	}
}

// wrapErr attaches section and offset context to a low-level read error.
func wrapErr(section string, offset int, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		if e.Section == "" {
			e.Section = section
		}
		if e.Offset < 0 {
			e.Offset = offset
		}
		return err
	}
	switch {
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		return errors.Truncated(section, offset, io.ErrUnexpectedEOF)
	case stderrors.Is(err, leb128.ErrOverflow):
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Section(section).At(offset).Cause(err).
			Detail("integer representation too long").
			Build()
	case stderrors.Is(err, binary.ErrInvalidUTF8):
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Section(section).At(offset).Cause(err).
			Detail("malformed UTF-8 name").
			Build()
	default:
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Section(section).At(offset).Cause(err).
			Build()
	}
}

// capHint bounds a declared element count by the bytes left, since every
// entry occupies at least one byte.
func capHint(count uint32, r *binary.Reader) int {
	if int(count) > r.Len() {
		return r.Len()
	}
	return int(count)
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data := r.ReadRemaining()
	Logger().Warn("skipping custom section",
		zap.String("name", name),
		zap.Int("size", len(data)))
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: data,
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, capHint(count, r))
	for i := uint32(0); i < count; i++ {
		at := r.Offset()
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch form {
		case FuncTypeByte:
		case RecTypeByte, SubTypeByte, SubFinalByte, StructTypeByte, ArrayTypeByte:
			return errors.New(errors.PhaseDecode, errors.KindUnsupported).
				At(at).Value(form).
				Detail("GC type form 0x%02x", form).
				Build()
		default:
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(at).Value(form).
				Detail("expected functype (0x60), got 0x%02x", form).
				Build()
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	types := make([]ValType, count)
	for i := range types {
		if types[i], err = readValType(r, ""); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, capHint(count, r))
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		at := r.Offset()
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Kind: ExternKind(kind)}

		switch imp.Kind {
		case KindFunc:
			if imp.TypeIndex, err = r.ReadU32(); err != nil {
				return err
			}
			if int(imp.TypeIndex) >= len(m.Types) {
				return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
					At(at).Value(imp.TypeIndex).
					Detail("import %s.%s: type index %d out of bounds (length %d)", module, name, imp.TypeIndex, len(m.Types)).
					Build()
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Table = &table
		case KindMemory:
			memory, err := readLimits(r)
			if err != nil {
				return err
			}
			imp.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Global = &global
		default:
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(at).Value(kind).
				Detail("unknown import kind %d", kind).
				Build()
		}
		m.Imports = append(m.Imports, imp)
	}

	// Imports occupy the front of each index space.
	for i := range m.Imports {
		imp := &m.Imports[i]
		switch imp.Kind {
		case KindFunc:
			imp.Index = uint32(len(m.Functions))
			m.Functions = append(m.Functions, &Function{
				Index:     imp.Index,
				TypeIndex: imp.TypeIndex,
				Type:      m.Types[imp.TypeIndex],
				Import:    imp,
			})
		case KindTable:
			imp.Index = uint32(len(m.Tables))
			m.Tables = append(m.Tables, *imp.Table)
		case KindMemory:
			imp.Index = uint32(len(m.Memories))
			m.Memories = append(m.Memories, *imp.Memory)
		case KindGlobal:
			imp.Index = uint32(len(m.Globals))
			m.Globals = append(m.Globals, &Global{
				Index:  imp.Index,
				Type:   *imp.Global,
				Import: imp,
			})
		}
		m.imported[imp.Kind]++
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		at := r.Offset()
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(typeIdx) >= len(m.Types) {
			return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				At(at).Value(typeIdx).
				Detail("function %d: type index %d out of bounds (length %d)", len(m.Functions), typeIdx, len(m.Types)).
				Build()
		}
		m.Functions = append(m.Functions, &Function{
			Index:     uint32(len(m.Functions)),
			TypeIndex: typeIdx,
			Type:      m.Types[typeIdx],
		})
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		table, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, table)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, limits)
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readBody(r, "global")
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, &Global{
			Index: uint32(len(m.Globals)),
			Type:  globalType,
			Init:  init,
		})
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Exports = make([]Export, 0, capHint(count, r))
	seen := make(map[string]struct{}, capHint(count, r))
	for i := uint32(0); i < count; i++ {
		at := r.Offset()
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(at).Detail("duplicate export name %q", name).
				Build()
		}
		seen[name] = struct{}{}

		exp := Export{Name: name, Kind: ExternKind(kind), Index: idx}
		var size int
		switch exp.Kind {
		case KindFunc:
			size = len(m.Functions)
		case KindTable:
			size = len(m.Tables)
		case KindMemory:
			size = len(m.Memories)
		case KindGlobal:
			size = len(m.Globals)
		default:
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(at).Value(kind).
				Detail("invalid export kind 0x%02x", kind).
				Build()
		}
		if int(idx) >= size {
			return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				At(at).Value(idx).
				Detail("export %q: %s index %d out of bounds (length %d)", name, exp.Kind, idx, size).
				Build()
		}
		if exp.Kind == KindFunc {
			fn := m.Functions[idx]
			fn.Exports = append(fn.Exports, name)
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	at := r.Offset()
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(idx) >= len(m.Functions) {
		return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			At(at).Value(idx).
			Detail("start function %d out of bounds (length %d)", idx, len(m.Functions)).
			Build()
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Elements = make([]Element, 0, capHint(count, r))
	for i := uint32(0); i < count; i++ {
		at := r.Offset()
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(at).Value(flags).
				Detail("invalid element segment flags %d", flags).
				Build()
		}
		if flags&0x04 != 0 {
			return errors.New(errors.PhaseDecode, errors.KindUnsupported).
				At(at).Value(flags).
				Detail("element segments with expressions (flags %d)", flags).
				Build()
		}

		// Bit 0: passive or declarative; bit 1: explicit table index
		// (active) or declarative (passive).
		elem := Element{Flags: flags, Passive: flags&0x01 != 0}
		if flags == 2 {
			if elem.TableIndex, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if !elem.Passive {
			if elem.Offset, err = readBody(r, "element"); err != nil {
				return err
			}
		}
		if flags != 0 {
			kindAt := r.Offset()
			kind, err := r.ReadByte()
			if err != nil {
				return err
			}
			if kind != ElemKindFuncRef {
				return errors.New(errors.PhaseDecode, errors.KindInvalidData).
					At(kindAt).Value(kind).
					Detail("invalid elemkind 0x%02x", kind).
					Build()
			}
		}

		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(n) > r.Len() {
			return io.ErrUnexpectedEOF
		}
		elem.FuncIndices = make([]uint32, n)
		for j := range elem.FuncIndices {
			idxAt := r.Offset()
			idx, err := r.ReadU32()
			if err != nil {
				return err
			}
			if int(idx) >= len(m.Functions) {
				return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
					At(idxAt).Value(idx).
					Detail("element %d: function index %d out of bounds (length %d)", i, idx, len(m.Functions)).
					Build()
			}
			elem.FuncIndices[j] = idx
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	at := r.Offset()
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	local := m.LocalFunctions()
	if int(count) != len(local) {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			At(at).
			Detail("code section has %d bodies for %d declared functions", count, len(local)).
			Build()
	}

	for _, fn := range local {
		bodyAt := r.Offset()
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		br, err := r.Sub(int(bodySize))
		if err != nil {
			return err
		}
		code, err := readCode(br)
		if err != nil {
			return wrapErr("code", br.Offset(), err)
		}
		if br.Len() != 0 {
			return errors.Framing("code", br.Offset(),
				fmt.Sprintf("function %d: body size mismatch, %d bytes left unread", fn.Index, br.Len()))
		}
		code.Offset = bodyAt
		fn.Code = code
	}
	return nil
}

func readCode(r *binary.Reader) (*Code, error) {
	groups, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	var total uint64
	locals := make([]LocalEntry, 0, capHint(groups, r))
	for i := uint32(0); i < groups; i++ {
		at := r.Offset()
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		total += uint64(n)
		if total > MaxLocals {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(at).Value(total).
				Detail("too many locals (limit %d)", MaxLocals).
				Build()
		}
		t, err := readValType(r, "code")
		if err != nil {
			return nil, err
		}
		locals = append(locals, LocalEntry{Count: n, Type: t})
	}
	body, err := readBody(r, "code")
	if err != nil {
		return nil, err
	}
	return &Code{Locals: locals, Body: body}, nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	at := r.Offset()
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if m.DataCount != nil && *m.DataCount != count {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			At(at).
			Detail("data section has %d segments, data count section declares %d", count, *m.DataCount).
			Build()
	}
	m.Data = make([]DataSegment, 0, capHint(count, r))
	for i := uint32(0); i < count; i++ {
		segAt := r.Offset()
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 2 {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				At(segAt).Value(flags).
				Detail("invalid data segment flags %d", flags).
				Build()
		}
		// flags=0: active, memIdx=0, offset, data
		// flags=1: passive, data only
		// flags=2: active, memIdx, offset, data
		seg := DataSegment{Flags: flags, Passive: flags == 1}
		if flags == 2 {
			if seg.MemoryIndex, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if !seg.Passive {
			if seg.Offset, err = readBody(r, "data"); err != nil {
				return err
			}
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.ReadBytes(int(n)); err != nil {
			return err
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	at := r.Offset()
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&(LimitsShared|LimitsMemory64) != 0 {
		return Limits{}, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			At(at).Value(flags).
			Detail("shared or 64-bit limits (flags 0x%02x)", flags).
			Build()
	}
	if flags > LimitsHasMax {
		return Limits{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			At(at).Value(flags).
			Detail("invalid limits flags 0x%02x", flags).
			Build()
	}
	var l Limits
	if l.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if flags&LimitsHasMax != 0 {
		maxVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &maxVal
	}
	if l.Max != nil && l.Min > *l.Max {
		return Limits{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			At(at).
			Detail("limits min (%d) exceeds max (%d)", l.Min, *l.Max).
			Build()
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	at := r.Offset()
	elemType, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	switch ValType(elemType) {
	case ValFuncRef:
	case ValExternRef:
		return TableType{}, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			At(at).Value(elemType).
			Detail("externref tables").
			Build()
	default:
		return TableType{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			At(at).Value(elemType).
			Detail("invalid table element type 0x%02x", elemType).
			Build()
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: ValFuncRef, Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r, "")
	if err != nil {
		return GlobalType{}, err
	}
	at := r.Offset()
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			At(at).Value(mut).
			Detail("invalid global mutability 0x%02x", mut).
			Build()
	}
	return GlobalType{Type: t, Mutable: mut == 1}, nil
}

// checkBodies verifies that every locally defined function received a body.
func checkBodies(m *Module) error {
	for _, fn := range m.LocalFunctions() {
		if fn.Code == nil {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Section("code").
				Detail("function %d has no body", fn.Index).
				Build()
		}
	}
	return nil
}
