package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs define the binary identifiers for each module section.
// Sections must appear in increasing canonical order (except custom sections).
const (
	SectionCustom    byte = 0  // Custom section (can appear anywhere)
	SectionType      byte = 1  // Type section (function signatures)
	SectionImport    byte = 2  // Import section
	SectionFunction  byte = 3  // Function section (type indices)
	SectionTable     byte = 4  // Table section
	SectionMemory    byte = 5  // Memory section
	SectionGlobal    byte = 6  // Global section
	SectionExport    byte = 7  // Export section
	SectionStart     byte = 8  // Start section
	SectionElement   byte = 9  // Element section
	SectionCode      byte = 10 // Code section (function bodies)
	SectionData      byte = 11 // Data section
	SectionDataCount byte = 12 // Data count section (bulk memory)
)

var sectionNames = [...]string{
	SectionCustom:    "custom",
	SectionType:      "type",
	SectionImport:    "import",
	SectionFunction:  "function",
	SectionTable:     "table",
	SectionMemory:    "memory",
	SectionGlobal:    "global",
	SectionExport:    "export",
	SectionStart:     "start",
	SectionElement:   "element",
	SectionCode:      "code",
	SectionData:      "data",
	SectionDataCount: "data count",
}

// SectionName returns a human readable name for a section ID.
func SectionName(id byte) string {
	if int(id) < len(sectionNames) {
		return sectionNames[id]
	}
	return "unknown"
}

// ExternKind selects an index space in import and export descriptors.
type ExternKind byte

// Import/Export descriptor kinds.
const (
	KindFunc   ExternKind = 0 // Function import/export
	KindTable  ExternKind = 1 // Table import/export
	KindMemory ExternKind = 2 // Memory import/export
	KindGlobal ExternKind = 3 // Global import/export
)

func (k ExternKind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Value type encodings as defined in the WebAssembly binary format.
const (
	ValI32       ValType = 0x7F // 32-bit integer
	ValI64       ValType = 0x7E // 64-bit integer
	ValF32       ValType = 0x7D // 32-bit float
	ValF64       ValType = 0x7C // 64-bit float
	ValV128      ValType = 0x7B // 128-bit vector (SIMD)
	ValFuncRef   ValType = 0x70 // Function reference
	ValExternRef ValType = 0x6F // External reference

	// ValVoid is the empty block type. It never appears as a local or
	// operand type.
	ValVoid ValType = 0x40
)

// Type section and limits encodings.
const (
	FuncTypeByte byte = 0x60

	// GC proposal type forms, recognised only to be rejected.
	RecTypeByte    byte = 0x4E
	SubFinalByte   byte = 0x4F
	SubTypeByte    byte = 0x50
	ArrayTypeByte  byte = 0x5E
	StructTypeByte byte = 0x5F

	LimitsHasMax   byte = 0x01
	LimitsShared   byte = 0x02 // threads proposal
	LimitsMemory64 byte = 0x04 // memory64 proposal

	// ElemKindFuncRef is the only elemkind in element segments with flags 1-3.
	ElemKindFuncRef byte = 0x00
)

// MaxLocals bounds the number of declared locals per function body.
const MaxLocals = 50000
