package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode Phase = "decode" // binary module to data model
	PhaseVisit  Phase = "visit"  // control-flow traversal
	PhaseEngine Phase = "engine" // external execution engine
	PhaseLoad   Phase = "load"   // fetching module bytes
)

// Kind categorizes the error
type Kind string

const (
	KindFraming        Kind = "framing"
	KindTruncated      Kind = "truncated"
	KindInvalidOpcode  Kind = "invalid_opcode"
	KindNotImplemented Kind = "not_implemented"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindUnsupported    Kind = "unsupported"
	KindInvalidData    Kind = "invalid_data"
	KindMismatch       Kind = "mismatch"
	KindMissingImport  Kind = "missing_import"
)

// NoOffset marks an error that is not tied to a byte position.
const NoOffset = -1

// Error is the structured error type used throughout the decoder
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Section string
	Detail  string
	Offset  int
	Opcode  uint32 // zero when not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Section != "" {
		b.WriteString(" in ")
		b.WriteString(e.Section)
		b.WriteString(" section")
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Opcode != 0 {
		fmt.Fprintf(&b, " (opcode %#x)", e.Opcode)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: NoOffset,
		},
	}
}

// Section sets the section name
func (b *Builder) Section(name string) *Builder {
	b.err.Section = name
	return b
}

// At sets the absolute byte offset
func (b *Builder) At(offset int) *Builder {
	b.err.Offset = offset
	return b
}

// Opcode sets the offending opcode
func (b *Builder) Opcode(op uint32) *Builder {
	b.err.Opcode = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Framing creates a section or header framing error
func Framing(section string, offset int, detail string) *Error {
	return &Error{
		Phase:   PhaseDecode,
		Kind:    KindFraming,
		Section: section,
		Offset:  offset,
		Detail:  detail,
	}
}

// Truncated creates an error for input that ended before a complete item
func Truncated(section string, offset int, cause error) *Error {
	return &Error{
		Phase:   PhaseDecode,
		Kind:    KindTruncated,
		Section: section,
		Offset:  offset,
		Detail:  "unexpected end of input",
		Cause:   cause,
	}
}

// InvalidOpcode creates an unknown opcode error
func InvalidOpcode(offset int, op uint32) *Error {
	return &Error{
		Phase:   PhaseDecode,
		Kind:    KindInvalidOpcode,
		Section: "code",
		Offset:  offset,
		Opcode:  op,
		Detail:  "unknown opcode",
	}
}

// NotImplemented creates an error for an instruction without stack shape metadata
func NotImplemented(op uint32, name string) *Error {
	return &Error{
		Phase:  PhaseVisit,
		Kind:   KindNotImplemented,
		Offset: NoOffset,
		Opcode: op,
		Detail: fmt.Sprintf("no stack shape for %s", name),
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Offset: NoOffset,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, what string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Offset: NoOffset,
		Detail: fmt.Sprintf("%s index %d out of bounds (length %d)", what, index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Mismatch creates an error for disagreement between two views of a module
func Mismatch(detail string) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindMismatch,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}

// IsUnsupported reports whether err is, or wraps, an unsupported-feature error
// from any phase.
func IsUnsupported(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindUnsupported {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the Kind of the first structured error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "log"
}

// MissingImportsError is returned when a module cannot be instantiated
// because its imports have no provider
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#name" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, name, found := strings.Cut(key, "#")
	if found {
		return mod, name
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[engine] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d import(s):\n", len(e.Imports))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, name := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
