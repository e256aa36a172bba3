// Package wasmtest builds WebAssembly binaries for tests.
package wasmtest

import (
	"encoding/binary"

	"github.com/wippyai/wasm-decoder/leb128"
)

// Writer accumulates WASM binary primitives.
type Writer struct {
	buf []byte
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Byte writes raw bytes.
func (w *Writer) Byte(b ...byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// U32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) U32(v uint32) *Writer {
	w.buf = leb128.AppendUint32(w.buf, v)
	return w
}

// S32 writes a signed LEB128 encoded int32.
func (w *Writer) S32(v int32) *Writer {
	w.buf = leb128.AppendInt32(w.buf, v)
	return w
}

// S64 writes a signed LEB128 encoded int64.
func (w *Writer) S64(v int64) *Writer {
	w.buf = leb128.AppendInt64(w.buf, v)
	return w
}

// Name writes a length-prefixed name.
func (w *Writer) Name(s string) *Writer {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// U32LE writes a little-endian uint32 (fixed 4 bytes).
func (w *Writer) U32LE(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// Vec writes a length-prefixed byte vector.
func (w *Writer) Vec(data []byte) *Writer {
	w.U32(uint32(len(data)))
	w.buf = append(w.buf, data...)
	return w
}
