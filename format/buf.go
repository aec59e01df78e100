package format

import "encoding/binary"

// writeBuf is a little-endian cursor over a fixed byte slice, consumed
// field by field.
type writeBuf []byte

func (b *writeBuf) uint8(v uint8) {
	(*b)[0] = v
	*b = (*b)[1:]
}

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *writeBuf) uint64(v uint64) {
	binary.LittleEndian.PutUint64(*b, v)
	*b = (*b)[8:]
}

func (b *writeBuf) bytes(v []byte) {
	n := copy(*b, v)
	*b = (*b)[n:]
}

// readBuf is the mirror image, used by the header/central/eocd decoders.
type readBuf []byte

func (b *readBuf) uint8() uint8 {
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) take(n int) []byte {
	v := (*b)[:n]
	*b = (*b)[n:]
	return v
}

// countWriter tracks how many bytes have passed through it, used to learn
// the size of the central directory as it streams out.
type countWriter struct {
	w     interface{ Write([]byte) (int, error) }
	Count int64
}

func newCountWriter(w interface{ Write([]byte) (int, error) }) *countWriter {
	return &countWriter{w: w}
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.Count += int64(n)
	return n, err
}
