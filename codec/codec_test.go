package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/martin-sucha/zipcore/format"
)

func roundTrip(t *testing.T, method uint16, level Level, data []byte) []byte {
	t.Helper()
	comp, err := NewCompressor(method)
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	var buf bytes.Buffer
	wc, err := comp(&buf, level)
	if err != nil {
		t.Fatalf("compressor: %v", err)
	}
	if _, err := wc.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	decomp, err := NewDecompressor(method)
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	r, err := decomp(&buf)
	if err != nil {
		t.Fatalf("decompressor: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	return got
}

func TestCodecRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
	methods := []uint16{format.Store, format.Deflate, format.BZip2}
	for _, m := range methods {
		got := roundTrip(t, m, LevelDefault, data)
		if !bytes.Equal(got, data) {
			t.Errorf("method %d: round trip mismatch (got %d bytes, want %d)", m, len(got), len(data))
		}
	}
}

func TestCRCTaps(t *testing.T) {
	data := []byte("hello, crc")
	var buf bytes.Buffer
	cw := NewCRCWriter(&buf)
	if _, err := cw.Write(data); err != nil {
		t.Fatal(err)
	}

	cr := NewCRCReader(bytes.NewReader(buf.Bytes()))
	if _, err := io.ReadAll(cr); err != nil {
		t.Fatal(err)
	}

	if cw.Sum32() != cr.Sum32() {
		t.Errorf("write CRC %x != read CRC %x", cw.Sum32(), cr.Sum32())
	}
}

func TestUnsupportedMethod(t *testing.T) {
	if _, err := NewCompressor(19); err == nil {
		t.Error("expected error for unsupported method")
	}
	if _, err := NewDecompressor(19); err == nil {
		t.Error("expected error for unsupported method")
	}
}
