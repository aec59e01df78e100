package entry

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/format"
)

// TestPipelineRoundTrip exercises every method/cipher combination this
// module emits, checking that write-then-read reproduces the plaintext and
// that the running CRC32 matches on both ends.
func TestPipelineRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)

	methods := []uint16{format.Store, format.Deflate, format.BZip2}
	ciphers := []cipher.Kind{cipher.None, cipher.PKZIPWeak, cipher.WinZipAES128, cipher.WinZipAES256}

	for _, method := range methods {
		for _, kind := range ciphers {
			method, kind := method, kind
			t.Run(methodName(method)+"/"+cipherName(kind), func(t *testing.T) {
				var out bytes.Buffer
				password := ""
				if kind != cipher.None {
					password = "hunter2"
				}
				wp, err := NewWritePipeline(&out, method, codec.LevelDefault, kind, password, 0)
				if err != nil {
					t.Fatalf("NewWritePipeline: %v", err)
				}
				if _, err := wp.Write(plaintext); err != nil {
					t.Fatalf("Write: %v", err)
				}
				if err := wp.Close(); err != nil {
					t.Fatalf("Close: %v", err)
				}
				wantCRC := wp.CRC32()
				compressedSize := wp.CompressedSize()

				rp, err := NewReadPipeline(bytes.NewReader(out.Bytes()), method, kind, password, compressedSize, 0)
				if err != nil {
					t.Fatalf("NewReadPipeline: %v", err)
				}
				got, err := readAll(rp)
				if err != nil {
					t.Fatalf("read: %v", err)
				}
				if err := rp.Close(); err != nil {
					t.Fatalf("rp.Close: %v", err)
				}
				if !bytes.Equal(got, plaintext) {
					t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
				}
				if rp.CRC32() != wantCRC {
					t.Fatalf("CRC32 mismatch: got %#x, want %#x", rp.CRC32(), wantCRC)
				}
			})
		}
	}
}

// TestPipelineBadPasswordRejected checks that decrypting with the wrong
// password fails during pipeline construction (traditional cipher) or
// during Close (AES HMAC), never silently producing garbage plaintext.
func TestPipelineBadPasswordRejected(t *testing.T) {
	plaintext := []byte("top secret payload")
	for _, kind := range []cipher.Kind{cipher.PKZIPWeak, cipher.WinZipAES128, cipher.WinZipAES256} {
		kind := kind
		t.Run(cipherName(kind), func(t *testing.T) {
			var out bytes.Buffer
			wp, err := NewWritePipeline(&out, format.Store, codec.LevelDefault, kind, "correct-password", 0)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := wp.Write(plaintext); err != nil {
				t.Fatal(err)
			}
			if err := wp.Close(); err != nil {
				t.Fatal(err)
			}

			rp, err := NewReadPipeline(bytes.NewReader(out.Bytes()), format.Store, kind, "wrong-password", wp.CompressedSize(), 0)
			if kind == cipher.PKZIPWeak {
				// The traditional cipher's check byte defaults to 0 in
				// this test (crc32Hint 0), so a wrong password may or may
				// not be caught at construction time; either an error here
				// or a CRC mismatch on read is an acceptable rejection.
				if err != nil {
					return
				}
				data, _ := readAll(rp)
				if bytes.Equal(data, plaintext) {
					t.Fatal("wrong password produced correct plaintext")
				}
				return
			}
			if err != nil {
				return
			}
			_, rerr := readAll(rp)
			closeErr := rp.Close()
			if rerr == nil && closeErr == nil {
				t.Fatal("expected AES wrong-password rejection via read error or HMAC mismatch on Close")
			}
		})
	}
}

// TestCheckPasswordDoesNotLeakPlaintext exercises the password check's
// no-plaintext-revealed contract.
func TestCheckPasswordDoesNotLeakPlaintext(t *testing.T) {
	plaintext := []byte("a little bit of secret text")
	for _, kind := range []cipher.Kind{cipher.PKZIPWeak, cipher.WinZipAES128, cipher.WinZipAES256} {
		kind := kind
		t.Run(cipherName(kind), func(t *testing.T) {
			var out bytes.Buffer
			wp, err := NewWritePipeline(&out, format.Store, codec.LevelDefault, kind, "swordfish", 0)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := wp.Write(plaintext); err != nil {
				t.Fatal(err)
			}
			if err := wp.Close(); err != nil {
				t.Fatal(err)
			}

			ok, err := CheckPassword(bytes.NewReader(out.Bytes()), kind, "swordfish", wp.CompressedSize(), 0)
			if err != nil {
				t.Fatalf("CheckPassword(correct): %v", err)
			}
			if !ok {
				t.Fatal("CheckPassword(correct) = false, want true")
			}

			ok, err = CheckPassword(bytes.NewReader(out.Bytes()), kind, "wrong", wp.CompressedSize(), 0)
			if kind == cipher.PKZIPWeak {
				// With a zero CRC hint the weak check byte is not
				// discriminating in this synthetic test; only assert no
				// plaintext panic/crash occurred.
				return
			}
			if err == nil && ok {
				t.Fatal("CheckPassword(wrong) = true, want false or error")
			}
		})
	}
}

func TestEntryIsDirAndFreeze(t *testing.T) {
	e := New("dir/", nil)
	if !e.IsDir() {
		t.Fatal("name ending in / should be a directory")
	}
	if e.Frozen() {
		t.Fatal("new entry should not be frozen")
	}
	e.Freeze(State{CRC32: 123})
	if !e.Frozen() {
		t.Fatal("entry should be frozen after Freeze")
	}
	if e.State().CRC32 != 123 {
		t.Fatalf("State().CRC32 = %d, want 123", e.State().CRC32)
	}
}

func TestEntryClone(t *testing.T) {
	e := New("f.txt", BytesSource{Data: []byte("x")})
	e.Freeze(State{CRC32: 42})
	c := e.Clone()
	if c.Frozen() {
		t.Fatal("clone should start unfrozen")
	}
	if c.Name != e.Name {
		t.Fatalf("clone name = %q, want %q", c.Name, e.Name)
	}
}

func readAll(rp *ReadPipeline) ([]byte, error) {
	var buf bytes.Buffer
	tmp := make([]byte, 4096)
	for {
		n, err := rp.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf.Bytes(), nil
			}
			return buf.Bytes(), err
		}
	}
}

func methodName(m uint16) string {
	switch m {
	case format.Store:
		return "store"
	case format.Deflate:
		return "deflate"
	case format.BZip2:
		return "bzip2"
	default:
		return "unknown"
	}
}

func cipherName(k cipher.Kind) string {
	switch k {
	case cipher.None:
		return "none"
	case cipher.PKZIPWeak:
		return "pkzipweak"
	case cipher.WinZipAES128:
		return "aes128"
	case cipher.WinZipAES256:
		return "aes256"
	default:
		return "unknown"
	}
}
