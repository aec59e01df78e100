package archive

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/martin-sucha/zipcore"
	"github.com/martin-sucha/zipcore/cipher"
	"github.com/martin-sucha/zipcore/codec"
	"github.com/martin-sucha/zipcore/format"
	"github.com/martin-sucha/zipcore/fsys"
	"github.com/martin-sucha/zipcore/segment"
)

// extractAll reads back every entry of the archive at path (via a fresh
// Archive bound to the same fs) and returns name -> plaintext.
func extractAll(t *testing.T, fs fsys.FS, path string) map[string][]byte {
	t.Helper()
	ar, err := New(WithFS(fs))
	if err != nil {
		t.Fatal(err)
	}
	if err := ar.Read(path); err != nil {
		t.Fatalf("Read: %v", err)
	}
	out := make(map[string][]byte)
	for _, e := range ar.Entries() {
		if e.IsDir() {
			continue
		}
		var buf bytes.Buffer
		if err := ar.Extract(e, &buf); err != nil {
			t.Fatalf("Extract %s: %v", e.Name, err)
		}
		out[e.Name] = buf.Bytes()
	}
	return out
}

// TestSingleFileStore saves one small stored entry,
// whose output starts with the local-header signature and whose directory
// records exactly one entry.
func TestSingleFileStore(t *testing.T) {
	fs := fsys.NewMem()
	ar, err := New(WithFS(fs))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("greet.txt", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := ar.Save("/out.zip"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := fs.OpenRead("/out.zip")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var sig [4]byte
	if _, err := io.ReadFull(f, sig[:]); err != nil {
		t.Fatal(err)
	}
	if got := sig; got != [4]byte{0x50, 0x4B, 0x03, 0x04} {
		t.Fatalf("first 4 bytes = % x, want 50 4B 03 04", got)
	}

	ar2, err := New(WithFS(fs))
	if err != nil {
		t.Fatal(err)
	}
	if err := ar2.Read("/out.zip"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	entries := ar2.Entries()
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	var buf bytes.Buffer
	if err := ar2.Extract(entries[0], &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello" {
		t.Fatalf("extracted = %q, want %q", buf.String(), "hello")
	}
}

// TestTwoFilesDeflateAES256 saves two deflated AES-256 entries, then
// verifies wrong-password rejection and correct-password extraction.
func TestTwoFilesDeflateAES256(t *testing.T) {
	fsFS := fsys.NewMem()
	aData := bytes.Repeat([]byte{'A'}, 5000)
	bData := make([]byte, 10000)
	rand.New(rand.NewSource(1)).Read(bData)

	ar, err := New(
		WithFS(fsFS),
		WithDefaultMethod(format.Deflate),
		WithLevel(codec.LevelDefault),
		WithDefaultCipher(cipher.WinZipAES256),
		WithPassword("Secret!"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("a.txt", aData); err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("b.bin", bData); err != nil {
		t.Fatal(err)
	}
	if err := ar.Save("/secret.zip"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Wrong password: first entry decrypt must fail with BadPassword.
	wrong, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if err := wrong.Read("/secret.zip"); err != nil {
		t.Fatal(err)
	}
	var sink bytes.Buffer
	err = wrong.Extract(wrong.Entries()[0], &sink)
	if err == nil {
		t.Fatal("expected error extracting with no password")
	}
	if zerr, ok := err.(*zipcore.Error); !ok || zerr.Kind != zipcore.KindBadPassword {
		t.Fatalf("err = %v, want BadPassword", err)
	}

	// Correct password: both entries extract and checksum.
	right, err := New(WithFS(fsFS), WithPassword("Secret!"))
	if err != nil {
		t.Fatal(err)
	}
	if err := right.Read("/secret.zip"); err != nil {
		t.Fatal(err)
	}
	want := map[string][]byte{"a.txt": aData, "b.bin": bData}
	for _, e := range right.Entries() {
		var buf bytes.Buffer
		if err := right.Extract(e, &buf); err != nil {
			t.Fatalf("Extract %s: %v", e.Name, err)
		}
		if !bytes.Equal(buf.Bytes(), want[e.Name]) {
			t.Fatalf("entry %s content mismatch", e.Name)
		}
	}
}

// TestSegmentedArchive saves 10 incompressible 20000
// byte files with a 64 KiB segment bound.
func TestSegmentedArchive(t *testing.T) {
	fsFS := fsys.NewMem()
	ar, err := New(WithFS(fsFS), WithMaxSegmentSize(65536))
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(42))
	contents := make(map[string][]byte)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("file%d.bin", i)
		data := make([]byte, 20000)
		r.Read(data)
		contents[name] = data
		if _, err := ar.AddBytes(name, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := ar.Save("/split.zip"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	segNames, err := segment.DiscoverSegments(fsFS, "/split.zip")
	if err != nil {
		t.Fatal(err)
	}
	if len(segNames) < 4 {
		t.Fatalf("segment count = %d, want >= 4", len(segNames))
	}
	if segNames[len(segNames)-1] != "/split.zip" {
		t.Fatalf("last segment = %s, want /split.zip", segNames[len(segNames)-1])
	}

	f, err := fsFS.OpenRead(segNames[0])
	if err != nil {
		t.Fatal(err)
	}
	var sig [4]byte
	io.ReadFull(f, sig[:])
	f.Close()
	if sig != [4]byte{0x50, 0x4B, 0x07, 0x08} {
		t.Fatalf("segment 0 signature = % x, want 50 4B 07 08", sig)
	}

	got := extractAll(t, fsFS, "/split.zip")
	for name, want := range contents {
		if !bytes.Equal(got[name], want) {
			t.Fatalf("entry %s content mismatch", name)
		}
	}
}

// TestSelfSave reads a file, adds an entry, and saves
// back over the same path.
func TestSelfSave(t *testing.T) {
	fsFS := fsys.NewMem()
	ar, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("one.txt", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := ar.Save("/x.zip"); err != nil {
		t.Fatal(err)
	}

	ar2, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if err := ar2.Read("/x.zip"); err != nil {
		t.Fatal(err)
	}
	if _, err := ar2.AddBytes("new.txt", []byte("two")); err != nil {
		t.Fatal(err)
	}
	if err := ar2.Save("/x.zip"); err != nil {
		t.Fatalf("self save: %v", err)
	}

	got := extractAll(t, fsFS, "/x.zip")
	if len(got) != 2 {
		t.Fatalf("entry count = %d, want 2", len(got))
	}
	if string(got["one.txt"]) != "one" {
		t.Fatalf("one.txt = %q", got["one.txt"])
	}
	if string(got["new.txt"]) != "two" {
		t.Fatalf("new.txt = %q", got["new.txt"])
	}
}

// TestDirectoryRecovery appends junk to a valid archive, confirms Read
// rejects it, and recovers it with FixDirectory.
func TestDirectoryRecovery(t *testing.T) {
	fsFS := fsys.NewMem()
	ar, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("a.txt", []byte("aaaa")); err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("b.txt", []byte("bbbb")); err != nil {
		t.Fatal(err)
	}
	if err := ar.Save("/junk.zip"); err != nil {
		t.Fatal(err)
	}

	f, err := fsFS.OpenReadWrite("/junk.zip", fsys.OpenExisting)
	if err != nil {
		t.Fatal(err)
	}
	size, _ := f.Size()
	f.Seek(size, io.SeekStart)
	junk := make([]byte, 4096)
	rand.New(rand.NewSource(7)).Read(junk)
	if _, err := f.Write(junk); err != nil {
		t.Fatal(err)
	}
	f.Close()

	probe, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	err = probe.Read("/junk.zip")
	if err == nil {
		t.Fatal("expected Read to fail on junk-appended archive")
	}
	zerr, ok := err.(*zipcore.Error)
	if !ok || zerr.Kind != zipcore.KindNotAZip {
		t.Fatalf("err = %v, want NotAZip", err)
	}

	status, err := Check(fsFS, "/junk.zip")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusNeedsFix {
		t.Fatalf("status = %v, want NeedsFix", status)
	}

	fixer, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if err := fixer.FixDirectory("/junk.zip"); err != nil {
		t.Fatalf("FixDirectory: %v", err)
	}

	got := extractAll(t, fsFS, "/junk.zip")
	if string(got["a.txt"]) != "aaaa" || string(got["b.txt"]) != "bbbb" {
		t.Fatalf("recovered content mismatch: %v", got)
	}
}

// TestUpdateThenTruncate checks that a segmented archive
// with an entry removed and re-saved must not leave dangling tail segments.
func TestUpdateThenTruncate(t *testing.T) {
	fsFS := fsys.NewMem()
	ar, err := New(WithFS(fsFS), WithMaxSegmentSize(65536))
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 30000)
	rand.New(rand.NewSource(9)).Read(data)
	names := []string{"e1.bin", "e2.bin", "e3.bin"}
	for _, n := range names {
		d := append([]byte(nil), data...)
		d[0] = n[1]
		if _, err := ar.AddBytes(n, d); err != nil {
			t.Fatal(err)
		}
	}
	if err := ar.Save("/segs.zip"); err != nil {
		t.Fatal(err)
	}
	before, err := segment.DiscoverSegments(fsFS, "/segs.zip")
	if err != nil {
		t.Fatal(err)
	}

	ar2, err := New(WithFS(fsFS), WithMaxSegmentSize(65536))
	if err != nil {
		t.Fatal(err)
	}
	if err := ar2.Read("/segs.zip"); err != nil {
		t.Fatal(err)
	}
	if err := ar2.RemoveEntry("e3.bin"); err != nil {
		t.Fatal(err)
	}
	if err := ar2.Save("/segs.zip"); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	after, err := segment.DiscoverSegments(fsFS, "/segs.zip")
	if err != nil {
		t.Fatal(err)
	}
	if len(after) > len(before) {
		t.Fatalf("segment count grew from %d to %d after removing an entry", len(before), len(after))
	}
	for _, n := range after {
		exists, _ := fsFS.ExistsFile(n)
		if !exists {
			t.Fatalf("segment %s listed but missing", n)
		}
	}

	got := extractAll(t, fsFS, "/segs.zip")
	if _, ok := got["e3.bin"]; ok {
		t.Fatal("e3.bin should have been removed")
	}
	if len(got) != 2 {
		t.Fatalf("entry count = %d, want 2", len(got))
	}
}

// TestIdempotentResave checks that re-saving an archive that was itself
// just read back preserves every entry's name, size and content.
func TestIdempotentResave(t *testing.T) {
	fsFS := fsys.NewMem()
	ar, err := New(WithFS(fsFS), WithDefaultMethod(format.Deflate))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("a.txt", []byte("alpha alpha alpha")); err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("b.txt", []byte("beta")); err != nil {
		t.Fatal(err)
	}
	if err := ar.Save("/idem.zip"); err != nil {
		t.Fatal(err)
	}

	ar2, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if err := ar2.Read("/idem.zip"); err != nil {
		t.Fatal(err)
	}
	if err := ar2.Save("/idem2.zip"); err != nil {
		t.Fatal(err)
	}

	got1 := extractAll(t, fsFS, "/idem.zip")
	got2 := extractAll(t, fsFS, "/idem2.zip")
	if len(got1) != len(got2) {
		t.Fatalf("entry count mismatch: %d vs %d", len(got1), len(got2))
	}
	for name, data := range got1 {
		if !bytes.Equal(data, got2[name]) {
			t.Fatalf("entry %s differs after resave", name)
		}
	}
}

// TestDuplicateNameRejected checks the strict-mode duplicate name error.
func TestDuplicateNameRejected(t *testing.T) {
	ar, err := New(WithFS(fsys.NewMem()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("dup.txt", []byte("1")); err != nil {
		t.Fatal(err)
	}
	_, err = ar.AddBytes("dup.txt", []byte("2"))
	if err == nil {
		t.Fatal("expected DuplicateName error")
	}
	if zerr, ok := err.(*zipcore.Error); !ok || zerr.Kind != zipcore.KindDuplicateName {
		t.Fatalf("err = %v, want DuplicateName", err)
	}
}

// TestZip64AlwaysRaisesReaderVersion checks that Zip64Always emits a ZIP64
// reader version even for an entry far too small to need it on its own.
func TestZip64AlwaysRaisesReaderVersion(t *testing.T) {
	fsFS := fsys.NewMem()
	ar, err := New(WithFS(fsFS), WithZip64Policy(Zip64Always))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("tiny.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := ar.Save("/z64.zip"); err != nil {
		t.Fatalf("Save with Zip64Always: %v", err)
	}

	readBack, err := New(WithFS(fsFS))
	if err != nil {
		t.Fatal(err)
	}
	if err := readBack.Read("/z64.zip"); err != nil {
		t.Fatal(err)
	}
	st := readBack.Entries()[0].State()
	if st.ReaderVersion < format.VersionZip64 {
		t.Fatalf("reader version = %d, want >= %d (ZIP64)", st.ReaderVersion, format.VersionZip64)
	}
}

// TestZip64NeverRejectsForcedZip64 checks that Zip64Never fails the save
// rather than silently emitting ZIP64 markers. The requirement is forced
// via the directory's entry count: a single entry whose sizes cross the
// 32-bit threshold would be the other way to force it, and isn't
// practical within a unit test's memory budget.
func TestZip64NeverRejectsForcedZip64(t *testing.T) {
	fsFS := fsys.NewMem()
	strict, err := New(WithFS(fsFS), WithZip64Policy(Zip64Never), WithMaxSegmentSize(65536))
	if err != nil {
		t.Fatal(err)
	}
	// A directory with more than 65535 entries forces dirZip64 via the
	// entry-count threshold without needing any single huge entry.
	for i := 0; i < format.Uint16Max+1; i++ {
		if _, err := strict.AddBytes(fmt.Sprintf("f%d.txt", i), nil); err != nil {
			t.Fatal(err)
		}
	}
	err = strict.Save("/toomany.zip")
	if err == nil {
		t.Fatal("expected Zip64Required error")
	}
	zerr, ok := err.(*zipcore.Error)
	if !ok || zerr.Kind != zipcore.KindZip64Required {
		t.Fatalf("err = %v, want Zip64Required", err)
	}
}

// TestCaseInsensitiveLookup verifies the default fold-on-lookup behavior
// and that disabling it makes lookups exact.
func TestCaseInsensitiveLookup(t *testing.T) {
	ar, err := New(WithFS(fsys.NewMem()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.AddBytes("Readme.TXT", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, ok := ar.FindEntry("readme.txt"); !ok {
		t.Fatal("expected case-insensitive match")
	}

	strict, err := New(WithFS(fsys.NewMem()), WithCaseSensitiveRetrieval(true))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strict.AddBytes("Readme.TXT", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, ok := strict.FindEntry("readme.txt"); ok {
		t.Fatal("expected case-sensitive lookup to miss")
	}
	if _, ok := strict.FindEntry("Readme.TXT"); !ok {
		t.Fatal("expected exact-case lookup to hit")
	}
}

// TestNameNormalization checks the backslash-to-slash, leading
// separator stripping, and volume-letter removal.
func TestNameNormalization(t *testing.T) {
	cases := map[string]string{
		`a\b\c.txt`:  "a/b/c.txt",
		"/abs/path":  "abs/path",
		`C:\win\path.txt`: "win/path.txt",
	}
	for in, want := range cases {
		if got := normalizeName(in); got != want {
			t.Errorf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
