package format

import (
	"bytes"
	"testing"
	"time"
)

func TestLocalHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name             string
		withDescriptor   bool
		compressedSize   uint64
		uncompressedSize uint64
	}{
		{name: "small store", withDescriptor: false, compressedSize: 5, uncompressedSize: 5},
		{name: "small with descriptor", withDescriptor: true, compressedSize: 5, uncompressedSize: 5},
		{name: "zip64 size", withDescriptor: false, compressedSize: Uint32Max + 100, uncompressedSize: Uint32Max + 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := &LocalHeader{
				ReaderVersion:    VersionDefault,
				Method:           Deflate,
				CRC32:            0xdeadbeef,
				CompressedSize:   tc.compressedSize,
				UncompressedSize: tc.uncompressedSize,
				Name:             "greet.txt",
			}
			if tc.withDescriptor {
				h.Flags |= FlagDataDescriptor
			}
			var buf bytes.Buffer
			if err := h.Encode(&buf, tc.withDescriptor); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := DecodeLocalHeader(&buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Name != h.Name {
				t.Errorf("Name = %q, want %q", got.Name, h.Name)
			}
			if !tc.withDescriptor {
				if got.CRC32 != h.CRC32 {
					t.Errorf("CRC32 = %x, want %x", got.CRC32, h.CRC32)
				}
				if got.CompressedSize != tc.compressedSize {
					t.Errorf("CompressedSize = %d, want %d", got.CompressedSize, tc.compressedSize)
				}
				if got.UncompressedSize != tc.uncompressedSize {
					t.Errorf("UncompressedSize = %d, want %d", got.UncompressedSize, tc.uncompressedSize)
				}
			}
		})
	}
}

func TestLocalHeaderFirstBytes(t *testing.T) {
	h := &LocalHeader{Name: "greet.txt", Method: Store}
	var buf bytes.Buffer
	if err := h.Encode(&buf, false); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x50, 0x4b, 0x03, 0x04}
	if got := buf.Bytes()[:4]; !bytes.Equal(got, want) {
		t.Errorf("first 4 bytes = % x, want % x", got, want)
	}
}

func TestCentralDirHeaderRoundTrip(t *testing.T) {
	h := &CentralDirHeader{
		CreatorVersion:    CreatorUnix<<8 | VersionDefault,
		ReaderVersion:     VersionDefault,
		Method:            Deflate,
		CRC32:             0x12345678,
		CompressedSize:    1000,
		UncompressedSize:  2000,
		ExternalAttrs:     0755 << 16,
		LocalHeaderOffset: 12345,
		Name:              "a/b/c.txt",
		Comment:           "hi",
	}
	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCentralDirHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != h.Name || got.Comment != h.Comment || got.CRC32 != h.CRC32 ||
		got.CompressedSize != h.CompressedSize || got.UncompressedSize != h.UncompressedSize ||
		got.LocalHeaderOffset != h.LocalHeaderOffset {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestCentralDirHeaderZip64(t *testing.T) {
	h := &CentralDirHeader{
		Method:            Store,
		CompressedSize:    Uint32Max + 1,
		UncompressedSize:  Uint32Max + 2,
		LocalHeaderOffset: uint64(Uint32Max) + 3,
		Name:              "big.bin",
	}
	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCentralDirHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.CompressedSize != h.CompressedSize {
		t.Errorf("CompressedSize = %d, want %d", got.CompressedSize, h.CompressedSize)
	}
	if got.UncompressedSize != h.UncompressedSize {
		t.Errorf("UncompressedSize = %d, want %d", got.UncompressedSize, h.UncompressedSize)
	}
	if got.LocalHeaderOffset != h.LocalHeaderOffset {
		t.Errorf("LocalHeaderOffset = %d, want %d", got.LocalHeaderOffset, h.LocalHeaderOffset)
	}
}

func TestIsDirectoryEntry(t *testing.T) {
	tests := []struct {
		name string
		h    CentralDirHeader
		want bool
	}{
		{name: "trailing slash", h: CentralDirHeader{Name: "dir/"}, want: true},
		{name: "zero size store", h: CentralDirHeader{Name: "dir", Method: Store}, want: true},
		{name: "regular file", h: CentralDirHeader{Name: "file.txt", Method: Store, UncompressedSize: 4}, want: false},
	}
	for _, tc := range tests {
		if got := tc.h.IsDirectoryEntry(); got != tc.want {
			t.Errorf("%s: IsDirectoryEntry() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEndOfCentralDirRoundTrip(t *testing.T) {
	e := &EndOfCentralDir{
		EntriesThisDisk: 3,
		EntriesTotal:    3,
		Size:            500,
		Offset:          1000,
		Comment:         "archive comment",
	}
	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeEndOfCentralDir(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.EntriesTotal != e.EntriesTotal || got.Size != e.Size || got.Offset != e.Offset || got.Comment != e.Comment {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestLocateEOCD(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("prefix bytes before the archive body")
	expectedOffset := int64(buf.Len())
	e := &EndOfCentralDir{Comment: "trailer"}
	if err := e.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	ra := bytes.NewReader(buf.Bytes())
	off, raw, err := LocateEOCD(ra, int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if off != expectedOffset {
		t.Errorf("offset = %d, want %d", off, expectedOffset)
	}
	decoded, err := DecodeEndOfCentralDir(raw)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Comment != "trailer" {
		t.Errorf("Comment = %q, want %q", decoded.Comment, "trailer")
	}
}

func TestZip64EOCDAndLocatorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	e := &Zip64EndOfCentralDir{VersionMadeBy: VersionZip64, VersionNeeded: VersionZip64, EntriesThisDisk: 70000, EntriesTotal: 70000, Size: 12345, Offset: 999}
	if err := e.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeZip64EndOfCentralDir(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.EntriesTotal != e.EntriesTotal || got.Offset != e.Offset {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}

	buf.Reset()
	l := &Zip64EOCDLocator{Offset: 54321, TotalDisks: 1}
	if err := l.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	gotL, err := DecodeZip64EOCDLocator(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if gotL.Offset != l.Offset {
		t.Errorf("Offset = %d, want %d", gotL.Offset, l.Offset)
	}
}

func TestExtraFieldsRoundTrip(t *testing.T) {
	fields := []Field{
		{Tag: ExtraZip64, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Tag: ExtraUnixTime, Payload: []byte{9, 9}},
	}
	raw := BuildFields(fields)
	got := ParseFields(raw)
	if len(got) != 2 {
		t.Fatalf("got %d fields, want 2", len(got))
	}
	if got[0].Tag != ExtraZip64 || !bytes.Equal(got[0].Payload, fields[0].Payload) {
		t.Errorf("field 0 = %+v, want %+v", got[0], fields[0])
	}
}

func TestNTFSTimeExtraRoundTrip(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	atime := mtime.Add(-time.Hour)
	ctime := mtime.Add(-2 * time.Hour)
	raw := BuildNTFSTimeExtra(mtime, atime, ctime)
	gotM, gotA, gotC, ok := ParseNTFSTimeExtra(raw)
	if !ok {
		t.Fatal("ParseNTFSTimeExtra: not ok")
	}
	if !gotM.Equal(mtime) || !gotA.Equal(atime) || !gotC.Equal(ctime) {
		t.Errorf("got (%v,%v,%v), want (%v,%v,%v)", gotM, gotA, gotC, mtime, atime, ctime)
	}
}

func TestUnixTimeExtraRoundTrip(t *testing.T) {
	mtime := time.Unix(1700000000, 0).UTC()
	raw := BuildUnixTimeExtra(mtime, time.Time{}, time.Time{}, false, false, false)
	gotM, _, _, hasMod, hasA, hasC := ParseUnixTimeExtra(raw)
	if !hasMod || hasA || hasC {
		t.Fatalf("flags = (%v,%v,%v), want (true,false,false)", hasMod, hasA, hasC)
	}
	if !gotM.Equal(mtime) {
		t.Errorf("mtime = %v, want %v", gotM, mtime)
	}
}

func TestAESExtraRoundTrip(t *testing.T) {
	a := AESExtra{VendorVersion: 2, Strength: 3, Method: Deflate}
	raw := BuildAESExtra(a)
	got, ok := ParseAESExtra(raw)
	if !ok {
		t.Fatal("ParseAESExtra: not ok")
	}
	if got != a {
		t.Errorf("got %+v, want %+v", got, a)
	}
}

func TestDetectUTF8(t *testing.T) {
	tests := []struct {
		s           string
		valid, need bool
	}{
		{"hello.txt", true, false},
		{"héllo.txt", true, true},
		{string([]byte{0xff, 0xfe}), false, false},
	}
	for _, tc := range tests {
		valid, need := DetectUTF8(tc.s)
		if valid != tc.valid || need != tc.need {
			t.Errorf("DetectUTF8(%q) = (%v,%v), want (%v,%v)", tc.s, valid, need, tc.valid, tc.need)
		}
	}
}

func TestMSDOSTimeRoundTrip(t *testing.T) {
	want := time.Date(2023, 6, 15, 13, 45, 30, 0, time.UTC)
	date, dosTime := TimeToMSDOS(want)
	got := MSDOSToTime(date, dosTime, time.UTC)
	// MS-DOS time has 2-second resolution.
	if got.Sub(want).Abs() > 2*time.Second {
		t.Errorf("round trip = %v, want close to %v", got, want)
	}
}

func TestDataDescriptorRoundTrip(t *testing.T) {
	d := &DataDescriptor{CRC32: 0xabcd, CompressedSize: 10, UncompressedSize: 20, WithSignature: true}
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	peek := make([]byte, 4)
	buf.Read(peek)
	got, err := DecodeDataDescriptor(&buf, false, peek)
	if err != nil {
		t.Fatal(err)
	}
	if got.CRC32 != d.CRC32 || got.CompressedSize != d.CompressedSize || got.UncompressedSize != d.UncompressedSize {
		t.Errorf("got %+v, want %+v", got, d)
	}
}
