// Package segment implements the segmented-stream manager: a virtual
// seekable stream that writes across N physical files of bounded size
// while preserving the PKZIP split-archive convention, with transactional
// "temp segment -> persisted segment" promotion and backward-truncation
// during updates. Naming and the split marker follow the PKWARE APPNOTE
// conventions for spanned/split archives.
package segment

import (
	"fmt"
	"strings"
)

// MinSegmentSize is the floor below which a non-zero max segment size is
// rejected as InvalidArgument.
const MinSegmentSize = 64 * 1024

// SplitSignature is the 4-byte marker PKZIP requires at offset 0 of the
// first segment of any archive with more than one segment.
var SplitSignature = [4]byte{0x50, 0x4b, 0x07, 0x08}

// SegmentName returns the on-disk name of the non-final segment numbered
// index (1-based: the first non-final segment is index 1, producing the
// ".z01" suffix). The digit width is two by default and grows to fit
// index once it reaches 100, matching the "two-digit, zero-padded; three
// or more digits allowed when N>=100" rule - computed from the index
// itself so a segment's name never has to be revised once chosen.
func SegmentName(base string, index int) string {
	width := 2
	for n := index; n >= 100; n /= 10 {
		width++
	}
	return fmt.Sprintf("%s.z%0*d", stem(base), width, index)
}

// FinalSegmentName returns the name of the last segment of an archive,
// which is always the target path itself (e.g. "archive.zip").
func FinalSegmentName(base string) string {
	return base
}

// stem strips base's file extension, e.g. "archive.zip" -> "archive".
func stem(base string) string {
	dot := strings.LastIndexByte(base, '.')
	slash := strings.LastIndexAny(base, `/\`)
	if dot <= slash {
		return base
	}
	return base[:dot]
}
