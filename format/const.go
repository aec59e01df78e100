// Package format implements the PKZIP binary layout: local file headers,
// central directory headers, the end-of-central-directory record, the
// ZIP64 variants of each, and the extra-field tags this module recognizes.
//
// See https://www.pkware.com/appnote for the authoritative reference.
package format

// Compression methods recognized on the wire. LZMA, PPMd and "enhanced
// deflate" are deliberately absent: this module never emits or decodes
// them.
const (
	Store   uint16 = 0
	Deflate uint16 = 8
	BZip2   uint16 = 12
	// AESMethod is written into the Method field of entries encrypted with
	// WinZip AES; the real compression method is recorded in the 0x9901
	// extra field instead (see ExtraAES).
	AESMethod uint16 = 99
)

const (
	SigLocalFileHeader      = 0x04034b50
	SigDataDescriptor       = 0x08074b50
	SigCentralDirHeader     = 0x02014b50
	SigEndOfCentralDir      = 0x06054b50
	SigZip64EndOfCentralDir = 0x06064b50
	SigZip64EOCDLocator     = 0x07064b50

	LenLocalFileHeader      = 30 // + name + extra
	LenCentralDirHeader     = 46 // + name + extra + comment
	LenEndOfCentralDir      = 22 // + comment
	LenDataDescriptor       = 16 // sig, crc32, compressed, uncompressed (uint32 each)
	LenDataDescriptor64     = 24 // sig, crc32, compressed, uncompressed (uint64 sizes)
	LenZip64EOCDLocator     = 20
	LenZip64EndOfCentralDir = 56 // fixed portion; + extensible data sector

	// Creator-version high byte (host OS that produced the entry).
	CreatorFAT    = 0
	CreatorUnix   = 3
	CreatorNTFS   = 11
	CreatorVFAT   = 14
	CreatorMacOSX = 19

	VersionDefault  = 20 // 2.0: deflate, traditional encryption
	VersionZip64    = 45 // 4.5: zip64 extensions
	VersionAES      = 51 // 5.1: AES encryption (APPNOTE 7.4.3)
	VersionBZip2    = 46 // 4.6: bzip2 compression

	Uint16Max = (1 << 16) - 1
	Uint32Max = (1 << 32) - 1

	// Extra-field tags this module recognizes. IDs 0..31 are reserved for
	// PKWARE; everything above is third-party but pervasive enough to be
	// treated as de-facto standard.
	ExtraZip64     = 0x0001
	ExtraNTFSTime  = 0x000a
	ExtraUnixTime  = 0x5455
	ExtraAES       = 0x9901
)

// General-purpose bit flags (LFH/CDH "Flags" field).
const (
	FlagEncrypted      uint16 = 1 << 0
	FlagDataDescriptor uint16 = 1 << 3
	FlagStrongEncrypt  uint16 = 1 << 6
	FlagUTF8           uint16 = 1 << 11
)
