package format

import "os"

// Unix mode constants. The ZIP specification doesn't define these, but
// they're the values every major implementation has converged on.
const (
	sIFMT   = 0xf000
	sIFSOCK = 0xc000
	sIFLNK  = 0xa000
	sIFREG  = 0x8000
	sIFBLK  = 0x6000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sISUID  = 0x800
	sISGID  = 0x400
	sISVTX  = 0x200

	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

// ModeFromExternalAttrs derives an os.FileMode from a creator-version byte
// and external-attributes dword, following the same host-OS dispatch as
// every unix-family ZIP reader.
func ModeFromExternalAttrs(creatorVersion uint16, externalAttrs uint32, isDirName bool) os.FileMode {
	var mode os.FileMode
	switch creatorVersion >> 8 {
	case CreatorUnix, CreatorMacOSX:
		mode = unixModeToFileMode(externalAttrs >> 16)
	case CreatorNTFS, CreatorVFAT, CreatorFAT:
		mode = msdosModeToFileMode(externalAttrs)
	}
	if isDirName {
		mode |= os.ModeDir
	}
	return mode
}

// ExternalAttrsFromMode is the inverse of ModeFromExternalAttrs, producing
// both the unix bits (high word) and the legacy MS-DOS bits (low byte) the
// way every writer sets both for maximum compatibility.
func ExternalAttrsFromMode(mode os.FileMode) (creatorVersionHighByte uint16, externalAttrs uint32) {
	externalAttrs = fileModeToUnixMode(mode) << 16
	if mode&os.ModeDir != 0 {
		externalAttrs |= msdosDir
	}
	if mode&0200 == 0 {
		externalAttrs |= msdosReadOnly
	}
	return CreatorUnix, externalAttrs
}

func msdosModeToFileMode(m uint32) (mode os.FileMode) {
	if m&msdosDir != 0 {
		mode = os.ModeDir | 0777
	} else {
		mode = 0666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}

func fileModeToUnixMode(mode os.FileMode) uint32 {
	var m uint32
	switch mode & os.ModeType {
	default:
		m = sIFREG
	case os.ModeDir:
		m = sIFDIR
	case os.ModeSymlink:
		m = sIFLNK
	case os.ModeNamedPipe:
		m = sIFIFO
	case os.ModeSocket:
		m = sIFSOCK
	case os.ModeDevice:
		if mode&os.ModeCharDevice != 0 {
			m = sIFCHR
		} else {
			m = sIFBLK
		}
	}
	if mode&os.ModeSetuid != 0 {
		m |= sISUID
	}
	if mode&os.ModeSetgid != 0 {
		m |= sISGID
	}
	if mode&os.ModeSticky != 0 {
		m |= sISVTX
	}
	return m | uint32(mode&0777)
}

func unixModeToFileMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0777)
	switch m & sIFMT {
	case sIFBLK:
		mode |= os.ModeDevice
	case sIFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case sIFDIR:
		mode |= os.ModeDir
	case sIFIFO:
		mode |= os.ModeNamedPipe
	case sIFLNK:
		mode |= os.ModeSymlink
	case sIFREG:
	case sIFSOCK:
		mode |= os.ModeSocket
	}
	if m&sISGID != 0 {
		mode |= os.ModeSetgid
	}
	if m&sISUID != 0 {
		mode |= os.ModeSetuid
	}
	if m&sISVTX != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
