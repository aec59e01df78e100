package format

import "unicode/utf8"

// DetectUTF8 reports whether s is valid UTF-8, and whether it must be
// treated as UTF-8 (i.e. is not also compatible with CP-437 and other
// common single-byte encodings).
func DetectUTF8(s string) (valid, require bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		// Officially ZIP uses CP-437, but many readers use the system's
		// local encoding. Forbid 0x7e and 0x5c since EUC-KR and Shift-JIS
		// replace those bytes with localized currency/overline characters.
		if r < 0x20 || r > 0x7d || r == 0x5c {
			if !utf8.ValidRune(r) || (r == utf8.RuneError && size == 1) {
				return false, false
			}
			require = true
		}
	}
	return true, require
}
