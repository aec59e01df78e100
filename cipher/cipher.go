// Package cipher implements the two encryption schemes this module
// supports: traditional ("weak") PKZIP encryption, and WinZip AE-2
// AES-128/256. Both are exposed behind the same small Encrypter and
// Decrypter interfaces so the entry pipeline (see package entry) doesn't
// need to know which one it's driving.
package cipher

import (
	"errors"
	"io"
)

// Kind identifies which cipher is in play for an entry.
type Kind int

const (
	None Kind = iota
	PKZIPWeak
	WinZipAES128
	WinZipAES256
)

// ErrBadPassword is returned by Decrypter (or by the final MAC check on
// Close, for AES) when the supplied password is wrong.
var ErrBadPassword = errors.New("zipcore: incorrect password")

// Encrypter wraps a plaintext-accepting writer with one that emits the
// on-wire encrypted form: a header (salt/verification bytes) is written
// immediately, followed by the encrypted stream as bytes are written, and
// (for AES) a trailing MAC on Close.
type Encrypter interface {
	io.WriteCloser
	// HeaderSize is how many bytes Encrypter already wrote to the
	// underlying stream before the first plaintext byte, which the local
	// header's compressed-size field must include.
	HeaderSize() int
	// TrailerSize is how many bytes Close will append after the
	// ciphertext (the AES MAC; zero for PKZIP-weak).
	TrailerSize() int
}

// Decrypter wraps a ciphertext-producing reader with one that yields
// plaintext, having consumed the header up front. Close must be called to
// run any final verification (the AES HMAC) after all plaintext has been
// read; for PKZIP-weak, Close is a no-op.
type Decrypter interface {
	io.ReadCloser
}

// CheckPassword attempts to open newDecrypter with the supplied key
// material, discarding any plaintext it produces, and reports whether the
// password was accepted. Password-check operations fail verification
// without revealing plaintext: the decrypted bytes are teed to io.Discard
// and only the boolean survives.
func CheckPassword(newDecrypter func() (Decrypter, error)) (bool, error) {
	d, err := newDecrypter()
	if errors.Is(err, ErrBadPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, copyErr := io.Copy(io.Discard, d)
	closeErr := d.Close()
	if errors.Is(copyErr, ErrBadPassword) || errors.Is(closeErr, ErrBadPassword) {
		return false, nil
	}
	if copyErr != nil {
		return false, copyErr
	}
	if closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
