package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	aesPBKDF2Iterations = 1000
	aesVerifyLen        = 2
	aesMACLen           = 10
)

// aesKeyMaterial derives the encryption key, MAC key, and password
// verification value from a password and salt, per the AE-2 key-derivation
// scheme (PBKDF2-HMAC-SHA1, 1000 iterations, output length 2*keyLen+2).
func aesKeyMaterial(password string, salt []byte, keyLen int) (encKey, macKey, verify []byte) {
	derived := pbkdf2.Key([]byte(password), salt, aesPBKDF2Iterations, 2*keyLen+aesVerifyLen, sha1.New)
	return derived[:keyLen], derived[keyLen : 2*keyLen], derived[2*keyLen:]
}

func keyLenForStrength(strength byte) int {
	switch strength {
	case 1:
		return 16
	case 2:
		return 24
	case 3:
		return 32
	}
	return 0
}

func saltLenForStrength(strength byte) int {
	switch strength {
	case 1:
		return 8
	case 2:
		return 12
	case 3:
		return 16
	}
	return 0
}

// aesCTRLE produces the keystream for AE-2: AES in CTR mode with a
// 16-byte counter that starts at 1 and increments little-endian (carry
// propagates from byte 0 upward), once per block. crypto/cipher.NewCTR
// cannot be used here - it increments its counter big-endian, so its
// keystream diverges from the AE-2 wire format after the first block.
type aesCTRLE struct {
	block  cipher.Block
	ctr    [aes.BlockSize]byte
	stream [aes.BlockSize]byte
	used   int
}

func (s *aesCTRLE) refill() {
	for i := range s.ctr {
		s.ctr[i]++
		if s.ctr[i] != 0 {
			break
		}
	}
	s.block.Encrypt(s.stream[:], s.ctr[:])
	s.used = 0
}

func (s *aesCTRLE) XORKeyStream(dst, src []byte) {
	for i := range src {
		if s.used == aes.BlockSize {
			s.refill()
		}
		dst[i] = src[i] ^ s.stream[s.used]
		s.used++
	}
}

func aesCTRStream(key []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	// The counter is zero here; the first refill increments it to 1
	// before any keystream byte is produced.
	return &aesCTRLE{block: block, used: aes.BlockSize}, nil
}

// aesEncrypter implements Encrypter for WinZip AE-2 AES-128/256.
type aesEncrypter struct {
	w        io.Writer
	stream   cipher.Stream
	mac      *hmacWriter
	strength byte
}

// NewAESEncrypter writes the salt + password-verification header, then
// returns an Encrypter that AES-CTR encrypts the stream and accumulates an
// HMAC-SHA1 (truncated to 10 bytes) emitted by Close.
func NewAESEncrypter(w io.Writer, password string, strength byte) (Encrypter, error) {
	keyLen := keyLenForStrength(strength)
	saltLen := saltLenForStrength(strength)
	if keyLen == 0 || saltLen == 0 {
		return nil, fmt.Errorf("zipcore: invalid AES strength %d", strength)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	encKey, macKey, verify := aesKeyMaterial(password, salt, keyLen)

	header := append(append([]byte{}, salt...), verify...)
	if _, err := w.Write(header); err != nil {
		return nil, err
	}

	stream, err := aesCTRStream(encKey)
	if err != nil {
		return nil, err
	}
	return &aesEncrypter{
		w:        w,
		stream:   stream,
		mac:      newHMACWriter(w, macKey),
		strength: strength,
	}, nil
}

func (e *aesEncrypter) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	e.stream.XORKeyStream(out, p)
	return e.mac.Write(out)
}

func (e *aesEncrypter) Close() error {
	_, err := e.w.Write(e.mac.Sum())
	return err
}

func (e *aesEncrypter) HeaderSize() int {
	return saltLenForStrength(e.strength) + aesVerifyLen
}

func (e *aesEncrypter) TrailerSize() int { return aesMACLen }

// hmacWriter forwards writes to w and feeds the bytes w accepted into a
// running HMAC-SHA1, so the MAC covers exactly the ciphertext passed on.
type hmacWriter struct {
	w    io.Writer
	hash interface {
		io.Writer
		Sum([]byte) []byte
	}
}

func newHMACWriter(w io.Writer, key []byte) *hmacWriter {
	return &hmacWriter{w: w, hash: hmac.New(sha1.New, key)}
}

func (h *hmacWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.hash.Write(p[:n])
	return n, err
}

func (h *hmacWriter) Sum() []byte {
	full := h.hash.Sum(nil)
	return full[:aesMACLen]
}

// aesDecrypter implements Decrypter for WinZip AE-2 AES-128/256.
type aesDecrypter struct {
	r          io.Reader // limited to exactly the ciphertext length
	rawTrailer io.Reader // the same underlying stream, for the trailing MAC
	stream     cipher.Stream
	mac        *hmacWriter
}

// NewAESDecrypter reads the salt + password-verification header from r,
// checks it against the derived key material for an immediate (cheap)
// BadPassword rejection, and returns a Decrypter that will also verify the
// full HMAC on Close once cipherLen bytes of ciphertext have been consumed
// and the trailing 10-byte MAC read from r.
func NewAESDecrypter(r io.Reader, password string, strength byte, cipherLen int64) (Decrypter, error) {
	keyLen := keyLenForStrength(strength)
	saltLen := saltLenForStrength(strength)
	if keyLen == 0 || saltLen == 0 {
		return nil, fmt.Errorf("zipcore: invalid AES strength %d", strength)
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, err
	}
	wantVerify := make([]byte, aesVerifyLen)
	if _, err := io.ReadFull(r, wantVerify); err != nil {
		return nil, err
	}
	encKey, macKey, verify := aesKeyMaterial(password, salt, keyLen)
	if subtle.ConstantTimeCompare(verify, wantVerify) != 1 {
		return nil, ErrBadPassword
	}

	stream, err := aesCTRStream(encKey)
	if err != nil {
		return nil, err
	}
	mac := newHMACWriter(io.Discard, macKey)
	return &aesDecrypter{
		r:         io.LimitReader(r, cipherLen),
		rawTrailer: r,
		stream:    stream,
		mac:       mac,
	}, nil
}

func (d *aesDecrypter) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.mac.Write(p[:n])
		d.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// Close reads the trailing 10-byte MAC and verifies it against what was
// accumulated while decrypting, returning ErrBadPassword on mismatch
// (AE-2 carries no independent CRC32 to blame instead). Ciphertext the
// consumer never read - a decompressor can stop short of the stream's
// end - is drained first so the MAC always covers the full stream.
func (d *aesDecrypter) Close() error {
	buf := make([]byte, 4096)
	for {
		n, err := d.r.Read(buf)
		if n > 0 {
			d.mac.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	gotMAC := make([]byte, aesMACLen)
	if _, err := io.ReadFull(d.rawTrailer, gotMAC); err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(d.mac.Sum(), gotMAC) != 1 {
		return ErrBadPassword
	}
	return nil
}
