package ukey2

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tink-crypto/tink-go/v2/aead/subtle"
)

// record = magic(4) | version(1) | protocol(1) | seq(4, u32be) | body_len(4, u32be) | body
const recordHeaderLen = 4 + 1 + 1 + 4 + 4

const (
	gcmSIVNonceSize = 12
	gcmSIVTagSize   = 16

	cbcIVSize  = aes.BlockSize
	cbcMACSize = sha256.Size
)

type recordHeader struct {
	protocol NextProtocol
	seq      uint32
	bodyLen  int
}

func encodeRecordHeader(p NextProtocol, seq uint32, bodyLen int) []byte {
	out := make([]byte, recordHeaderLen, recordHeaderLen+bodyLen)
	copy(out[:4], RecordMagic)
	out[4] = RecordVersion
	out[5] = byte(p)
	binary.BigEndian.PutUint32(out[6:10], seq)
	binary.BigEndian.PutUint32(out[10:14], uint32(bodyLen))
	return out
}

func decodeRecordHeader(frame []byte) (recordHeader, bool) {
	if len(frame) < recordHeaderLen {
		return recordHeader{}, false
	}
	if string(frame[:4]) != RecordMagic || frame[4] != RecordVersion {
		return recordHeader{}, false
	}
	h := recordHeader{
		protocol: NextProtocol(frame[5]),
		seq:      binary.BigEndian.Uint32(frame[6:10]),
		bodyLen:  int(binary.BigEndian.Uint32(frame[10:14])),
	}
	if recordHeaderLen+h.bodyLen != len(frame) {
		return recordHeader{}, false
	}
	return h, true
}

// recordCipher seals one direction of a connection. The header is always
// authenticated together with the caller's associated data.
type recordCipher interface {
	bodyLen(plaintextLen int) int
	maxPlaintext(maxBody int) int
	seal(header, plaintext, ad []byte) ([]byte, error)
	open(header, body, ad []byte) ([]byte, error)
	wipe()
}

func newRecordCipher(p NextProtocol, key []byte, r io.Reader) (recordCipher, error) {
	switch p {
	case AES256GCMSIV:
		return newGCMSIVCipher(key)
	case AES256CBCHMACSHA256:
		return newCBCHMACCipher(key, r)
	default:
		return nil, fmt.Errorf("ukey2: no record cipher for %s", p)
	}
}

// gcmSIVCipher: body = nonce(12) | ciphertext | tag(16); AAD = header || ad.
type gcmSIVCipher struct {
	key  []byte
	aead *subtle.AESGCMSIV
}

func newGCMSIVCipher(key []byte) (*gcmSIVCipher, error) {
	k := clone(key)
	a, err := subtle.NewAESGCMSIV(k)
	if err != nil {
		zero(k)
		return nil, err
	}
	return &gcmSIVCipher{key: k, aead: a}, nil
}

func (c *gcmSIVCipher) bodyLen(n int) int { return gcmSIVNonceSize + n + gcmSIVTagSize }

func (c *gcmSIVCipher) maxPlaintext(maxBody int) int {
	return maxBody - gcmSIVNonceSize - gcmSIVTagSize
}

func (c *gcmSIVCipher) seal(header, plaintext, ad []byte) ([]byte, error) {
	return c.aead.Encrypt(plaintext, joinAAD(header, ad))
}

func (c *gcmSIVCipher) open(header, body, ad []byte) ([]byte, error) {
	if len(body) < gcmSIVNonceSize+gcmSIVTagSize {
		return nil, ErrAuthentication
	}
	pt, err := c.aead.Decrypt(body, joinAAD(header, ad))
	if err != nil {
		return nil, ErrAuthentication
	}
	return pt, nil
}

func (c *gcmSIVCipher) wipe() {
	zero(c.key)
	c.aead = nil
}

func joinAAD(header, ad []byte) []byte {
	out := make([]byte, 0, len(header)+len(ad))
	out = append(out, header...)
	return append(out, ad...)
}

// cbcHMACCipher is encrypt-then-MAC:
//
//	body = iv(16) | AES-256-CBC(PKCS#7(plaintext)) | tag(32)
//	tag  = HMAC-SHA256(mac_key, header || u32be(len(ad)) || ad || iv || ciphertext)
type cbcHMACCipher struct {
	encKey []byte
	macKey []byte
	block  cipher.Block
	rand   io.Reader
}

func newCBCHMACCipher(key []byte, r io.Reader) (*cbcHMACCipher, error) {
	enc, mac, err := splitSecureMessageKeys(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(enc)
	if err != nil {
		zero(enc)
		zero(mac)
		return nil, err
	}
	return &cbcHMACCipher{encKey: enc, macKey: mac, block: block, rand: r}, nil
}

func (c *cbcHMACCipher) bodyLen(n int) int {
	return cbcIVSize + (n/aes.BlockSize+1)*aes.BlockSize + cbcMACSize
}

func (c *cbcHMACCipher) maxPlaintext(maxBody int) int {
	blocks := (maxBody - cbcIVSize - cbcMACSize) / aes.BlockSize
	if blocks <= 0 {
		return 0
	}
	return blocks*aes.BlockSize - 1
}

func (c *cbcHMACCipher) seal(header, plaintext, ad []byte) ([]byte, error) {
	body := make([]byte, c.bodyLen(len(plaintext)))
	iv := body[:cbcIVSize]
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, err
	}
	ct := body[cbcIVSize : len(body)-cbcMACSize]
	padded := pkcs7Pad(plaintext)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ct, padded)
	zero(padded)
	copy(body[len(body)-cbcMACSize:], c.tag(header, ad, iv, ct))
	return body, nil
}

func (c *cbcHMACCipher) open(header, body, ad []byte) ([]byte, error) {
	if len(body) < cbcIVSize+aes.BlockSize+cbcMACSize || (len(body)-cbcIVSize-cbcMACSize)%aes.BlockSize != 0 {
		return nil, ErrAuthentication
	}
	iv := body[:cbcIVSize]
	ct := body[cbcIVSize : len(body)-cbcMACSize]
	if !hmac.Equal(body[len(body)-cbcMACSize:], c.tag(header, ad, iv, ct)) {
		return nil, ErrAuthentication
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(pt, ct)
	out, ok := pkcs7Unpad(pt)
	if !ok {
		return nil, ErrAuthentication
	}
	return out, nil
}

func (c *cbcHMACCipher) tag(header, ad, iv, ct []byte) []byte {
	m := hmac.New(sha256.New, c.macKey)
	_, _ = m.Write(header)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(ad)))
	_, _ = m.Write(l[:])
	_, _ = m.Write(ad)
	_, _ = m.Write(iv)
	_, _ = m.Write(ct)
	return m.Sum(nil)
}

func (c *cbcHMACCipher) wipe() {
	zero(c.encKey)
	zero(c.macKey)
	c.block = nil
}

func pkcs7Pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
