package ukey2

import (
	"crypto/ecdh"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfSHA256 expands ikm into n bytes with HKDF-SHA256.
func hkdfSHA256(ikm, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// deriveDHS returns SHA-256 of the raw ECDH shared secret.
func deriveDHS(priv *ecdh.PrivateKey, peer *ecdh.PublicKey) ([]byte, error) {
	shared, err := priv.ECDH(peer)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(shared)
	zero(shared)
	return sum[:], nil
}

func deriveAuthString(dhs []byte, transcript [32]byte, n int) ([]byte, error) {
	return hkdfSHA256(dhs, []byte(authSalt), transcript[:], n)
}

func deriveNextSecret(dhs []byte, transcript [32]byte) ([]byte, error) {
	return hkdfSHA256(dhs, []byte(nextSalt), transcript[:], 32)
}

// connectionKeys holds the two directional keys derived from the next secret.
type connectionKeys struct {
	initiator []byte
	responder []byte
}

func deriveConnectionKeys(next []byte) (connectionKeys, error) {
	salt := sha256.Sum256([]byte(d2dSaltInput))
	ik, err := hkdfSHA256(next, salt[:], []byte(d2dInitiatorInfo), 32)
	if err != nil {
		return connectionKeys{}, err
	}
	rk, err := hkdfSHA256(next, salt[:], []byte(d2dResponderInfo), 32)
	if err != nil {
		zero(ik)
		return connectionKeys{}, err
	}
	return connectionKeys{initiator: ik, responder: rk}, nil
}

// splitSecureMessageKeys derives the CBC encryption key and HMAC key of one direction.
func splitSecureMessageKeys(key []byte) (enc, mac []byte, err error) {
	salt := sha256.Sum256([]byte(secureMessageSaltInput))
	enc, err = hkdfSHA256(key, salt[:], []byte(encKeyInfo), 32)
	if err != nil {
		return nil, nil, err
	}
	mac, err = hkdfSHA256(key, salt[:], []byte(macKeyInfo), 32)
	if err != nil {
		zero(enc)
		return nil, nil, err
	}
	return enc, mac, nil
}

func sessionUnique(keys connectionKeys) [32]byte {
	h := sha256.New()
	_, _ = h.Write([]byte(sessionUniqueLabel))
	_, _ = h.Write(keys.initiator)
	_, _ = h.Write(keys.responder)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
