package ukey2

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
)

// computeCommitment binds the initiator to its ClientFinished message (and so
// its public key) and to the protocol list it advertised in ClientInit.
//
//	commitment = SHA-512("UKEY2 v1 commitment" || client_finished || next_protocols_field)
func computeCommitment(clientFinished []byte, nextProtocolsField []byte) []byte {
	h := sha512.New()
	_, _ = h.Write([]byte(commitmentLabel))
	_, _ = h.Write(clientFinished)
	_, _ = h.Write(nextProtocolsField)
	return h.Sum(nil)
}

// transcriptHash hashes the three handshake messages exactly as they crossed the wire.
//
//	transcript = SHA-256("UKEY2 v1 transcript" ||
//	                     len(m1):u32be || m1 || len(m2):u32be || m2 || len(m3):u32be || m3)
func transcriptHash(m1, m2, m3 []byte) [32]byte {
	h := sha256.New()
	_, _ = h.Write([]byte(transcriptLabel))
	var l [4]byte
	for _, m := range [][]byte{m1, m2, m3} {
		binary.BigEndian.PutUint32(l[:], uint32(len(m)))
		_, _ = h.Write(l[:])
		_, _ = h.Write(m)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
