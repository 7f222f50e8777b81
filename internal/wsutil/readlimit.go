package wsutil

import "github.com/floegence/d2dpair/crypto/ukey2"

// ReadLimit returns a per-message websocket read limit that admits both
// handshake messages and record frames. Non-positive arguments select the
// ukey2 defaults.
func ReadLimit(maxMessageBytes, maxRecordBytes int) int64 {
	if maxMessageBytes <= 0 {
		maxMessageBytes = ukey2.DefaultMaxMessageBytes
	}
	if maxRecordBytes <= 0 {
		maxRecordBytes = ukey2.DefaultMaxRecordBytes
	}
	return int64(max(maxMessageBytes, maxRecordBytes))
}
