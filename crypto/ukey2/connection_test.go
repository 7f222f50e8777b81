package ukey2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newConnectionPair(t *testing.T, proto NextProtocol, opts Options) (*ConnectionContext, *ConnectionContext) {
	t.Helper()
	protos := []NextProtocol{proto}
	p := newPair(t, protos, protos, opts, opts)
	return p.complete(t)
}

var allProtocols = []NextProtocol{AES256GCMSIV, AES256CBCHMACSHA256}

func TestConnectionSequencesAdvance(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{})
			require.Zero(t, a.SendSequence())
			require.Zero(t, b.ReceiveSequence())

			for i := 1; i <= 5; i++ {
				msg := bytes.Repeat([]byte{byte(i)}, i*7)
				rec, err := a.Encrypt(msg, nil)
				require.NoError(t, err)
				require.Equal(t, uint32(i), a.SendSequence())
				pt, err := b.Decrypt(rec, nil)
				require.NoError(t, err)
				require.Equal(t, msg, pt)
				require.Equal(t, uint32(i), b.ReceiveSequence())
			}
			require.Zero(t, b.SendSequence())
			require.Zero(t, a.ReceiveSequence())
		})
	}
}

func TestConnectionEmptyPlaintext(t *testing.T) {
	for _, proto := range allProtocols {
		a, b := newConnectionPair(t, proto, Options{})
		rec, err := a.Encrypt(nil, nil)
		require.NoError(t, err)
		pt, err := b.Decrypt(rec, nil)
		require.NoError(t, err)
		require.Empty(t, pt)
	}
}

func TestConnectionRejectsReplay(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{})
			rec, err := a.Encrypt([]byte("once"), nil)
			require.NoError(t, err)
			_, err = b.Decrypt(rec, nil)
			require.NoError(t, err)

			_, err = b.Decrypt(rec, nil)
			require.ErrorIs(t, err, ErrAuthentication)
			require.Equal(t, uint32(1), b.ReceiveSequence())
		})
	}
}

func TestConnectionRejectsReorderAndGaps(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{})
			r1, err := a.Encrypt([]byte("one"), nil)
			require.NoError(t, err)
			r2, err := a.Encrypt([]byte("two"), nil)
			require.NoError(t, err)

			_, err = b.Decrypt(r2, nil)
			require.ErrorIs(t, err, ErrAuthentication)
			require.Zero(t, b.ReceiveSequence())

			pt, err := b.Decrypt(r1, nil)
			require.NoError(t, err)
			require.Equal(t, []byte("one"), pt)
			pt, err = b.Decrypt(r2, nil)
			require.NoError(t, err)
			require.Equal(t, []byte("two"), pt)
		})
	}
}

func TestConnectionRejectsOwnRecords(t *testing.T) {
	for _, proto := range allProtocols {
		a, _ := newConnectionPair(t, proto, Options{})
		rec, err := a.Encrypt([]byte("loop"), nil)
		require.NoError(t, err)
		_, err = a.Decrypt(rec, nil)
		require.ErrorIs(t, err, ErrAuthentication)
	}
}

func TestConnectionAssociatedDataMismatch(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{})
			rec, err := a.Encrypt([]byte("payload"), []byte("channel-1"))
			require.NoError(t, err)

			_, err = b.Decrypt(rec, []byte("channel-2"))
			require.ErrorIs(t, err, ErrAuthentication)
			_, err = b.Decrypt(rec, nil)
			require.ErrorIs(t, err, ErrAuthentication)

			pt, err := b.Decrypt(rec, []byte("channel-1"))
			require.NoError(t, err)
			require.Equal(t, []byte("payload"), pt)
		})
	}
}

func TestConnectionDetectsEveryBitFlip(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{})
			rec, err := a.Encrypt([]byte("sensitive"), []byte("ad"))
			require.NoError(t, err)

			for i := range rec {
				bad := append([]byte(nil), rec...)
				bad[i] ^= 0x80
				_, err := b.Decrypt(bad, []byte("ad"))
				require.ErrorIs(t, err, ErrAuthentication, "byte %d", i)
			}
			_, err = b.Decrypt(rec[:len(rec)-1], []byte("ad"))
			require.ErrorIs(t, err, ErrAuthentication)
			_, err = b.Decrypt(append(append([]byte(nil), rec...), 0), []byte("ad"))
			require.ErrorIs(t, err, ErrAuthentication)

			pt, err := b.Decrypt(rec, []byte("ad"))
			require.NoError(t, err)
			require.Equal(t, []byte("sensitive"), pt)
		})
	}
}

func TestConnectionSequenceOverflow(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{})
			a.sendSeq = MaxSequenceNumber - 1
			b.recvSeq = MaxSequenceNumber - 1

			rec, err := a.Encrypt([]byte("last"), nil)
			require.NoError(t, err)
			require.Equal(t, uint32(MaxSequenceNumber), a.SendSequence())
			_, err = b.Decrypt(rec, nil)
			require.NoError(t, err)

			_, err = a.Encrypt([]byte("one too many"), nil)
			require.ErrorIs(t, err, ErrSequenceOverflow)
			require.Equal(t, uint32(MaxSequenceNumber), a.SendSequence())
		})
	}
}

func TestConnectionMaxPlaintextBytes(t *testing.T) {
	for _, proto := range allProtocols {
		t.Run(proto.String(), func(t *testing.T) {
			a, b := newConnectionPair(t, proto, Options{MaxRecordBytes: 256})
			limit := a.MaxPlaintextBytes()
			require.Positive(t, limit)

			rec, err := a.Encrypt(make([]byte, limit), nil)
			require.NoError(t, err)
			require.LessOrEqual(t, len(rec), 256)
			_, err = b.Decrypt(rec, nil)
			require.NoError(t, err)

			_, err = a.Encrypt(make([]byte, limit+1), nil)
			require.ErrorIs(t, err, ErrRecordTooLarge)
			require.Equal(t, uint32(1), a.SendSequence())
		})
	}
}

func TestConnectionRejectsOversizeFrames(t *testing.T) {
	a, _ := newConnectionPair(t, AES256GCMSIV, Options{})
	_, b := newConnectionPair(t, AES256GCMSIV, Options{MaxRecordBytes: 64})
	rec, err := a.Encrypt(make([]byte, 100), nil)
	require.NoError(t, err)
	_, err = b.Decrypt(rec, nil)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestConnectionsFromDifferentHandshakesDoNotInteroperate(t *testing.T) {
	a, _ := newConnectionPair(t, AES256GCMSIV, Options{})
	_, d := newConnectionPair(t, AES256GCMSIV, Options{})
	rec, err := a.Encrypt([]byte("x"), nil)
	require.NoError(t, err)
	_, err = d.Decrypt(rec, nil)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestConnectionWipe(t *testing.T) {
	a, b := newConnectionPair(t, AES256CBCHMACSHA256, Options{})
	rec, err := a.Encrypt([]byte("before"), nil)
	require.NoError(t, err)

	b.Wipe()
	b.Wipe()
	_, err = b.Decrypt(rec, nil)
	var se *InvalidStateError
	require.ErrorAs(t, err, &se)
	require.True(t, se.Consumed)
	_, err = b.Encrypt([]byte("after"), nil)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = b.SessionUnique()
	require.ErrorIs(t, err, ErrInvalidState)
	require.Zero(t, b.MaxPlaintextBytes())

	cbc := b.recv.(*cbcHMACCipher)
	require.Equal(t, make([]byte, 32), cbc.encKey)
	require.Equal(t, make([]byte, 32), cbc.macKey)
}

func TestCBCRecordsUseFreshIVs(t *testing.T) {
	a, _ := newConnectionPair(t, AES256CBCHMACSHA256, Options{})
	r1, err := a.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	r2, err := a.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	require.NotEqual(t, r1[recordHeaderLen:recordHeaderLen+cbcIVSize], r2[recordHeaderLen:recordHeaderLen+cbcIVSize])
}

func TestRecordHeaderLayout(t *testing.T) {
	a, _ := newConnectionPair(t, AES256GCMSIV, Options{})
	rec, err := a.Encrypt([]byte("hdr"), nil)
	require.NoError(t, err)

	require.Equal(t, RecordMagic, string(rec[:4]))
	require.Equal(t, byte(RecordVersion), rec[4])
	require.Equal(t, byte(AES256GCMSIV), rec[5])
	h, ok := decodeRecordHeader(rec)
	require.True(t, ok)
	require.Equal(t, uint32(1), h.seq)
	require.Equal(t, len(rec)-recordHeaderLen, h.bodyLen)
}

func TestPKCS7(t *testing.T) {
	for n := 0; n <= 33; n++ {
		in := bytes.Repeat([]byte{0xaa}, n)
		padded := pkcs7Pad(in)
		if len(padded)%16 != 0 || len(padded) <= n {
			t.Fatalf("pad(%d) produced %d bytes", n, len(padded))
		}
		out, ok := pkcs7Unpad(padded)
		if !ok || !bytes.Equal(out, in) {
			t.Fatalf("unpad(pad(%d)) mismatch", n)
		}
	}
	if _, ok := pkcs7Unpad(make([]byte, 16)); ok {
		t.Fatalf("expected zero padding byte to be rejected")
	}
	bad := pkcs7Pad([]byte("abc"))
	bad[len(bad)-2] ^= 1
	if _, ok := pkcs7Unpad(bad); ok {
		t.Fatalf("expected inconsistent padding to be rejected")
	}
}
