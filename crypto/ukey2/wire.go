package ukey2

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Handshake messages use the protobuf wire format. Unknown fields are skipped
// and the last occurrence of a scalar field wins, so peers can extend messages
// without breaking older readers.
//
//	Message        { 1: message_type varint, 2: message_data bytes }
//	ClientInit     { 1: version varint, 2: random bytes,
//	                 3: cipher_commitments repeated CipherCommitment,
//	                 4: next_protocols repeated string }
//	CipherCommitment { 1: handshake_cipher varint, 2: commitment bytes }
//	ServerInit     { 1: version varint, 2: random bytes, 3: handshake_cipher varint,
//	                 4: public_key bytes, 5: next_protocol string }
//	ClientFinished { 1: public_key bytes }
//	Alert          { 1: type varint, 2: error_message string }

type envelope struct {
	Type MessageType
	Data []byte
}

type cipherCommitment struct {
	Cipher     HandshakeCipher
	Commitment []byte
}

type clientInit struct {
	Version       uint32
	Random        []byte
	Commitments   []cipherCommitment
	NextProtocols []string
}

type serverInit struct {
	Version      uint32
	Random       []byte
	Cipher       HandshakeCipher
	PublicKey    []byte
	NextProtocol string
}

type clientFinished struct {
	PublicKey []byte
}

type alertMessage struct {
	Type    AlertType
	Message string
}

type wireField struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f wireField) want(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: field %d has wire type %d", errMalformed, f.num, f.typ)
	}
	return nil
}

func (f wireField) uint32() (uint32, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	if f.varint > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d overflows uint32", errMalformed, f.num)
	}
	return uint32(f.varint), nil
}

func (f wireField) copyBytes() ([]byte, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return nil, err
	}
	return append([]byte(nil), f.bytes...), nil
}

func parseFields(b []byte, fn func(wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func encodeEnvelope(t MessageType, data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	out = appendVarintField(out, 1, uint64(t))
	out = appendBytesField(out, 2, data)
	return out
}

func decodeEnvelope(b []byte) (envelope, error) {
	var env envelope
	err := parseFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			if err != nil {
				return err
			}
			env.Type = MessageType(v)
		case 2:
			v, err := f.copyBytes()
			if err != nil {
				return err
			}
			env.Data = v
		}
		return nil
	})
	if err != nil {
		return envelope{}, err
	}
	if env.Type == MessageTypeUnknown {
		return envelope{}, fmt.Errorf("%w: missing message type", errMalformed)
	}
	return env, nil
}

// encodeNextProtocols returns field 4 of ClientInit. The bytes are also an
// input to the cipher commitment. The responder re-encodes the parsed names
// rather than hashing the received bytes, so the commitment binds the ordered
// list of names and not its layout on the wire.
func encodeNextProtocols(names []string) []byte {
	var out []byte
	for _, name := range names {
		out = appendStringField(out, 4, name)
	}
	return out
}

func (m clientInit) marshal() []byte {
	var out []byte
	out = appendVarintField(out, 1, uint64(m.Version))
	out = appendBytesField(out, 2, m.Random)
	for _, c := range m.Commitments {
		var cc []byte
		cc = appendVarintField(cc, 1, uint64(c.Cipher))
		cc = appendBytesField(cc, 2, c.Commitment)
		out = appendBytesField(out, 3, cc)
	}
	out = append(out, encodeNextProtocols(m.NextProtocols)...)
	return out
}

func unmarshalClientInit(b []byte) (clientInit, error) {
	var m clientInit
	err := parseFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			if err != nil {
				return err
			}
			m.Version = v
		case 2:
			v, err := f.copyBytes()
			if err != nil {
				return err
			}
			m.Random = v
		case 3:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			c, err := unmarshalCipherCommitment(f.bytes)
			if err != nil {
				return err
			}
			m.Commitments = append(m.Commitments, c)
		case 4:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			m.NextProtocols = append(m.NextProtocols, string(f.bytes))
		}
		return nil
	})
	return m, err
}

func unmarshalCipherCommitment(b []byte) (cipherCommitment, error) {
	var c cipherCommitment
	err := parseFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			if err != nil {
				return err
			}
			c.Cipher = HandshakeCipher(v)
		case 2:
			v, err := f.copyBytes()
			if err != nil {
				return err
			}
			c.Commitment = v
		}
		return nil
	})
	return c, err
}

func (m serverInit) marshal() []byte {
	var out []byte
	out = appendVarintField(out, 1, uint64(m.Version))
	out = appendBytesField(out, 2, m.Random)
	out = appendVarintField(out, 3, uint64(m.Cipher))
	out = appendBytesField(out, 4, m.PublicKey)
	out = appendStringField(out, 5, m.NextProtocol)
	return out
}

func unmarshalServerInit(b []byte) (serverInit, error) {
	var m serverInit
	err := parseFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			if err != nil {
				return err
			}
			m.Version = v
		case 2:
			v, err := f.copyBytes()
			if err != nil {
				return err
			}
			m.Random = v
		case 3:
			v, err := f.uint32()
			if err != nil {
				return err
			}
			m.Cipher = HandshakeCipher(v)
		case 4:
			v, err := f.copyBytes()
			if err != nil {
				return err
			}
			m.PublicKey = v
		case 5:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			m.NextProtocol = string(f.bytes)
		}
		return nil
	})
	return m, err
}

func (m clientFinished) marshal() []byte {
	return appendBytesField(nil, 1, m.PublicKey)
}

func unmarshalClientFinished(b []byte) (clientFinished, error) {
	var m clientFinished
	err := parseFields(b, func(f wireField) error {
		if f.num == 1 {
			v, err := f.copyBytes()
			if err != nil {
				return err
			}
			m.PublicKey = v
		}
		return nil
	})
	return m, err
}

func (m alertMessage) marshal() []byte {
	out := appendVarintField(nil, 1, uint64(m.Type))
	if m.Message != "" {
		out = appendStringField(out, 2, m.Message)
	}
	return out
}

func unmarshalAlert(b []byte) (alertMessage, error) {
	var m alertMessage
	err := parseFields(b, func(f wireField) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			if err != nil {
				return err
			}
			m.Type = AlertType(v)
		case 2:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			m.Message = string(f.bytes)
		}
		return nil
	})
	return m, err
}

// EncodeAlert builds a ready-to-send alert message.
func EncodeAlert(t AlertType, message string) []byte {
	return encodeEnvelope(MessageTypeAlert, alertMessage{Type: t, Message: message}.marshal())
}

// DecodeAlert parses an alert message produced by EncodeAlert.
func DecodeAlert(b []byte) (AlertType, string, error) {
	env, err := decodeEnvelope(b)
	if err != nil {
		return 0, "", err
	}
	if env.Type != MessageTypeAlert {
		return 0, "", fmt.Errorf("%w: message type %s is not an alert", errMalformed, env.Type)
	}
	a, err := unmarshalAlert(env.Data)
	if err != nil {
		return 0, "", err
	}
	return a.Type, a.Message, nil
}

// PeekMessageType reports the envelope type of a handshake message without
// validating its payload.
func PeekMessageType(b []byte) (MessageType, error) {
	env, err := decodeEnvelope(b)
	if err != nil {
		return MessageTypeUnknown, err
	}
	return env.Type, nil
}
