package ukey2

const (
	// Version is the UKEY2 protocol version carried in ClientInit and ServerInit.
	Version = 1
	// RandomSize is the length of the random value in ClientInit and ServerInit.
	RandomSize = 32
	// CommitmentSize is the length of a SHA-512 cipher commitment.
	CommitmentSize = 64

	// DefaultMaxMessageBytes bounds a single inbound handshake message.
	DefaultMaxMessageBytes = 8 * 1024
	// DefaultMaxRecordBytes bounds a single encrypted record frame.
	DefaultMaxRecordBytes = 1 << 20

	// MaxVerificationStringLength is the HKDF-SHA256 output limit (255 * 32).
	MaxVerificationStringLength = 255 * 32

	// MaxSequenceNumber is the last sequence number a connection may use in one direction.
	MaxSequenceNumber = 1<<32 - 1
)

const (
	// RecordMagic prefixes every encrypted record frame.
	RecordMagic = "D2DR"
	// RecordVersion is the record header version byte.
	RecordVersion = 1
)

// Domain separation labels for the handshake key schedule.
const (
	commitmentLabel = "UKEY2 v1 commitment"
	transcriptLabel = "UKEY2 v1 transcript"
	authSalt        = "UKEY2 v1 auth"
	nextSalt        = "UKEY2 v1 next"

	d2dSaltInput           = "D2D"
	d2dInitiatorInfo       = "initiator"
	d2dResponderInfo       = "responder"
	secureMessageSaltInput = "SecureMessage"
	encKeyInfo             = "ENC:2"
	macKeyInfo             = "SIG:1"
	sessionUniqueLabel     = "D2D session"
)

// MessageType is the envelope type of a handshake message.
type MessageType uint32

const (
	MessageTypeUnknown      MessageType = 0
	MessageTypeAlert        MessageType = 1
	MessageTypeClientInit   MessageType = 2
	MessageTypeServerInit   MessageType = 3
	MessageTypeClientFinish MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeAlert:
		return "ALERT"
	case MessageTypeClientInit:
		return "CLIENT_INIT"
	case MessageTypeServerInit:
		return "SERVER_INIT"
	case MessageTypeClientFinish:
		return "CLIENT_FINISH"
	default:
		return "UNKNOWN_DO_NOT_USE"
	}
}

// AlertType classifies the reason carried by an alert message.
type AlertType uint32

const (
	AlertBadMessage         AlertType = 1
	AlertBadMessageType     AlertType = 2
	AlertIncorrectMessage   AlertType = 3
	AlertBadMessageData     AlertType = 4
	AlertBadVersion         AlertType = 100
	AlertBadRandom          AlertType = 101
	AlertBadHandshakeCipher AlertType = 102
	AlertBadNextProtocol    AlertType = 103
	AlertBadPublicKey       AlertType = 104
	AlertInternalError      AlertType = 200
)

func (a AlertType) String() string {
	switch a {
	case AlertBadMessage:
		return "BAD_MESSAGE"
	case AlertBadMessageType:
		return "BAD_MESSAGE_TYPE"
	case AlertIncorrectMessage:
		return "INCORRECT_MESSAGE"
	case AlertBadMessageData:
		return "BAD_MESSAGE_DATA"
	case AlertBadVersion:
		return "BAD_VERSION"
	case AlertBadRandom:
		return "BAD_RANDOM"
	case AlertBadHandshakeCipher:
		return "BAD_HANDSHAKE_CIPHER"
	case AlertBadNextProtocol:
		return "BAD_NEXT_PROTOCOL"
	case AlertBadPublicKey:
		return "BAD_PUBLIC_KEY"
	case AlertInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_ALERT"
	}
}
