// Package rendezvous implements C8's handshake contract: Offer/Answer
// exchange, PSK-bound transcript binding, and per-direction monotonic
// counters. Transport I/O itself
// (QUIC/WebSocket/WebRTC/Tor/BLE) is out of scope; this
// package only specifies the message shapes and the handshake's
// validity rules.
package rendezvous

import (
	"time"

	"github.com/zeebo/blake3"

	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/idkey"
	"github.com/aura-id/aura/internal/wire"
)

// TransportKind enumerates the transport descriptors a device may offer.
type TransportKind int

const (
	Quic TransportKind = iota
	WebSocket
	WebRTC
	Tor
	BLE
)

// TransportDescriptor is one candidate transport in an Offer/Answer.
type TransportDescriptor struct {
	Kind               TransportKind
	Metadata           map[string]string
	LocalAddresses     []string
	ReflexiveAddresses []string
}

// AuthPayload is the `auth` half of a RendezvousMessage.
type AuthPayload struct {
	Kind           MessageKind
	Version        uint8
	DeviceCert     []byte
	ChannelBinding [32]byte
	Expires        time.Time
	Counter        uint32
	InnerSig       []byte
}

// MessageKind tags a RendezvousMessage's role in the handshake.
type MessageKind int

const (
	Offer MessageKind = iota
	Answer
	Ack
	Rekey
	RevokeDevice
)

// TransportPayload is the `transport` half of a RendezvousMessage.
type TransportPayload struct {
	Transports          []TransportDescriptor
	SelectedTransport   *uint8 // present only on Answer
	RequiredPermissions []string
	CapabilityProof     []byte
	StorageAnnouncement *StorageAnnouncement
	PunchNonce          *[32]byte
}

// StorageAnnouncement advertises local chunk-storage capacity.
type StorageAnnouncement struct {
	AvailableBytes uint64
	MaxChunk       uint32
	AcceptingNew   bool
}

// RendezvousMessage is the full wire message.
type RendezvousMessage struct {
	Auth      AuthPayload
	Transport TransportPayload
}

// Encode wraps m in a versioned, optionally RLE-compressed envelope for
// transport.
func (m RendezvousMessage) Encode(compress bool) (wire.Envelope, error) {
	return wire.Marshal(m, compress)
}

// DecodeRendezvousMessage unwraps an envelope produced by Encode back
// into a RendezvousMessage.
func DecodeRendezvousMessage(e wire.Envelope) (RendezvousMessage, error) {
	var m RendezvousMessage
	if err := wire.Unmarshal(e, &m); err != nil {
		return RendezvousMessage{}, err
	}
	return m, nil
}

// ChannelBinding computes H(K_PSK || device_static_pub).
func ChannelBinding(psk, deviceStaticPub []byte) [32]byte {
	h := blake3.New()
	h.Write(psk)
	h.Write(deviceStaticPub)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TranscriptBinding computes H(cert_A || cert_B || channel_binding ||
// transport_descriptor || offer_ctr || answer_ctr).
func TranscriptBinding(certA, certB []byte, channelBinding [32]byte, transportDescriptor []byte, offerCtr, answerCtr uint32) [32]byte {
	h := blake3.New()
	h.Write(certA)
	h.Write(certB)
	h.Write(channelBinding[:])
	h.Write(transportDescriptor)
	var ctrBuf [8]byte
	ctrBuf[0] = byte(offerCtr)
	ctrBuf[1] = byte(offerCtr >> 8)
	ctrBuf[2] = byte(offerCtr >> 16)
	ctrBuf[3] = byte(offerCtr >> 24)
	ctrBuf[4] = byte(answerCtr)
	ctrBuf[5] = byte(answerCtr >> 8)
	ctrBuf[6] = byte(answerCtr >> 16)
	ctrBuf[7] = byte(answerCtr >> 24)
	h.Write(ctrBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HandshakeState tracks the monotonic per-direction counters for one
// peer and validates incoming messages against them.
type HandshakeState struct {
	Peer           idkey.DeviceID
	lastOfferCtr   uint32
	lastAnswerCtr  uint32
}

func NewHandshakeState(peer idkey.DeviceID) *HandshakeState {
	return &HandshakeState{Peer: peer}
}

// AcceptOffer validates an incoming Offer against the counter and expiry
// rules. A message whose counter is not strictly greater than the last
// seen from its sender is dropped.
func (h *HandshakeState) AcceptOffer(msg RendezvousMessage, now time.Time) error {
	if msg.Auth.Kind != Offer {
		return errWrongKind
	}
	if !msg.Auth.Expires.After(now) {
		return errs.ErrAuthorization
	}
	if msg.Auth.Counter <= h.lastOfferCtr {
		return errReplayedCounter
	}
	h.lastOfferCtr = msg.Auth.Counter
	return nil
}

// AcceptAnswer validates an incoming Answer the same way.
func (h *HandshakeState) AcceptAnswer(msg RendezvousMessage, now time.Time) error {
	if msg.Auth.Kind != Answer {
		return errWrongKind
	}
	if !msg.Auth.Expires.After(now) {
		return errs.ErrAuthorization
	}
	if msg.Auth.Counter <= h.lastAnswerCtr {
		return errReplayedCounter
	}
	h.lastAnswerCtr = msg.Auth.Counter
	return nil
}

// VerifyTranscript checks that the locally computed transcript binding
// matches the one the peer is presumed to have computed. A handshake
// fails iff this mismatches, device certs don't verify, the channel
// binding is wrong, or expiry has passed; this function
// covers the transcript-equality leg, with cert/channel-binding/expiry
// checks left to the caller since those depend on the registry (C1).
func VerifyTranscript(local, remote [32]byte) bool {
	return local == remote
}

type sentinel string

func (e sentinel) Error() string { return string(e) }

var (
	errWrongKind       = sentinel("rendezvous: unexpected message kind")
	errReplayedCounter = sentinel("rendezvous: counter not strictly increasing")
)
