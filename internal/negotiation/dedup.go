// Package negotiation holds the offer/answer state machine of one peer
// session and the per-participant bookkeeping around it: duplicate
// suppression, pending signal queues and handshake retries.
package negotiation

import (
	"peercall/native/internal/domain"

	"github.com/zeebo/blake3"
)

// MessageType distinguishes the two deduplicated description messages.
type MessageType int

const (
	OfferMessage MessageType = iota
	AnswerMessage
)

func (t MessageType) String() string {
	if t == OfferMessage {
		return domain.EventOffer
	}
	return domain.EventAnswer
}

// Hash is the blake3 digest of a session description.
type Hash [32]byte

// HashDescription returns a stable digest of a description payload.
func HashDescription(p domain.SDPPayload) Hash {
	h := blake3.New()
	_, _ = h.Write([]byte(p.Type))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(p.SDP))
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Deduplicator remembers the last applied offer and answer of one remote
// participant. It holds at most one hash per message type.
type Deduplicator struct {
	last [2]Hash
	seen [2]bool
}

// Duplicate reports whether p equals the last applied message of type t.
func (d *Deduplicator) Duplicate(t MessageType, p domain.SDPPayload) bool {
	return d.seen[t] && d.last[t] == HashDescription(p)
}

// Record marks p as the last applied message of type t.
func (d *Deduplicator) Record(t MessageType, p domain.SDPPayload) {
	d.last[t] = HashDescription(p)
	d.seen[t] = true
}

// Reset forgets both hashes.
func (d *Deduplicator) Reset() {
	*d = Deduplicator{}
}
