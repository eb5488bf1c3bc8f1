// Package lnpacket defines the logical packet types exchanged between two
// channel peers. Wire serialization is out of scope; these are plain Go
// structs an acceptor validates and a producer populates, not a codec.
package lnpacket

import (
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningd-go/lnchand/chanstate"
)

// AnchorOffer is OPEN's commitment to whether this side will create the
// anchor transaction.
type AnchorOffer uint8

const (
	WillCreateAnchor AnchorOffer = iota
	WontCreateAnchor
)

// Locktime carries either an absolute block delay or a relative seconds
// delay; the protocol rejects the seconds form wherever it's received, but
// both are representable so the acceptor can produce that exact error.
type Locktime struct {
	Blocks  uint32
	Seconds uint32
	// IsSeconds is true when Seconds is the populated field.
	IsSeconds bool
}

// Open is the first packet exchanged when opening a channel.
type Open struct {
	Delay             Locktime
	MinDepth          uint32
	InitialFeeRate    uint32
	AnchorOffer       AnchorOffer
	CommitKey         []byte
	FinalKey          []byte
	RevocationHash    chainhash.Hash
	NextRevocationHash chainhash.Hash
}

// OpenAnchor carries the anchor outpoint, once the anchor-offering side has
// broadcast it.
type OpenAnchor struct {
	TxID      chainhash.Hash
	OutputIdx uint32
	Amount    btcutil.Amount
}

// OpenCommitSig carries the anchor-offering side's signature over the
// counterparty's first commitment transaction.
type OpenCommitSig struct {
	Sig *ecdsa.Signature
}

// OpenComplete marks one side's view that the anchor has reached min_depth.
type OpenComplete struct{}

// UpdateAddHTLC proposes a new HTLC.
type UpdateAddHTLC struct {
	ID        uint64
	AmountMsat chanstate.MilliSatoshi
	RHash     chainhash.Hash
	Expiry    uint32
	Routing   []byte
}

// UpdateFulfillHTLC redeems an HTLC by revealing its preimage.
type UpdateFulfillHTLC struct {
	ID uint64
	R  chainhash.Hash
}

// UpdateFailHTLC fails an HTLC, carrying an opaque reason blob.
type UpdateFailHTLC struct {
	ID     uint64
	Reason []byte
}

// UpdateCommit signs the recipient's next commitment transaction.
type UpdateCommit struct {
	Sig *ecdsa.Signature
}

// UpdateRevocation reveals the preimage that revokes the sender's previous
// commitment, and commits to the hash that will revoke the next one.
type UpdateRevocation struct {
	Preimage     chainhash.Hash
	NextRevocationHash chainhash.Hash
}

// CloseShutdown begins cooperative close, proposing a final script.
type CloseShutdown struct {
	Script []byte
}

// CloseSignature carries a proposed closing transaction fee and signature.
type CloseSignature struct {
	Fee btcutil.Amount
	Sig *ecdsa.Signature
}

// Error terminates the channel, carrying a human-readable explanation.
// It is never itself rejected by an acceptor -- producing one is always
// the terminal action of a failed validation.
type Error struct {
	Problem string
}

func (e *Error) Error() string { return e.Problem }

// Reconnect is sent on transport reestablishment, acknowledging the highest
// commit_num the sender has durably received.
type Reconnect struct {
	Ack uint64
}
