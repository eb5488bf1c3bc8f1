package htlc

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningd-go/lnchand/chanstate"
)

// Owner identifies which side originally offered an HTLC. It reuses
// chanstate.Side since "who offered it" and "which side's balance it draws
// from" are the same question.
type Owner = chanstate.Side

const (
	// Local is an HTLC we offered.
	Local Owner = chanstate.Ours
	// Remote is an HTLC the counterparty offered.
	Remote Owner = chanstate.Theirs
)

// UpstreamLink identifies, by (peer, htlc id), the HTLC on a different
// channel that this one forwards for. It is a lookup key into a
// process-wide peer map, never a pointer: the upstream HTLC is owned by a
// different channel entirely.
type UpstreamLink struct {
	PeerID [33]byte
	HTLCID uint64
}

// HTLC is a single conditional payment in flight on a channel.
type HTLC struct {
	// ID is unique within (channel, Owner). Local.ID values are
	// allocated from a per-peer monotonic counter; Remote.ID values are
	// whatever the counterparty chose (and are only required to be
	// unique among their own offers).
	ID uint64

	Owner Owner

	// Msatoshis is the HTLC's value; it must be strictly positive.
	Msatoshis chanstate.MilliSatoshi

	// RHash is the hash of the preimage that redeems this HTLC.
	RHash chainhash.Hash

	// Expiry is an absolute block height, never a relative delay or a
	// timestamp.
	Expiry uint32

	// Routing is an opaque onion-routing blob threaded through
	// unmodified; this module never interprets it.
	Routing []byte

	State State

	// R is the preimage, once known. Nil until fulfillment.
	R *chainhash.Hash

	// FailReason is carried verbatim and never interpreted: the upstream
	// protocol this was modeled on never defined its contents either.
	FailReason []byte

	// Upstream is set when this HTLC was forwarded from another channel;
	// nil for HTLCs this peer originates or terminates itself.
	Upstream *UpstreamLink
}

// IsDust reports whether htlc's value is below the dust threshold, using
// the supplied predicate (an external collaborator per the channel spec).
func (h *HTLC) IsDust(dust chanstate.DustLimit) bool {
	return dust(h.Msatoshis.ToSatoshis())
}

// Advance moves the HTLC to its single legal next state, panicking if none
// exists -- an attempt to move to a non-adjacent state is a programming
// error, not a recoverable condition.
func (h *HTLC) Advance() {
	h.State = Advance(h.State)
}

// MustAdvanceTo moves the HTLC to `to`, panicking if `to` is not the
// unique legal successor of its current state.
func (h *HTLC) MustAdvanceTo(to State) {
	if !CanAdvance(h.State, to) {
		panic("htlc: illegal transition " + h.State.String() + " -> " + to.String())
	}
	h.State = to
}
