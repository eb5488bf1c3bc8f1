// Package acceptor validates inbound packets against a channel's current
// state and configuration before the commitment engine is allowed to act on
// them. Each Accept* function either mutates the channel and returns nil, or
// leaves it untouched and returns a *lnpacket.Error ready to send back and
// terminate the channel with.
package acceptor

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningd-go/lnchand/chanstate"
	"github.com/lightningd-go/lnchand/channel"
	"github.com/lightningd-go/lnchand/config"
	"github.com/lightningd-go/lnchand/htlc"
	"github.com/lightningd-go/lnchand/lnpacket"
)

const maxHTLCsPerSide = 300

// maxHTLCAmount bounds a single ADD_HTLC so it is representable alongside
// the channel's own balance fields without overflow concerns.
const maxHTLCAmount = chanstate.MilliSatoshi(1) << 40

var (
	// ErrFeeRateTooLow is the first half of the redesigned fee-rate
	// check: the original implementation's OR-of-two-comparisons bug
	// conflated both bounds into a single ambiguous error.
	ErrFeeRateTooLow = errors.New("commit_fee_rate below accepted minimum")

	// ErrFeeRateTooHigh is the second half.
	ErrFeeRateTooHigh = errors.New("commit_fee_rate above accepted maximum")
)

// protocolError builds the ERROR packet an Accept* function returns on
// rejection.
func protocolError(format string, args ...interface{}) *lnpacket.Error {
	return &lnpacket.Error{Problem: fmt.Sprintf(format, args...)}
}

// AcceptOpen validates an inbound OPEN packet against cfg and our own fee
// estimate, and our own anchor offer (the protocol requires exactly one side
// to offer the anchor). It performs no channel mutation itself -- by the
// time OPEN is accepted, channel.New constructs the Channel from its fields.
func AcceptOpen(cfg *config.Config, ourFeeRate uint32, ourAnchorOffer lnpacket.AnchorOffer, pkt *lnpacket.Open) *lnpacket.Error {
	if pkt.Delay.IsSeconds {
		return protocolError("locktime must be expressed in blocks, not seconds")
	}
	if pkt.Delay.Blocks > cfg.LocktimeMax {
		return protocolError("delay %d exceeds locktime_max %d", pkt.Delay.Blocks, cfg.LocktimeMax)
	}
	if pkt.MinDepth > cfg.AnchorConfirmsMax {
		return protocolError("min_depth %d exceeds anchor_confirms_max %d", pkt.MinDepth, cfg.AnchorConfirmsMax)
	}

	minRate := ourFeeRate * cfg.CommitFeeMinPercent / 100
	maxRate := ourFeeRate * cfg.CommitFeeMaxPercent / 100
	if pkt.InitialFeeRate < minRate {
		return protocolError("%v: %d below %d", ErrFeeRateTooLow, pkt.InitialFeeRate, minRate)
	}
	if pkt.InitialFeeRate > maxRate {
		return protocolError("%v: %d above %d", ErrFeeRateTooHigh, pkt.InitialFeeRate, maxRate)
	}

	if pkt.AnchorOffer == ourAnchorOffer {
		return protocolError("both sides cannot make the same anchor offer")
	}

	if len(pkt.CommitKey) == 0 || len(pkt.FinalKey) == 0 {
		return protocolError("commit/final keys do not decode")
	}

	return nil
}

// AcceptAddHTLC validates and applies an inbound UPDATE_ADD_HTLC, offered by
// owner (Remote for a packet we received, Local for our own outgoing
// command validated the same way before we send it).
func AcceptAddHTLC(ch *channel.Channel, owner htlc.Owner, pkt *lnpacket.UpdateAddHTLC) (*htlc.HTLC, *lnpacket.Error) {
	if pkt.AmountMsat == 0 {
		return nil, protocolError("invalid amount_msat")
	}
	if pkt.AmountMsat > maxHTLCAmount {
		return nil, protocolError("amount_msat %d exceeds maximum", pkt.AmountMsat)
	}

	if owner == htlc.Remote && ch.HTLCs().Has(htlc.Remote, pkt.ID) {
		return nil, protocolError("duplicate htlc id %d", pkt.ID)
	}

	if ch.HTLCs().NumHTLCs(owner) >= maxHTLCsPerSide {
		return nil, protocolError("%s side already has %d htlcs outstanding", owner, maxHTLCsPerSide)
	}

	h := &htlc.HTLC{
		ID:        pkt.ID,
		Owner:     owner,
		Msatoshis: pkt.AmountMsat,
		RHash:     pkt.RHash,
		Expiry:    pkt.Expiry,
		Routing:   pkt.Routing,
	}

	if !ch.AddHTLC(owner, h) {
		return nil, protocolError("insufficient funds to add htlc %d", pkt.ID)
	}

	return h, nil
}

// AcceptFulfillHTLC validates and applies an inbound UPDATE_FULFILL_HTLC.
// The HTLC is looked up on the LOCAL side (the side that originally offered
// it, from the fulfiller's perspective it is always the peer's Remote side,
// but from the channel's own bookkeeping it must be in SENT_ADD_ACK_REVOCATION).
func AcceptFulfillHTLC(ch *channel.Channel, pkt *lnpacket.UpdateFulfillHTLC) *lnpacket.Error {
	h, ok := ch.HTLCs().Get(htlc.Local, pkt.ID)
	if !ok {
		return protocolError("no such local htlc %d", pkt.ID)
	}

	if h.State != htlc.SentAddAckRevocation {
		if h.R != nil && sha256.Sum256(h.R[:]) == sha256.Sum256(pkt.R[:]) {
			// Duplicate fulfill of an already-fulfilled htlc is
			// reported but not a protocol error.
			return nil
		}
		return protocolError("htlc %d not in a fulfillable state", pkt.ID)
	}

	got := chainhash.Hash(sha256.Sum256(pkt.R[:]))
	if got != h.RHash {
		return protocolError("preimage does not match rhash for htlc %d", pkt.ID)
	}

	if err := ch.FulfillHTLC(htlc.Local, pkt.ID, pkt.R); err != nil {
		return protocolError("fulfill htlc %d: %v", pkt.ID, err)
	}

	return nil
}

// AcceptFailHTLC is the FAIL_HTLC analogue of AcceptFulfillHTLC, with the
// same lookup/state constraint and no preimage check.
func AcceptFailHTLC(ch *channel.Channel, pkt *lnpacket.UpdateFailHTLC) *lnpacket.Error {
	h, ok := ch.HTLCs().Get(htlc.Local, pkt.ID)
	if !ok {
		return protocolError("no such local htlc %d", pkt.ID)
	}

	if h.State != htlc.SentAddAckRevocation {
		return protocolError("htlc %d not in a failable state", pkt.ID)
	}

	if err := ch.FailHTLC(htlc.Local, pkt.ID, pkt.Reason); err != nil {
		return protocolError("fail htlc %d: %v", pkt.ID, err)
	}

	return nil
}

// AcceptCommit validates and applies an inbound UPDATE_COMMIT, returning the
// commitment it superseded, our revocation preimage for it, and the hash
// committing to the next one -- the caller sends these back as
// UPDATE_REVOCATION. Accepting a commitment always obligates an immediate
// revocation reply, so the HTLC ladder advance for sending it happens here
// too, before the caller has transmitted anything.
func AcceptCommit(ch *channel.Channel, pkt *lnpacket.UpdateCommit) (*channel.CommitInfo, *chainhash.Hash, chainhash.Hash, *lnpacket.Error) {
	if pkt.Sig == nil {
		return nil, nil, chainhash.Hash{}, protocolError("update_commit missing signature")
	}

	revoked, preimage, nextHash, err := ch.ReceiveCommitSig(pkt.Sig)
	if err != nil {
		return nil, nil, chainhash.Hash{}, protocolError("accept commit: %v", err)
	}
	ch.SendRevocation()

	return revoked, preimage, nextHash, nil
}

// AcceptRevocation validates and applies an inbound UPDATE_REVOCATION: its
// preimage must hash to the pending their_prev_revocation_hash, and it is
// appended to the shachain in strictly descending index order.
func AcceptRevocation(ch *channel.Channel, pkt *lnpacket.UpdateRevocation) *lnpacket.Error {
	if err := ch.ReceiveRevocation(pkt.Preimage, pkt.NextRevocationHash); err != nil {
		return protocolError("accept revocation: %v", err)
	}
	return nil
}
