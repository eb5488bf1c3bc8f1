// Package channel implements the commitment/revocation engine: the only
// component allowed to mutate a channel's ChannelState and HTLC states. It
// holds two commitment chains (what each side can broadcast right now) and
// two staging states (what the next commitment would look like), and drives
// both forward exactly in step with the packets exchanged with a peer.
package channel

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningd-go/lnchand/chanstate"
	"github.com/lightningd-go/lnchand/htlc"
	"github.com/lightningd-go/lnchand/shachain"
	"github.com/lightningd-go/lnchand/walletkeys"
)

var (
	// ErrNoRevocationPending is returned by ReceiveRevocation when no
	// UPDATE_COMMIT is outstanding on the remote chain.
	ErrNoRevocationPending = errors.New("channel: no revocation expected")

	// ErrBadRevocationPreimage is returned when a received preimage does
	// not hash to the pending revocation commitment.
	ErrBadRevocationPreimage = errors.New("channel: preimage does not match pending revocation hash")

	// ErrHTLCNotFound is returned when a fulfill/fail references an
	// unknown HTLC id on the expected side.
	ErrHTLCNotFound = errors.New("channel: htlc not found")

	// ErrHTLCWrongState is returned when a fulfill/fail targets an HTLC
	// that is not yet fully committed on both sides.
	ErrHTLCWrongState = errors.New("channel: htlc is not in a removable state")

	// ErrPreimageMismatch is returned when a FULFILL_HTLC's preimage does
	// not hash to the HTLC's rhash.
	ErrPreimageMismatch = errors.New("channel: preimage does not hash to rhash")
)

// CommitInfo is a single minted commitment: a snapshot of the cstate it was
// built from, together with the bookkeeping needed to revoke it later and
// to retransmit it in order after reconnect.
type CommitInfo struct {
	CommitNum      uint64
	RevocationHash chainhash.Hash
	XmitOrder      int
	Sig            *ecdsa.Signature
	CState         *chanstate.ChannelState
}

// chain is one side's view of its own commitment history: the commitment it
// can currently act on, and the staging state the next one would be built
// from.
type chain struct {
	commit  *CommitInfo
	staging *chanstate.ChannelState
}

// Channel is the commitment/revocation engine for one peer relationship.
// All mutating methods serialize on the same mutex: spec requires every
// protocol event within a peer to be strictly ordered.
type Channel struct {
	mu sync.Mutex

	local  chain
	remote chain

	htlcs *htlc.Registry
	dust  chanstate.DustLimit

	// theirShachain stores revocation preimages the counterparty has
	// revealed for its superseded local commitments.
	theirShachain *shachain.Store

	// ourProducer derives revocation preimages for our own superseded
	// local commitments from our revocation seed.
	ourProducer *shachain.Producer

	// theirNextRevocationHash is the hash the counterparty has committed
	// to revealing the preimage of next.
	theirNextRevocationHash chainhash.Hash

	// theirPrevRevocationHash is set between our minting remote.commit
	// and the counterparty's matching UPDATE_REVOCATION: it is the hash
	// their incoming preimage must satisfy.
	theirPrevRevocationHash *chainhash.Hash

	// keys is our own key material for this peer relationship -- typed
	// and threaded through so a producer can read off the public halves
	// for OPEN, but never used here to sign or derive anything.
	keys *walletkeys.PeerSecrets

	orderCounter int
}

// New constructs a Channel from its initial funding state. Copies of
// initial seed both staging cstates identically, matching the
// protocol's requirement that local and remote start from the same funding
// view.
func New(
	initial *chanstate.ChannelState, dust chanstate.DustLimit,
	theirNextRevocationHash chainhash.Hash, keys *walletkeys.PeerSecrets,
) *Channel {

	localStaging := initial.Copy()
	remoteStaging := initial.Copy()

	return &Channel{
		local:                   chain{staging: localStaging},
		remote:                  chain{staging: remoteStaging},
		htlcs:                   htlc.NewRegistry(),
		dust:                    dust,
		theirShachain:           shachain.New(),
		ourProducer:             shachain.NewProducer(keys.RevocationSeed),
		theirNextRevocationHash: theirNextRevocationHash,
		keys:                    keys,
		orderCounter:            1,
	}
}

// Restore rebuilds a Channel from persisted components, used by channeldb's
// restart reconstruction. The caller is responsible for having replayed
// every HTLC into registry and set both committed cstates before calling.
func Restore(
	localCommit, remoteCommit *CommitInfo,
	localStaging, remoteStaging *chanstate.ChannelState,
	registry *htlc.Registry, dust chanstate.DustLimit,
	theirShachain *shachain.Store, ourProducer *shachain.Producer,
	theirNextRevocationHash chainhash.Hash, theirPrevRevocationHash *chainhash.Hash,
	keys *walletkeys.PeerSecrets, orderCounter int,
) *Channel {

	return &Channel{
		local:                   chain{commit: localCommit, staging: localStaging},
		remote:                  chain{commit: remoteCommit, staging: remoteStaging},
		htlcs:                   registry,
		dust:                    dust,
		theirShachain:           theirShachain,
		ourProducer:             ourProducer,
		theirNextRevocationHash: theirNextRevocationHash,
		theirPrevRevocationHash: theirPrevRevocationHash,
		keys:                    keys,
		orderCounter:            orderCounter,
	}
}

// HTLCs exposes the registry for read access (persistence, acceptors).
func (c *Channel) HTLCs() *htlc.Registry { return c.htlcs }

// Keys returns our own key material for this peer relationship, for a
// producer to read the public halves off of when building an OPEN packet.
func (c *Channel) Keys() *walletkeys.PeerSecrets { return c.keys }

// LocalStaging returns our next local commitment's cstate, for acceptors
// checking capacity before admitting a new HTLC.
func (c *Channel) LocalStaging() *chanstate.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.staging
}

// RemoteStaging is the remote-chain analogue of LocalStaging.
func (c *Channel) RemoteStaging() *chanstate.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote.staging
}

// OrderCounter returns the next value to stamp on an outgoing
// commitment/closing action, consuming it.
func (c *Channel) OrderCounter() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.orderCounter
	c.orderCounter++
	return n
}

// AddHTLC offers a new HTLC from owner, mutating both staging cstates and
// moving it to its initial SENT_ADD_HTLC/RCVD_ADD_HTLC state. It returns
// false without mutating anything if either side's staging cstate cannot
// afford it.
func (c *Channel) AddHTLC(owner htlc.Owner, h *htlc.HTLC) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	isDust := h.IsDust(c.dust)

	if !c.local.staging.AddHTLC(owner, h.Msatoshis, isDust) {
		return false
	}
	if !c.remote.staging.AddHTLC(owner, h.Msatoshis, isDust) {
		c.local.staging.FailHTLC(owner, h.Msatoshis, isDust)
		return false
	}

	if owner == htlc.Local {
		h.State = htlc.SentAddHTLC
		c.htlcs.NewLocalHTLC(h)
	} else {
		h.State = htlc.RcvdAddHTLC
		c.htlcs.Add(h)
	}

	return true
}

// FulfillHTLC redeems the HTLC owned by owner with id, given its preimage.
// It mutates both staging cstates and advances the HTLC toward removal.
func (c *Channel) FulfillHTLC(owner htlc.Owner, id uint64, preimage chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.htlcs.Get(owner, id)
	if !ok {
		return ErrHTLCNotFound
	}
	if chainhash.Hash(sha256.Sum256(preimage[:])) != h.RHash {
		return ErrPreimageMismatch
	}

	isDust := h.IsDust(c.dust)
	c.local.staging.FulfillHTLC(owner, h.Msatoshis, isDust)
	c.remote.staging.FulfillHTLC(owner, h.Msatoshis, isDust)

	h.R = &preimage
	if owner == htlc.Local {
		h.State = htlc.SentRemoveHTLC
	} else {
		h.State = htlc.RcvdRemoveHTLC
	}

	return nil
}

// FailHTLC fails the HTLC owned by owner with id, carrying reason verbatim.
func (c *Channel) FailHTLC(owner htlc.Owner, id uint64, reason []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.htlcs.Get(owner, id)
	if !ok {
		return ErrHTLCNotFound
	}

	isDust := h.IsDust(c.dust)
	c.local.staging.FailHTLC(owner, h.Msatoshis, isDust)
	c.remote.staging.FailHTLC(owner, h.Msatoshis, isDust)

	h.FailReason = reason
	if owner == htlc.Local {
		h.State = htlc.SentRemoveHTLC
	} else {
		h.State = htlc.RcvdRemoveHTLC
	}

	return nil
}

// AdjustFee updates the feerate on both staging cstates identically; both
// sides of a working channel recompute this the same way.
func (c *Channel) AdjustFee(feeRate uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local.staging.AdjustFee(feeRate)
	c.remote.staging.AdjustFee(feeRate)
}

// SendCommitSig mints a new remote.commit from remote.staging_cstate,
// advancing every HTLC currently in a SENT_*_HTLC state one step, and every
// counterparty-offered HTLC already past our revocation (SENT_*_REVOCATION)
// one step further, since this commitment now acks it on our remote chain
// too. Returns the commitment this mints so the caller can sign and
// transmit it. ourSig and theirNextRevocationHash are supplied by the
// caller: signing itself is out of scope for this module.
func (c *Channel) SendCommitSig(ourSig *ecdsa.Signature, theirNextRevocationHash chainhash.Hash) *CommitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var commitNum uint64
	if c.remote.commit != nil {
		commitNum = c.remote.commit.CommitNum + 1
	}

	info := &CommitInfo{
		CommitNum:      commitNum,
		RevocationHash: c.theirNextRevocationHash,
		XmitOrder:      c.nextOrder(),
		Sig:            ourSig,
		CState:         c.remote.staging.Copy(),
	}

	prevHash := c.theirNextRevocationHash
	c.theirPrevRevocationHash = &prevHash
	c.theirNextRevocationHash = theirNextRevocationHash
	c.remote.commit = info

	for _, h := range c.htlcs.All() {
		switch h.State {
		case htlc.SentAddHTLC:
			h.Advance()
		case htlc.SentRemoveHTLC:
			h.Advance()
		case htlc.SentAddRevocation:
			h.Advance()
		case htlc.SentRemoveRevocation:
			h.Advance()
		}
	}

	return info
}

// ReceiveRevocation accepts the counterparty's UPDATE_REVOCATION: preimage
// must hash to the pending theirPrevRevocationHash. On success the preimage
// is stored in the shachain at the index matching the revoked commitment,
// the pending hash is cleared, their next_revocation_hash is updated, and
// every HTLC waiting on this revocation advances: our own offered HTLCs
// already on our remote chain (SENT_*_COMMIT) move to RCVD_*_REVOCATION, and
// counterparty-offered HTLCs already acked onto our remote chain
// (SENT_*_ACK_COMMIT) reach their terminal RCVD_*_ACK_REVOCATION state.
func (c *Channel) ReceiveRevocation(preimage chainhash.Hash, nextRevocationHash chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.theirPrevRevocationHash == nil || c.remote.commit == nil {
		return ErrNoRevocationPending
	}

	got := chainhash.Hash(sha256.Sum256(preimage[:]))
	if got != *c.theirPrevRevocationHash {
		return ErrBadRevocationPreimage
	}

	revokedCommitNum := c.remote.commit.CommitNum - 1
	if err := c.theirShachain.AddNextEntry(revokedCommitNum, preimage); err != nil {
		return fmt.Errorf("channel: store revocation preimage: %w", err)
	}

	c.theirPrevRevocationHash = nil
	c.theirNextRevocationHash = nextRevocationHash

	for _, h := range c.htlcs.All() {
		switch h.State {
		case htlc.SentAddCommit:
			h.Advance()
		case htlc.SentRemoveCommit:
			h.Advance()
		case htlc.SentAddAckCommit:
			h.Advance()
		case htlc.SentRemoveAckCommit:
			h.Advance()
		}
	}

	return nil
}

// ReceiveCommitSig accepts the counterparty's UPDATE_COMMIT: sig is stored
// as their signature over our next local commitment, built from
// local.staging_cstate. It mints a new local.commit, advances every
// counterparty-offered HTLC newly committed (RCVD_*_HTLC) and every
// already-revoked, now doubly-committed HTLC of our own (RCVD_*_REVOCATION)
// one step, and returns the revocation preimage for the commitment it
// superseded, ready to send back as UPDATE_REVOCATION, along with the hash
// committing to the next one.
func (c *Channel) ReceiveCommitSig(theirSig *ecdsa.Signature) (*CommitInfo, *chainhash.Hash, chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var commitNum uint64
	if c.local.commit != nil {
		commitNum = c.local.commit.CommitNum + 1
	}

	ourPreimage, err := c.ourProducer.At(commitNum)
	if err != nil {
		return nil, nil, chainhash.Hash{}, fmt.Errorf("channel: derive own revocation preimage: %w", err)
	}

	nextPreimage, err := c.ourProducer.At(commitNum + 1)
	if err != nil {
		return nil, nil, chainhash.Hash{}, fmt.Errorf("channel: derive next own revocation preimage: %w", err)
	}
	nextHash := chainhash.Hash(sha256.Sum256(nextPreimage[:]))

	info := &CommitInfo{
		CommitNum:      commitNum,
		RevocationHash: chainhash.Hash(sha256.Sum256(ourPreimage[:])),
		XmitOrder:      c.nextOrder(),
		Sig:            theirSig,
		CState:         c.local.staging.Copy(),
	}

	var revoked *CommitInfo
	if c.local.commit != nil {
		revoked = c.local.commit
	}
	c.local.commit = info

	for _, h := range c.htlcs.All() {
		switch h.State {
		case htlc.RcvdAddHTLC:
			h.Advance()
		case htlc.RcvdRemoveHTLC:
			h.Advance()
		case htlc.RcvdAddRevocation:
			h.Advance()
		case htlc.RcvdRemoveRevocation:
			h.Advance()
		}
	}

	return revoked, ourPreimage, nextHash, nil
}

// SendRevocation advances every HTLC waiting on us to transmit our own
// UPDATE_REVOCATION, the reply ReceiveCommitSig leaves outstanding: a
// counterparty-offered HTLC just committed on our local chain
// (RCVD_*_COMMIT) moves to SENT_*_REVOCATION, and one of our own HTLCs
// already acked there (RCVD_*_ACK_COMMIT) reaches its terminal
// SENT_*_ACK_REVOCATION state. Both happen off the back of the same
// ReceiveCommitSig call, since accepting a commitment obligates us to
// revoke the one it superseded.
func (c *Channel) SendRevocation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.htlcs.All() {
		switch h.State {
		case htlc.RcvdAddCommit:
			h.Advance()
		case htlc.RcvdRemoveCommit:
			h.Advance()
		case htlc.RcvdAddAckCommit:
			h.Advance()
		case htlc.RcvdRemoveAckCommit:
			h.Advance()
		}
	}
}

// nextOrder is the lock-held counterpart of OrderCounter, used internally by
// SendCommitSig/ReceiveCommitSig.
func (c *Channel) nextOrder() int {
	n := c.orderCounter
	c.orderCounter++
	return n
}
