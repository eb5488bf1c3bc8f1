// Package chanstate implements the pure arithmetic of a payment channel's
// balance and fee bookkeeping. It has no knowledge of peers, wire packets,
// or persistence; every operation here is a deterministic, side-effect-free
// transformation of a ChannelState value.
package chanstate

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
)

// Side identifies one of the two parties to a channel.
type Side int

const (
	// Ours is the side that offered HTLCs appear on from our own
	// perspective; its balance is the one this process controls.
	Ours Side = iota
	// Theirs is the counterparty's side.
	Theirs
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Ours {
		return Theirs
	}
	return Ours
}

func (s Side) String() string {
	if s == Ours {
		return "OURS"
	}
	return "THEIRS"
}

// MilliSatoshi is an amount denominated in thousandths of a satoshi, the
// unit balances and fees are tracked in internally.
type MilliSatoshi uint64

// ToSatoshis truncates down to the nearest whole satoshi.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(m / 1000)
}

// MSat converts a satoshi amount to milli-satoshis.
func MSat(a btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(a) * 1000
}

var (
	// ErrAnchorTooLarge is returned by Initial when the funding amount
	// exceeds 2^32/1000 satoshis, so its milli-satoshi value would not fit
	// the 32-bit field used on the wire.
	ErrAnchorTooLarge = errors.New("chanstate: anchor exceeds 2^32/1000 satoshis")

	// ErrFeeExceedsAnchor is returned by Initial when the channel cannot
	// even pay the fee for a zero-HTLC commitment transaction.
	ErrFeeExceedsAnchor = errors.New("chanstate: initial fee exceeds anchor amount")
)

// maxAnchorSatoshis is the largest funding amount representable given the
// 32-bit-milli-satoshi wire constraint: anchor_satoshis*1000 < 2^32.
const maxAnchorSatoshis = (uint64(1) << 32) / 1000

// baseCommitTxBytes is the fixed portion of a commitment transaction's
// byte-count, before any non-dust HTLC outputs are added.
const baseCommitTxBytes = 338

// bytesPerNonDustHTLC is the marginal byte-count of each non-dust HTLC
// output on the commitment transaction.
const bytesPerNonDustHTLC = 32

// DustLimit decides whether a satoshi-denominated HTLC value is too small
// to appear as an output on the commitment transaction. It is supplied by
// the caller (the on-chain policy is an external collaborator per the
// channel spec); DefaultDustLimit is used when the caller has no opinion.
type DustLimit func(btcutil.Amount) bool

// defaultDustSatoshis mirrors the historical fixed dust threshold used by
// the reference implementation this package is modeled on.
const defaultDustSatoshis = 546

// DefaultDustLimit reports amounts below 546 satoshis as dust.
func DefaultDustLimit(amt btcutil.Amount) bool {
	return amt < defaultDustSatoshis
}

// OneSide holds one party's share of a ChannelState.
type OneSide struct {
	// PayMsat is the amount, in milli-satoshis, that would be paid to
	// this side's final output if a commitment were signed right now.
	PayMsat MilliSatoshi
	// FeeMsat is this side's currently assessed share of the commitment
	// fee. It is always a derived quantity, never chosen independently.
	FeeMsat MilliSatoshi
	// NumHTLCs is the number of HTLCs this side currently offered
	// (dust and non-dust alike).
	NumHTLCs int
}

// ChannelState is the value type described in the channel spec: the full
// balance/fee/HTLC-count picture of one commitment, for one side's view.
// It carries no identity of its own; a Channel holds one staging and one
// committed ChannelState per side.
type ChannelState struct {
	// AnchorSatoshis is the total channel capacity, fixed at funding.
	AnchorSatoshis btcutil.Amount
	// FeeRate is satoshis-per-kilobyte used to compute the commitment
	// fee; set at funding and adjustable later via fee-update packets.
	FeeRate uint32
	// NumNonDust is the number of currently-present HTLCs (either side)
	// whose value clears DustLimit; it drives the commitment tx size.
	NumNonDust int

	// htlcMsat is the total value of the HTLCs currently present; it has
	// left the offering side's payable balance until the HTLC is removed.
	htlcMsat MilliSatoshi

	side [2]OneSide
}

// Side returns a pointer to one side's balances for in-place mutation.
func (c *ChannelState) Side(s Side) *OneSide {
	return &c.side[s]
}

// Copy returns a deep copy of cstate; ChannelState has no pointer fields,
// so a value copy already suffices, but Copy documents the intent at
// call sites that want an explicit "staging" snapshot.
func (c *ChannelState) Copy() *ChannelState {
	cp := *c
	return &cp
}

// feeByFeerate computes the fee, in satoshis, for a transaction of the
// given byte size at the given fee rate (satoshis per 1000 bytes),
// truncated down to an even number of satoshis.
func feeByFeerate(txBytes int, feeRate uint32) btcutil.Amount {
	sat := uint64(txBytes) * uint64(feeRate) / 2000 * 2
	return btcutil.Amount(sat)
}

// calculateFeeMsat returns the total commitment fee, in milli-satoshis,
// for a commitment transaction carrying numNonDust non-dust HTLC outputs.
func calculateFeeMsat(numNonDust int, feeRate uint32) MilliSatoshi {
	txBytes := baseCommitTxBytes + bytesPerNonDustHTLC*numNonDust
	return MSat(feeByFeerate(txBytes, feeRate))
}

// payFee debits up to feeMsat from side's payable balance, crediting its
// fee balance, and returns whatever portion of feeMsat the side could not
// afford (zero if it covered the whole amount).
func payFee(side *OneSide, feeMsat MilliSatoshi) MilliSatoshi {
	if side.PayMsat >= feeMsat {
		side.PayMsat -= feeMsat
		side.FeeMsat += feeMsat
		return 0
	}

	remainder := feeMsat - side.PayMsat
	side.FeeMsat += side.PayMsat
	side.PayMsat = 0
	return remainder
}

// recalculateFees folds each side's current fee contribution back into its
// payable balance, then splits feeMsat symmetrically: each side first pays
// half from its own balance; any amount a side cannot afford spills to the
// other side, which in turn spills to zero if it also cannot afford it.
func recalculateFees(a, b *OneSide, feeMsat MilliSatoshi) {
	a.PayMsat += a.FeeMsat
	b.PayMsat += b.FeeMsat
	a.FeeMsat, b.FeeMsat = 0, 0

	remainder := payFee(a, feeMsat/2) + payFee(b, feeMsat/2)
	remainder = payFee(a, remainder)
	payFee(b, remainder)
}

// changeFunding moves htlcMsat out of a's payable+fee balance (crediting
// it nowhere; the caller decides who receives it) and recalculates fees
// across a and b given the new non-dust HTLC count. A positive htlcMsat
// means a is paying for a newly-added HTLC; it reports false, leaving the
// state unchanged, if a cannot afford the HTLC plus its post-fee-resplit
// half of the fee.
func changeFunding(
	feeRate uint32,
	htlcMsat int64,
	a, b *OneSide,
	numNonDust int,
) bool {

	feeMsat := calculateFeeMsat(numNonDust, feeRate)

	if htlcMsat > 0 {
		if MilliSatoshi(htlcMsat)+feeMsat/2 > a.PayMsat+a.FeeMsat {
			return false
		}
	}

	a.PayMsat = MilliSatoshi(int64(a.PayMsat) - htlcMsat)
	recalculateFees(a, b, feeMsat)
	return true
}

// Initial builds the ChannelState immediately after funding: all capacity
// (less the initial commitment fee) sits with the funder, the fundee has
// nothing, and neither side has any HTLCs.
func Initial(anchorSatoshis btcutil.Amount, feeRate uint32, funder Side) (*ChannelState, error) {
	if uint64(anchorSatoshis) > maxAnchorSatoshis {
		return nil, ErrAnchorTooLarge
	}

	feeMsat := calculateFeeMsat(0, feeRate)
	if feeMsat > MSat(anchorSatoshis) {
		return nil, ErrFeeExceedsAnchor
	}

	c := &ChannelState{
		AnchorSatoshis: anchorSatoshis,
		FeeRate:        feeRate,
		NumNonDust:     0,
	}

	f := c.Side(funder)
	f.PayMsat = MSat(anchorSatoshis) - feeMsat
	f.FeeMsat = feeMsat

	return c, nil
}

// AddHTLC attempts to add an HTLC offered by creator (OURS if we are
// offering it, THEIRS if the counterparty is). It returns false, leaving
// cstate unchanged, if the creator cannot afford the HTLC's value plus
// its post-addition fee share.
func (c *ChannelState) AddHTLC(creator Side, msatoshis MilliSatoshi, isDust bool) bool {
	recipient := creator.Other()

	nonDust := c.NumNonDust
	if !isDust {
		nonDust++
	}

	if !changeFunding(c.FeeRate, int64(msatoshis), c.Side(creator), c.Side(recipient), nonDust) {
		return false
	}

	c.NumNonDust = nonDust
	c.Side(creator).NumHTLCs++
	c.htlcMsat += msatoshis
	return true
}

// removeHTLC removes an HTLC that creator offered, crediting its value to
// beneficiary (the creator itself on failure, the counterparty on
// fulfillment), and recomputes fees. Removal is infallible: the HTLC's
// value is by construction already accounted for in the channel.
func (c *ChannelState) removeHTLC(creator, beneficiary Side, msatoshis MilliSatoshi, isDust bool) {
	nonDust := c.NumNonDust
	if !isDust {
		nonDust--
	}

	ok := changeFunding(
		c.FeeRate, -int64(msatoshis),
		c.Side(beneficiary), c.Side(beneficiary.Other()),
		nonDust,
	)
	if !ok {
		panic("chanstate: removeHTLC cannot fail for a positive credit")
	}

	c.Side(creator).NumHTLCs--
	c.NumNonDust = nonDust
	c.htlcMsat -= msatoshis
}

// FulfillHTLC removes the HTLC, crediting its value to the counterparty of
// whichever side offered it.
func (c *ChannelState) FulfillHTLC(creator Side, msatoshis MilliSatoshi, isDust bool) {
	c.removeHTLC(creator, creator.Other(), msatoshis, isDust)
}

// FailHTLC removes the HTLC, refunding its value to the side that
// offered it.
func (c *ChannelState) FailHTLC(creator Side, msatoshis MilliSatoshi, isDust bool) {
	c.removeHTLC(creator, creator, msatoshis, isDust)
}

// AdjustFee recomputes the fee split at a new fee rate, for the current
// non-dust HTLC count.
func (c *ChannelState) AdjustFee(feeRate uint32) {
	c.FeeRate = feeRate
	feeMsat := calculateFeeMsat(c.NumNonDust, feeRate)
	recalculateFees(c.Side(Ours), c.Side(Theirs), feeMsat)
}

// ForceFee sets the total commitment fee to an exact satoshi amount,
// used when negotiating a mutual close transaction's fee. It returns
// false if the fee could not be paid in full (cstate is still mutated to
// pay as much of it as possible).
func (c *ChannelState) ForceFee(fee btcutil.Amount) bool {
	feeMsat := MSat(fee)
	recalculateFees(c.Side(Ours), c.Side(Theirs), feeMsat)
	return c.Side(Ours).FeeMsat+c.Side(Theirs).FeeMsat == feeMsat
}

// CheckInvariant verifies the fundamental conservation law: the anchor's
// full value, in milli-satoshis, equals the sum of both sides' payable and
// fee balances plus the value of the HTLCs currently present. It is
// intended for use in tests and assertions, not on the hot path.
func (c *ChannelState) CheckInvariant() bool {
	total := c.Side(Ours).PayMsat + c.Side(Ours).FeeMsat +
		c.Side(Theirs).PayMsat + c.Side(Theirs).FeeMsat + c.htlcMsat
	return total == MSat(c.AnchorSatoshis)
}
