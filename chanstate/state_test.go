package chanstate

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestInitialFunderHasFullBalanceLessFee(t *testing.T) {
	c, err := Initial(1_000_000, 5000, Ours)
	require.NoError(t, err)
	require.True(t, c.CheckInvariant())

	require.Zero(t, c.Side(Theirs).PayMsat)
	require.Zero(t, c.Side(Theirs).FeeMsat)
	require.Equal(t, calculateFeeMsat(0, 5000), c.Side(Ours).FeeMsat)
}

func TestInitialRejectsOversizedAnchor(t *testing.T) {
	_, err := Initial(btcutil.Amount(maxAnchorSatoshis+1), 1000, Ours)
	require.ErrorIs(t, err, ErrAnchorTooLarge)
}

func TestInitialRejectsFeeExceedingAnchor(t *testing.T) {
	_, err := Initial(100, 1_000_000_000, Ours)
	require.ErrorIs(t, err, ErrFeeExceedsAnchor)
}

func TestAddHTLCMaintainsInvariant(t *testing.T) {
	c, err := Initial(1_000_000, 5000, Ours)
	require.NoError(t, err)

	ok := c.AddHTLC(Ours, MSat(10_000), false)
	require.True(t, ok)
	require.True(t, c.CheckInvariant())
	require.Equal(t, 1, c.NumNonDust)
	require.Equal(t, 1, c.Side(Ours).NumHTLCs)
}

func TestAddHTLCFailsWhenUnaffordable(t *testing.T) {
	c, err := Initial(1000, 1, Theirs)
	require.NoError(t, err)

	ok := c.AddHTLC(Ours, MSat(1_000_000), false)
	require.False(t, ok)
	require.True(t, c.CheckInvariant())
	require.Zero(t, c.NumNonDust)
}

func TestFulfillHTLCCreditsCounterparty(t *testing.T) {
	c, err := Initial(1_000_000, 5000, Ours)
	require.NoError(t, err)

	require.True(t, c.AddHTLC(Ours, MSat(20_000), false))
	before := c.Side(Theirs).PayMsat

	c.FulfillHTLC(Ours, MSat(20_000), false)
	require.True(t, c.CheckInvariant())
	require.Greater(t, c.Side(Theirs).PayMsat, before)
	require.Zero(t, c.Side(Ours).NumHTLCs)
}

func TestFailHTLCRefundsCreator(t *testing.T) {
	c, err := Initial(1_000_000, 5000, Ours)
	require.NoError(t, err)

	require.True(t, c.AddHTLC(Ours, MSat(20_000), false))
	theirBefore := c.Side(Theirs).PayMsat

	c.FailHTLC(Ours, MSat(20_000), false)
	require.True(t, c.CheckInvariant())
	require.Equal(t, theirBefore, c.Side(Theirs).PayMsat)
	require.Zero(t, c.Side(Ours).NumHTLCs)
}

func TestAdjustFeeMaintainsInvariant(t *testing.T) {
	c, err := Initial(1_000_000, 5000, Ours)
	require.NoError(t, err)
	require.True(t, c.AddHTLC(Ours, MSat(10_000), false))

	c.AdjustFee(10_000)
	require.True(t, c.CheckInvariant())
	require.EqualValues(t, 10_000, c.FeeRate)
}

func TestCopyIsIndependent(t *testing.T) {
	c, err := Initial(1_000_000, 5000, Ours)
	require.NoError(t, err)

	cp := c.Copy()
	require.True(t, cp.AddHTLC(Ours, MSat(5_000), false))
	require.Zero(t, c.NumNonDust)
	require.Equal(t, 1, cp.NumNonDust)
}

func TestSideOther(t *testing.T) {
	require.Equal(t, Theirs, Ours.Other())
	require.Equal(t, Ours, Theirs.Other())
}

func TestDefaultDustLimit(t *testing.T) {
	require.True(t, DefaultDustLimit(545))
	require.False(t, DefaultDustLimit(546))
}
