package htlc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLocalHTLCAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry()

	h0 := r.NewLocalHTLC(&HTLC{Msatoshis: 1})
	h1 := r.NewLocalHTLC(&HTLC{Msatoshis: 2})

	require.EqualValues(t, 0, h0.ID)
	require.EqualValues(t, 1, h1.ID)
	require.Equal(t, Local, h0.Owner)
	require.EqualValues(t, 2, r.NextLocalID())
}

func TestAddDoesNotConsumeLocalCounterForRemoteHTLC(t *testing.T) {
	r := NewRegistry()
	r.Add(&HTLC{Owner: Remote, ID: 7})
	require.EqualValues(t, 0, r.NextLocalID())
}

func TestAddBumpsCounterForRestoredLocalHTLC(t *testing.T) {
	r := NewRegistry()
	r.Add(&HTLC{Owner: Local, ID: 5})
	require.EqualValues(t, 6, r.NextLocalID())

	next := r.NewLocalHTLC(&HTLC{})
	require.EqualValues(t, 6, next.ID)
}

func TestSetNextLocalIDNeverDecreases(t *testing.T) {
	r := NewRegistry()
	r.SetNextLocalID(10)
	r.SetNextLocalID(3)
	require.EqualValues(t, 10, r.NextLocalID())
}

func TestGetAndHas(t *testing.T) {
	r := NewRegistry()
	h := r.NewLocalHTLC(&HTLC{})

	got, ok := r.Get(Local, h.ID)
	require.True(t, ok)
	require.Same(t, h, got)

	require.True(t, r.Has(Local, h.ID))
	require.False(t, r.Has(Remote, h.ID))
}

func TestDeleteRemoves(t *testing.T) {
	r := NewRegistry()
	h := r.NewLocalHTLC(&HTLC{})
	r.Delete(Local, h.ID)

	_, ok := r.Get(Local, h.ID)
	require.False(t, ok)
}

func TestAllReturnsAscendingOwnerThenID(t *testing.T) {
	r := NewRegistry()
	r.Add(&HTLC{Owner: Remote, ID: 2})
	r.Add(&HTLC{Owner: Local, ID: 5})
	r.Add(&HTLC{Owner: Remote, ID: 1})
	r.Add(&HTLC{Owner: Local, ID: 0})

	all := r.All()
	require.Len(t, all, 4)
	require.Equal(t, Local, all[0].Owner)
	require.EqualValues(t, 0, all[0].ID)
	require.Equal(t, Local, all[1].Owner)
	require.EqualValues(t, 5, all[1].ID)
	require.Equal(t, Remote, all[2].Owner)
	require.EqualValues(t, 1, all[2].ID)
	require.Equal(t, Remote, all[3].Owner)
	require.EqualValues(t, 2, all[3].ID)
}

func TestInStateFiltersByState(t *testing.T) {
	r := NewRegistry()
	r.Add(&HTLC{Owner: Local, ID: 0, State: SentAddHTLC})
	r.Add(&HTLC{Owner: Local, ID: 1, State: SentAddCommit})
	r.Add(&HTLC{Owner: Remote, ID: 0, State: SentAddHTLC})

	inSent := r.InState(SentAddHTLC)
	require.Len(t, inSent, 2)
}

func TestNumHTLCsCountsPerOwner(t *testing.T) {
	r := NewRegistry()
	r.NewLocalHTLC(&HTLC{})
	r.NewLocalHTLC(&HTLC{})
	r.Add(&HTLC{Owner: Remote, ID: 0})

	require.Equal(t, 2, r.NumHTLCs(Local))
	require.Equal(t, 1, r.NumHTLCs(Remote))
}
