package channeldb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningd-go/lnchand/chanstate"
	"github.com/lightningd-go/lnchand/htlc"
	"github.com/lightningd-go/lnchand/shachain"
)

func TestRestoreChannelRebuildsStateFromHTLCReplay(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	var commitKey, finalKey, seed [32]byte
	commitKey[0], finalKey[0], seed[0] = 1, 2, 3

	var nextHash [32]byte
	nextHash[0] = 0xaa

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "NORMAL"}))
		require.NoError(t, s.SetPeerSecrets(&PeerSecretsRow{
			Peer: peer, CommitKey: commitKey, FinalKey: finalKey, RevocationSeed: seed,
		}))
		require.NoError(t, s.SetAnchor(&AnchorRow{
			Peer: peer, Amount: 1_000_000, MinDepth: 6, Ours: true,
		}))
		require.NoError(t, s.SetTheirVisibleState(&TheirVisibleStateRow{
			Peer: peer, CommitKey: []byte("ck"), FinalKey: []byte("fk"),
			CommitFeeRate: 5000, NextRevocationHash: nextHash,
		}))
		require.NoError(t, s.SetCommitInfo(&CommitInfoRow{
			Peer: peer, Side: SideOurs, FeeRate: 5000, AnchorSatoshis: 1_000_000,
		}))
		require.NoError(t, s.SetCommitInfo(&CommitInfoRow{
			Peer: peer, Side: SideTheirs, FeeRate: 5000, AnchorSatoshis: 1_000_000,
		}))

		// A fully-committed local HTLC, still live on both chains. Value
		// is well above the dust threshold so it counts toward NumNonDust.
		require.NoError(t, s.InsertHTLC(&HTLCRow{
			Peer: peer, ID: 0, Owner: SideOurs, State: "RCVD_ADD_ACK_COMMIT",
			Msatoshis: 600_000, Expiry: 200,
		}))
		// A terminal HTLC: should be skipped by replay entirely.
		require.NoError(t, s.InsertHTLC(&HTLCRow{
			Peer: peer, ID: 1, Owner: SideOurs, State: "SENT_ADD_ACK_REVOCATION",
			Msatoshis: 500_000, Expiry: 200,
		}))

		blob := shachain.New().Linearize()
		require.NoError(t, s.SetShachain(peer, blob))
	})

	ch, err := s.RestoreChannel(peer, chanstate.DefaultDustLimit)
	require.NoError(t, err)

	h, ok := ch.HTLCs().Get(htlc.Local, 0)
	require.True(t, ok)
	require.EqualValues(t, 600_000, h.Msatoshis)

	_, ok = ch.HTLCs().Get(htlc.Local, 1)
	require.False(t, ok)

	require.True(t, ch.LocalStaging().CheckInvariant())
	require.True(t, ch.RemoteStaging().CheckInvariant())
	require.Equal(t, 1, ch.LocalStaging().NumNonDust)

	require.NotNil(t, ch.Keys())
	require.Equal(t, seed, ch.Keys().RevocationSeed)
}

func TestRestoreChannelFailsWithoutAnchor(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetPeerSecrets(&PeerSecretsRow{Peer: peer}))
	})

	_, err := s.RestoreChannel(peer, chanstate.DefaultDustLimit)
	require.Error(t, err)
}
