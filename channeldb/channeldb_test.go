package channeldb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lnchand_test.sqlite3")
	s, err := New(&Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func withTx(t *testing.T, s *Store, fn func()) {
	t.Helper()
	require.NoError(t, s.BeginTransaction())
	fn()
	require.NoError(t, s.CommitTransaction())
}

func TestBeginTransactionRejectsReentry(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.BeginTransaction())
	err := s.BeginTransaction()
	require.ErrorIs(t, err, ErrReentrantTransaction)
	require.NoError(t, s.AbortTransaction())
}

func TestCommitTransactionRequiresOpenTx(t *testing.T) {
	s := openTestStore(t)
	err := s.CommitTransaction()
	require.ErrorIs(t, err, ErrNoTransaction)
}

func TestAbortTransactionRequiresOpenTx(t *testing.T) {
	s := openTestStore(t)
	err := s.AbortTransaction()
	require.ErrorIs(t, err, ErrNoTransaction)
}

func TestWriteOutsideTransactionFails(t *testing.T) {
	s := openTestStore(t)
	err := s.CreatePeer(&PeerRow{PeerPubkey: []byte("peer-a"), State: "OPEN_WAIT"})
	require.ErrorIs(t, err, ErrNoTransaction)
}

func TestCreateAndListPeers(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{
			PeerPubkey: peer, State: "OPEN_WAIT", OfferedAnchor: true, OurFeerate: 5000,
		}))
	})

	peers, err := s.Peers()
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, peer, peers[0].PeerPubkey)
	require.Equal(t, "OPEN_WAIT", peers[0].State)
}

func TestUpdatePeerStateGuard(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
	})

	withTx(t, s, func() {
		require.NoError(t, s.UpdatePeerState(peer, "OPEN_WAIT", "NORMAL"))
	})

	withTx(t, s, func() {
		err := s.UpdatePeerState(peer, "OPEN_WAIT", "NORMAL")
		require.ErrorIs(t, err, ErrGuardViolation)
	})
}

func TestPeerSecretsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	var commitKey, finalKey, seed [32]byte
	commitKey[0] = 1
	finalKey[0] = 2
	seed[0] = 3

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetPeerSecrets(&PeerSecretsRow{
			Peer: peer, CommitKey: commitKey, FinalKey: finalKey, RevocationSeed: seed,
		}))
	})

	got, err := s.PeerSecrets(peer)
	require.NoError(t, err)
	require.Equal(t, commitKey, got.CommitKey)
	require.Equal(t, finalKey, got.FinalKey)
	require.Equal(t, seed, got.RevocationSeed)
}

func TestPeerSecretsMissingReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.PeerSecrets([]byte("nobody"))
	require.ErrorIs(t, err, ErrNoRows)
}

func TestPeerAddressRoundTripAndUpsert(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetPeerAddress(peer, "tcp", "10.0.0.1:9735"))
	})

	network, addr, err := s.PeerAddress(peer)
	require.NoError(t, err)
	require.Equal(t, "tcp", network)
	require.Equal(t, "10.0.0.1:9735", addr)

	withTx(t, s, func() {
		require.NoError(t, s.SetPeerAddress(peer, "tcp", "10.0.0.2:9735"))
	})
	_, addr, err = s.PeerAddress(peer)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2:9735", addr)
}

func TestAnchorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")
	var txid [32]byte
	txid[0] = 9

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetAnchor(&AnchorRow{
			Peer: peer, TxID: txid, Idx: 1, Amount: 1_000_000,
			OkDepth: 0, MinDepth: 6, Ours: true,
		}))
	})

	got, err := s.Anchor(peer)
	require.NoError(t, err)
	require.Equal(t, txid, got.TxID)
	require.EqualValues(t, 1_000_000, got.Amount)
	require.True(t, got.Ours)
}

func TestAnchorMissingReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Anchor([]byte("nobody"))
	require.ErrorIs(t, err, ErrNoRows)
}

func TestTheirVisibleStateRoundTripAndRevocationUpdate(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")
	var nextHash [32]byte
	nextHash[0] = 0xaa

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetTheirVisibleState(&TheirVisibleStateRow{
			Peer: peer, CommitKey: []byte("ck"), FinalKey: []byte("fk"),
			Locktime: 100, MinDepth: 6, CommitFeeRate: 5000,
			NextRevocationHash: nextHash,
		}))
	})

	got, err := s.TheirVisibleState(peer)
	require.NoError(t, err)
	require.Equal(t, nextHash, got.NextRevocationHash)

	var updated [32]byte
	updated[0] = 0xbb
	withTx(t, s, func() {
		require.NoError(t, s.UpdateTheirNextRevocationHash(peer, updated))
	})

	got, err = s.TheirVisibleState(peer)
	require.NoError(t, err)
	require.Equal(t, updated, got.NextRevocationHash)
}

func TestCommitInfoRoundTripAndMaxXmitOrder(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")
	var revHash [32]byte
	revHash[0] = 1

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetCommitInfo(&CommitInfoRow{
			Peer: peer, Side: SideOurs, CommitNum: 1, RevocationHash: revHash,
			XmitOrder: 4, AnchorSatoshis: 1_000_000, FeeRate: 5000,
		}))
		require.NoError(t, s.SetCommitInfo(&CommitInfoRow{
			Peer: peer, Side: SideTheirs, CommitNum: 1, RevocationHash: revHash,
			XmitOrder: 5, AnchorSatoshis: 1_000_000, FeeRate: 5000,
		}))
	})

	got, err := s.CommitInfo(peer, SideOurs)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.CommitNum)
	require.EqualValues(t, 4, got.XmitOrder)

	max, err := s.MaxXmitOrder(peer)
	require.NoError(t, err)
	require.Equal(t, 5, max)
}

func TestCommitInfoMissingReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CommitInfo([]byte("nobody"), SideOurs)
	require.ErrorIs(t, err, ErrNoRows)
}

func TestMaxXmitOrderWithNothingRecordedIsZero(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")
	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
	})

	max, err := s.MaxXmitOrder(peer)
	require.NoError(t, err)
	require.Equal(t, 0, max)
}

func TestHTLCInsertUpdateAndList(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.InsertHTLC(&HTLCRow{
			Peer: peer, ID: 0, Owner: SideOurs, State: "SENT_ADD_HTLC",
			Msatoshis: 5000, Expiry: 100,
		}))
		require.NoError(t, s.InsertHTLC(&HTLCRow{
			Peer: peer, ID: 0, Owner: SideTheirs, State: "RCVD_ADD_HTLC",
			Msatoshis: 3000, Expiry: 100,
		}))
	})

	rows, err := s.HTLCsForPeer(peer)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, SideOurs, rows[0].Owner)
	require.Equal(t, SideTheirs, rows[1].Owner)

	withTx(t, s, func() {
		require.NoError(t, s.UpdateHTLCState(peer, SideOurs, 0, "SENT_ADD_HTLC", "SENT_ADD_COMMIT"))
	})

	withTx(t, s, func() {
		err := s.UpdateHTLCState(peer, SideOurs, 0, "SENT_ADD_HTLC", "SENT_ADD_COMMIT")
		require.ErrorIs(t, err, ErrGuardViolation)
	})

	var preimage [32]byte
	preimage[0] = 0x42
	withTx(t, s, func() {
		require.NoError(t, s.SetHTLCPreimage(peer, SideOurs, 0, preimage, "SENT_ADD_COMMIT", "SENT_REMOVE_HTLC"))
	})

	rows, err = s.HTLCsForPeer(peer)
	require.NoError(t, err)
	require.Equal(t, "SENT_REMOVE_HTLC", rows[0].State)
	require.NotNil(t, rows[0].R)
	require.Equal(t, preimage, *rows[0].R)
}

func TestShachainRoundTrip(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")
	blob := make([]byte, 2612)
	blob[0] = 0xff

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetShachain(peer, blob))
	})

	got, err := s.Shachain(peer)
	require.NoError(t, err)
	require.Equal(t, blob, got)
}

func TestShachainMissingReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Shachain([]byte("nobody"))
	require.ErrorIs(t, err, ErrNoRows)
}

func TestClosingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	peer := []byte("peer-a")

	withTx(t, s, func() {
		require.NoError(t, s.CreatePeer(&PeerRow{PeerPubkey: peer, State: "OPEN_WAIT"}))
		require.NoError(t, s.SetClosing(&ClosingRow{
			Peer: peer, OurFee: 1000, TheirFee: 900, ShutdownOrder: 1, ClosingOrder: 2,
		}))
	})

	got, err := s.Closing(peer)
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.OurFee)
	require.Equal(t, 1, got.ShutdownOrder)
}

func TestClosingMissingReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Closing([]byte("nobody"))
	require.ErrorIs(t, err, ErrNoRows)
}

func TestWalletPrivKeyRoundTripAndReplace(t *testing.T) {
	s := openTestStore(t)

	withTx(t, s, func() {
		require.NoError(t, s.SetWalletPrivKey([]byte("key-one")))
	})
	got, err := s.WalletPrivKey()
	require.NoError(t, err)
	require.Equal(t, []byte("key-one"), got)

	withTx(t, s, func() {
		require.NoError(t, s.SetWalletPrivKey([]byte("key-two")))
	})
	got, err = s.WalletPrivKey()
	require.NoError(t, err)
	require.Equal(t, []byte("key-two"), got)
}

func TestWalletPrivKeyMissingReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.WalletPrivKey()
	require.ErrorIs(t, err, ErrNoRows)
}

func TestNewStampsSchemaVersionWithInjectedClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := clock.NewTestClock(now)

	path := filepath.Join(t.TempDir(), "lnchand_test.sqlite3")
	s, err := New(&Config{Path: path, Clock: tc})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	stamped, err := s.SchemaStampedAt()
	require.NoError(t, err)
	require.True(t, now.Equal(stamped))
}

func TestNewReopenDoesNotRestampSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnchand_test.sqlite3")

	first := clock.NewTestClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := New(&Config{Path: path, Clock: first})
	require.NoError(t, err)
	stamped, err := s.SchemaStampedAt()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	second := clock.NewTestClock(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	s2, err := New(&Config{Path: path, Clock: second})
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	reopened, err := s2.SchemaStampedAt()
	require.NoError(t, err)
	require.True(t, stamped.Equal(reopened))
}
