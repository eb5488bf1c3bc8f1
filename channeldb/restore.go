package channeldb

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningd-go/lnchand/chanstate"
	"github.com/lightningd-go/lnchand/channel"
	"github.com/lightningd-go/lnchand/htlc"
	"github.com/lightningd-go/lnchand/shachain"
	"github.com/lightningd-go/lnchand/walletkeys"
)

// RestoreChannel rebuilds a single peer's Channel from persisted rows:
// secrets, (if anchor-ready) anchor, their_visible_state, shachain,
// commit_info, then replays HTLCs in ascending id to reconstruct both
// commitment cstates, exactly as the engine left them before the restart.
//
// Staging cstates are seeded equal to the reconstructed committed cstates:
// any in-flight HTLC not yet both-sides-committed is represented by its
// registry entry and State alone, since this store records committed
// cstates, not uncommitted staging deltas.
func (s *Store) RestoreChannel(peer []byte, dust chanstate.DustLimit) (*channel.Channel, error) {
	secrets, err := s.PeerSecrets(peer)
	if err != nil {
		return nil, fmt.Errorf("restore %x: secrets: %w", peer, err)
	}

	anchor, err := s.Anchor(peer)
	if err != nil {
		return nil, fmt.Errorf("restore %x: anchor not ready: %w", peer, err)
	}

	theirVis, err := s.TheirVisibleState(peer)
	if err != nil {
		return nil, fmt.Errorf("restore %x: their_visible_state: %w", peer, err)
	}

	funder := chanstate.Theirs
	if anchor.Ours {
		funder = chanstate.Ours
	}

	ourCommitRow, err := s.CommitInfo(peer, SideOurs)
	if err != nil {
		return nil, fmt.Errorf("restore %x: commit_info(OURS): %w", peer, err)
	}
	theirCommitRow, err := s.CommitInfo(peer, SideTheirs)
	if err != nil {
		return nil, fmt.Errorf("restore %x: commit_info(THEIRS): %w", peer, err)
	}

	localCState, err := chanstate.Initial(btcutil.Amount(anchor.Amount), ourCommitRow.FeeRate, funder)
	if err != nil {
		return nil, fmt.Errorf("restore %x: rebuild local cstate: %w", peer, err)
	}
	remoteCState, err := chanstate.Initial(btcutil.Amount(anchor.Amount), theirCommitRow.FeeRate, funder)
	if err != nil {
		return nil, fmt.Errorf("restore %x: rebuild remote cstate: %w", peer, err)
	}

	registry := htlc.NewRegistry()

	rows, err := s.HTLCsForPeer(peer)
	if err != nil {
		return nil, fmt.Errorf("restore %x: htlcs: %w", peer, err)
	}

	for _, row := range rows {
		state, ok := htlc.StateFromName(row.State)
		if !ok {
			return nil, fmt.Errorf("restore %x: htlc %d: unknown state %q", peer, row.ID, row.State)
		}

		if htlc.IsTerminal(state) {
			continue
		}

		var owner htlc.Owner
		switch row.Owner {
		case SideOurs:
			owner = htlc.Local
		case SideTheirs:
			owner = htlc.Remote
		default:
			return nil, fmt.Errorf("restore %x: htlc %d: unknown owner %q", peer, row.ID, row.Owner)
		}

		h := &htlc.HTLC{
			ID:        row.ID,
			Owner:     owner,
			Msatoshis: chanstate.MilliSatoshi(row.Msatoshis),
			Expiry:    row.Expiry,
			Routing:   row.Routing,
			State:     state,
		}
		copy(h.RHash[:], row.RHash[:])
		if row.R != nil {
			r := chainhash.Hash(*row.R)
			h.R = &r
		}
		if row.SrcPeer != nil && row.SrcID != nil {
			var peerID [33]byte
			copy(peerID[:], row.SrcPeer)
			h.Upstream = &htlc.UpstreamLink{PeerID: peerID, HTLCID: *row.SrcID}
		}

		isDust := h.IsDust(dust)

		if wasCommitted, committed := htlc.LocalFlags(state); wasCommitted {
			localCState.AddHTLC(owner, h.Msatoshis, isDust)
			if !committed {
				if h.R != nil {
					localCState.FulfillHTLC(owner, h.Msatoshis, isDust)
				} else {
					localCState.FailHTLC(owner, h.Msatoshis, isDust)
				}
			}
		}

		if wasCommitted, committed := htlc.RemoteFlags(state); wasCommitted {
			remoteCState.AddHTLC(owner, h.Msatoshis, isDust)
			if !committed {
				if h.R != nil {
					remoteCState.FulfillHTLC(owner, h.Msatoshis, isDust)
				} else {
					remoteCState.FailHTLC(owner, h.Msatoshis, isDust)
				}
			}
		}

		registry.Add(h)
	}

	shaBlob, err := s.Shachain(peer)
	if err != nil {
		return nil, fmt.Errorf("restore %x: shachain: %w", peer, err)
	}
	theirShachain, err := shachain.Delinearize(shaBlob)
	if err != nil {
		return nil, fmt.Errorf("restore %x: delinearize shachain: %w", peer, err)
	}

	producer := shachain.NewProducer(secrets.RevocationSeed)
	keys := walletkeys.FromRaw(secrets.CommitKey, secrets.FinalKey, secrets.RevocationSeed)

	var localCommit, remoteCommit *channel.CommitInfo
	if ourCommitRow.CommitNum > 0 || ourCommitRow.Sig != nil {
		localCommit = commitInfoFromRow(ourCommitRow, localCState)
	}
	if theirCommitRow.CommitNum > 0 || theirCommitRow.Sig != nil {
		remoteCommit = commitInfoFromRow(theirCommitRow, remoteCState)
	}

	orderCounter, err := s.MaxXmitOrder(peer)
	if err != nil {
		return nil, fmt.Errorf("restore %x: max xmit order: %w", peer, err)
	}

	var theirPrevRevocationHash *chainhash.Hash
	if theirCommitRow.PrevRevocationHash != nil {
		h := chainhash.Hash(*theirCommitRow.PrevRevocationHash)
		theirPrevRevocationHash = &h
	}

	ch := channel.Restore(
		localCommit, remoteCommit,
		localCState.Copy(), remoteCState.Copy(),
		registry, dust, theirShachain, producer,
		theirVis.NextRevocationHash, theirPrevRevocationHash,
		keys, orderCounter+1,
	)

	return ch, nil
}

func commitInfoFromRow(row *CommitInfoRow, cstate *chanstate.ChannelState) *channel.CommitInfo {
	info := &channel.CommitInfo{
		CommitNum:      row.CommitNum,
		RevocationHash: row.RevocationHash,
		XmitOrder:      row.XmitOrder,
		CState:         cstate.Copy(),
	}

	if len(row.Sig) > 0 {
		if sig, err := ecdsa.ParseDERSignature(row.Sig); err == nil {
			info.Sig = sig
		}
	}

	return info
}
