package channeldb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lightningd-go/lnchand/channel"
)

// Side names the two values the side column is constrained to.
const (
	SideOurs   = "OURS"
	SideTheirs = "THEIRS"
)

// CommitInfoRow is the commit_info table's row shape: one row per
// (peer, side), holding the currently-broadcastable commitment on that
// chain, plus the revocation bookkeeping pending against it.
type CommitInfoRow struct {
	Peer                []byte
	Side                string
	CommitNum           uint64
	RevocationHash      [32]byte
	XmitOrder           int
	Sig                 []byte
	PrevRevocationHash  *[32]byte
	AnchorSatoshis      int64
	FeeRate             uint32
}

// SetCommitInfo upserts the commitment currently live on (peer, side).
func (s *Store) SetCommitInfo(r *CommitInfoRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	var prevHash []byte
	if r.PrevRevocationHash != nil {
		prevHash = r.PrevRevocationHash[:]
	}

	_, err := s.q().Exec(
		`INSERT INTO commit_info
		   (peer, side, commit_num, revocation_hash, xmit_order, sig,
		    prev_revocation_hash, anchor_satoshis, fee_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer, side) DO UPDATE SET
		   commit_num=excluded.commit_num, revocation_hash=excluded.revocation_hash,
		   xmit_order=excluded.xmit_order, sig=excluded.sig,
		   prev_revocation_hash=excluded.prev_revocation_hash,
		   anchor_satoshis=excluded.anchor_satoshis, fee_rate=excluded.fee_rate`,
		r.Peer, r.Side, r.CommitNum, r.RevocationHash[:], r.XmitOrder, r.Sig,
		prevHash, r.AnchorSatoshis, r.FeeRate,
	)
	if err != nil {
		return fmt.Errorf("%w: set commit_info: %v", ErrStorageFailure, err)
	}
	return nil
}

// CommitInfo loads the (peer, side) commitment row, or ErrNoRows if no
// commitment has ever been minted on that chain.
func (s *Store) CommitInfo(peer []byte, side string) (*CommitInfoRow, error) {
	r := &CommitInfoRow{Peer: peer, Side: side}
	var revHash, sig, prevHash []byte

	err := s.q().QueryRow(
		`SELECT commit_num, revocation_hash, xmit_order, sig, prev_revocation_hash,
		        anchor_satoshis, fee_rate
		 FROM commit_info WHERE peer = ? AND side = ?`,
		peer, side,
	).Scan(&r.CommitNum, &revHash, &r.XmitOrder, &sig, &prevHash, &r.AnchorSatoshis, &r.FeeRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load commit_info: %v", ErrStorageFailure, err)
	}

	copy(r.RevocationHash[:], revHash)
	r.Sig = sig
	if prevHash != nil {
		var h [32]byte
		copy(h[:], prevHash)
		r.PrevRevocationHash = &h
	}

	return r, nil
}

// MaxXmitOrder returns the highest xmit_order recorded across both
// commit_info rows for peer, and closing's shutdown_order/closing_order,
// used to recompute order_counter after restart. It returns 0 if nothing has
// been recorded yet.
func (s *Store) MaxXmitOrder(peer []byte) (int, error) {
	var maxOrder sql.NullInt64

	err := s.q().QueryRow(
		`SELECT MAX(m) FROM (
		   SELECT MAX(xmit_order) AS m FROM commit_info WHERE peer = ?
		   UNION ALL
		   SELECT MAX(shutdown_order) FROM closing WHERE peer = ?
		   UNION ALL
		   SELECT MAX(closing_order) FROM closing WHERE peer = ?
		 )`,
		peer, peer, peer,
	).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("%w: max xmit order: %v", ErrStorageFailure, err)
	}

	if !maxOrder.Valid {
		return 0, nil
	}
	return int(maxOrder.Int64), nil
}

// PersistCommitInfo writes info as the (peer, side) row, serializing its
// signature to DER bytes -- a data-representation conversion, not a
// cryptographic operation.
func (s *Store) PersistCommitInfo(peer []byte, side string, info *channel.CommitInfo, anchorSatoshis int64) error {
	row := &CommitInfoRow{
		Peer:           peer,
		Side:           side,
		CommitNum:      info.CommitNum,
		RevocationHash: info.RevocationHash,
		XmitOrder:      info.XmitOrder,
		AnchorSatoshis: anchorSatoshis,
		FeeRate:        info.CState.FeeRate,
	}

	if info.Sig != nil {
		row.Sig = info.Sig.Serialize()
	}

	return s.SetCommitInfo(row)
}

// RecordTheirCommitment appends a broadcastable-txid record for peer,
// tracking which commit_num it corresponds to for dispute bookkeeping.
func (s *Store) RecordTheirCommitment(peer []byte, txid [32]byte, commitNum uint64) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO their_commitments (peer, txid, commit_num) VALUES (?, ?, ?)`,
		peer, txid[:], commitNum,
	)
	if err != nil {
		return fmt.Errorf("%w: record their commitment: %v", ErrStorageFailure, err)
	}
	return nil
}
