package channeldb

import (
	"database/sql"
	"errors"
	"fmt"
)

// AnchorRow is the anchors table's row shape: the funding outpoint, once
// known, and how deep it must/has confirmed.
type AnchorRow struct {
	Peer     []byte
	TxID     [32]byte
	Idx      uint32
	Amount   int64
	OkDepth  uint32
	MinDepth uint32
	Ours     bool
}

// SetAnchor records the funding outpoint for peer.
func (s *Store) SetAnchor(a *AnchorRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO anchors (peer, txid, idx, amount, ok_depth, min_depth, ours)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer) DO UPDATE SET
		   txid=excluded.txid, idx=excluded.idx, amount=excluded.amount,
		   ok_depth=excluded.ok_depth, min_depth=excluded.min_depth, ours=excluded.ours`,
		a.Peer, a.TxID[:], a.Idx, a.Amount, a.OkDepth, a.MinDepth, a.Ours,
	)
	if err != nil {
		return fmt.Errorf("%w: set anchor: %v", ErrStorageFailure, err)
	}
	return nil
}

// Anchor loads peer's anchor row.
func (s *Store) Anchor(peer []byte) (*AnchorRow, error) {
	a := &AnchorRow{Peer: peer}
	var txid []byte

	err := s.q().QueryRow(
		`SELECT txid, idx, amount, ok_depth, min_depth, ours FROM anchors WHERE peer = ?`,
		peer,
	).Scan(&txid, &a.Idx, &a.Amount, &a.OkDepth, &a.MinDepth, &a.Ours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load anchor: %v", ErrStorageFailure, err)
	}

	copy(a.TxID[:], txid)
	return a, nil
}

// TheirVisibleStateRow is the their_visible_state table's row shape: the
// counterparty's OPEN fields, retained verbatim for reconnection/replay.
type TheirVisibleStateRow struct {
	Peer               []byte
	OfferedAnchor      bool
	CommitKey          []byte
	FinalKey           []byte
	Locktime           uint32
	MinDepth           uint32
	CommitFeeRate      uint32
	NextRevocationHash [32]byte
}

// SetTheirVisibleState records the counterparty's OPEN fields for peer.
func (s *Store) SetTheirVisibleState(r *TheirVisibleStateRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO their_visible_state
		   (peer, offered_anchor, commitkey, finalkey, locktime, mindepth,
		    commit_fee_rate, next_revocation_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer) DO UPDATE SET
		   offered_anchor=excluded.offered_anchor, commitkey=excluded.commitkey,
		   finalkey=excluded.finalkey, locktime=excluded.locktime,
		   mindepth=excluded.mindepth, commit_fee_rate=excluded.commit_fee_rate,
		   next_revocation_hash=excluded.next_revocation_hash`,
		r.Peer, r.OfferedAnchor, r.CommitKey, r.FinalKey, r.Locktime,
		r.MinDepth, r.CommitFeeRate, r.NextRevocationHash[:],
	)
	if err != nil {
		return fmt.Errorf("%w: set their_visible_state: %v", ErrStorageFailure, err)
	}
	return nil
}

// UpdateTheirNextRevocationHash updates just the next_revocation_hash field,
// the one mutated on every accepted UPDATE_REVOCATION.
func (s *Store) UpdateTheirNextRevocationHash(peer []byte, hash [32]byte) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`UPDATE their_visible_state SET next_revocation_hash = ? WHERE peer = ?`,
		hash[:], peer,
	)
	if err != nil {
		return fmt.Errorf("%w: update next_revocation_hash: %v", ErrStorageFailure, err)
	}
	return nil
}

// TheirVisibleState loads peer's their_visible_state row.
func (s *Store) TheirVisibleState(peer []byte) (*TheirVisibleStateRow, error) {
	r := &TheirVisibleStateRow{Peer: peer}
	var nextHash []byte

	err := s.q().QueryRow(
		`SELECT offered_anchor, commitkey, finalkey, locktime, mindepth,
		        commit_fee_rate, next_revocation_hash
		 FROM their_visible_state WHERE peer = ?`,
		peer,
	).Scan(
		&r.OfferedAnchor, &r.CommitKey, &r.FinalKey, &r.Locktime, &r.MinDepth,
		&r.CommitFeeRate, &nextHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load their_visible_state: %v", ErrStorageFailure, err)
	}

	copy(r.NextRevocationHash[:], nextHash)
	return r, nil
}
