package channeldb

import (
	"fmt"
)

// HTLCRow is the htlcs table's row shape. owner/id together are the
// registry key; src_peer/src_id link an HTLC to the upstream channel it
// forwards for, when set.
type HTLCRow struct {
	Peer      []byte
	ID        uint64
	Owner     string
	State     string
	Msatoshis int64
	Expiry    uint32
	RHash     [32]byte
	R         *[32]byte
	Routing   []byte
	SrcPeer   []byte
	SrcID     *uint64
}

// InsertHTLC adds a new htlc row.
func (s *Store) InsertHTLC(h *HTLCRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	var r []byte
	if h.R != nil {
		r = h.R[:]
	}

	_, err := s.q().Exec(
		`INSERT INTO htlcs (peer, id, owner, state, msatoshis, expiry, rhash, r,
		                     routing, src_peer, src_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Peer, h.ID, h.Owner, h.State, h.Msatoshis, h.Expiry, h.RHash[:], r,
		h.Routing, h.SrcPeer, h.SrcID,
	)
	if err != nil {
		return fmt.Errorf("%w: insert htlc: %v", ErrStorageFailure, err)
	}
	return nil
}

// UpdateHTLCState moves an htlc's persisted state, guarded on its previous
// value per the update-with-guard discipline: a zero-row effect means the
// in-memory and on-disk states have diverged, a protocol bug that must fail
// loudly rather than silently pass.
func (s *Store) UpdateHTLCState(peer []byte, owner string, id uint64, oldState, newState string) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	res, err := s.q().Exec(
		`UPDATE htlcs SET state = ? WHERE peer = ? AND owner = ? AND id = ? AND state = ?`,
		newState, peer, owner, id, oldState,
	)
	if err != nil {
		return fmt.Errorf("%w: update htlc state: %v", ErrStorageFailure, err)
	}

	return checkGuard(res)
}

// SetHTLCPreimage records the revealed preimage for a fulfilled htlc,
// alongside its terminal state transition.
func (s *Store) SetHTLCPreimage(peer []byte, owner string, id uint64, r [32]byte, oldState, newState string) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	res, err := s.q().Exec(
		`UPDATE htlcs SET state = ?, r = ? WHERE peer = ? AND owner = ? AND id = ? AND state = ?`,
		newState, r[:], peer, owner, id, oldState,
	)
	if err != nil {
		return fmt.Errorf("%w: set htlc preimage: %v", ErrStorageFailure, err)
	}

	return checkGuard(res)
}

// HTLCsForPeer loads every htlc row for peer, in ascending (owner, id) order
// -- the order restart reconstruction replays them in.
func (s *Store) HTLCsForPeer(peer []byte) ([]*HTLCRow, error) {
	rows, err := s.q().Query(
		`SELECT id, owner, state, msatoshis, expiry, rhash, r, routing, src_peer, src_id
		 FROM htlcs WHERE peer = ? ORDER BY owner ASC, id ASC`,
		peer,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list htlcs: %v", ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []*HTLCRow
	for rows.Next() {
		h := &HTLCRow{Peer: peer}
		var rhash, r []byte

		if err := rows.Scan(
			&h.ID, &h.Owner, &h.State, &h.Msatoshis, &h.Expiry, &rhash, &r,
			&h.Routing, &h.SrcPeer, &h.SrcID,
		); err != nil {
			return nil, fmt.Errorf("%w: scan htlc: %v", ErrStorageFailure, err)
		}

		copy(h.RHash[:], rhash)
		if r != nil {
			var preimage [32]byte
			copy(preimage[:], r)
			h.R = &preimage
		}

		out = append(out, h)
	}
	return out, rows.Err()
}
