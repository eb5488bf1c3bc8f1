package channeldb

import (
	"database/sql"
	"errors"
	"fmt"
)

// ClosingRow is the closing table's row shape: the cooperative close
// negotiation state for a peer that has entered SHUTDOWN.
type ClosingRow struct {
	Peer          []byte
	OurFee        int64
	TheirFee      int64
	TheirSig      []byte
	OurScript     []byte
	TheirScript   []byte
	ShutdownOrder int
	ClosingOrder  int
	SigsIn        int
}

// SetClosing upserts peer's closing negotiation state.
func (s *Store) SetClosing(r *ClosingRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO closing
		   (peer, our_fee, their_fee, their_sig, our_script, their_script,
		    shutdown_order, closing_order, sigs_in)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer) DO UPDATE SET
		   our_fee=excluded.our_fee, their_fee=excluded.their_fee,
		   their_sig=excluded.their_sig, our_script=excluded.our_script,
		   their_script=excluded.their_script, shutdown_order=excluded.shutdown_order,
		   closing_order=excluded.closing_order, sigs_in=excluded.sigs_in`,
		r.Peer, r.OurFee, r.TheirFee, r.TheirSig, r.OurScript, r.TheirScript,
		r.ShutdownOrder, r.ClosingOrder, r.SigsIn,
	)
	if err != nil {
		return fmt.Errorf("%w: set closing: %v", ErrStorageFailure, err)
	}
	return nil
}

// Closing loads peer's closing negotiation state, or ErrNoRows if the peer
// has never entered SHUTDOWN.
func (s *Store) Closing(peer []byte) (*ClosingRow, error) {
	r := &ClosingRow{Peer: peer}

	err := s.q().QueryRow(
		`SELECT our_fee, their_fee, their_sig, our_script, their_script,
		        shutdown_order, closing_order, sigs_in
		 FROM closing WHERE peer = ?`,
		peer,
	).Scan(
		&r.OurFee, &r.TheirFee, &r.TheirSig, &r.OurScript, &r.TheirScript,
		&r.ShutdownOrder, &r.ClosingOrder, &r.SigsIn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load closing: %v", ErrStorageFailure, err)
	}

	return r, nil
}
