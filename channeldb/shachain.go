package channeldb

import (
	"database/sql"
	"errors"
	"fmt"
)

// SetShachain stores peer's linearized shachain blob (exactly
// shachain.LinearizedSize bytes).
func (s *Store) SetShachain(peer []byte, blob []byte) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO shachain (peer, shachain) VALUES (?, ?)
		 ON CONFLICT(peer) DO UPDATE SET shachain = excluded.shachain`,
		peer, blob,
	)
	if err != nil {
		return fmt.Errorf("%w: set shachain: %v", ErrStorageFailure, err)
	}
	return nil
}

// Shachain loads peer's linearized shachain blob, or ErrNoRows if none has
// been stored yet.
func (s *Store) Shachain(peer []byte) ([]byte, error) {
	var blob []byte
	err := s.q().QueryRow(`SELECT shachain FROM shachain WHERE peer = ?`, peer).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load shachain: %v", ErrStorageFailure, err)
	}
	return blob, nil
}
