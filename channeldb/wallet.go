package channeldb

import (
	"database/sql"
	"errors"
	"fmt"
)

// SetWalletPrivKey stores the node's own private key. There is exactly one
// row; it replaces whatever was there before.
func (s *Store) SetWalletPrivKey(privkey []byte) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	if _, err := s.q().Exec(`DELETE FROM wallet`); err != nil {
		return fmt.Errorf("%w: clear wallet: %v", ErrStorageFailure, err)
	}
	if _, err := s.q().Exec(`INSERT INTO wallet (privkey) VALUES (?)`, privkey); err != nil {
		return fmt.Errorf("%w: insert wallet: %v", ErrStorageFailure, err)
	}

	return nil
}

// WalletPrivKey loads the node's own private key, returning ErrNoRows if the
// wallet has never been initialized.
func (s *Store) WalletPrivKey() ([]byte, error) {
	var privkey []byte
	err := s.q().QueryRow(`SELECT privkey FROM wallet LIMIT 1`).Scan(&privkey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load wallet: %v", ErrStorageFailure, err)
	}
	return privkey, nil
}
