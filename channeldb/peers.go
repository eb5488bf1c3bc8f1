package channeldb

import (
	"database/sql"
	"errors"
	"fmt"
)

// PeerRow is the peers table's row shape.
type PeerRow struct {
	PeerPubkey    []byte
	State         string
	OfferedAnchor bool
	OurFeerate    uint32
}

// PeerSecretsRow is the peer_secrets table's row shape: our own key material
// for this peer, never the counterparty's.
type PeerSecretsRow struct {
	Peer           []byte
	CommitKey      [32]byte
	FinalKey       [32]byte
	RevocationSeed [32]byte
}

// CreatePeer inserts a new peer row -- the `db_create_peer` operation, run
// once an OPEN exchange succeeds.
func (s *Store) CreatePeer(p *PeerRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO peers (peer_pubkey, state, offered_anchor, our_feerate)
		 VALUES (?, ?, ?, ?)`,
		p.PeerPubkey, p.State, p.OfferedAnchor, p.OurFeerate,
	)
	if err != nil {
		return fmt.Errorf("%w: create peer: %v", ErrStorageFailure, err)
	}
	return nil
}

// UpdatePeerState moves a peer's state, guarded on its previous value: a
// zero-row update means the in-memory and on-disk states have diverged.
func (s *Store) UpdatePeerState(peerPubkey []byte, oldState, newState string) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	res, err := s.q().Exec(
		`UPDATE peers SET state = ? WHERE peer_pubkey = ? AND state = ?`,
		newState, peerPubkey, oldState,
	)
	if err != nil {
		return fmt.Errorf("%w: update peer state: %v", ErrStorageFailure, err)
	}

	return checkGuard(res)
}

// Peers lists every known peer.
func (s *Store) Peers() ([]*PeerRow, error) {
	rows, err := s.q().Query(`SELECT peer_pubkey, state, offered_anchor, our_feerate FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("%w: list peers: %v", ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []*PeerRow
	for rows.Next() {
		p := &PeerRow{}
		if err := rows.Scan(&p.PeerPubkey, &p.State, &p.OfferedAnchor, &p.OurFeerate); err != nil {
			return nil, fmt.Errorf("%w: scan peer: %v", ErrStorageFailure, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPeerSecrets stores our own key material for peer.
func (s *Store) SetPeerSecrets(r *PeerSecretsRow) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	_, err := s.q().Exec(
		`INSERT INTO peer_secrets (peer, commitkey, finalkey, revocation_seed)
		 VALUES (?, ?, ?, ?)`,
		r.Peer, r.CommitKey[:], r.FinalKey[:], r.RevocationSeed[:],
	)
	if err != nil {
		return fmt.Errorf("%w: set peer secrets: %v", ErrStorageFailure, err)
	}
	return nil
}

// PeerSecrets loads peer's own key material.
func (s *Store) PeerSecrets(peer []byte) (*PeerSecretsRow, error) {
	r := &PeerSecretsRow{Peer: peer}
	var commitKey, finalKey, seed []byte

	err := s.q().QueryRow(
		`SELECT commitkey, finalkey, revocation_seed FROM peer_secrets WHERE peer = ?`,
		peer,
	).Scan(&commitKey, &finalKey, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load peer secrets: %v", ErrStorageFailure, err)
	}

	copy(r.CommitKey[:], commitKey)
	copy(r.FinalKey[:], finalKey)
	copy(r.RevocationSeed[:], seed)
	return r, nil
}

// SetPeerAddress stores the resolved address to reconnect to peer on.
func (s *Store) SetPeerAddress(peer []byte, network, address string) error {
	if err := s.requireTx(); err != nil {
		return err
	}

	blob := []byte(network + "|" + address)
	_, err := s.q().Exec(
		`INSERT INTO peer_address (peer, addr) VALUES (?, ?)
		 ON CONFLICT(peer) DO UPDATE SET addr = excluded.addr`,
		peer, blob,
	)
	if err != nil {
		return fmt.Errorf("%w: set peer address: %v", ErrStorageFailure, err)
	}
	return nil
}

// PeerAddress loads the stored (network, address) pair for peer.
func (s *Store) PeerAddress(peer []byte) (network, address string, err error) {
	var blob []byte
	err = s.q().QueryRow(`SELECT addr FROM peer_address WHERE peer = ?`, peer).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNoRows
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: load peer address: %v", ErrStorageFailure, err)
	}

	for i, b := range blob {
		if b == '|' {
			return string(blob[:i]), string(blob[i+1:]), nil
		}
	}
	return "", "", fmt.Errorf("%w: malformed peer_address blob", ErrStorageFailure)
}

// checkGuard turns a zero-row UPDATE result into ErrGuardViolation.
func checkGuard(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrStorageFailure, err)
	}
	if n == 0 {
		return ErrGuardViolation
	}
	return nil
}
