// Package walletkeys types the private key material a channel peer holds:
// its own commitment, final, and revocation-seed keys. It only defines and
// threads these values through -- deriving or signing with them is a
// cryptographic primitive operation and out of scope here.
package walletkeys

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// PeerSecrets is one peer's own key material, persisted in the
// peer_secrets table and loaded back into a Channel on restart.
type PeerSecrets struct {
	// CommitKey signs our commitment transactions.
	CommitKey *btcec.PrivateKey

	// FinalKey is the destination key for our payout on channel close.
	FinalKey *btcec.PrivateKey

	// RevocationSeed is the 32-byte root from which every revocation
	// preimage this side will ever reveal is deterministically derived.
	RevocationSeed [32]byte
}

// PubKeys is the corresponding public key material, exchanged with the
// counterparty in OPEN.
type PubKeys struct {
	CommitKey *btcec.PublicKey
	FinalKey  *btcec.PublicKey
}

// Pub derives the public keys from s, for inclusion in an outgoing OPEN.
func (s *PeerSecrets) Pub() PubKeys {
	return PubKeys{
		CommitKey: s.CommitKey.PubKey(),
		FinalKey:  s.FinalKey.PubKey(),
	}
}

// FromRaw parses commitKey/finalKey as serialized private key scalars and
// pairs them with seed, the form the peer_secrets table persists these in.
// This only decodes the byte representation; it derives nothing.
func FromRaw(commitKey, finalKey, seed [32]byte) *PeerSecrets {
	commit, _ := btcec.PrivKeyFromBytes(commitKey[:])
	final, _ := btcec.PrivKeyFromBytes(finalKey[:])
	return &PeerSecrets{
		CommitKey:      commit,
		FinalKey:       final,
		RevocationSeed: seed,
	}
}

// WalletKey is the node's single long-lived identity key, the `wallet`
// table's sole row.
type WalletKey struct {
	PrivKey *btcec.PrivateKey
}
