// Package htlc models a single Hashed Time-Locked Contract and the state
// machine that tracks its progress through the commitment/revocation
// protocol, plus the per-channel registry that indexes HTLCs by their
// owning side and id.
package htlc

import "fmt"

// State is one of the 20 legal positions an HTLC can occupy in its
// lifecycle. Zero value is intentionally invalid so a zeroed HTLC is never
// mistaken for one in SentAddHTLC.
type State uint8

const (
	_ State = iota

	// Offered locally: we proposed the HTLC.
	SentAddHTLC
	SentAddCommit
	RcvdAddRevocation
	RcvdAddAckCommit
	SentAddAckRevocation

	// Offered by the counterparty.
	RcvdAddHTLC
	RcvdAddCommit
	SentAddRevocation
	SentAddAckCommit
	RcvdAddAckRevocation

	// Removal (fulfill or fail), offered locally.
	SentRemoveHTLC
	SentRemoveCommit
	RcvdRemoveRevocation
	RcvdRemoveAckCommit
	SentRemoveAckRevocation

	// Removal, offered by the counterparty.
	RcvdRemoveHTLC
	RcvdRemoveCommit
	SentRemoveRevocation
	SentRemoveAckCommit
	RcvdRemoveAckRevocation
)

var stateNames = map[State]string{
	SentAddHTLC:             "SENT_ADD_HTLC",
	SentAddCommit:           "SENT_ADD_COMMIT",
	RcvdAddRevocation:       "RCVD_ADD_REVOCATION",
	RcvdAddAckCommit:        "RCVD_ADD_ACK_COMMIT",
	SentAddAckRevocation:    "SENT_ADD_ACK_REVOCATION",
	RcvdAddHTLC:             "RCVD_ADD_HTLC",
	RcvdAddCommit:           "RCVD_ADD_COMMIT",
	SentAddRevocation:       "SENT_ADD_REVOCATION",
	SentAddAckCommit:        "SENT_ADD_ACK_COMMIT",
	RcvdAddAckRevocation:    "RCVD_ADD_ACK_REVOCATION",
	SentRemoveHTLC:          "SENT_REMOVE_HTLC",
	SentRemoveCommit:        "SENT_REMOVE_COMMIT",
	RcvdRemoveRevocation:    "RCVD_REMOVE_REVOCATION",
	RcvdRemoveAckCommit:     "RCVD_REMOVE_ACK_COMMIT",
	SentRemoveAckRevocation: "SENT_REMOVE_ACK_REVOCATION",
	RcvdRemoveHTLC:          "RCVD_REMOVE_HTLC",
	RcvdRemoveCommit:        "RCVD_REMOVE_COMMIT",
	SentRemoveRevocation:    "SENT_REMOVE_REVOCATION",
	SentRemoveAckCommit:     "SENT_REMOVE_ACK_COMMIT",
	RcvdRemoveAckRevocation: "RCVD_REMOVE_ACK_REVOCATION",
}

var namesToState = func() map[string]State {
	m := make(map[string]State, len(stateNames))
	for s, n := range stateNames {
		m[n] = s
	}
	return m
}()

// String returns the canonical name used in persistence and logs.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("HTLC_STATE_INVALID(%d)", uint8(s))
}

// StateFromName parses a persisted state string, returning false if it is
// not one of the 20 legal names.
func StateFromName(name string) (State, bool) {
	s, ok := namesToState[name]
	return s, ok
}

// transitions enumerates every legal (from, to) pair. Any move not listed
// here is a fatal programming error, never a runtime condition to recover
// from -- attempting it panics rather than returning an error, by design:
// it signals a bug in the commitment engine, not a bad peer packet.
var transitions = map[State]State{
	SentAddHTLC:          SentAddCommit,
	SentAddCommit:        RcvdAddRevocation,
	RcvdAddRevocation:    RcvdAddAckCommit,
	RcvdAddAckCommit:     SentAddAckRevocation,

	RcvdAddHTLC:          RcvdAddCommit,
	RcvdAddCommit:        SentAddRevocation,
	SentAddRevocation:    SentAddAckCommit,
	SentAddAckCommit:     RcvdAddAckRevocation,

	SentRemoveHTLC:       SentRemoveCommit,
	SentRemoveCommit:     RcvdRemoveRevocation,
	RcvdRemoveRevocation: RcvdRemoveAckCommit,
	RcvdRemoveAckCommit:  SentRemoveAckRevocation,

	RcvdRemoveHTLC:       RcvdRemoveCommit,
	RcvdRemoveCommit:     SentRemoveRevocation,
	SentRemoveRevocation: SentRemoveAckCommit,
	SentRemoveAckCommit:  RcvdRemoveAckRevocation,
}

// CanAdvance reports whether to is a legal next state from s.
func CanAdvance(s, to State) bool {
	return transitions[s] == to
}

// Advance returns the single legal successor of s. It panics if s has no
// successor in the table (either it is a terminal state or not a valid
// state at all) -- the caller is expected to have checked CanAdvance, or to
// know by construction that s is non-terminal.
func Advance(s State) State {
	next, ok := transitions[s]
	if !ok {
		panic(fmt.Sprintf("htlc: %s has no successor state", s))
	}
	return next
}

// IsTerminal reports whether s is one of the four "both sides have
// revocation-acknowledged" end states, after which the HTLC is logically
// deleted (though it may be kept in storage for forwarding bookkeeping).
func IsTerminal(s State) bool {
	switch s {
	case SentAddAckRevocation, RcvdAddAckRevocation,
		SentRemoveAckRevocation, RcvdRemoveAckRevocation:
		return true
	default:
		return false
	}
}

// LocalFlags reports the two derived bits that drive cstate reconstruction
// on load: wasCommitted is true if the HTLC has ever appeared in our local
// commitment; committed is true if it is still there now (the difference
// tells the replay loop whether to apply the HTLC as live or as
// resolved/failed).
func LocalFlags(s State) (wasCommitted, committed bool) {
	switch s {
	case SentAddCommit, RcvdAddRevocation, RcvdAddAckCommit, SentAddAckRevocation,
		RcvdAddCommit, SentAddRevocation, SentAddAckCommit, RcvdAddAckRevocation:
		return true, true
	case SentRemoveHTLC, SentRemoveCommit, RcvdRemoveRevocation, RcvdRemoveAckCommit,
		RcvdRemoveHTLC, RcvdRemoveCommit, SentRemoveRevocation, SentRemoveAckCommit:
		return true, true
	case SentRemoveAckRevocation, RcvdRemoveAckRevocation:
		return true, false
	default:
		return false, false
	}
}

// RemoteFlags is the mirror of LocalFlags for the counterparty's
// commitment chain. Offered-locally states reach the remote commitment one
// step earlier than the local one (the remote side acks first), and
// removed-locally states leave it one step later; the table below tracks
// that asymmetry directly rather than deriving it.
func RemoteFlags(s State) (wasCommitted, committed bool) {
	switch s {
	case SentAddHTLC, SentAddCommit, RcvdAddRevocation, RcvdAddAckCommit,
		RcvdAddHTLC, RcvdAddCommit, SentAddRevocation, SentAddAckCommit:
		return true, true
	case SentRemoveCommit, RcvdRemoveRevocation, RcvdRemoveAckCommit,
		RcvdRemoveCommit, SentRemoveRevocation, SentRemoveAckCommit:
		return true, true
	case SentAddAckRevocation, RcvdAddAckRevocation,
		SentRemoveHTLC, RcvdRemoveHTLC:
		return true, false
	default:
		return false, false
	}
}
