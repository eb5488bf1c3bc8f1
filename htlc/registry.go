package htlc

import "sort"

// key is the registry's internal lookup key: an HTLC is unique within a
// channel by (owner, id), never by id alone.
type key struct {
	owner Owner
	id    uint64
}

// Registry is the collection of all HTLCs live on one channel, keyed by
// (owner, id). It has no notion of commitment chains or protocol state
// transitions beyond storing whatever State each HTLC currently reports;
// the commitment/revocation engine is what drives those transitions.
type Registry struct {
	htlcs map[key]*HTLC

	// nextLocalID is the monotonic counter new locally-offered HTLCs
	// draw their ID from.
	nextLocalID uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{htlcs: make(map[key]*HTLC)}
}

// NextLocalID returns the next id to assign a new locally-offered HTLC,
// without consuming it; NewLocalHTLC does the consuming.
func (r *Registry) NextLocalID() uint64 {
	return r.nextLocalID
}

// SetNextLocalID forces the counter, used when restoring a registry from
// persistence (the counter must resume above the highest local id seen).
func (r *Registry) SetNextLocalID(next uint64) {
	if next > r.nextLocalID {
		r.nextLocalID = next
	}
}

// Add inserts h into the registry as-is (h.ID is used verbatim), bumping
// the local-id counter if needed. This is the path used when restoring
// HTLCs from persistence, or inserting a remotely-offered HTLC whose id
// the counterparty chose. Use NewLocalHTLC to originate a new local HTLC.
func (r *Registry) Add(h *HTLC) *HTLC {
	if h.Owner == Local && h.ID >= r.nextLocalID {
		r.nextLocalID = h.ID + 1
	}

	r.htlcs[key{h.Owner, h.ID}] = h
	return h
}

// NewLocalHTLC allocates a fresh id from the local counter and inserts a
// new HTLC offered by us.
func (r *Registry) NewLocalHTLC(h *HTLC) *HTLC {
	h.Owner = Local
	h.ID = r.nextLocalID
	r.nextLocalID++
	r.htlcs[key{Local, h.ID}] = h
	return h
}

// Get looks up the HTLC owned by owner with the given id.
func (r *Registry) Get(owner Owner, id uint64) (*HTLC, bool) {
	h, ok := r.htlcs[key{owner, id}]
	return h, ok
}

// Has reports whether an HTLC with the given owner/id is already present
// -- used by the ADD_HTLC acceptor to reject a duplicate id.
func (r *Registry) Has(owner Owner, id uint64) bool {
	_, ok := r.htlcs[key{owner, id}]
	return ok
}

// Delete removes an HTLC once it has reached a terminal state and is no
// longer needed for bookkeeping.
func (r *Registry) Delete(owner Owner, id uint64) {
	delete(r.htlcs, key{owner, id})
}

// All returns every HTLC currently in the registry, in ascending
// (owner, id) order -- the order persistence replay and restart
// reconstruction rely on.
func (r *Registry) All() []*HTLC {
	out := make([]*HTLC, 0, len(r.htlcs))
	for _, h := range r.htlcs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InState returns every HTLC currently in state s, in the same order as
// All. Used by the commitment engine to find, e.g., every HTLC in
// SentAddHTLC when producing an UPDATE_COMMIT.
func (r *Registry) InState(s State) []*HTLC {
	var out []*HTLC
	for _, h := range r.All() {
		if h.State == s {
			out = append(out, h)
		}
	}
	return out
}

// NumHTLCs returns the count of HTLCs currently offered by owner --
// used by the ADD_HTLC acceptor's 300-HTLC cap check.
func (r *Registry) NumHTLCs(owner Owner) int {
	n := 0
	for k := range r.htlcs {
		if k.owner == owner {
			n++
		}
	}
	return n
}
