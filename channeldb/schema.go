package channeldb

// schema is the full DDL applied once, atomically, when a new database file
// is created. There is no migration versioning: a from-scratch schema needs
// none, and the migration_tracker table exists only so a future schema
// change has a place to record itself.
const schema = `
CREATE TABLE IF NOT EXISTS migration_tracker (
	version INTEGER UNIQUE NOT NULL,
	migration_time TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS wallet (
	privkey BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS peers (
	peer_pubkey BLOB PRIMARY KEY,
	state TEXT NOT NULL,
	offered_anchor INTEGER NOT NULL,
	our_feerate INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS peer_secrets (
	peer BLOB PRIMARY KEY REFERENCES peers(peer_pubkey),
	commitkey BLOB NOT NULL,
	finalkey BLOB NOT NULL,
	revocation_seed BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS peer_address (
	peer BLOB PRIMARY KEY REFERENCES peers(peer_pubkey),
	addr BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS anchors (
	peer BLOB PRIMARY KEY REFERENCES peers(peer_pubkey),
	txid BLOB NOT NULL,
	idx INTEGER NOT NULL,
	amount INTEGER NOT NULL,
	ok_depth INTEGER NOT NULL,
	min_depth INTEGER NOT NULL,
	ours INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS their_visible_state (
	peer BLOB PRIMARY KEY REFERENCES peers(peer_pubkey),
	offered_anchor INTEGER NOT NULL,
	commitkey BLOB NOT NULL,
	finalkey BLOB NOT NULL,
	locktime INTEGER NOT NULL,
	mindepth INTEGER NOT NULL,
	commit_fee_rate INTEGER NOT NULL,
	next_revocation_hash BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS commit_info (
	peer BLOB NOT NULL REFERENCES peers(peer_pubkey),
	side TEXT NOT NULL CHECK (side IN ('OURS', 'THEIRS')),
	commit_num INTEGER NOT NULL,
	revocation_hash BLOB NOT NULL,
	xmit_order INTEGER NOT NULL,
	sig BLOB,
	prev_revocation_hash BLOB,
	anchor_satoshis INTEGER NOT NULL,
	fee_rate INTEGER NOT NULL,
	PRIMARY KEY (peer, side)
);

CREATE TABLE IF NOT EXISTS htlcs (
	peer BLOB NOT NULL REFERENCES peers(peer_pubkey),
	id INTEGER NOT NULL,
	owner TEXT NOT NULL CHECK (owner IN ('OURS', 'THEIRS')),
	state TEXT NOT NULL,
	msatoshis INTEGER NOT NULL,
	expiry INTEGER NOT NULL,
	rhash BLOB NOT NULL,
	r BLOB,
	routing BLOB,
	src_peer BLOB,
	src_id INTEGER,
	PRIMARY KEY (peer, owner, id)
);

CREATE TABLE IF NOT EXISTS shachain (
	peer BLOB PRIMARY KEY REFERENCES peers(peer_pubkey),
	shachain BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS their_commitments (
	peer BLOB NOT NULL REFERENCES peers(peer_pubkey),
	txid BLOB NOT NULL,
	commit_num INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS closing (
	peer BLOB PRIMARY KEY REFERENCES peers(peer_pubkey),
	our_fee INTEGER NOT NULL,
	their_fee INTEGER NOT NULL,
	their_sig BLOB,
	our_script BLOB,
	their_script BLOB,
	shutdown_order INTEGER NOT NULL,
	closing_order INTEGER NOT NULL,
	sigs_in INTEGER NOT NULL
);
`
