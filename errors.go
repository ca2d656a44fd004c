package raft

import "errors"

// Sentinel errors used internally by Server to classify why a client call
// ended up redirected, or why an RPC was rejected or a peer fell behind.
// None of these cross the ClientResponse boundary as Go errors (the client
// protocol only ever sees Ok/Empty/Value/Redirect); they're attached to
// debug/info log lines at the point each condition is detected, and
// ErrTimeout additionally drives the client-request timeout in
// leaderSelect. Kept as flat sentinels rather than a custom error-code
// hierarchy, since these are protocol-level signals resolved by Raft's own
// mechanisms, not conditions a caller needs to inspect deeply.
var (
	// ErrNotLeader marks a SubmitClientRequest redirect issued because this
	// node isn't the leader.
	ErrNotLeader = errors.New("raft: not the leader")

	// ErrDeposed marks a leader discovering, via an AppendEntriesResponse,
	// that a peer is on a higher term, and stepping down before the
	// client requests it was serving could be committed.
	ErrDeposed = errors.New("raft: deposed during replication")

	// ErrAppendEntriesRejected marks a single peer's AppendEntries RPC
	// failing its consistency check; the leader backs off that peer's
	// nextIndex and retries on the next round.
	ErrAppendEntriesRejected = errors.New("raft: AppendEntries RPC rejected")

	// ErrTimeout marks a client request whose entry hasn't committed
	// before one election timeout elapses; the pending caller is
	// redirected rather than left blocked indefinitely.
	ErrTimeout = errors.New("raft: command timed out waiting for quorum")

	// ErrStaleTerm marks an RPC carrying a term below current_term; the
	// caller replies false/denied without mutating local state.
	ErrStaleTerm = errors.New("raft: stale term")
)
