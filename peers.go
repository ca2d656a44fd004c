package raft

// Peer is the point-to-point transport contract a role loop needs from
// every other cluster member, plus the client-facing entrypoint.
// Implementations may be local (direct method calls onto another
// in-process *Server, for tests) or remote (the http subpackage's wire
// transport).
type Peer interface {
	Id() uint64
	AppendEntries(AppendEntries) AppendEntriesResponse
	RequestVote(RequestVote) RequestVoteResponse
	SubmitClientRequest(ClientRequest) ClientResponse
}

// Peers is the fixed view of the cluster, keyed by node id. It must
// include an entry representing the local node so Quorum is computed over
// the full cluster size.
type Peers map[uint64]Peer

// MakePeers builds a Peers map from a list, keyed by each Peer's Id().
func MakePeers(peers ...Peer) Peers {
	p := Peers{}
	for _, peer := range peers {
		p[peer.Id()] = peer
	}
	return p
}

// Count returns the size of the cluster view.
func (p Peers) Count() int {
	return len(p)
}

// Quorum returns the strict majority size: floor(|view|/2) + 1.
func (p Peers) Quorum() int {
	return len(p)/2 + 1
}

// Except returns every peer other than id, for broadcast fan-out.
func (p Peers) Except(id uint64) Peers {
	out := Peers{}
	for peerId, peer := range p {
		if peerId != id {
			out[peerId] = peer
		}
	}
	return out
}

// requestVoteCanceler lets a candidate stop waiting on outstanding
// RequestVote RPCs once the election has concluded one way or another.
type requestVoteCanceler struct {
	cancel chan struct{}
}

func (c requestVoteCanceler) Cancel() {
	close(c.cancel)
}

// BroadcastRequestVote sends rv to every peer in p concurrently and
// streams responses back on the returned channel as they arrive. The
// canceler's Cancel stops any further sends to the channel; callers
// should always defer it once done collecting votes.
func (p Peers) BroadcastRequestVote(rv RequestVote) (<-chan RequestVoteResponse, requestVoteCanceler) {
	out := make(chan RequestVoteResponse, len(p))
	canceler := requestVoteCanceler{cancel: make(chan struct{})}
	for _, peer := range p {
		go func(peer Peer) {
			resp := peer.RequestVote(rv)
			select {
			case out <- resp:
			case <-canceler.cancel:
			}
		}(peer)
	}
	return out, canceler
}

// LocalPeer adapts an in-process *Server to the Peer interface, for
// single-process tests and simulations that wire multiple Servers
// together directly without going over the http transport.
type LocalPeer struct {
	server *Server
}

// NewLocalPeer wraps s as a Peer.
func NewLocalPeer(s *Server) LocalPeer {
	return LocalPeer{server: s}
}

func (p LocalPeer) Id() uint64 { return p.server.Id }

func (p LocalPeer) AppendEntries(ae AppendEntries) AppendEntriesResponse {
	return p.server.AppendEntries(ae)
}

func (p LocalPeer) RequestVote(rv RequestVote) RequestVoteResponse {
	return p.server.RequestVote(rv)
}

func (p LocalPeer) SubmitClientRequest(req ClientRequest) ClientResponse {
	return p.server.SubmitClientRequest(req)
}
