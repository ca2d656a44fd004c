package raft_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	raft "github.com/s-rishu/raftqueue"
)

func testConfig(id uint64, peerIds []uint64, min, max, heartbeat time.Duration) raft.NodeConfig {
	peers := make([]raft.PeerConfig, 0, len(peerIds))
	for _, pid := range peerIds {
		peers = append(peers, raft.PeerConfig{Id: pid})
	}
	return raft.NodeConfig{
		Id:                   id,
		Peers:                peers,
		MinElectionTimeoutMs: uint64(min / time.Millisecond),
		MaxElectionTimeoutMs: uint64(max / time.Millisecond),
		HeartbeatTimeoutMs:   uint64(heartbeat / time.Millisecond),
	}
}

func awaitState(t *testing.T, s *raft.Server, want string, timeout time.Duration) {
	t.Helper()
	cutoff := time.Now().Add(timeout)
	backoff := 5 * time.Millisecond
	for {
		if s.State() == want {
			return
		}
		if time.Now().After(cutoff) {
			t.Fatalf("timed out waiting for state %s, still %s", want, s.State())
		}
		time.Sleep(backoff)
	}
}

func TestFollowerToCandidate(t *testing.T) {
	cfg := testConfig(1, []uint64{1, 2, 3}, 25*time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)
	server := raft.NewServer(cfg, zap.NewNop())
	server.SetPeers(raft.MakePeers(
		raft.NewLocalPeer(server),
		nonresponsivePeer(2),
		nonresponsivePeer(3),
	))
	require.Equal(t, raft.Follower, server.State())

	server.Start()
	defer server.Stop()

	awaitState(t, server, raft.Candidate, 500*time.Millisecond)
}

func TestCandidateToLeader(t *testing.T) {
	cfg := testConfig(1, []uint64{1, 2, 3}, 25*time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)
	server := raft.NewServer(cfg, zap.NewNop())
	server.SetPeers(raft.MakePeers(
		raft.NewLocalPeer(server),
		approvingPeer(2),
		nonresponsivePeer(3),
	))

	server.Start()
	defer server.Stop()

	awaitState(t, server, raft.Leader, 500*time.Millisecond)
}

func TestFailedElection(t *testing.T) {
	cfg := testConfig(1, []uint64{1, 2, 3}, 25*time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)
	server := raft.NewServer(cfg, zap.NewNop())
	server.SetPeers(raft.MakePeers(
		raft.NewLocalPeer(server),
		disapprovingPeer(2),
		nonresponsivePeer(3),
	))

	server.Start()
	defer server.Stop()

	time.Sleep(200 * time.Millisecond)
	require.NotEqual(t, raft.Leader, server.State())
}

// buildCluster wires n LocalPeer-connected nodes, all sharing the
// same timing config, and starts them. The caller must stop each server.
func buildCluster(t *testing.T, n int, min, max, heartbeat time.Duration) []*raft.Server {
	t.Helper()
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}

	servers := make([]*raft.Server, n)
	for i, id := range ids {
		servers[i] = raft.NewServer(testConfig(id, ids, min, max, heartbeat), zap.NewNop())
	}

	peers := raft.Peers{}
	for _, s := range servers {
		peers[s.Id] = raft.NewLocalPeer(s)
	}
	for _, s := range servers {
		s.SetPeers(peers)
	}
	for _, s := range servers {
		s.Start()
	}
	return servers
}

func stopAll(servers []*raft.Server) {
	for _, s := range servers {
		s.Stop()
	}
}

func findLeader(servers []*raft.Server, timeout time.Duration) *raft.Server {
	cutoff := time.Now().Add(timeout)
	for time.Now().Before(cutoff) {
		for _, s := range servers {
			if s.State() == raft.Leader {
				return s
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// TestSimpleConsensus covers S2: with a leader elected, an Enqueue
// eventually replicates to every node's queue.
func TestSimpleConsensus(t *testing.T) {
	servers := buildCluster(t, 3, 25*time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)
	defer stopAll(servers)

	leader := findLeader(servers, time.Second)
	require.NotNil(t, leader, "no leader elected")

	resp := leader.SubmitClientRequest(raft.ClientRequest{Kind: raft.ReqEnqueue, Value: "x"})
	require.Equal(t, raft.RespOk, resp.Kind)

	cutoff := time.Now().Add(time.Second)
	for {
		allMatch := true
		for _, s := range servers {
			if got := s.SendState(); len(got) != 1 || got[0] != "x" {
				allMatch = false
			}
		}
		if allMatch {
			return
		}
		if time.Now().After(cutoff) {
			t.Fatalf("queues did not converge to [x]")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestDequeueEmptyThenFilled covers S3.
func TestDequeueEmptyThenFilled(t *testing.T) {
	servers := buildCluster(t, 3, 25*time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)
	defer stopAll(servers)

	leader := findLeader(servers, time.Second)
	require.NotNil(t, leader)

	resp := leader.SubmitClientRequest(raft.ClientRequest{Kind: raft.ReqDequeue})
	require.Equal(t, raft.RespEmpty, resp.Kind)

	resp = leader.SubmitClientRequest(raft.ClientRequest{Kind: raft.ReqEnqueue, Value: "7"})
	require.Equal(t, raft.RespOk, resp.Kind)

	resp = leader.SubmitClientRequest(raft.ClientRequest{Kind: raft.ReqDequeue})
	require.Equal(t, raft.RespValue, resp.Kind)
	require.Equal(t, "7", resp.Value)

	cutoff := time.Now().Add(time.Second)
	for {
		allEmpty := true
		for _, s := range servers {
			if len(s.SendState()) != 0 {
				allEmpty = false
			}
		}
		if allEmpty {
			return
		}
		if time.Now().After(cutoff) {
			t.Fatalf("queues did not converge to empty")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestRedirectFromNonLeader confirms a follower never serves a client
// request itself.
func TestRedirectFromNonLeader(t *testing.T) {
	servers := buildCluster(t, 3, 25*time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)
	defer stopAll(servers)

	leader := findLeader(servers, time.Second)
	require.NotNil(t, leader)

	var follower *raft.Server
	for _, s := range servers {
		if s != leader {
			follower = s
			break
		}
	}
	resp := follower.SubmitClientRequest(raft.ClientRequest{Kind: raft.ReqNop})
	require.Equal(t, raft.RespRedirect, resp.Kind)
}

func TestOrdering_3Servers(t *testing.T) {
	testOrderTimeout(t, 3, 5*time.Second)
}

func TestOrdering_5Servers(t *testing.T) {
	testOrderTimeout(t, 5, 5*time.Second)
}

func testOrderTimeout(t *testing.T, n int, timeout time.Duration) {
	done := make(chan struct{})
	go func() { testOrder(t, n); close(done) }()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timeout (infinite loop?)")
	}
}

// testOrder submits a random sequence of enqueues through random nodes
// and confirms every node's applied queue ends up in the same order.
func testOrder(t *testing.T, n int) {
	servers := buildCluster(t, n, 40*time.Millisecond, 80*time.Millisecond, 8*time.Millisecond)
	defer stopAll(servers)

	values := rand.Perm(8 + rand.Intn(8))
	for i, v := range values {
		target := servers[rand.Intn(n)]
		value := rune('a' + v%26)
		var resp raft.ClientResponse
		cutoff := time.Now().Add(2 * time.Second)
		for {
			resp = target.SubmitClientRequest(raft.ClientRequest{
				Kind:  raft.ReqEnqueue,
				Value: string(value),
			})
			if resp.Kind != raft.RespRedirect {
				break
			}
			if resp.HasLeader {
				for _, s := range servers {
					if s.Id == resp.LeaderId {
						target = s
						break
					}
				}
			} else {
				target = servers[rand.Intn(n)]
			}
			if time.Now().After(cutoff) {
				t.Fatalf("command %d/%d: never found a leader", i+1, len(values))
			}
		}
	}

	cutoff := time.Now().Add(2 * time.Second)
	for {
		allMatch := true
		var want []string
		for i, s := range servers {
			got := s.SendState()
			if i == 0 {
				want = got
				if len(want) != len(values) {
					allMatch = false
				}
				continue
			}
			if len(got) != len(want) {
				allMatch = false
				continue
			}
			for j := range got {
				if got[j] != want[j] {
					t.Fatalf("server %d diverged from server 1 at position %d: %v vs %v", i+1, j, got, want)
				}
			}
		}
		if allMatch {
			return
		}
		if time.Now().After(cutoff) {
			t.Fatalf("queues did not fully replicate")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type nonresponsivePeer uint64

func (p nonresponsivePeer) Id() uint64 { return uint64(p) }
func (p nonresponsivePeer) AppendEntries(raft.AppendEntries) raft.AppendEntriesResponse {
	return raft.AppendEntriesResponse{}
}
func (p nonresponsivePeer) RequestVote(raft.RequestVote) raft.RequestVoteResponse {
	return raft.RequestVoteResponse{}
}
func (p nonresponsivePeer) SubmitClientRequest(raft.ClientRequest) raft.ClientResponse {
	return raft.ClientResponse{Kind: raft.RespRedirect}
}

type approvingPeer uint64

func (p approvingPeer) Id() uint64 { return uint64(p) }
func (p approvingPeer) AppendEntries(raft.AppendEntries) raft.AppendEntriesResponse {
	return raft.AppendEntriesResponse{}
}
func (p approvingPeer) RequestVote(rv raft.RequestVote) raft.RequestVoteResponse {
	return raft.RequestVoteResponse{Term: rv.Term, VoteGranted: true}
}
func (p approvingPeer) SubmitClientRequest(raft.ClientRequest) raft.ClientResponse {
	return raft.ClientResponse{Kind: raft.RespRedirect}
}

type disapprovingPeer uint64

func (p disapprovingPeer) Id() uint64 { return uint64(p) }
func (p disapprovingPeer) AppendEntries(raft.AppendEntries) raft.AppendEntriesResponse {
	return raft.AppendEntriesResponse{}
}
func (p disapprovingPeer) RequestVote(rv raft.RequestVote) raft.RequestVoteResponse {
	return raft.RequestVoteResponse{Term: rv.Term, VoteGranted: false}
}
func (p disapprovingPeer) SubmitClientRequest(raft.ClientRequest) raft.ClientResponse {
	return raft.ClientResponse{Kind: raft.RespRedirect}
}
