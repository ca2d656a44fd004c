package rafthttp_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/s-rishu/raftqueue"
	"github.com/s-rishu/raftqueue/http"
)

// fakeNode is a hand-rolled stand-in for a *raft.Server: every method
// returns a canned value so the HTTP plumbing can be exercised without a
// running role loop.
type fakeNode struct {
	aer      raft.AppendEntriesResponse
	rvr      raft.RequestVoteResponse
	cr       raft.ClientResponse
	state    []string
	log      []raft.LogEntry
	leaderId uint64
	known    bool
	term     uint64
	role     string

	electionMin, electionMax time.Duration
	heartbeat                time.Duration
}

func (n *fakeNode) AppendEntries(raft.AppendEntries) raft.AppendEntriesResponse { return n.aer }
func (n *fakeNode) RequestVote(raft.RequestVote) raft.RequestVoteResponse      { return n.rvr }
func (n *fakeNode) SubmitClientRequest(raft.ClientRequest) raft.ClientResponse { return n.cr }
func (n *fakeNode) SendState() []string                                       { return n.state }
func (n *fakeNode) SendLog() []raft.LogEntry                                  { return n.log }
func (n *fakeNode) WhoIsLeader() (uint64, bool, uint64)                       { return n.leaderId, n.known, n.term }
func (n *fakeNode) CurrentProcessType() string                                { return n.role }
func (n *fakeNode) SetElectionTimeout(min, max time.Duration) {
	n.electionMin, n.electionMax = min, max
}
func (n *fakeNode) SetHeartbeatTimeout(d time.Duration) { n.heartbeat = d }

func newTestServer(t *testing.T, node *fakeNode) *httptest.Server {
	t.Helper()
	s := rafthttp.NewServer(7, node, zap.NewNop())
	r := mux.NewRouter()
	s.Install(r)
	return httptest.NewServer(r)
}

func TestHandleId(t *testing.T) {
	srv := newTestServer(t, &fakeNode{})
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + rafthttp.IdPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var id uint64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&id))
	require.Equal(t, uint64(7), id)
}

func TestHandleAppendEntries(t *testing.T) {
	want := raft.AppendEntriesResponse{Term: 3, Success: true}
	srv := newTestServer(t, &fakeNode{aer: want})
	defer srv.Close()

	client := rafthttp.NewClient(1, srv.URL, 0)
	got := client.AppendEntries(raft.AppendEntries{Term: 3})
	require.Equal(t, want.Term, got.Term)
	require.Equal(t, want.Success, got.Success)
}

func TestHandleRequestVote(t *testing.T) {
	want := raft.RequestVoteResponse{Term: 5, VoteGranted: true}
	srv := newTestServer(t, &fakeNode{rvr: want})
	defer srv.Close()

	client := rafthttp.NewClient(1, srv.URL, 0)
	got := client.RequestVote(raft.RequestVote{Term: 5})
	require.Equal(t, want, got)
}

func TestHandleClientRequest(t *testing.T) {
	want := raft.ClientResponse{Kind: raft.RespRedirect, LeaderId: 9, HasLeader: true}
	srv := newTestServer(t, &fakeNode{cr: want})
	defer srv.Close()

	client := rafthttp.NewClient(1, srv.URL, 0)
	got := client.SubmitClientRequest(raft.ClientRequest{Kind: raft.ReqEnqueue, Value: "x"})
	require.Equal(t, want, got)
}

func TestHandleStateAndLog(t *testing.T) {
	node := &fakeNode{
		state: []string{"a", "b"},
		log:   []raft.LogEntry{{Index: 1, Term: 1, Operation: raft.OpEnqueue, Argument: "a"}},
	}
	srv := newTestServer(t, node)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + rafthttp.StatePath)
	require.NoError(t, err)
	var state []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()
	require.Equal(t, node.state, state)

	resp, err = srv.Client().Get(srv.URL + rafthttp.LogPath)
	require.NoError(t, err)
	var entries []raft.LogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()
	require.Equal(t, node.log, entries)
}

func TestHandleWhoIsLeader(t *testing.T) {
	node := &fakeNode{leaderId: 2, known: true, term: 4}
	srv := newTestServer(t, node)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + rafthttp.WhoIsLeaderPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		LeaderId uint64 `json:"leader_id"`
		Known    bool   `json:"known"`
		Term     uint64 `json:"term"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, node.leaderId, out.LeaderId)
	require.Equal(t, node.known, out.Known)
	require.Equal(t, node.term, out.Term)
}

func TestHandleProcessType(t *testing.T) {
	srv := newTestServer(t, &fakeNode{role: raft.Leader})
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + rafthttp.CurrentProcessTypePath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var role string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&role))
	require.Equal(t, raft.Leader, role)
}

func TestHandleSetElectionTimeout(t *testing.T) {
	node := &fakeNode{}
	srv := newTestServer(t, node)
	defer srv.Close()

	client := rafthttp.NewClient(1, srv.URL, 0)
	require.NoError(t, client.SetElectionTimeout(150*time.Millisecond, 300*time.Millisecond))
	require.Equal(t, 150*time.Millisecond, node.electionMin)
	require.Equal(t, 300*time.Millisecond, node.electionMax)
}

func TestHandleSetHeartbeatTimeout(t *testing.T) {
	node := &fakeNode{}
	srv := newTestServer(t, node)
	defer srv.Close()

	client := rafthttp.NewClient(1, srv.URL, 0)
	require.NoError(t, client.SetHeartbeatTimeout(20*time.Millisecond))
	require.Equal(t, 20*time.Millisecond, node.heartbeat)
}
