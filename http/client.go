package rafthttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/s-rishu/raftqueue"
)

// Client is a raft.Peer implementation that forwards RPCs and client
// requests to a remote node's rafthttp.Server over HTTP. It holds no
// protocol state of its own. A failed round trip (network error, bad
// status) is not a protocol signal the engine understands, so it is
// folded into the same shape a legitimate rejection would take: a
// negative AppendEntries/RequestVote response, or an unknown-leader
// Redirect for client requests. The engine's contract surfaces nothing to
// a client except via Redirect or the eventual applied result; the
// deadline on httpClient is where transport-level timeout behavior lives,
// kept separate from that boundary.
type Client struct {
	id         uint64
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client addressing the node with the given id at
// baseURL (e.g. "http://10.0.0.2:8080"), using timeout as the per-request
// deadline.
func NewClient(id uint64, baseURL string, timeout time.Duration) *Client {
	return &Client{
		id:      id,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Id() uint64 { return c.id }

func (c *Client) AppendEntries(ae raft.AppendEntries) raft.AppendEntriesResponse {
	var resp raft.AppendEntriesResponse
	if err := c.post(AppendEntriesPath, ae, &resp); err != nil {
		return raft.AppendEntriesResponse{Success: false}
	}
	return resp
}

func (c *Client) RequestVote(rv raft.RequestVote) raft.RequestVoteResponse {
	var resp raft.RequestVoteResponse
	if err := c.post(RequestVotePath, rv, &resp); err != nil {
		return raft.RequestVoteResponse{VoteGranted: false}
	}
	return resp
}

func (c *Client) SubmitClientRequest(req raft.ClientRequest) raft.ClientResponse {
	var resp raft.ClientResponse
	if err := c.post(ClientRequestPath, req, &resp); err != nil {
		return raft.ClientResponse{Kind: raft.RespRedirect, HasLeader: false}
	}
	return resp
}

// SetElectionTimeout pushes a new election timeout range to the remote
// node. It is an administrative call, not part of the Raft RPC contract,
// so unlike AppendEntries/RequestVote it reports failure rather than
// degrading into a protocol-shaped response.
func (c *Client) SetElectionTimeout(min, max time.Duration) error {
	return c.post(SetElectionTimeoutPath, electionTimeoutRequest{
		MinMs: uint64(min / time.Millisecond),
		MaxMs: uint64(max / time.Millisecond),
	}, &struct{}{})
}

// SetHeartbeatTimeout pushes a new heartbeat interval to the remote node.
func (c *Client) SetHeartbeatTimeout(d time.Duration) error {
	return c.post(SetHeartbeatTimeoutPath, heartbeatTimeoutRequest{
		Ms: uint64(d / time.Millisecond),
	}, &struct{}{})
}

func (c *Client) post(path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "raft: unexpected HTTP status " + strconv.Itoa(e.code)
}
