// Package raftclient is the redirect-following client library: it sends
// an operation to its current best guess of the leader and, on a
// Redirect response, retries against the named node, looping indefinitely
// since the core engine defines no retry budget of its own.
package raftclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/s-rishu/raftqueue"
)

// Node is a single addressable cluster member from the client's point of
// view: anything that can accept a raft.ClientRequest and return a
// raft.ClientResponse. *rafthttp.Client satisfies this; so does
// raft.LocalPeer, for in-process tests.
type Node interface {
	SubmitClientRequest(raft.ClientRequest) raft.ClientResponse
}

// Client tracks a best-guess leader across calls and follows Redirects.
// It is safe for concurrent use; the id used to tag log correlation is
// generated once per Client, not per call.
type Client struct {
	mu     sync.Mutex
	nodes  map[uint64]Node
	leader uint64
	known  bool
	id     string
	logger *zap.Logger
}

// New returns a Client addressing the given cluster view. initialLeader
// is an optional starting guess (0/false if unknown); the client will
// correct itself on the first Redirect.
func New(nodes map[uint64]Node, initialLeader uint64, knownInitial bool, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Client{
		nodes:  nodes,
		leader: initialLeader,
		known:  knownInitial,
		id:     id,
		logger: logger.With(zap.String("client_id", id)),
	}
}

// Enqueue appends v to the replicated queue and waits for it to commit.
func (c *Client) Enqueue(ctx context.Context, v string) error {
	_, err := c.submit(ctx, raft.ClientRequest{Kind: raft.ReqEnqueue, Value: v})
	return err
}

// Dequeue pops the head of the replicated queue. ok is false if the
// queue was empty at the time of application.
func (c *Client) Dequeue(ctx context.Context) (value string, ok bool, err error) {
	resp, err := c.submit(ctx, raft.ClientRequest{Kind: raft.ReqDequeue})
	if err != nil {
		return "", false, err
	}
	return resp.Value, resp.Kind == raft.RespValue, nil
}

// Nop submits a no-op, useful to confirm a quorum round-trip without
// mutating the queue.
func (c *Client) Nop(ctx context.Context) error {
	_, err := c.submit(ctx, raft.ClientRequest{Kind: raft.ReqNop})
	return err
}

// submit sends req to the current best-guess leader, following Redirects
// until an Ok/Empty/Value reply arrives or ctx is done. There is no
// retry cap beyond ctx: the protocol guarantees a leader eventually
// stabilizes given the election timing randomization.
func (c *Client) submit(ctx context.Context, req raft.ClientRequest) (raft.ClientResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return raft.ClientResponse{}, ctx.Err()
		default:
		}

		node, err := c.target()
		if err != nil {
			c.logger.Debug("no leader hint, probing arbitrarily")
		}

		resp := node.SubmitClientRequest(req)
		if resp.Kind != raft.RespRedirect {
			return resp, nil
		}

		c.logger.Debug("redirected",
			zap.Uint64("leader_id", resp.LeaderId), zap.Bool("has_leader", resp.HasLeader))
		c.follow(resp)
	}
}

// target returns the node this client will try next: its known leader,
// or an arbitrary member of the view if it has no leader hint yet.
func (c *Client) target() (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.known {
		if node, ok := c.nodes[c.leader]; ok {
			return node, nil
		}
	}
	for id, node := range c.nodes {
		c.leader = id
		return node, fmt.Errorf("no leader hint, trying %d", id)
	}
	panic("raftclient: empty cluster view")
}

// follow updates the client's leader guess from a Redirect response.
func (c *Client) follow(resp raft.ClientResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resp.HasLeader {
		c.leader = resp.LeaderId
		c.known = true
		return
	}
	c.known = false
}
