package raft

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metric collectors, registered once at package init and
// shared across every Server in the process, labeled by node id. This
// mirrors how the pack's raft-adjacent services (ChuLiYu-raft-recovery,
// cuemby-warren) wire prometheus/client_golang: a handful of promauto
// vectors rather than a per-instance registry, so construction in tests
// (many short-lived *Server values) never triggers a duplicate-collector
// panic.
var (
	metricTerm = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "raftqueue",
		Name:      "current_term",
		Help:      "Current Raft term, as last observed by this node.",
	}, []string{"node"})

	metricRole = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "raftqueue",
		Name:      "role",
		Help:      "Current role: 0=Follower, 1=Candidate, 2=Leader.",
	}, []string{"node"})

	metricCommitIndex = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "raftqueue",
		Name:      "commit_index",
		Help:      "Highest log index known to be committed.",
	}, []string{"node"})

	metricQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "raftqueue",
		Name:      "queue_depth",
		Help:      "Number of items currently in the applied FIFO queue.",
	}, []string{"node"})

	metricAppendEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raftqueue",
		Name:      "append_entries_total",
		Help:      "AppendEntries RPCs handled, by outcome.",
	}, []string{"node", "success"})

	metricRequestVoteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raftqueue",
		Name:      "request_vote_total",
		Help:      "RequestVote RPCs handled, by outcome.",
	}, []string{"node", "granted"})

	metricClientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raftqueue",
		Name:      "client_requests_total",
		Help:      "Client operations handled, by kind and response.",
	}, []string{"node", "kind", "response"})
)

func roleGaugeValue(role string) float64 {
	switch role {
	case Follower:
		return 0
	case Candidate:
		return 1
	case Leader:
		return 2
	default:
		return -1
	}
}

// nodeLabel returns the label value metrics use to identify this node.
func nodeLabel(id uint64) string {
	return strconv.FormatUint(id, 10)
}
