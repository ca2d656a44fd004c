package raft

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Roles a Server can inhabit. Exactly one at any moment.
const (
	Follower  = "Follower"
	Candidate = "Candidate"
	Leader    = "Leader"
)

// roleValue lets State()/CurrentProcessType be read from any goroutine
// (tests, HTTP handlers, the admin surface) while only the loop goroutine
// ever writes it.
type roleValue struct {
	sync.RWMutex
	value string
}

func (r *roleValue) Get() string {
	r.RLock()
	defer r.RUnlock()
	return r.value
}

func (r *roleValue) Set(value string) {
	r.Lock()
	defer r.Unlock()
	r.value = value
}

type clientTuple struct {
	Request  ClientRequest
	Response chan ClientResponse
}

type adminTuple struct {
	fn   func(s *Server)
	done chan struct{}
}

// Server is the agent that runs the Raft protocol and the replicated
// queue for one cluster member. Every field below is owned exclusively
// by the goroutine running loop(); everything else interacts with the
// node only through the channels, preserving single-actor ownership of
// all mutable state.
type Server struct {
	Id   uint64
	role *roleValue

	currentTerm   uint64
	votedFor      uint64 // 0 means "no vote cast this term"
	log           *Log
	commitIndex   uint64
	lastApplied   uint64
	currentLeader uint64
	hasLeader     bool

	nextIndex  map[uint64]uint64
	matchIndex map[uint64]uint64

	queue   *Queue
	pending map[uint64]chan ClientResponse // log index -> reply channel, leader-only

	peers Peers

	minElectionTimeout time.Duration
	maxElectionTimeout time.Duration
	heartbeatTimeout   time.Duration
	electionTimer      *timerService
	heartbeatTimer     *timerService

	appendEntriesChan chan appendEntriesTuple
	requestVoteChan   chan requestVoteTuple
	clientChan        chan clientTuple
	adminChan         chan adminTuple
	clientTimeoutChan chan uint64 // log index whose client call timed out waiting for quorum
	stopChan          chan struct{}
	stopOnce          sync.Once

	logger *zap.Logger
}

// NewServer returns an initialized, un-started Server. SetPeers must be
// called before Start, since the cluster view isn't known until the
// caller has finished constructing every peer, commonly including a
// LocalPeer wrapping this very Server.
func NewServer(cfg NodeConfig, logger *zap.Logger) *Server {
	if cfg.Id == 0 {
		panic("raft: node id must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Id:                 cfg.Id,
		role:               &roleValue{value: Follower}, // servers start up as followers
		currentTerm:        1,
		log:                NewLog(),
		queue:              NewQueue(),
		pending:            map[uint64]chan ClientResponse{},
		nextIndex:          map[uint64]uint64{},
		matchIndex:         map[uint64]uint64{},
		minElectionTimeout: cfg.MinElectionTimeout(),
		maxElectionTimeout: cfg.MaxElectionTimeout(),
		heartbeatTimeout:   cfg.HeartbeatTimeout(),
		electionTimer:      newTimerService(),
		heartbeatTimer:     newTimerService(),
		appendEntriesChan:  make(chan appendEntriesTuple),
		requestVoteChan:    make(chan requestVoteTuple),
		clientChan:         make(chan clientTuple),
		adminChan:          make(chan adminTuple),
		clientTimeoutChan:  make(chan uint64),
		stopChan:           make(chan struct{}),
		logger:             logger.With(zap.Uint64("id", cfg.Id)),
	}
	if cfg.HasInitialLeader {
		s.currentLeader = cfg.InitialLeader
		s.hasLeader = true
	}
	metricTerm.WithLabelValues(nodeLabel(s.Id)).Set(float64(s.currentTerm))
	metricRole.WithLabelValues(nodeLabel(s.Id)).Set(roleGaugeValue(Follower))
	return s
}

// SetPeers injects the cluster view. It must include a Peer representing
// this Server so Quorum is computed over the full cluster size.
func (s *Server) SetPeers(p Peers) {
	s.peers = p
}

// State returns the current role: Follower, Candidate, or Leader.
func (s *Server) State() string {
	return s.role.Get()
}

// Start runs the role loop in its own goroutine.
func (s *Server) Start() {
	s.resetElectionTimer()
	go s.loop()
}

// Stop halts the role loop. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// AppendEntries processes the given RPC and returns the response. It is
// exported so Peer implementations over arbitrary transports (e.g. the
// http subpackage) can forward inbound RPCs to this node.
func (s *Server) AppendEntries(ae AppendEntries) AppendEntriesResponse {
	t := appendEntriesTuple{Request: ae, Response: make(chan AppendEntriesResponse, 1)}
	select {
	case s.appendEntriesChan <- t:
	case <-s.stopChan:
		return AppendEntriesResponse{Term: ae.Term, Success: false, reason: "node stopped"}
	}
	return <-t.Response
}

// RequestVote processes the given RPC and returns the response.
func (s *Server) RequestVote(rv RequestVote) RequestVoteResponse {
	t := requestVoteTuple{Request: rv, Response: make(chan RequestVoteResponse, 1)}
	select {
	case s.requestVoteChan <- t:
	case <-s.stopChan:
		return RequestVoteResponse{Term: rv.Term, VoteGranted: false, reason: "node stopped"}
	}
	return <-t.Response
}

// SubmitClientRequest pushes a client operation through the node. A
// non-leader replies immediately with a Redirect; a leader appends the
// entry and replies once it's been applied, which may span several
// heartbeat rounds while followers catch up, or may itself become a
// Redirect if leadership is lost before commit.
func (s *Server) SubmitClientRequest(req ClientRequest) ClientResponse {
	t := clientTuple{Request: req, Response: make(chan ClientResponse, 1)}
	select {
	case s.clientChan <- t:
	case <-s.stopChan:
		return redirectTo(0, false)
	}
	return <-t.Response
}

// --- administrative / debug queries, answered regardless of role ---

// SendState returns a snapshot of the applied queue.
func (s *Server) SendState() []string {
	var out []string
	s.runAdmin(func(s *Server) { out = s.queue.Snapshot() })
	return out
}

// SendLog returns a snapshot of the full replicated log.
func (s *Server) SendLog() []LogEntry {
	var out []LogEntry
	s.runAdmin(func(s *Server) { out = s.log.Snapshot() })
	return out
}

// WhoIsLeader returns this node's best guess of the current leader (or
// known=false if it has none) and the node's current term.
func (s *Server) WhoIsLeader() (leaderId uint64, known bool, term uint64) {
	s.runAdmin(func(s *Server) {
		leaderId, known, term = s.currentLeader, s.hasLeader, s.currentTerm
	})
	return
}

// CurrentProcessType returns the role tag: Follower, Candidate, or Leader.
func (s *Server) CurrentProcessType() string {
	return s.State()
}

// SetElectionTimeout adjusts the election timing window and, if this
// node isn't leader, immediately resets its election timer to draw from
// the new window.
func (s *Server) SetElectionTimeout(min, max time.Duration) {
	s.runAdmin(func(s *Server) {
		s.minElectionTimeout, s.maxElectionTimeout = min, max
		if s.role.Get() != Leader {
			s.resetElectionTimer()
		}
	})
}

// SetHeartbeatTimeout adjusts the heartbeat interval and, if this node is
// currently leader, resets the heartbeat timer to draw from it.
func (s *Server) SetHeartbeatTimeout(d time.Duration) {
	s.runAdmin(func(s *Server) {
		s.heartbeatTimeout = d
		if s.role.Get() == Leader {
			s.resetHeartbeatTimer()
		}
	})
}

func (s *Server) runAdmin(fn func(s *Server)) {
	t := adminTuple{fn: fn, done: make(chan struct{})}
	select {
	case s.adminChan <- t:
	case <-s.stopChan:
		return
	}
	select {
	case <-t.done:
	case <-s.stopChan:
	}
}

//                                  times out,
//                                 new election
//     |                             .-----.
//     |                             |     |
//     v         times out,          |     v     receives votes from
// +----------+  starts election  +-----------+  majority of servers  +--------+
// | Follower |------------------>| Candidate |---------------------->| Leader |
// +----------+                   +-----------+                       +--------+
//     ^ ^                              |                                 |
//     | |    discovers current leader  |                                 |
//     | |                 or new term  |                                 |
//     | '------------------------------'                                 |
//     |                                                                  |
//     |                               discovers server with higher term  |
//     '------------------------------------------------------------------'

func (s *Server) loop() {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}
		switch role := s.State(); role {
		case Follower:
			s.followerSelect()
		case Candidate:
			s.candidateSelect()
		case Leader:
			s.leaderSelect()
		default:
			panic(fmt.Sprintf("raft: unknown role %q", role))
		}
	}
}

func (s *Server) resetElectionTimer() uint64 {
	return s.electionTimer.Reset(electionTimeout(s.minElectionTimeout, s.maxElectionTimeout))
}

func (s *Server) resetHeartbeatTimer() uint64 {
	return s.heartbeatTimer.Reset(s.heartbeatTimeout)
}

func (s *Server) setRole(role string) {
	s.role.Set(role)
	metricRole.WithLabelValues(nodeLabel(s.Id)).Set(roleGaugeValue(role))
}

func (s *Server) setTerm(term uint64) {
	s.currentTerm = term
	metricTerm.WithLabelValues(nodeLabel(s.Id)).Set(float64(term))
}

// --- Follower ---

func (s *Server) followerSelect() {
	s.logger.Debug("entering follower loop", zap.Uint64("term", s.currentTerm))
	s.resetElectionTimer()

	for {
		select {
		case <-s.stopChan:
			return

		case t := <-s.clientChan:
			s.logger.Debug("redirecting client request", zap.Error(ErrNotLeader))
			t.Response <- redirectTo(s.currentLeader, s.hasLeader)

		case gen := <-s.electionTimer.C:
			if !s.electionTimer.Fired(gen) {
				continue
			}
			s.logger.Info("election timeout, becoming candidate", zap.Uint64("term", s.currentTerm))
			s.setTerm(s.currentTerm + 1)
			s.setRole(Candidate)
			return

		case t := <-s.appendEntriesChan:
			resp, err := s.processAppendEntries(t.Request)
			s.logAppendEntriesResponse(t.Request, resp, err)
			t.Response <- resp
			s.resetElectionTimer()

		case t := <-s.requestVoteChan:
			resp, err := s.processRequestVote(t.Request)
			s.logRequestVoteResponse(t.Request, resp, err)
			t.Response <- resp

		case t := <-s.adminChan:
			t.fn(s)
			close(t.done)
		}
	}
}

// --- Candidate ---

func (s *Server) candidateSelect() {
	s.votedFor = s.Id
	s.resetElectionTimer()

	others := s.peers.Except(s.Id)
	responses, canceler := others.BroadcastRequestVote(RequestVote{
		Term:         s.currentTerm,
		CandidateId:  s.Id,
		LastLogIndex: s.log.LastIndex(),
		LastLogTerm:  s.log.LastTerm(),
	})
	defer canceler.Cancel()

	votesReceived := 1 // we voted for ourselves
	votesRequired := s.peers.Quorum()
	s.logger.Info("election started", zap.Uint64("term", s.currentTerm), zap.Int("votes_required", votesRequired))

	if votesReceived >= votesRequired {
		s.logger.Info("single-node majority, becoming leader", zap.Uint64("term", s.currentTerm))
		s.setRole(Leader)
		return
	}

	for {
		select {
		case <-s.stopChan:
			return

		case t := <-s.clientChan:
			s.logger.Debug("redirecting client request", zap.Error(ErrNotLeader))
			t.Response <- redirectTo(0, false)

		case r := <-responses:
			if r.Term > s.currentTerm {
				s.logger.Info("discovered higher term via vote response, stepping down", zap.Uint64("term", r.Term))
				s.setTerm(r.Term)
				s.votedFor = 0
				s.setRole(Follower)
				return
			}
			if r.Term != s.currentTerm {
				continue
			}
			if r.VoteGranted {
				votesReceived++
			}
			if votesReceived >= votesRequired {
				s.logger.Info("won election", zap.Uint64("term", s.currentTerm), zap.Int("votes", votesReceived))
				s.setRole(Leader)
				return
			}

		case t := <-s.appendEntriesChan:
			priorTerm := s.currentTerm
			resp, err := s.processAppendEntries(t.Request)
			s.logAppendEntriesResponse(t.Request, resp, err)
			t.Response <- resp
			if t.Request.Term >= priorTerm {
				s.logger.Info("saw legitimate leader, stepping down to follower", zap.Uint64("term", t.Request.Term))
				s.setRole(Follower)
				return
			}

		case t := <-s.requestVoteChan:
			priorTerm := s.currentTerm
			resp, err := s.processRequestVote(t.Request)
			s.logRequestVoteResponse(t.Request, resp, err)
			t.Response <- resp
			if t.Request.Term > priorTerm {
				s.setRole(Follower)
				return
			}

		case gen := <-s.electionTimer.C:
			if !s.electionTimer.Fired(gen) {
				continue
			}
			s.logger.Info("election timed out with no winner, restarting", zap.Uint64("term", s.currentTerm))
			s.setTerm(s.currentTerm + 1)
			return // re-enter candidateSelect via loop()

		case t := <-s.adminChan:
			t.fn(s)
			close(t.done)
		}
	}
}

// --- Leader ---

func (s *Server) becomeLeader() {
	s.currentLeader = s.Id
	s.hasLeader = true
	next := s.log.LastIndex() + 1
	for id := range s.peers {
		s.nextIndex[id] = next
		s.matchIndex[id] = 0
	}
}

// replicationResult carries one peer's AppendEntries round trip back to
// the leader's single-threaded loop, so nextIndex, matchIndex, and
// commitIndex are only ever mutated by that one goroutine, rather than by
// concurrent per-peer goroutines mutating shared state directly.
type replicationResult struct {
	peerId   uint64
	lastSent uint64
	resp     AppendEntriesResponse
}

// buildAppendEntries constructs the request to bring peerId in sync,
// using the current (not yet mutated this round) nextIndex. It's
// idempotent and used for both heartbeats and replicating client
// commands.
func (s *Server) buildAppendEntries(peerId uint64) AppendEntries {
	prevIndex := s.nextIndex[peerId] - 1
	entries := s.log.SuffixFrom(s.nextIndex[peerId])
	return AppendEntries{
		Term:         s.currentTerm,
		LeaderId:     s.Id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  s.log.TermAt(prevIndex),
		Entries:      entries,
		CommitIndex:  s.commitIndex,
	}
}

// replicateToAll builds and sends an AppendEntries to every peer except
// self, concurrently, then applies every result serially back on the
// calling (loop) goroutine. Returns true if the leader must step down
// because a response carried a higher term.
func (s *Server) replicateToAll() (steppedDown bool) {
	recipients := s.peers.Except(s.Id)
	ids := make([]uint64, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}

	requests := make([]AppendEntries, len(ids))
	for i, id := range ids {
		requests[i] = s.buildAppendEntries(id)
	}

	results := make([]replicationResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		peer, req := recipients[id], requests[i]
		g.Go(func() error {
			resp := peer.AppendEntries(req)
			results[i] = replicationResult{
				peerId:   id,
				lastSent: req.PrevLogIndex + uint64(len(req.Entries)),
				resp:     resp,
			}
			return nil
		})
	}
	_ = g.Wait() // peer.AppendEntries never returns an error itself

	for _, r := range results {
		if s.applyReplicationResult(r) {
			steppedDown = true
		}
	}
	return steppedDown
}

// applyReplicationResult folds one peer's response into nextIndex,
// matchIndex, and (if warranted) commitIndex. Returns true if the result
// carries a higher term, meaning the leader must step down.
func (s *Server) applyReplicationResult(r replicationResult) (steppedDown bool) {
	if r.resp.Term > s.currentTerm {
		s.logger.Info("deposed by higher term in AppendEntriesResponse",
			zap.Uint64("peer", r.peerId), zap.Uint64("term", r.resp.Term), zap.Error(ErrDeposed))
		s.setTerm(r.resp.Term)
		s.votedFor = 0
		return true
	}

	if r.resp.Success {
		if r.lastSent > s.matchIndex[r.peerId] {
			s.matchIndex[r.peerId] = r.lastSent
		}
		s.nextIndex[r.peerId] = r.lastSent + 1
		s.advanceCommitIndex()
		return false
	}

	if s.nextIndex[r.peerId] > 1 {
		s.nextIndex[r.peerId]--
	}
	s.logger.Debug("AppendEntries rejected, backing off nextIndex",
		zap.Uint64("peer", r.peerId), zap.Uint64("next_index", s.nextIndex[r.peerId]), zap.Error(ErrAppendEntriesRejected))
	return false
}

// advanceCommitIndex scans for the largest N such that N > commitIndex,
// log[N].Term == currentTerm, and a strict majority of the cluster
// (counting self) has matchIndex >= N.
func (s *Server) advanceCommitIndex() {
	for n := s.log.LastIndex(); n > s.commitIndex; n-- {
		entry, ok := s.log.Get(n)
		if !ok || entry.Term != s.currentTerm {
			continue
		}
		have := 1 // self
		for id := range s.peers {
			if id == s.Id {
				continue
			}
			if s.matchIndex[id] >= n {
				have++
			}
		}
		if have >= s.peers.Quorum() {
			s.commitIndex = n
			metricCommitIndex.WithLabelValues(nodeLabel(s.Id)).Set(float64(n))
			s.applyCommitted()
			return
		}
	}
}

// applyCommitted runs the commit/apply pipeline: while lastApplied <
// commitIndex, apply the next entry in order. If this node holds a
// pending reply channel for that index, meaning it was the leader that
// appended it, the result is delivered to the requester; otherwise the
// entry is applied silently.
func (s *Server) applyCommitted() {
	for s.lastApplied < s.commitIndex {
		i := s.lastApplied + 1
		entry, ok := s.log.Get(i)
		if !ok {
			panic(fmt.Sprintf("raft: commit index %d advanced past end of log", i))
		}
		result := s.queue.Apply(entry)
		s.lastApplied = i
		metricQueueDepth.WithLabelValues(nodeLabel(s.Id)).Set(float64(len(s.queue.Snapshot())))

		if ch, ok := s.pending[i]; ok {
			resp := responseFor(result)
			ch <- resp
			close(ch)
			delete(s.pending, i)
			metricClientRequestsTotal.WithLabelValues(
				nodeLabel(s.Id), entry.Operation.String(), clientResponseKindLabel(resp.Kind),
			).Inc()
		}
	}
}

// deposeAndRedirectPending answers every still-outstanding client
// request with a Redirect, so a caller blocked in SubmitClientRequest
// never hangs once this node stops being leader for that entry.
func (s *Server) deposeAndRedirectPending() {
	if len(s.pending) > 0 {
		s.logger.Debug("redirecting pending client requests after losing leadership",
			zap.Int("count", len(s.pending)), zap.Error(ErrDeposed))
	}
	for i, ch := range s.pending {
		ch <- redirectTo(s.currentLeader, s.hasLeader)
		close(ch)
		delete(s.pending, i)
	}
}

func (s *Server) leaderSelect() {
	s.logger.Info("becoming leader", zap.Uint64("term", s.currentTerm))
	s.becomeLeader()
	defer s.deposeAndRedirectPending()

	if s.replicateToAll() { // immediate empty heartbeat, asserting authority
		s.setRole(Follower)
		return
	}
	s.resetHeartbeatTimer()

	for {
		select {
		case <-s.stopChan:
			return

		case t := <-s.clientChan:
			entry := LogEntry{
				Index:     s.log.LastIndex() + 1,
				Term:      s.currentTerm,
				Operation: opFor(t.Request.Kind),
				Argument:  t.Request.Value,
			}
			s.log.Append(entry)
			s.pending[entry.Index] = t.Response
			s.armClientTimeout(entry.Index)

			if s.replicateToAll() {
				s.setRole(Follower)
				return
			}

		case gen := <-s.heartbeatTimer.C:
			if !s.heartbeatTimer.Fired(gen) {
				continue
			}
			if s.replicateToAll() {
				s.setRole(Follower)
				return
			}
			s.resetHeartbeatTimer()

		case i := <-s.clientTimeoutChan:
			if ch, ok := s.pending[i]; ok {
				s.logger.Debug("client request timed out waiting for quorum",
					zap.Uint64("log_index", i), zap.Error(ErrTimeout))
				ch <- redirectTo(s.currentLeader, s.hasLeader)
				close(ch)
				delete(s.pending, i)
			}

		case t := <-s.appendEntriesChan:
			priorTerm := s.currentTerm
			resp, err := s.processAppendEntries(t.Request)
			s.logAppendEntriesResponse(t.Request, resp, err)
			t.Response <- resp
			if t.Request.Term > priorTerm {
				s.setRole(Follower)
				return
			}
			// Equal-term AppendEntries from another purported leader is
			// otherwise ignored: Election Safety guarantees at most one
			// leader per term.

		case t := <-s.requestVoteChan:
			priorTerm := s.currentTerm
			resp, err := s.processRequestVote(t.Request)
			s.logRequestVoteResponse(t.Request, resp, err)
			t.Response <- resp
			if t.Request.Term > priorTerm {
				s.setRole(Follower)
				return
			}

		case t := <-s.adminChan:
			t.fn(s)
			close(t.done)
		}
	}
}

// armClientTimeout schedules index's pending client call to be redirected
// if it hasn't committed within one (maximum) election timeout. A request
// that does commit in time has its pending entry already deleted by
// applyCommitted, so when leaderSelect receives the index it finds nothing
// to redirect. The send blocks until a leaderSelect loop receives it or
// the node stops.
func (s *Server) armClientTimeout(index uint64) {
	time.AfterFunc(s.maxElectionTimeout, func() {
		select {
		case s.clientTimeoutChan <- index:
		case <-s.stopChan:
		}
	})
}

// --- shared RPC processing ---

// processAppendEntries implements the AppendEntries contract, reused by
// all three roles (each decides its own stepDown threshold): stale terms
// are rejected without mutation; higher terms are adopted; the election
// timer is always reset on a term >= currentTerm; the log consistency
// check and commit-advance run for every non-stale request, including
// empty heartbeats, since a heartbeat whose PrevLogIndex doesn't match is
// exactly how a lagging follower's nextIndex gets backed off by the
// leader's retry branch. Truncate/append happen only when Entries is
// non-empty.
func (s *Server) processAppendEntries(r AppendEntries) (AppendEntriesResponse, error) {
	if r.Term < s.currentTerm {
		metricAppendEntriesTotal.WithLabelValues(nodeLabel(s.Id), "false").Inc()
		return AppendEntriesResponse{
			Term:     s.currentTerm,
			LogIndex: r.PrevLogIndex,
			Success:  false,
			reason:   fmt.Sprintf("term %d < %d", r.Term, s.currentTerm),
		}, ErrStaleTerm
	}

	if r.Term > s.currentTerm {
		s.setTerm(r.Term)
		s.votedFor = 0
	}
	s.currentLeader = r.LeaderId
	s.hasLeader = true
	s.resetElectionTimer()

	if !s.log.MatchesPrev(r.PrevLogIndex, r.PrevLogTerm) {
		metricAppendEntriesTotal.WithLabelValues(nodeLabel(s.Id), "false").Inc()
		return AppendEntriesResponse{
			Term:     s.currentTerm,
			LogIndex: r.PrevLogIndex,
			Success:  false,
			reason: fmt.Sprintf(
				"log mismatch at prevLogIndex=%d prevLogTerm=%d", r.PrevLogIndex, r.PrevLogTerm,
			),
		}, nil
	}

	if len(r.Entries) > 0 {
		s.log.TruncateFrom(r.PrevLogIndex + 1)
		s.log.Append(r.Entries...)
	}

	if r.CommitIndex > s.commitIndex {
		newCommit := r.CommitIndex
		if s.log.LastIndex() < newCommit {
			newCommit = s.log.LastIndex()
		}
		s.commitIndex = newCommit
		metricCommitIndex.WithLabelValues(nodeLabel(s.Id)).Set(float64(newCommit))
		s.applyCommitted()
	}

	metricAppendEntriesTotal.WithLabelValues(nodeLabel(s.Id), "true").Inc()
	return AppendEntriesResponse{
		Term:     s.currentTerm,
		LogIndex: r.PrevLogIndex,
		Success:  true,
	}, nil
}

// processRequestVote implements the RequestVote contract, reused by all
// three roles; each decides for itself whether the outcome means stepping
// down.
func (s *Server) processRequestVote(r RequestVote) (RequestVoteResponse, error) {
	if r.Term < s.currentTerm {
		metricRequestVoteTotal.WithLabelValues(nodeLabel(s.Id), "false").Inc()
		return RequestVoteResponse{
			Term:        s.currentTerm,
			VoteGranted: false,
			reason:      fmt.Sprintf("term %d < %d", r.Term, s.currentTerm),
		}, ErrStaleTerm
	}

	if r.Term > s.currentTerm {
		s.setTerm(r.Term)
		s.votedFor = 0
	}

	if s.votedFor != 0 && s.votedFor != r.CandidateId {
		metricRequestVoteTotal.WithLabelValues(nodeLabel(s.Id), "false").Inc()
		return RequestVoteResponse{
			Term:        s.currentTerm,
			VoteGranted: false,
			reason:      fmt.Sprintf("already voted for %d this term", s.votedFor),
		}, nil
	}

	candidateUpToDate := r.LastLogTerm > s.log.LastTerm() ||
		(r.LastLogTerm == s.log.LastTerm() && r.LastLogIndex >= s.log.LastIndex())
	if !candidateUpToDate {
		metricRequestVoteTotal.WithLabelValues(nodeLabel(s.Id), "false").Inc()
		return RequestVoteResponse{
			Term:        s.currentTerm,
			VoteGranted: false,
			reason: fmt.Sprintf(
				"our log %d/%d is more up-to-date than candidate's %d/%d",
				s.log.LastIndex(), s.log.LastTerm(), r.LastLogIndex, r.LastLogTerm,
			),
		}, nil
	}

	s.votedFor = r.CandidateId
	s.resetElectionTimer()
	metricRequestVoteTotal.WithLabelValues(nodeLabel(s.Id), "true").Inc()
	return RequestVoteResponse{
		Term:        s.currentTerm,
		VoteGranted: true,
	}, nil
}

func (s *Server) logAppendEntriesResponse(req AppendEntries, resp AppendEntriesResponse, err error) {
	s.logger.Debug("handled AppendEntries",
		zap.Uint64("term", s.currentTerm),
		zap.String("role", s.role.Get()),
		zap.Int("entries", len(req.Entries)),
		zap.Uint64("prev_log_index", req.PrevLogIndex),
		zap.Uint64("prev_log_term", req.PrevLogTerm),
		zap.Uint64("leader_commit", req.CommitIndex),
		zap.Bool("success", resp.Success),
		zap.String("reason", resp.reason),
		zap.Error(err),
	)
}

func (s *Server) logRequestVoteResponse(req RequestVote, resp RequestVoteResponse, err error) {
	s.logger.Debug("handled RequestVote",
		zap.Uint64("term", s.currentTerm),
		zap.String("role", s.role.Get()),
		zap.Uint64("candidate", req.CandidateId),
		zap.Bool("granted", resp.VoteGranted),
		zap.String("reason", resp.reason),
		zap.Error(err),
	)
}

func clientResponseKindLabel(k ClientResponseKind) string {
	switch k {
	case RespOk:
		return "ok"
	case RespEmpty:
		return "empty"
	case RespValue:
		return "value"
	case RespRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}
