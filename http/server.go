// Package rafthttp is the wire transport for the raft engine: a thin
// JSON-over-HTTP layer that turns raft.AppendEntries/RequestVote/
// ClientRequest and the administrative queries into routed HTTP
// handlers (Server), and a raft.Peer implementation that calls them
// over the network (Client). Neither type holds protocol state; they
// only marshal requests and responses.
package rafthttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/s-rishu/raftqueue"
)

// Route paths. Exported so Client and tests can address them without
// string duplication.
const (
	IdPath                  = "/raft/id"
	AppendEntriesPath       = "/raft/append_entries"
	RequestVotePath         = "/raft/request_vote"
	ClientRequestPath       = "/raft/client_request"
	StatePath               = "/raft/state"
	LogPath                 = "/raft/log"
	WhoIsLeaderPath         = "/raft/whois_leader"
	CurrentProcessTypePath  = "/raft/process_type"
	SetElectionTimeoutPath  = "/raft/set_election_timeout"
	SetHeartbeatTimeoutPath = "/raft/set_heartbeat_timeout"
)

// Node is everything Server needs from the local raft.Server to answer
// RPCs and administrative queries over the wire.
type Node interface {
	AppendEntries(raft.AppendEntries) raft.AppendEntriesResponse
	RequestVote(raft.RequestVote) raft.RequestVoteResponse
	SubmitClientRequest(raft.ClientRequest) raft.ClientResponse
	SendState() []string
	SendLog() []raft.LogEntry
	WhoIsLeader() (leaderId uint64, known bool, term uint64)
	CurrentProcessType() string
	SetElectionTimeout(min, max time.Duration)
	SetHeartbeatTimeout(d time.Duration)
}

// electionTimeoutRequest is the body of a SetElectionTimeoutPath POST.
type electionTimeoutRequest struct {
	MinMs uint64 `json:"min_ms"`
	MaxMs uint64 `json:"max_ms"`
}

// heartbeatTimeoutRequest is the body of a SetHeartbeatTimeoutPath POST.
type heartbeatTimeoutRequest struct {
	Ms uint64 `json:"ms"`
}

// Server adapts a Node to HTTP. Install wires every route onto a
// gorilla/mux Router instead of raw HandleFuncs, so the cmd entrypoint
// gets path variables and middleware for free if it grows either.
type Server struct {
	id     uint64
	node   Node
	logger *zap.Logger
}

// NewServer returns a Server that will answer as node id over HTTP.
func NewServer(id uint64, node Node, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{id: id, node: node, logger: logger.With(zap.Uint64("id", id))}
}

// Install registers every route on r.
func (s *Server) Install(r *mux.Router) {
	r.HandleFunc(IdPath, s.handleId).Methods(http.MethodGet)
	r.HandleFunc(AppendEntriesPath, s.handleAppendEntries).Methods(http.MethodPost)
	r.HandleFunc(RequestVotePath, s.handleRequestVote).Methods(http.MethodPost)
	r.HandleFunc(ClientRequestPath, s.handleClientRequest).Methods(http.MethodPost)
	r.HandleFunc(StatePath, s.handleState).Methods(http.MethodGet)
	r.HandleFunc(LogPath, s.handleLog).Methods(http.MethodGet)
	r.HandleFunc(WhoIsLeaderPath, s.handleWhoIsLeader).Methods(http.MethodGet)
	r.HandleFunc(CurrentProcessTypePath, s.handleProcessType).Methods(http.MethodGet)
	r.HandleFunc(SetElectionTimeoutPath, s.handleSetElectionTimeout).Methods(http.MethodPost)
	r.HandleFunc(SetHeartbeatTimeoutPath, s.handleSetHeartbeatTimeout).Methods(http.MethodPost)
}

func (s *Server) requestId(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) handleId(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.id)
}

func (s *Server) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	reqId := s.requestId(r)
	var ae raft.AppendEntries
	if err := json.NewDecoder(r.Body).Decode(&ae); err != nil {
		s.logger.Warn("decode AppendEntries failed", zap.String("request_id", reqId), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.node.AppendEntries(ae)
	s.logger.Debug("served AppendEntries", zap.String("request_id", reqId), zap.Uint64("term", ae.Term))
	writeJSON(w, resp)
}

func (s *Server) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	reqId := s.requestId(r)
	var rv raft.RequestVote
	if err := json.NewDecoder(r.Body).Decode(&rv); err != nil {
		s.logger.Warn("decode RequestVote failed", zap.String("request_id", reqId), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.node.RequestVote(rv)
	s.logger.Debug("served RequestVote", zap.String("request_id", reqId), zap.Uint64("term", rv.Term))
	writeJSON(w, resp)
}

func (s *Server) handleClientRequest(w http.ResponseWriter, r *http.Request) {
	reqId := s.requestId(r)
	var req raft.ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("decode ClientRequest failed", zap.String("request_id", reqId), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.node.SubmitClientRequest(req)
	s.logger.Debug("served ClientRequest", zap.String("request_id", reqId), zap.Int("kind", int(req.Kind)))
	writeJSON(w, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.SendState())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.SendLog())
}

type whoIsLeaderResponse struct {
	LeaderId uint64 `json:"leader_id"`
	Known    bool   `json:"known"`
	Term     uint64 `json:"term"`
}

func (s *Server) handleWhoIsLeader(w http.ResponseWriter, r *http.Request) {
	leaderId, known, term := s.node.WhoIsLeader()
	writeJSON(w, whoIsLeaderResponse{LeaderId: leaderId, Known: known, Term: term})
}

func (s *Server) handleProcessType(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.CurrentProcessType())
}

func (s *Server) handleSetElectionTimeout(w http.ResponseWriter, r *http.Request) {
	reqId := s.requestId(r)
	var body electionTimeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decode SetElectionTimeout failed", zap.String("request_id", reqId), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.node.SetElectionTimeout(time.Duration(body.MinMs)*time.Millisecond, time.Duration(body.MaxMs)*time.Millisecond)
	s.logger.Debug("served SetElectionTimeout", zap.String("request_id", reqId),
		zap.Uint64("min_ms", body.MinMs), zap.Uint64("max_ms", body.MaxMs))
	writeJSON(w, struct{}{})
}

func (s *Server) handleSetHeartbeatTimeout(w http.ResponseWriter, r *http.Request) {
	reqId := s.requestId(r)
	var body heartbeatTimeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decode SetHeartbeatTimeout failed", zap.String("request_id", reqId), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.node.SetHeartbeatTimeout(time.Duration(body.Ms) * time.Millisecond)
	s.logger.Debug("served SetHeartbeatTimeout", zap.String("request_id", reqId), zap.Uint64("ms", body.Ms))
	writeJSON(w, struct{}{})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
