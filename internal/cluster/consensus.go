package cluster

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
)

// ConsensusState is a Raft node's role.
type ConsensusState int

const (
	Follower ConsensusState = iota
	Candidate
	Leader
)

func (s ConsensusState) String() string {
	switch s {
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "follower"
	}
}

// LogEntry is one replicated command.
type LogEntry struct {
	Index   uint64 `json:"index"`
	Term    uint64 `json:"term"`
	Command []byte `json:"command"`
}

// ConsensusStats is a snapshot of consensus engine state for health checks.
type ConsensusStats struct {
	State             ConsensusState
	Term              uint64
	Leader            string
	LogLength         int
	CommitIndex       uint64
	LastApplied       uint64
	ElectionsStarted  int64
	ElectionsWon      int64
	ProposalsAccepted int64
}

type messageKind string

const (
	kindVoteReq    messageKind = "vote_req"
	kindVoteResp   messageKind = "vote_resp"
	kindAppendReq  messageKind = "append_req"
	kindAppendResp messageKind = "append_resp"
)

type wireEnvelope struct {
	Kind    messageKind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type voteRequest struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidate_id"`
	CandidateAddr string `json:"candidate_addr"`
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

type voteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
	From        string `json:"from"`
}

type appendRequest struct {
	Term         uint64     `json:"term"`
	LeaderID     string     `json:"leader_id"`
	LeaderAddr   string     `json:"leader_addr"`
	PrevLogIndex uint64     `json:"prev_log_index"`
	PrevLogTerm  uint64     `json:"prev_log_term"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit uint64     `json:"leader_commit"`
}

type appendResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
	From    string `json:"from"`
}

// ConsensusEngine is a Raft-like replicated log: leader election over
// randomized timeouts, log replication via AppendEntries, commit once a
// majority of known nodes have matched an index. Grounded on the
// teacher's distributed/consensus.go, generalized to the types.ReplicatedLog
// contract the metadata store proposes writes through, and wired to real
// RPC over the cluster's gossip transport instead of simulated delays.
type ConsensusEngine struct {
	mu sync.Mutex

	cluster *Cluster
	config  *Config

	state       ConsensusState
	currentTerm uint64
	votedFor    string
	log         []LogEntry
	commitIndex uint64
	lastApplied uint64

	voteCount    int
	voteTerm     uint64
	waiters      map[uint64][]chan struct{} // index -> waiters for commit
	electionTimer *time.Timer

	applyFn func(entry LogEntry)

	stats ConsensusStats

	stopCh chan struct{}
}

func newConsensusEngine(cluster *Cluster, config *Config) *ConsensusEngine {
	return &ConsensusEngine{
		cluster: cluster,
		config:  config,
		state:   Follower,
		waiters: make(map[uint64][]chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// OnApply registers the state machine callback invoked, in log order, for
// every entry as it becomes committed. A metadata store uses this to apply
// its put, delete and batch-put commands to its local map once the
// replicated log guarantees they're durable on a majority of nodes.
func (ce *ConsensusEngine) OnApply(fn func(entry LogEntry)) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.applyFn = fn
}

func (ce *ConsensusEngine) start(ctx context.Context) {
	go ce.electionLoop(ctx)
	go ce.heartbeatLoop(ctx)
}

func (ce *ConsensusEngine) stop() {
	close(ce.stopCh)
}

// IsLeader reports whether this node believes itself to be the leader.
func (ce *ConsensusEngine) IsLeader() bool {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.state == Leader
}

// Propose appends a command to the leader's log and blocks until it is
// committed (replicated to a majority) or the context is cancelled.
// Followers return kernelerrors.NotLeader carrying the known leader address.
func (ce *ConsensusEngine) Propose(ctx context.Context, command []byte) (uint64, error) {
	ce.mu.Lock()
	if ce.state != Leader {
		addr := ce.cluster.LeaderAddress()
		ce.mu.Unlock()
		return 0, kernelerrors.NotLeader("cluster", addr)
	}
	index := uint64(len(ce.log)) + 1
	entry := LogEntry{Index: index, Term: ce.currentTerm, Command: command}
	ce.log = append(ce.log, entry)
	wait := make(chan struct{})
	ce.waiters[index] = append(ce.waiters[index], wait)
	ce.mu.Unlock()

	ce.broadcastAppend()

	select {
	case <-wait:
		return index, nil
	case <-ctx.Done():
		return 0, kernelerrors.TimeoutErr("cluster", "propose: context cancelled before commit")
	case <-time.After(ce.config.ElectionTimeout * 4):
		return 0, kernelerrors.TimeoutErr("cluster", "propose: commit not reached before timeout")
	}
}

// Query returns the current commit index, used to bound staleness for
// read-your-writes checks.
func (ce *ConsensusEngine) Query(ctx context.Context) (uint64, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.commitIndex, nil
}

// TriggerElection forces this node to stand for election immediately.
func (ce *ConsensusEngine) TriggerElection(ctx context.Context) {
	ce.startElection()
}

func (ce *ConsensusEngine) GetStats() ConsensusStats {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	s := ce.stats
	s.State = ce.state
	s.Term = ce.currentTerm
	s.Leader = ce.cluster.leader
	s.LogLength = len(ce.log)
	s.CommitIndex = ce.commitIndex
	s.LastApplied = ce.lastApplied
	return s
}

func (ce *ConsensusEngine) electionLoop(ctx context.Context) {
	ce.resetElectionTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ce.stopCh:
			return
		case <-ce.timerChan():
			ce.mu.Lock()
			isLeader := ce.state == Leader
			ce.mu.Unlock()
			if !isLeader {
				ce.startElection()
			}
			ce.resetElectionTimer()
		}
	}
}

func (ce *ConsensusEngine) timerChan() <-chan time.Time {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.electionTimer.C
}

func (ce *ConsensusEngine) resetElectionTimer() {
	jitter := time.Duration(rand.Int63n(int64(ce.config.ElectionTimeout)))
	d := ce.config.ElectionTimeout + jitter
	ce.mu.Lock()
	if ce.electionTimer != nil {
		ce.electionTimer.Stop()
	}
	ce.electionTimer = time.NewTimer(d)
	ce.mu.Unlock()
}

func (ce *ConsensusEngine) startElection() {
	ce.mu.Lock()
	ce.currentTerm++
	ce.state = Candidate
	ce.votedFor = ce.cluster.nodeID
	ce.voteCount = 1
	ce.voteTerm = ce.currentTerm
	term := ce.currentTerm
	lastIndex := uint64(len(ce.log))
	lastTerm := uint64(0)
	if lastIndex > 0 {
		lastTerm = ce.log[lastIndex-1].Term
	}
	ce.stats.ElectionsStarted++
	ce.mu.Unlock()

	req := voteRequest{Term: term, CandidateID: ce.cluster.nodeID, CandidateAddr: ce.config.AdvertiseAddr, LastLogIndex: lastIndex, LastLogTerm: lastTerm}
	for _, n := range ce.cluster.GetNodes() {
		if n.ID == ce.cluster.nodeID {
			continue
		}
		go ce.sendEnvelope(n.Address, kindVoteReq, req)
	}

	// A single-node cluster wins immediately.
	if len(ce.cluster.GetNodes()) <= 1 {
		ce.becomeLeader()
	}
}

func (ce *ConsensusEngine) becomeLeader() {
	ce.mu.Lock()
	ce.state = Leader
	ce.stats.ElectionsWon++
	ce.mu.Unlock()
	ce.cluster.setLeader(ce.cluster.nodeID)
	log.Printf("cluster: node %s became leader for term %d", ce.cluster.nodeID, ce.currentTerm)
	ce.broadcastAppend()
}

func (ce *ConsensusEngine) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(ce.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ce.stopCh:
			return
		case <-ticker.C:
			ce.mu.Lock()
			isLeader := ce.state == Leader
			ce.mu.Unlock()
			if isLeader {
				ce.broadcastAppend()
			}
		}
	}
}

func (ce *ConsensusEngine) broadcastAppend() {
	ce.mu.Lock()
	req := appendRequest{
		Term:         ce.currentTerm,
		LeaderID:     ce.cluster.nodeID,
		LeaderAddr:   ce.config.AdvertiseAddr,
		Entries:      append([]LogEntry(nil), ce.log...),
		LeaderCommit: ce.commitIndex,
	}
	ce.mu.Unlock()

	for _, n := range ce.cluster.GetNodes() {
		if n.ID == ce.cluster.nodeID {
			continue
		}
		go ce.sendEnvelope(n.Address, kindAppendReq, req)
	}

	// Single-node clusters commit locally as soon as they're appended.
	if len(ce.cluster.GetNodes()) <= 1 {
		ce.advanceCommit(uint64(len(req.Entries)))
	}
}

func (ce *ConsensusEngine) sendEnvelope(addr string, kind messageKind, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := wireEnvelope{Kind: kind, Payload: data}
	_ = ce.cluster.gossip.sendConsensus(addr, env)
}

// handleEnvelope is registered with the cluster's gossip transport and
// dispatches inbound consensus RPCs and responses.
func (ce *ConsensusEngine) handleEnvelope(from string, raw json.RawMessage) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	switch env.Kind {
	case kindVoteReq:
		var req voteRequest
		if json.Unmarshal(env.Payload, &req) == nil {
			ce.handleVoteRequest(req)
		}
	case kindVoteResp:
		var resp voteResponse
		if json.Unmarshal(env.Payload, &resp) == nil {
			ce.handleVoteResponse(resp)
		}
	case kindAppendReq:
		var req appendRequest
		if json.Unmarshal(env.Payload, &req) == nil {
			ce.handleAppendRequest(req)
		}
	case kindAppendResp:
		var resp appendResponse
		if json.Unmarshal(env.Payload, &resp) == nil {
			ce.handleAppendResponse(resp)
		}
	}
}

func (ce *ConsensusEngine) handleVoteRequest(req voteRequest) {
	ce.mu.Lock()
	grant := false
	if req.Term >= ce.currentTerm {
		if req.Term > ce.currentTerm {
			ce.currentTerm = req.Term
			ce.state = Follower
			ce.votedFor = ""
		}
		lastIndex := uint64(len(ce.log))
		lastTerm := uint64(0)
		if lastIndex > 0 {
			lastTerm = ce.log[lastIndex-1].Term
		}
		logOK := req.LastLogTerm > lastTerm || (req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)
		if (ce.votedFor == "" || ce.votedFor == req.CandidateID) && logOK {
			ce.votedFor = req.CandidateID
			grant = true
		}
	}
	term := ce.currentTerm
	ce.mu.Unlock()

	if grant {
		ce.resetElectionTimer()
	}
	go ce.sendEnvelope(req.CandidateAddr, kindVoteResp, voteResponse{Term: term, VoteGranted: grant, From: ce.cluster.nodeID})
}

func (ce *ConsensusEngine) handleVoteResponse(resp voteResponse) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.state != Candidate || resp.Term != ce.voteTerm {
		return
	}
	if resp.VoteGranted {
		ce.voteCount++
	}
	majority := len(ce.cluster.GetNodes())/2 + 1
	if ce.voteCount >= majority && ce.state == Candidate {
		ce.mu.Unlock()
		ce.becomeLeader()
		ce.mu.Lock()
	}
}

func (ce *ConsensusEngine) handleAppendRequest(req appendRequest) {
	ce.mu.Lock()
	success := req.Term >= ce.currentTerm
	if success {
		ce.currentTerm = req.Term
		ce.state = Follower
		ce.mu.Unlock()
		ce.cluster.setLeader(req.LeaderID)
		ce.mu.Lock()
		if len(req.Entries) > len(ce.log) {
			ce.log = req.Entries
		}
		if req.LeaderCommit > ce.commitIndex {
			ce.commitIndex = req.LeaderCommit
			if ce.commitIndex > uint64(len(ce.log)) {
				ce.commitIndex = uint64(len(ce.log))
			}
		}
	}
	term := ce.currentTerm
	ce.mu.Unlock()

	go ce.sendEnvelope(req.LeaderAddr, kindAppendResp, appendResponse{Term: term, Success: success, From: ce.cluster.nodeID})
}

func (ce *ConsensusEngine) handleAppendResponse(resp appendResponse) {
	if !resp.Success {
		return
	}
	ce.mu.Lock()
	total := len(ce.log)
	ce.mu.Unlock()
	ce.advanceCommit(uint64(total))
}

func (ce *ConsensusEngine) advanceCommit(index uint64) {
	ce.mu.Lock()
	if index <= ce.commitIndex {
		ce.mu.Unlock()
		return
	}
	prevApplied := ce.lastApplied
	ce.commitIndex = index
	ce.lastApplied = index
	ce.stats.ProposalsAccepted++
	toApply := append([]LogEntry(nil), ce.log[prevApplied:index]...)
	applyFn := ce.applyFn
	waiters := ce.waiters[index]
	delete(ce.waiters, index)
	ce.mu.Unlock()

	if applyFn != nil {
		for _, entry := range toApply {
			applyFn(entry)
		}
	}

	for _, w := range waiters {
		close(w)
	}
}
