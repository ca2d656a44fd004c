package raft

import "fmt"

// LogEntry is a single replicated record. Index is 1-based; the empty
// sentinel entry (index 0, term 0) is never stored, only returned by Get
// when asked for an index the log doesn't hold.
type LogEntry struct {
	Index     uint64 `json:"index"`
	Term      uint64 `json:"term"`
	Requester uint64 `json:"requester"`
	Operation Op     `json:"operation"`
	Argument  string `json:"argument,omitempty"`
}

// Log is an append/truncate/query structure over LogEntry records. It is
// called exclusively from the owning node's role loop, so it carries no
// internal locking.
type Log struct {
	entries []LogEntry // entries[i] has Index == i+1
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// LastIndex returns the index of the last entry, or 0 if the log is empty.
func (l *Log) LastIndex() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the last entry, or 0 if the log is empty.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// Get returns the entry at index i, and whether it exists. It does not
// exist if i <= 0 or i > LastIndex.
func (l *Log) Get(i uint64) (LogEntry, bool) {
	if !l.Has(i) {
		return LogEntry{}, false
	}
	return l.entries[i-1], true
}

// Has reports whether the log holds an entry at index i.
func (l *Log) Has(i uint64) bool {
	return i > 0 && i <= l.LastIndex()
}

// TermAt returns the term of the entry at index i, or 0 if i is the empty
// sentinel (index 0) or out of range. It is a convenience used when
// constructing PrevLogTerm for a given PrevLogIndex.
func (l *Log) TermAt(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	entry, ok := l.Get(i)
	if !ok {
		return 0
	}
	return entry.Term
}

// SuffixFrom returns the entries with index >= i, in order. It is empty if
// i > LastIndex.
func (l *Log) SuffixFrom(i uint64) []LogEntry {
	if i > l.LastIndex() {
		return nil
	}
	if i < 1 {
		i = 1
	}
	out := make([]LogEntry, len(l.entries)-int(i)+1)
	copy(out, l.entries[i-1:])
	return out
}

// TruncateFrom drops all entries with index >= i. It is a no-op if
// i > LastIndex.
func (l *Log) TruncateFrom(i uint64) {
	if i > l.LastIndex() {
		return
	}
	if i < 1 {
		i = 1
	}
	l.entries = l.entries[:i-1]
}

// Append appends entries to the log. They must be contiguous and start at
// LastIndex+1; Append panics otherwise, since a caller violating that
// contract is a protocol bug in this node, not a recoverable condition
// (the role loop is responsible for truncating conflicting suffixes and
// numbering entries correctly before calling Append).
func (l *Log) Append(entries ...LogEntry) {
	next := l.LastIndex() + 1
	for _, e := range entries {
		if e.Index != next {
			panic(fmt.Sprintf("raft: non-contiguous append: expected index %d, got %d", next, e.Index))
		}
		l.entries = append(l.entries, e)
		next++
	}
}

// Snapshot returns a defensive copy of every entry in the log, for the
// debug/admin SendLog query.
func (l *Log) Snapshot() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// MatchesPrev reports whether the log either has no entry at prevIndex
// (only acceptable when prevIndex is 0, the sentinel) or has an entry there
// whose term equals prevTerm — the AppendEntries consistency check.
func (l *Log) MatchesPrev(prevIndex, prevTerm uint64) bool {
	if prevIndex == 0 {
		return true
	}
	entry, ok := l.Get(prevIndex)
	if !ok {
		return false
	}
	return entry.Term == prevTerm
}
