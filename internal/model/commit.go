package model

import "sync"

// CommitNode is one commit observed inside a RepoNode, de-duplicated by
// hash (spec §3, §4.4).
type CommitNode struct {
	mu sync.RWMutex

	Hash      string
	Message   string // first trimmed line of the commit message
	Timestamp int64  // unix seconds
	FlakeURL  string // "git+https://<repo.url>?rev=<hash>"

	status  CommitStatus
	targets []*TargetNode

	// repo is a non-owning back-reference for lookups only (spec §9).
	repo *RepoNode
}

// NewCommitNode constructs a CommitNode in CommitIdle with no targets yet.
func NewCommitNode(repo *RepoNode, hash, message string, timestamp int64, flakeURL string) *CommitNode {
	return &CommitNode{
		Hash:      hash,
		Message:   message,
		Timestamp: timestamp,
		FlakeURL:  flakeURL,
		status:    CommitIdle,
		repo:      repo,
	}
}

// Repo returns the owning RepoNode (lookup only).
func (c *CommitNode) Repo() *RepoNode { return c.repo }

// Status returns the current CommitStatus.
func (c *CommitNode) Status() CommitStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus installs a new CommitStatus.
func (c *CommitNode) SetStatus(s CommitStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Targets returns a snapshot slice of the current target list. The slice
// itself is never mutated in place; InstallTargets replaces it wholesale.
func (c *CommitNode) Targets() []*TargetNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*TargetNode, len(c.targets))
	copy(out, c.targets)
	return out
}

// InstallTargets replaces the target list atomically: either the full list
// from a successful enumeration pass is installed, or (on discovery
// failure) InstallTargets is never called and the list stays whatever it
// was before (spec §9, resolving the "partial list" open question).
func (c *CommitNode) InstallTargets(targets []*TargetNode) {
	c.mu.Lock()
	c.targets = targets
	c.mu.Unlock()
}

// CommitSnapshot is the JSON-serialisable projection of a CommitNode.
type CommitSnapshot struct {
	Hash      string       `json:"hash"`
	Message   string       `json:"message"`
	Timestamp int64        `json:"timestamp"`
	FlakeURL  string       `json:"flake_url"`
	Status    CommitStatus `json:"status"`
	Targets   []Snapshot   `json:"targets"`
}

// Snapshot builds the serialisable projection of this commit and its
// targets, walking each target's own lock in turn.
func (c *CommitNode) Snapshot() CommitSnapshot {
	c.mu.RLock()
	targets := make([]*TargetNode, len(c.targets))
	copy(targets, c.targets)
	snap := CommitSnapshot{
		Hash:      c.Hash,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		FlakeURL:  c.FlakeURL,
		Status:    c.status,
	}
	c.mu.RUnlock()

	snap.Targets = make([]Snapshot, len(targets))
	for i, t := range targets {
		snap.Targets[i] = t.Snapshot()
	}
	return snap
}
