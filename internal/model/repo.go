package model

import (
	"sync"

	"git.home.luguber.info/inful/autobuildd/internal/config"
)

// RepoNode is one configured repository: its checkout, its monitored
// branches' hash sequences, and every commit it has ever observed
// (spec §3). RepoNode owns its CommitNodes; CommitNode owns its
// TargetNodes. Back-references run the other way for lookup only.
type RepoNode struct {
	mu sync.RWMutex

	Config       config.RepoConfig
	CheckoutPath string
	FlakeURL     string // "git+https://<repo.url>"

	// settings is a non-owning back-reference to the process-wide
	// configuration (supported architectures, build thread count, ...).
	settings *config.Settings

	status RepoStatus

	// branchHashes maps a monitored branch name to its ordered sequence of
	// commit hashes, tip first, length <= Config.BuildDepth.
	branchHashes map[string][]string

	// commits de-duplicates CommitNodes by hash within this repository.
	commits map[string]*CommitNode
}

// NewRepoNode constructs a RepoNode in RepoIdle with empty branch and
// commit state.
func NewRepoNode(cfg config.RepoConfig, checkoutPath, flakeURL string, settings *config.Settings) *RepoNode {
	return &RepoNode{
		Config:       cfg,
		CheckoutPath: checkoutPath,
		FlakeURL:     flakeURL,
		settings:     settings,
		status:       RepoIdle,
		branchHashes: make(map[string][]string),
		commits:      make(map[string]*CommitNode),
	}
}

// Settings returns the non-owning back-reference to global settings.
func (r *RepoNode) Settings() *config.Settings { return r.settings }

// Status returns the current RepoStatus.
func (r *RepoNode) Status() RepoStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus installs a new RepoStatus.
func (r *RepoNode) SetStatus(s RepoStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// BranchHashes returns a copy of the hash sequence currently stored for
// branch (tip first), or nil if the branch has never been scanned.
func (r *RepoNode) BranchHashes(branch string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hashes := r.branchHashes[branch]
	out := make([]string, len(hashes))
	copy(out, hashes)
	return out
}

// SetBranchHashes replaces (never appends to) the hash sequence for
// branch, per spec §4.5's "store atomically, replace not append" rule.
func (r *RepoNode) SetBranchHashes(branch string, hashes []string) {
	r.mu.Lock()
	r.branchHashes[branch] = hashes
	r.mu.Unlock()
}

// Lookup returns the CommitNode for hash, if already registered.
func (r *RepoNode) Lookup(hash string) (*CommitNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commits[hash]
	return c, ok
}

// GetOrCreate implements the Commit Registry's de-duplicating insert
// (spec §4.4, step 1-3): under one critical section, return the existing
// node for hash if present; otherwise call create(), store the result,
// and report created=true so the caller can spawn the per-commit task
// after releasing this lock.
func (r *RepoNode) GetOrCreate(hash string, create func() *CommitNode) (node *CommitNode, created bool) {
	r.mu.Lock()
	if existing, ok := r.commits[hash]; ok {
		r.mu.Unlock()
		return existing, false
	}
	node = create()
	r.commits[hash] = node
	r.mu.Unlock()
	return node, true
}

// RepoSnapshot is the JSON-serialisable projection of a RepoNode.
type RepoSnapshot struct {
	URL          string                    `json:"url"`
	Status       RepoStatus                `json:"status"`
	BranchHashes map[string][]string       `json:"branches"`
	Commits      map[string]CommitSnapshot `json:"commits"`
}

// Snapshot builds the serialisable projection of this repository, its
// branch mapping, and every commit it has ever observed, walking each
// commit's (and transitively, each target's) own lock in turn. The
// projection is advisory, not authoritative (spec §4.6): it may observe a
// graph whose nodes were each consistent at the instant of their own read
// but not mutually consistent with one another.
func (r *RepoNode) Snapshot() RepoSnapshot {
	r.mu.RLock()
	branches := make(map[string][]string, len(r.branchHashes))
	for b, hashes := range r.branchHashes {
		cp := make([]string, len(hashes))
		copy(cp, hashes)
		branches[b] = cp
	}
	commits := make([]*CommitNode, 0, len(r.commits))
	for _, c := range r.commits {
		commits = append(commits, c)
	}
	snap := RepoSnapshot{
		URL:          r.Config.URL,
		Status:       r.status,
		BranchHashes: branches,
	}
	r.mu.RUnlock()

	snap.Commits = make(map[string]CommitSnapshot, len(commits))
	for _, c := range commits {
		snap.Commits[c.Hash] = c.Snapshot()
	}
	return snap
}
