// Package git wraps go-git with the clone/open, branch-scan,
// fetch-and-diff, and parent-walk operations the Repository Worker needs
// (spec §4.5). Authentication is URL-embedded: it replaces the original
// daemon's git2/shell invocations one-for-one with go-git, the library
// already wired into this module's dependency graph.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/autobuildd/internal/logfields"
	"git.home.luguber.info/inful/autobuildd/internal/util/sets"
	"log/slog"
)

// Client drives one repository's checkout on disk.
type Client struct {
	checkoutPath string
	log          *slog.Logger
}

// New constructs a Client bound to checkoutPath.
func New(checkoutPath string, log *slog.Logger) *Client {
	return &Client{checkoutPath: checkoutPath, log: log}
}

// CloneURL composes the URL handed to the cloner: credentials (if present)
// are embedded as userinfo (spec §4.5's "clone" rule).
func CloneURL(repoURL, credentials string) string {
	if credentials == "" {
		return "https://" + repoURL
	}
	return fmt.Sprintf("https://%s@%s", credentials, repoURL)
}

// Open opens an existing checkout, failing if it is not a valid git
// repository.
func (c *Client) Open() (*git.Repository, error) {
	return git.PlainOpen(c.checkoutPath)
}

// Clone removes any prior contents of the checkout path and clones url
// into it fresh.
func (c *Client) Clone(ctx context.Context, url string) (*git.Repository, error) {
	if err := os.RemoveAll(c.checkoutPath); err != nil {
		return nil, fmt.Errorf("git: remove checkout: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.checkoutPath), 0o755); err != nil {
		return nil, fmt.Errorf("git: create parent dir: %w", err)
	}
	repo, err := git.PlainCloneContext(ctx, c.checkoutPath, false, &git.CloneOptions{
		URL:        url,
		NoCheckout: true,
	})
	if err != nil {
		return nil, fmt.Errorf("git: clone %s: %w", scrub(url), err)
	}
	c.log.Info("cloned repository", logfields.Tag("CLONE"), logfields.Path(c.checkoutPath))
	return repo, nil
}

// Teardown deletes the checkout directory entirely (spec §4.5's teardown
// step, run on any poll-cycle failure).
func (c *Client) Teardown() error {
	c.log.Info("removing checkout", logfields.Tag("DELETE"), logfields.Path(c.checkoutPath))
	if err := os.RemoveAll(c.checkoutPath); err != nil {
		return err
	}
	c.log.Info("checkout removed", logfields.Tag("DELETED"), logfields.Path(c.checkoutPath))
	return nil
}

// RefSnapshot maps a monitored branch's full reference name to its current
// target hash, used to detect change across a fetch (spec §4.5's "pull").
type RefSnapshot map[string]string

// SnapshotRefs reads the current hash of each monitored branch's remote
// tracking reference, as they exist in repo right now.
func SnapshotRefs(repo *git.Repository, monitored sets.Set[string]) RefSnapshot {
	snap := make(RefSnapshot, len(monitored))
	refs, err := repo.References()
	if err != nil {
		return snap
	}
	defer refs.Close()
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		if !strings.HasPrefix(name.String(), "refs/remotes/origin/") {
			return nil
		}
		short := strings.TrimPrefix(name.String(), "refs/remotes/origin/")
		if monitored.Has(short) {
			snap[name.String()] = ref.Hash().String()
		}
		return nil
	})
	return snap
}

// RefsDiffer reports whether before and after disagree on any key.
func RefsDiffer(before, after RefSnapshot) bool {
	if len(before) != len(after) {
		return true
	}
	for name, hash := range before {
		if after[name] != hash {
			return true
		}
	}
	return false
}

// Fetch runs a fetch restricted to the monitored branches (spec §4.5).
func (c *Client) Fetch(ctx context.Context, repo *git.Repository, url string, monitored sets.Set[string]) error {
	specs := make([]ggitcfg.RefSpec, 0, len(monitored))
	for branch := range monitored {
		specs = append(specs, ggitcfg.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch)))
	}
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   specs,
		Tags:       git.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("git: fetch: %w", scrubErr(err, url))
	}
	return nil
}

// EnsureRemote adds an "origin" remote pointing at url when the checkout
// has none. An existing "origin" is left as it is, even if its URL
// differs from url.
func (c *Client) EnsureRemote(repo *git.Repository, url string) error {
	_, err := repo.Remote("origin")
	if err == nil {
		return nil
	}
	_, err = repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{url}})
	return err
}

// ScanBranches lists remote branches and reports, for each whose short
// name is in monitored, its current tip hash (spec §4.5's scan_branches
// step 1).
func ScanBranches(repo *git.Repository, monitored sets.Set[string]) (map[string]plumbing.Hash, error) {
	refs, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("git: list references: %w", err)
	}
	defer refs.Close()

	tips := make(map[string]plumbing.Hash)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if !strings.HasPrefix(name, "refs/remotes/origin/") {
			return nil
		}
		short := strings.TrimPrefix(name, "refs/remotes/origin/")
		if monitored.Has(short) {
			tips[short] = ref.Hash()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("git: walk references: %w", err)
	}
	return tips, nil
}

// CommitFields is what a caller needs to register a commit with the
// Commit Registry.
type CommitFields struct {
	Hash      string
	Message   string
	Timestamp int64
}

// WalkParents returns tip and up to depth-1 of its ancestors, breadth-wise
// (all parents of a generation registered before recursing into the next),
// per spec §4.5's scan_branches step 2.
func WalkParents(repo *git.Repository, tip plumbing.Hash, depth int) ([]CommitFields, error) {
	if depth < 1 {
		depth = 1
	}
	var out []CommitFields
	frontier := []plumbing.Hash{tip}
	seen := make(map[plumbing.Hash]struct{})

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []plumbing.Hash
		for _, h := range frontier {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}

			commit, err := repo.CommitObject(h)
			if err != nil {
				return nil, fmt.Errorf("git: load commit %s: %w", h.String(), err)
			}
			out = append(out, commitFields(commit))
			if len(out) == depth {
				return out, nil
			}
			next = append(next, commit.ParentHashes...)
		}
		frontier = next
	}
	return out, nil
}

func commitFields(c *object.Commit) CommitFields {
	message := c.Message
	if idx := strings.IndexByte(message, '\n'); idx != -1 {
		message = message[:idx]
	}
	return CommitFields{
		Hash:      c.Hash.String(),
		Message:   strings.TrimSpace(message),
		Timestamp: c.Committer.When.Unix(),
	}
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func IsAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

// scrub redacts embedded userinfo credentials before a URL reaches a log
// line or error message.
func scrub(url string) string {
	if idx := strings.Index(url, "@"); idx != -1 {
		if schemeIdx := strings.Index(url, "://"); schemeIdx != -1 && schemeIdx < idx {
			return url[:schemeIdx+3] + "***@" + url[idx+1:]
		}
	}
	return url
}

func scrubErr(err error, url string) error {
	return fmt.Errorf("%s: %w", scrub(url), err)
}
