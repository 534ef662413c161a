package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"git.home.luguber.info/inful/autobuildd/internal/buildexec"
	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"git.home.luguber.info/inful/autobuildd/internal/semaphore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestRepo() *model.RepoNode {
	cfg := config.RepoConfig{URL: "h/r", Branches: []string{"main"}, BuildDepth: 1}
	return model.NewRepoNode(cfg, "/tmp/r", "git+https://h/r", &config.Settings{})
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	manifest string
	err      error
}

func (f *fakeRunner) Run(context.Context, string, ...string) (string, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", "boom", f.err
	}
	return f.manifest, "", nil
}

type buildRunner struct{}

func (buildRunner) Run(context.Context, string, ...string) (string, string, error) {
	return "/nix/store/out", "", nil
}

func newRegistry(runner *fakeRunner) *Registry {
	sem := semaphore.New(2)
	exec := buildexec.New("nix", sem, []string{"x86_64-linux"}, nil, discardLogger()).WithRunner(buildRunner{})
	return New("nix", sem, exec, runner, nil, discardLogger())
}

func TestGetOrCreateDeduplicatesAndSpawnsOnce(t *testing.T) {
	repo := newTestRepo()
	runner := &fakeRunner{manifest: `{"packages":{"x86_64-linux":{"hello":{"description":"d","name":"hello","type":"derivation"}}}}`}
	reg := newRegistry(runner)

	first := reg.GetOrCreate(context.Background(), repo, CommitFields{Hash: "abc", Message: "msg", Timestamp: 1})
	second := reg.GetOrCreate(context.Background(), repo, CommitFields{Hash: "abc", Message: "msg", Timestamp: 1})
	assert.Same(t, first, second)

	require.Eventually(t, func() bool {
		return len(first.Targets()) == 1
	}, time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	calls := runner.calls
	runner.mu.Unlock()
	assert.Equal(t, 1, calls, "second GetOrCreate must not re-trigger discovery")

	require.Eventually(t, func() bool {
		return first.Targets()[0].Status().Kind == model.BuildSuccess
	}, time.Second, 5*time.Millisecond)
}

func TestDiscoveryFailureLeavesCommitIdleWithNoTargets(t *testing.T) {
	repo := newTestRepo()
	runner := &fakeRunner{err: assert.AnError}
	reg := newRegistry(runner)

	commit := reg.GetOrCreate(context.Background(), repo, CommitFields{Hash: "def", Message: "m", Timestamp: 1})

	require.Eventually(t, func() bool {
		return commit.Status() == model.CommitIdle
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, commit.Targets())
}
