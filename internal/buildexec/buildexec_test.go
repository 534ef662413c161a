package buildexec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"git.home.luguber.info/inful/autobuildd/internal/semaphore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTarget(t *testing.T, arch string) *model.TargetNode {
	cfg := config.RepoConfig{URL: "h/r", Branches: []string{"main"}, BuildDepth: 1}
	repo := model.NewRepoNode(cfg, "/tmp/r", "git+https://h/r", &config.Settings{})
	commit, _ := repo.GetOrCreate("abc", func() *model.CommitNode {
		return model.NewCommitNode(repo, "abc", "msg", 1, "git+https://h/r?rev=abc")
	})
	return model.NewDerivationTarget(commit, "packages."+arch+".hello", "hello", "d", "derivation", arch,
		commit.FlakeURL+"#packages."+arch+".hello")
}

type fakeRunner struct {
	stdout string
	stderr string
	err    error
}

func (f fakeRunner) Run(context.Context, string, ...string) (string, string, error) {
	return f.stdout, f.stderr, f.err
}

func TestBuildSuccess(t *testing.T) {
	target := newTarget(t, "x86_64-linux")
	exec := New("nix", semaphore.New(1), []string{"x86_64-linux"}, nil, discardLogger()).
		WithRunner(fakeRunner{stdout: "/nix/store/abc-hello"})

	exec.Build(context.Background(), target)

	status := target.Status()
	assert.Equal(t, model.BuildSuccess, status.Kind)
	assert.Equal(t, "/nix/store/abc-hello", status.Path)
}

func TestBuildFailure(t *testing.T) {
	target := newTarget(t, "x86_64-linux")
	exec := New("nix", semaphore.New(1), []string{"x86_64-linux"}, nil, discardLogger()).
		WithRunner(fakeRunner{stderr: "error: build failed", err: errors.New("exit status 1")})

	exec.Build(context.Background(), target)

	status := target.Status()
	assert.Equal(t, model.BuildFailed, status.Kind)
	assert.Equal(t, "error: build failed", status.Message)
}

func TestUnsupportedArchitectureSkipsInvocation(t *testing.T) {
	target := newTarget(t, "wasm32-linux")
	called := false
	exec := New("nix", semaphore.New(1), []string{"x86_64-linux"}, nil, discardLogger()).
		WithRunner(recordingRunner{called: &called})

	exec.Build(context.Background(), target)

	status := target.Status()
	require.Equal(t, model.BuildUnsupportedArchitecture, status.Kind)
	assert.Equal(t, "wasm32-linux", status.Arch)
	assert.False(t, called, "the build tool must not be invoked for an unsupported architecture")
}

type recordingRunner struct{ called *bool }

func (r recordingRunner) Run(context.Context, string, ...string) (string, string, error) {
	*r.called = true
	return "", "", nil
}

func TestConcurrentBuildsRespectSemaphoreCap(t *testing.T) {
	sem := semaphore.New(2)
	var inFlight, maxSeen atomic.Int32
	exec := New("nix", sem, []string{"x86_64-linux"}, nil, discardLogger()).
		WithRunner(slowRunner{delay: 10 * time.Millisecond, inFlight: &inFlight, maxSeen: &maxSeen})

	var wg sync.WaitGroup
	targets := make([]*model.TargetNode, 10)
	for i := range targets {
		targets[i] = newTarget(t, "x86_64-linux")
	}
	for _, target := range targets {
		wg.Add(1)
		go func(tg *model.TargetNode) {
			defer wg.Done()
			exec.Build(context.Background(), tg)
		}(target)
	}
	wg.Wait()

	for _, target := range targets {
		assert.Equal(t, model.BuildSuccess, target.Status().Kind)
	}
	assert.LessOrEqual(t, int(maxSeen.Load()), 2)
}

type slowRunner struct {
	delay    time.Duration
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
}

func (s slowRunner) Run(ctx context.Context, tool string, args ...string) (string, string, error) {
	n := s.inFlight.Add(1)
	for {
		cur := s.maxSeen.Load()
		if n <= cur || s.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(s.delay)
	s.inFlight.Add(-1)
	return "/nix/store/out", "", nil
}
