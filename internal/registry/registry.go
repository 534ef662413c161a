// Package registry de-duplicates commits within a repository and spawns
// the one-shot discovery-then-build task for each commit seen for the
// first time (spec §4.4).
package registry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/autobuildd/internal/buildexec"
	"git.home.luguber.info/inful/autobuildd/internal/enumerator"
	"git.home.luguber.info/inful/autobuildd/internal/logfields"
	"git.home.luguber.info/inful/autobuildd/internal/metrics"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"git.home.luguber.info/inful/autobuildd/internal/semaphore"
)

// Runner invokes the external build tool's discovery subcommand
// ("<tool> flake show --json --all-systems <flake-url>") and reports its
// raw stdout. A fake substitutes for it in tests.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) (stdout, stderr string, err error)
}

// execRunner is the production Runner, backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, tool string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

// CommitFields is the subset of a git commit needed to register it.
type CommitFields struct {
	Hash      string
	Message   string
	Timestamp int64
}

// Registry de-duplicates CommitNodes within one RepoNode and drives the
// per-commit discovery+build task.
type Registry struct {
	tool     string
	runner   Runner
	sem      *semaphore.BuildSemaphore
	executor *buildexec.Executor
	recorder metrics.Recorder
	log      *slog.Logger
}

// New constructs a Registry. tool is the external build tool binary
// ("nix" unless overridden).
func New(tool string, sem *semaphore.BuildSemaphore, executor *buildexec.Executor, runner Runner, recorder metrics.Recorder, log *slog.Logger) *Registry {
	if tool == "" {
		tool = "nix"
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if runner == nil {
		runner = execRunner{}
	}
	return &Registry{tool: tool, runner: runner, sem: sem, executor: executor, recorder: recorder, log: log}
}

// GetOrCreate returns the CommitNode for fields.Hash within repo, creating
// it and spawning its discovery+build task on first sight (spec §4.4). The
// registry map lock is held only for the lookup/insert; the spawn happens
// after it is released.
func (r *Registry) GetOrCreate(ctx context.Context, repo *model.RepoNode, fields CommitFields) *model.CommitNode {
	commit, created := repo.GetOrCreate(fields.Hash, func() *model.CommitNode {
		flakeURL := fmt.Sprintf("%s?rev=%s", repo.FlakeURL, fields.Hash)
		return model.NewCommitNode(repo, fields.Hash, fields.Message, fields.Timestamp, flakeURL)
	})
	if created {
		go r.discoverAndBuild(ctx, commit)
	}
	return commit
}

// discoverAndBuild runs the per-commit task: enumerate targets under the
// Build Semaphore, install them, then build each in parallel (spec §4.4).
func (r *Registry) discoverAndBuild(ctx context.Context, commit *model.CommitNode) {
	repo := commit.Repo()
	commit.SetStatus(model.CommitGettingTargets)
	defer commit.SetStatus(model.CommitIdle)

	start := time.Now()
	var manifest []byte
	err := r.sem.Execute(ctx, func() error {
		stdout, stderr, runErr := r.runner.Run(ctx, r.tool, "flake", "show", "--json", "--all-systems", commit.FlakeURL)
		if runErr != nil {
			return fmt.Errorf("flake show: %w: %s", runErr, stderr)
		}
		manifest = []byte(stdout)
		return nil
	})
	r.recorder.ObserveDiscoveryDuration(repo.Config.URL, time.Since(start))
	if err != nil {
		r.log.Warn("discovery failed",
			logfields.Tag("ERROR"), logfields.Repository(repo.Config.URL), logfields.Commit(commit.Hash), logfields.Error(err))
		r.recorder.IncDiscoveryResult(repo.Config.URL, metrics.ResultFailed)
		return
	}

	targets, err := enumerator.Enumerate(manifest, commit)
	if err != nil {
		r.log.Warn("enumeration failed",
			logfields.Tag("ERROR"), logfields.Repository(repo.Config.URL), logfields.Commit(commit.Hash), logfields.Error(err))
		r.recorder.IncDiscoveryResult(repo.Config.URL, metrics.ResultFailed)
		return
	}
	r.recorder.IncDiscoveryResult(repo.Config.URL, metrics.ResultSuccess)
	r.log.Info("targets discovered",
		logfields.Tag("LIST"), logfields.Repository(repo.Config.URL), logfields.Commit(commit.Hash), slog.Int("targets", len(targets)))

	commit.InstallTargets(targets)

	// Each Build Executor invocation self-queues on the shared semaphore and
	// reports its own outcome; the per-commit task does not wait on them
	// (spec §4.4: spawn in parallel, then transition back to Idle).
	for _, target := range targets {
		go r.executor.Build(ctx, target)
	}
}
