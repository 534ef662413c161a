// Package engine wires the whole polling/discovery/build pipeline
// together: one RepoNode and Repository Worker per configured
// repository, sharing one Build Semaphore, Build Executor, and Commit
// Registry (spec §2, §5).
package engine

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/autobuildd/internal/buildexec"
	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/git"
	"git.home.luguber.info/inful/autobuildd/internal/logfields"
	"git.home.luguber.info/inful/autobuildd/internal/metrics"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"git.home.luguber.info/inful/autobuildd/internal/registry"
	"git.home.luguber.info/inful/autobuildd/internal/retry"
	"git.home.luguber.info/inful/autobuildd/internal/semaphore"
	"git.home.luguber.info/inful/autobuildd/internal/worker"
)

// Engine owns every RepoNode and the shared build pipeline, and drives
// one Worker goroutine per repository.
type Engine struct {
	settings *config.Settings
	recorder metrics.Recorder
	log      *slog.Logger

	sem     *semaphore.BuildSemaphore
	repos   []*model.RepoNode
	workers []*worker.Worker
	group   WorkerGroup
}

// New builds an Engine from settings: one RepoNode per configured repo,
// a shared Build Semaphore sized to EffectiveBuildThreads, a shared
// Build Executor, and a shared Commit Registry.
func New(settings *config.Settings, recorder metrics.Recorder, log *slog.Logger) *Engine {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	sem := semaphore.New(settings.EffectiveBuildThreads())
	recorder.SetSemaphorePermits(sem.Capacity())

	executor := buildexec.New("nix", sem, settings.SupportedArchitectures, recorder, log)
	reg := registry.New("nix", sem, executor, nil, recorder, log)

	e := &Engine{settings: settings, recorder: recorder, log: log, sem: sem}
	policy := retry.NewPolicy(settings.RetryBackoff, 0, 0, -1)

	for _, repoCfg := range settings.Repos {
		checkoutPath := filepath.Join(settings.Dir, "repos", worker.CheckoutName(repoCfg.URL))
		repoNode := model.NewRepoNode(repoCfg, checkoutPath, "git+https://"+repoCfg.URL, settings)
		client := git.New(checkoutPath, log)
		w := worker.New(repoNode, client, reg, policy, recorder, log)

		e.repos = append(e.repos, repoNode)
		e.workers = append(e.workers, w)
	}

	return e
}

// Repos returns every RepoNode the engine owns, for the HTTP status
// projection.
func (e *Engine) Repos() []*model.RepoNode { return e.repos }

// Start launches one goroutine per Repository Worker (spec §5: "one
// long-lived Repository Worker task per configured repository").
func (e *Engine) Start(ctx context.Context) {
	for _, w := range e.workers {
		wk := w
		e.group.Go(func() { wk.Run(ctx) })
	}
	e.log.Info("engine started", logfields.Name("engine"))
}

// Shutdown waits for all worker goroutines to exit, bounded by ctx
// (ctx should already carry a deadline or be derived from the caller's
// own cancellation).
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.group.StopAndWait(ctx)
}
