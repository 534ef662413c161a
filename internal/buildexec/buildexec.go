// Package buildexec runs the external build tool for one target and
// publishes its status transitions (spec §4.3).
package buildexec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/autobuildd/internal/logfields"
	"git.home.luguber.info/inful/autobuildd/internal/metrics"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"git.home.luguber.info/inful/autobuildd/internal/semaphore"
	"git.home.luguber.info/inful/autobuildd/internal/util/sets"
)

// Runner invokes the external build tool and reports its trimmed
// stdout/stderr. The production implementation shells out with
// os/exec; tests substitute a fake so Build can be exercised without a
// real "nix" binary on PATH.
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

// Executor runs "<tool> build --no-link --print-out-paths <flake-url>"
// for a target under the shared BuildSemaphore.
type Executor struct {
	tool           string
	runner         Runner
	sem            *semaphore.BuildSemaphore
	supportedArchs sets.Set[string]
	recorder       metrics.Recorder
	log            *slog.Logger
}

// New constructs an Executor. tool is the external build tool binary
// ("nix" unless overridden).
func New(tool string, sem *semaphore.BuildSemaphore, supportedArchs []string, recorder metrics.Recorder, log *slog.Logger) *Executor {
	if tool == "" {
		tool = "nix"
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Executor{
		tool:           tool,
		runner:         execRunner{},
		sem:            sem,
		supportedArchs: sets.New(supportedArchs...),
		recorder:       recorder,
		log:            log,
	}
}

// WithRunner overrides the Runner, for tests.
func (e *Executor) WithRunner(r Runner) *Executor {
	e.runner = r
	return e
}

// Build drives one target through WaitingForBuild -> Building ->
// {Success,Failed}, or short-circuits to UnsupportedArchitecture without
// ever invoking the external tool (spec §4.3). It blocks until the build
// (or the unsupported-architecture short-circuit) completes, so callers
// run it on its own goroutine per target.
func (e *Executor) Build(ctx context.Context, target *model.TargetNode) {
	snap := target.Snapshot()

	if snap.Kind == model.TargetDerivation && !e.supportedArchs.Has(snap.Arch) {
		target.SetStatus(model.UnsupportedArchitecture(snap.Arch))
		e.log.Info("skip unsupported architecture",
			logfields.Tag("SKIP"), logfields.Target(snap.FlakeURL), logfields.Arch(snap.Arch))
		e.recorder.IncBuildOutcome(archLabel(snap), metrics.BuildOutcomeUnsupportedArch)
		return
	}

	target.SetStatus(model.WaitingForBuild())

	start := time.Now()
	outcome := metrics.BuildOutcomeFailed
	err := e.sem.Execute(ctx, func() error {
		target.SetStatus(model.Building())
		e.recorder.SetSemaphoreInUse(e.sem.InUse())
		e.log.Info("build", logfields.Tag("BUILD"), logfields.Target(snap.FlakeURL))

		stdout, stderr, runErr := e.runner.Run(ctx, e.tool, "build", "--no-link", "--print-out-paths", snap.FlakeURL)
		if runErr != nil {
			msg := stderr
			if msg == "" {
				msg = runErr.Error()
			}
			target.SetStatus(model.Failed(msg))
			e.log.Warn("build failed", logfields.Tag("ERROR"), logfields.Target(snap.FlakeURL), logfields.Error(runErr))
			return nil
		}

		target.SetStatus(model.Success(stdout))
		outcome = metrics.BuildOutcomeSuccess
		e.log.Info("build result", logfields.Tag("RESULT"), logfields.Target(snap.FlakeURL), logfields.Path(stdout))
		return nil
	})
	if err != nil {
		// Could not acquire a permit (context cancelled during shutdown).
		target.SetStatus(model.Failed(fmt.Sprintf("build cancelled: %v", err)))
	}

	e.recorder.ObserveBuildDuration(archLabel(snap), time.Since(start))
	e.recorder.IncBuildOutcome(archLabel(snap), outcome)
}

func archLabel(snap model.Snapshot) string {
	if snap.Kind == model.TargetSystemConfig {
		return "system"
	}
	return snap.Arch
}
