package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/autobuildd/internal/config"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewBuildsOneRepoNodePerConfiguredRepo(t *testing.T) {
	settings := &config.Settings{
		Dir:           t.TempDir(),
		NBuildThreads: 2,
		Repos: []config.RepoConfig{
			{URL: "example.com/a", Branches: []string{"main"}, BuildDepth: 1},
			{URL: "example.com/b", Branches: []string{"main"}, BuildDepth: 1},
		},
	}

	e := New(settings, nil, discardLogger())
	require.Len(t, e.Repos(), 2)
	assert.Equal(t, "example.com/a", e.Repos()[0].Config.URL)
	assert.Equal(t, "git+https://example.com/b", e.Repos()[1].FlakeURL)
}

func TestStartAndShutdownDoesNotHang(t *testing.T) {
	settings := &config.Settings{
		Dir:           t.TempDir(),
		NBuildThreads: 1,
		Repos: []config.RepoConfig{
			{URL: "example.com/a", Branches: []string{"main"}, BuildDepth: 1, PollIntervalSec: 3600},
		},
	}
	e := New(settings, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before Start so no worker ever reaches network I/O
	e.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, e.Shutdown(shutdownCtx))
}
