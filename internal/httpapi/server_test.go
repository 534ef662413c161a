package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/model"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSource struct{ repos []*model.RepoNode }

func (f fakeSource) Repos() []*model.RepoNode { return f.repos }

func newTestRepo(url, status string) *model.RepoNode {
	cfg := config.RepoConfig{URL: url, Branches: []string{"main"}, BuildDepth: 1}
	repo := model.NewRepoNode(cfg, "/tmp/"+url, "git+https://"+url, &config.Settings{})
	repo.SetStatus(model.RepoStatus(status))
	return repo
}

func TestReposHandlerServesPrettyJSONProjection(t *testing.T) {
	source := fakeSource{repos: []*model.RepoNode{newTestRepo("h/a", "idle")}}
	srv := New("127.0.0.1:0", source, t.TempDir(), t.TempDir(), nil, discardLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/repos", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  ") // pretty-printed

	var snapshots []model.RepoSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshots))
	require.Len(t, snapshots, 1)
	assert.Equal(t, "h/a", snapshots[0].URL)
}

func TestReposHandlerRejectsNonGet(t *testing.T) {
	srv := New("127.0.0.1:0", fakeSource{}, t.TempDir(), t.TempDir(), nil, discardLogger(), nil)
	req := httptest.NewRequest(http.MethodPost, "/repos", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStoreHandlerServesFileUnderRoot(t *testing.T) {
	storeRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(storeRoot, "artifact"), []byte("payload"), 0o644))

	srv := New("127.0.0.1:0", fakeSource{}, storeRoot, t.TempDir(), nil, discardLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/nix/store/artifact", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payload", rec.Body.String())
}

func TestStaticHandlerServesIndexForEmptyPath(t *testing.T) {
	frontendDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(frontendDir, "index.html"), []byte("<html>hi</html>"), 0o644))

	srv := New("127.0.0.1:0", fakeSource{}, t.TempDir(), frontendDir, nil, discardLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hi")
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	srv := New("127.0.0.1:0", fakeSource{}, t.TempDir(), t.TempDir(), nil, discardLogger(), nil)
	req := httptest.NewRequest(http.MethodGet, "/repos", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
