package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/autobuildd/internal/metrics"
	"git.home.luguber.info/inful/autobuildd/internal/model"
)

// RepoSource supplies the Status Model graph to serve under GET /repos.
type RepoSource interface {
	Repos() []*model.RepoNode
}

// Server is the read-only HTTP surface (spec §6).
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// New builds a Server bound to addr ("host:port"), serving the status
// projection from source, nix store artifacts rooted at storeRoot, and
// static frontend files from frontendDir for everything else.
func New(addr string, source RepoSource, storeRoot, frontendDir string, recorder metrics.Recorder, log *slog.Logger, metricsHandler http.Handler) *Server {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos", reposHandler(source))
	mux.Handle("/nix/store/", storeHandler("/nix/store/", storeRoot))
	mux.Handle("/store/", storeHandler("/store/", storeRoot))
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle("/", staticHandler(frontendDir))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Chain(log, recorder, mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start begins serving in a background goroutine; startup bind failures
// are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// reposHandler serves the pretty-printed JSON projection of the full
// Status Model graph (spec §6).
func reposHandler(source RepoSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		repos := source.Repos()
		snapshots := make([]model.RepoSnapshot, len(repos))
		for i, repo := range repos {
			snapshots[i] = repo.Snapshot()
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snapshots); err != nil {
			http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
		}
	}
}

// storeHandler strips prefix and serves the remaining path from under
// root, either as a file or (for directories) an HTML listing
// (spec §6's "GET /nix/store/<path> and GET /store/<path>").
func storeHandler(prefix, root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.StripPrefix(prefix, fs)
}

// staticHandler serves the frontend's static assets; an empty path
// resolves to index.html (spec §6's "GET /<anything-else>").
func staticHandler(frontendDir string) http.Handler {
	fs := http.FileServer(http.Dir(frontendDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean(r.URL.Path)
		if clean == "/" || clean == "." {
			r.URL.Path = "/index.html"
		}
		fs.ServeHTTP(w, r)
	})
}
