// Package logfields provides canonical log field names and helpers for structured logging in autobuildd.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
// These are used for structured logging with slog.
const (
	KeyRepo       = "repository"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyTarget     = "target"
	KeyArch       = "architecture"
	KeyTag        = "tag"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyWorker     = "worker"
	KeyMethod     = "method"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyStatus     = "status"
	KeyResponseSz = "response_size"
	KeyName       = "name"
	KeyURL        = "url"
)

// Repository returns a slog.Attr for a repository name.
func Repository(r string) slog.Attr { return slog.String(KeyRepo, r) }

// Branch returns a slog.Attr for a branch name.
func Branch(b string) slog.Attr { return slog.String(KeyBranch, b) }

// Commit returns a slog.Attr for a commit hash.
func Commit(c string) slog.Attr { return slog.String(KeyCommit, c) }

// Target returns a slog.Attr for a build target name.
func Target(t string) slog.Attr { return slog.String(KeyTarget, t) }

// Arch returns a slog.Attr for an architecture tag.
func Arch(a string) slog.Attr { return slog.String(KeyArch, a) }

// Tag returns a slog.Attr for a log tag (CLONE, PULL, POLL, BUILD, ...).
func Tag(t string) slog.Attr { return slog.String(KeyTag, t) }

// Stage returns a slog.Attr for a stage name.
func Stage(name string) slog.Attr { return slog.String(KeyStage, name) }

// DurationMS returns a slog.Attr for duration in ms.
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Path returns a slog.Attr for a file path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// File returns a slog.Attr for a file name.
func File(f string) slog.Attr { return slog.String(KeyFile, f) }

// Worker returns a slog.Attr for a worker ID (the repository it drives).
func Worker(id string) slog.Attr { return slog.String(KeyWorker, id) }

// Method returns a slog.Attr for an HTTP method.
func Method(m string) slog.Attr { return slog.String(KeyMethod, m) }

// UserAgent returns a slog.Attr for a user agent string.
func UserAgent(ua string) slog.Attr { return slog.String(KeyUserAgent, ua) }

// RemoteAddr returns a slog.Attr for a remote address.
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }

// RequestID returns a slog.Attr for a request ID.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// Status returns a slog.Attr for an HTTP status code.
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// ResponseSize returns a slog.Attr for a response size in bytes.
func ResponseSize(sz int) slog.Attr { return slog.Int(KeyResponseSz, sz) }

// Name returns a slog.Attr for a generic name field.
func Name(n string) slog.Attr { return slog.String(KeyName, n) }

// URL returns a slog.Attr for a URL field.
func URL(u string) slog.Attr { return slog.String(KeyURL, u) }

// Error returns a slog.Attr for an error, or an empty string if nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
